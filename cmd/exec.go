package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cinema-booking/config"
	"cinema-booking/internal/handlers"
	"cinema-booking/internal/services"
	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/services/payment"
	"cinema-booking/internal/services/wallet"
	"cinema-booking/internal/session"
	"cinema-booking/monitoring"
	"cinema-booking/security"
	"cinema-booking/utils"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cinema-booking",
		Short:         "Seat booking gateway for the cinema backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var port string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig()
			if port != "" {
				cfg.Port = port
			}
			setupLogger(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Start(ctx, cfg)
		},
	}
	serve.Flags().StringVar(&port, "port", "", "listen port (overrides PORT)")

	root.AddCommand(serve)
	return root
}

func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

func setupLogger(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if cfg.IsDevelopment() {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

// Start wires the gateway and serves until ctx is done.
func Start(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Backend client
	breaker := utils.NewCircuitBreakerWithSettings("backend", utils.BreakerSettings{
		OnStateChange: func(name string, from, to utils.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			monitoring.SetBreakerState(name, int(to))
		},
	})
	api := backend.New(backend.Config{BaseURL: cfg.BackendURL, Timeout: cfg.BackendTimeout}, backend.WithBreaker(breaker))

	// Wallet
	var provider wallet.Provider
	if cfg.WalletRPCURL != "" {
		rpcProvider, err := wallet.Dial(ctx, cfg.WalletRPCURL)
		if err != nil {
			slog.Error("wallet provider unreachable, wallet payments disabled", "url", cfg.WalletRPCURL, "error", err)
		} else {
			defer rpcProvider.Close()
			provider = rpcProvider
		}
	}

	network := wallet.SepoliaNetwork()
	network.ChainID = cfg.NetworkChainID
	network.Name = cfg.NetworkName
	network.RPCURL = cfg.NetworkRPCURL
	network.ExplorerURL = cfg.NetworkExplorerURL

	monitor := wallet.NewMonitor(provider, network,
		wallet.WithPollInterval(cfg.WalletPollInterval),
		wallet.WithPollObserver(monitoring.RecordWalletPoll),
	)

	var contract *wallet.Contract
	if provider != nil && cfg.ContractAddress != "" {
		contract, err = wallet.NewContract(provider, cfg.ContractAddress,
			wallet.WithConfirmPollInterval(cfg.TxConfirmPollInterval),
			wallet.WithConfirmTimeout(cfg.TxConfirmTimeout))
		if err != nil {
			return fmt.Errorf("Start: %w", err)
		}
	}

	// Notifications
	var notifier services.Notifier = services.NopNotifier{}
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		notifier = services.NewPubNubNotifier(services.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		})
	} else {
		slog.Warn("pubnub not configured, notifications are dropped")
	}

	// Initialize services
	limiter := security.NewRateLimiter(redisClient, cfg.HoldRateLimit, cfg.APIRateLimit)
	ledger := services.NewReconciliationLedger(redisClient, services.DefaultLedgerKey)
	seats := services.NewSeatService(api)
	holds := services.NewHoldService(api, seats,
		services.WithHoldDuration(cfg.HoldDuration),
		services.WithHoldLimiter(limiter),
	)

	registry := payment.NewRegistry(payment.NewConventional(api))
	paymentOpts := []services.PaymentOption{
		services.WithNotifier(notifier),
		services.WithReconciliationRecorder(ledger),
	}
	var chain services.ChainVerifier
	if contract != nil {
		walletPay := payment.NewWallet(monitor, contract, api)
		registry.Register(walletPay)
		paymentOpts = append(paymentOpts, services.WithDirectPurchase(walletPay))
		chain = contract
	}
	payments := services.NewPaymentService(registry, holds, seats, api, api, paymentOpts...)
	verifier := services.NewVerifyService(api, chain)

	// Background tasks
	go func() {
		if err := monitor.Run(ctx); err != nil {
			slog.Error("wallet monitor stopped", "error", err)
		}
	}()
	go services.RelayWalletEvents(ctx, monitor, notifier)
	if cfg.EnableMetrics {
		go monitoring.NewMonitor(redisClient, ledger.Key()).Run(ctx)
	}

	// Register routes
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(limiter.AntiBotMiddleware())

	handlers.Routes{
		Seats:         handlers.NewSeatHandler(seats, holds, payments),
		Payments:      handlers.NewPaymentHandler(holds, payments, verifier),
		Wallet:        handlers.NewWalletHandler(monitor),
		Admin:         handlers.NewAdminHandler(ledger, redisClient),
		Sessions:      session.NewParser(cfg.JWTSecret),
		EnableMetrics: cfg.EnableMetrics,
		Middleware:    []echo.MiddlewareFunc{limiter.APIRateLimit()},
	}.Register(e)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening",
			"addr", srv.Addr,
			"backend", cfg.BackendURL,
			"wallet", provider != nil,
			"contract", cfg.ContractAddress,
			"methods", payments.Methods(),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("Start: listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutdown signal received, cleaning up")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	return srv.Shutdown(shutdownCtx)
}
