package monitoring

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payment attempts by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	paymentDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_duration_seconds",
			Help:    "Time from payment start to outcome",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"method"},
	)

	paymentsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payments_in_flight",
			Help: "Payments currently being processed",
		},
	)

	holdsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holds_total",
			Help: "Seat hold attempts by outcome",
		},
		[]string{"outcome"},
	)

	reconciliationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reconciliation_errors_total",
			Help: "On-chain payments the backend failed to record",
		},
	)

	reconciliationPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reconciliation_pending",
			Help: "Reconciliation records waiting for an operator",
		},
	)

	walletPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_polls_total",
			Help: "Wallet connection polls by outcome",
		},
		[]string{"outcome"},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)
)

func RecordPayment(method, outcome string, took time.Duration) {
	paymentsTotal.WithLabelValues(method, outcome).Inc()
	paymentDuration.WithLabelValues(method).Observe(took.Seconds())
}

func PaymentStarted()  { paymentsInFlight.Inc() }
func PaymentFinished() { paymentsInFlight.Dec() }

func RecordHold(outcome string) {
	holdsTotal.WithLabelValues(outcome).Inc()
}

func RecordReconciliationError() {
	reconciliationErrors.Inc()
}

func RecordWalletPoll(outcome string) {
	walletPolls.WithLabelValues(outcome).Inc()
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

// Monitor samples gauges that nothing updates inline.
type Monitor struct {
	redis     redis.Cmdable
	ledgerKey string
	interval  time.Duration
}

func NewMonitor(redisClient redis.Cmdable, ledgerKey string) *Monitor {
	return &Monitor{redis: redisClient, ledgerKey: ledgerKey, interval: 30 * time.Second}
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.collect(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) collect(ctx context.Context) {
	goroutineCount.Set(float64(runtime.NumGoroutine()))

	if m.redis == nil {
		return
	}
	n, err := m.redis.LLen(ctx, m.ledgerKey).Result()
	if err != nil {
		slog.Debug("reconciliation ledger length", "error", err)
		return
	}
	reconciliationPending.Set(float64(n))
}
