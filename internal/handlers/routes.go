package handlers

import (
	"cinema-booking/internal/session"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Routes struct {
	Seats    *SeatHandler
	Payments *PaymentHandler
	Wallet   *WalletHandler
	Admin    *AdminHandler

	Sessions      *session.Parser
	EnableMetrics bool
	// Middleware runs after authentication on every /api/v1 route.
	Middleware []echo.MiddlewareFunc
}

func (r Routes) Register(e *echo.Echo) {
	e.GET("/health", r.Admin.Health)
	if r.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	mw := append([]echo.MiddlewareFunc{RequireSession(r.Sessions)}, r.Middleware...)
	api := e.Group("/api/v1", mw...)

	// Seat endpoints
	api.GET("/films/:id/seats", r.Seats.GetSeats)
	api.POST("/films/:id/select", r.Seats.SelectSeat)
	api.POST("/films/:id/holds", r.Seats.CreateHold)
	api.POST("/films/:id/purchase", r.Seats.Purchase)

	// Reservation and payment endpoints
	api.GET("/reservations", r.Payments.ListReservations)
	api.GET("/payments/methods", r.Payments.Methods)
	api.POST("/reservations/:id/pay", r.Payments.Pay)
	api.GET("/reservations/:id/stage", r.Payments.Stage)
	api.GET("/verify/:filmId", r.Payments.VerifyBatch)
	api.GET("/verify/:filmId/:seatNumber", r.Payments.Verify)

	// Wallet endpoints
	api.GET("/wallet", r.Wallet.Get)
	api.POST("/wallet/connect", r.Wallet.Connect)
	api.POST("/wallet/disconnect", r.Wallet.Disconnect)
	api.GET("/wallet/network", r.Wallet.Network)
	api.POST("/wallet/network/switch", r.Wallet.SwitchNetwork)

	// Admin endpoints
	api.GET("/admin/reconciliations", r.Admin.Reconciliations)
}
