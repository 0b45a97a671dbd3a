package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"cinema-booking/internal/services"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v5"
)

type SeatBoards interface {
	Load(ctx context.Context, sess session.Session, filmID string) (*services.SeatTracker, error)
	Board(ctx context.Context, sess session.Session, filmID string) (*services.SeatTracker, error)
	Select(ctx context.Context, sess session.Session, filmID string, seat int) (services.SeatBoard, error)
}

type HoldCreator interface {
	CreateHold(ctx context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error)
	Remaining(r models.Reservation) models.RemainingTime
}

type WalletPurchaser interface {
	PurchaseWithWallet(ctx context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error)
}

type SeatHandler struct {
	seats     SeatBoards
	holds     HoldCreator
	purchases WalletPurchaser
	validator *validator.Validate
}

func NewSeatHandler(seats SeatBoards, holds HoldCreator, purchases WalletPurchaser) *SeatHandler {
	return &SeatHandler{
		seats:     seats,
		holds:     holds,
		purchases: purchases,
		validator: validator.New(),
	}
}

type SeatsResponse struct {
	Film models.Film `json:"film"`
	services.SeatBoard
}

type SelectSeatRequest struct {
	SeatNumber int `json:"seatNumber" validate:"required,min=1"`
}

// SeatRequest names a seat, or the caller's current selection when empty.
type SeatRequest struct {
	SeatNumber *int `json:"seatNumber" validate:"omitempty,min=1"`
}

type HoldResponse struct {
	Reservation models.Reservation   `json:"reservation"`
	Remaining   models.RemainingTime `json:"remaining"`
}

// GetSeats reloads the film's seat map. When booked seats cannot be
// fetched the board is still returned, flagged stale, with every seat free.
func (h *SeatHandler) GetSeats(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	filmID := c.PathParam("id")

	t, err := h.seats.Load(c.Request().Context(), sess, filmID)
	if t == nil {
		return respondError(c, err)
	}
	if err != nil {
		slog.Warn("serving stale seat map", "film_id", filmID, "error", err)
	}

	return c.JSON(http.StatusOK, SeatsResponse{Film: t.Film(), SeatBoard: t.Snapshot()})
}

// SelectSeat toggles the caller's selection.
func (h *SeatHandler) SelectSeat(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req SelectSeatRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return badRequest(c, err.Error())
	}

	board, err := h.seats.Select(c.Request().Context(), sess, c.PathParam("id"), req.SeatNumber)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, board)
}

func (h *SeatHandler) seatFor(c echo.Context, sess session.Session, filmID string, req SeatRequest) (int, error) {
	if req.SeatNumber != nil {
		return *req.SeatNumber, nil
	}
	t, err := h.seats.Board(c.Request().Context(), sess, filmID)
	if err != nil {
		return 0, err
	}
	seat, ok := t.Selection()
	if !ok {
		return 0, fmt.Errorf("no seat selected: %w", status.ErrInvalidSelection)
	}
	return seat, nil
}

// CreateHold holds the requested or selected seat.
func (h *SeatHandler) CreateHold(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req SeatRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return badRequest(c, err.Error())
	}

	filmID := c.PathParam("id")
	seat, err := h.seatFor(c, sess, filmID, req)
	if err != nil {
		return respondError(c, err)
	}

	r, err := h.holds.CreateHold(c.Request().Context(), sess, filmID, seat)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, HoldResponse{Reservation: *r, Remaining: h.holds.Remaining(*r)})
}

// Purchase buys the requested or selected seat straight from the wallet.
func (h *SeatHandler) Purchase(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req SeatRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return badRequest(c, err.Error())
	}

	filmID := c.PathParam("id")
	seat, err := h.seatFor(c, sess, filmID, req)
	if err != nil {
		return respondError(c, err)
	}

	// the chain does not stop when the client goes away
	ctx := context.WithoutCancel(c.Request().Context())
	r, err := h.purchases.PurchaseWithWallet(ctx, sess, filmID, seat)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, r)
}
