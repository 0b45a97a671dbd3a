package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"cinema-booking/internal/session"
	"cinema-booking/models"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v5"
)

type ReservationLister interface {
	ListReservations(ctx context.Context, sess session.Session) (models.ReservationGroups, error)
}

type Payer interface {
	PayReservation(ctx context.Context, sess session.Session, reservationID string, method models.PaymentMethod) (*models.PaymentResult, error)
	Stage(userID, reservationID string) (models.PaymentStage, bool)
	Methods() []models.PaymentMethod
}

type TicketVerifier interface {
	Verify(ctx context.Context, sess session.Session, filmID, userID string, seat int) bool
	VerifyBatch(ctx context.Context, sess session.Session, filmID, userID string, seats []int) (map[int]bool, error)
}

const maxBatchSeats = 100

type PaymentHandler struct {
	reservations ReservationLister
	payments     Payer
	verifier     TicketVerifier
	validator    *validator.Validate
}

func NewPaymentHandler(reservations ReservationLister, payments Payer, verifier TicketVerifier) *PaymentHandler {
	return &PaymentHandler{
		reservations: reservations,
		payments:     payments,
		verifier:     verifier,
		validator:    validator.New(),
	}
}

type PayRequest struct {
	Method models.PaymentMethod `json:"method" validate:"required"`
}

type StageResponse struct {
	ReservationID string              `json:"reservation_id"`
	Stage         models.PaymentStage `json:"stage"`
	InProgress    bool                `json:"in_progress"`
}

type VerifyResponse struct {
	FilmID     string `json:"film_id"`
	UserID     string `json:"user_id"`
	SeatNumber int    `json:"seat_number"`
	Verified   bool   `json:"verified"`
}

type BatchVerifyResponse struct {
	FilmID string       `json:"film_id"`
	UserID string       `json:"user_id"`
	Seats  map[int]bool `json:"seats"`
}

func (h *PaymentHandler) ListReservations(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	groups, err := h.reservations.ListReservations(c.Request().Context(), sess)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, groups)
}

func (h *PaymentHandler) Methods(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"methods": h.payments.Methods()})
}

// Pay completes payment for one of the caller's held reservations.
func (h *PaymentHandler) Pay(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	var req PayRequest
	if err := bindAndValidate(c, h.validator, &req); err != nil {
		return badRequest(c, err.Error())
	}

	// a payment that reached the wallet must run to the end
	ctx := context.WithoutCancel(c.Request().Context())
	res, err := h.payments.PayReservation(ctx, sess, c.PathParam("id"), req.Method)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Stage reports the caller's own in-flight payment; other users' payments
// read as idle.
func (h *PaymentHandler) Stage(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}

	id := c.PathParam("id")
	stage, running := h.payments.Stage(sess.UserID, id)
	return c.JSON(http.StatusOK, StageResponse{ReservationID: id, Stage: stage, InProgress: running})
}

// Verify checks the caller's ticket for a seat. Admins may check another
// user with ?userId=.
func (h *PaymentHandler) Verify(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	seat, err := seatParam(c, "seatNumber")
	if err != nil {
		return badRequest(c, err.Error())
	}

	userID := targetUser(c, sess)
	filmID := c.PathParam("filmId")
	ok := h.verifier.Verify(c.Request().Context(), sess, filmID, userID, seat)
	return c.JSON(http.StatusOK, VerifyResponse{FilmID: filmID, UserID: userID, SeatNumber: seat, Verified: ok})
}

// VerifyBatch checks the caller's tickets for several seats of one film,
// given as ?seats=1,2,3.
func (h *PaymentHandler) VerifyBatch(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	seats, err := parseSeatList(c.QueryParam("seats"))
	if err != nil {
		return badRequest(c, err.Error())
	}

	userID := targetUser(c, sess)
	filmID := c.PathParam("filmId")
	results, err := h.verifier.VerifyBatch(c.Request().Context(), sess, filmID, userID, seats)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, BatchVerifyResponse{FilmID: filmID, UserID: userID, Seats: results})
}

// targetUser is the caller, or the ?userId= user when an admin asks.
func targetUser(c echo.Context, sess session.Session) string {
	if other := c.QueryParam("userId"); other != "" && sess.IsAdmin {
		return other
	}
	return sess.UserID
}

func parseSeatList(raw string) ([]int, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("seats is required")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > maxBatchSeats {
		return nil, fmt.Errorf("at most %d seats per request", maxBatchSeats)
	}

	seen := make(map[int]bool, len(parts))
	seats := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 1 {
			return nil, errBadSeat
		}
		if !seen[n] {
			seen[n] = true
			seats = append(seats, n)
		}
	}
	return seats, nil
}
