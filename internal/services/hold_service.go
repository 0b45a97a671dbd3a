package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"
	"cinema-booking/monitoring"
)

// ReservationStore is the backend's reservation API.
type ReservationStore interface {
	CreateReservation(ctx context.Context, sess session.Session, in backend.CreateReservationRequest) (*models.Reservation, error)
	ListReservations(ctx context.Context, sess session.Session, userID string) ([]models.Reservation, error)
}

// HoldLimiter caps how often a user may place holds.
type HoldLimiter interface {
	AllowHold(ctx context.Context, userID string) error
}

type HoldOption func(*HoldService)

func WithHoldDuration(d time.Duration) HoldOption {
	return func(h *HoldService) {
		if d > 0 {
			h.holdDuration = d
		}
	}
}

func WithHoldLimiter(l HoldLimiter) HoldOption {
	return func(h *HoldService) { h.limiter = l }
}

func WithHoldClock(now func() time.Time) HoldOption {
	return func(h *HoldService) { h.now = now }
}

// HoldService creates time-boxed seat holds and reports reservations with
// their current classification. Hold failures are returned to the caller
// and never retried here.
type HoldService struct {
	store        ReservationStore
	seats        *SeatService
	limiter      HoldLimiter
	holdDuration time.Duration
	now          func() time.Time

	mu sync.RWMutex
	// settled holds reservations this process saw verified, so a backend
	// list that lags behind does not show them unpaid again.
	settled map[string]models.Reservation
}

func NewHoldService(store ReservationStore, seats *SeatService, opts ...HoldOption) *HoldService {
	h := &HoldService{
		store:        store,
		seats:        seats,
		holdDuration: models.DefaultHoldDuration,
		now:          time.Now,
		settled:      make(map[string]models.Reservation),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CreateHold reserves seat for the session's user for the hold window.
func (h *HoldService) CreateHold(ctx context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error) {
	board, err := h.seats.Board(ctx, sess, filmID)
	if err != nil {
		monitoring.RecordHold("fetch_error")
		return nil, fmt.Errorf("CreateHold: %w", err)
	}

	film := board.Film()
	if !film.HasSeat(seat) {
		monitoring.RecordHold("invalid")
		return nil, fmt.Errorf("CreateHold: seat %d of %d: %w", seat, film.SeatCapacity, status.ErrInvalidSelection)
	}
	if board.IsBooked(seat) {
		monitoring.RecordHold("invalid")
		return nil, fmt.Errorf("CreateHold: seat %d is booked: %w", seat, status.ErrInvalidSelection)
	}

	if h.limiter != nil {
		if err := h.limiter.AllowHold(ctx, sess.UserID); err != nil {
			monitoring.RecordHold("rate_limited")
			return nil, fmt.Errorf("CreateHold: %w", err)
		}
	}

	r, err := h.store.CreateReservation(ctx, sess, backend.CreateReservationRequest{
		UserID:     sess.UserID,
		FilmID:     filmID,
		SeatNumber: seat,
	})
	if err != nil {
		switch backend.StatusCode(err) {
		case http.StatusUnauthorized, http.StatusForbidden:
			monitoring.RecordHold("unauthenticated")
			return nil, fmt.Errorf("CreateHold: %w: %s", status.ErrUnauthenticated, holdMessage(err))
		}
		if backend.IsClientError(err) && !errors.Is(err, status.ErrNotFound) {
			monitoring.RecordHold("conflict")
			slog.Info("hold rejected by backend", "film_id", filmID, "seat", seat, "user_id", sess.UserID, "error", err)
			return nil, fmt.Errorf("CreateHold: %w: %s", status.ErrReservationConflict, holdMessage(err))
		}
		monitoring.RecordHold("fetch_error")
		return nil, fmt.Errorf("CreateHold: %w", err)
	}

	if r.CreatedAt.IsZero() {
		r.CreatedAt = h.now()
	}
	if r.ExpiresAt == nil && !r.Verified {
		exp := r.CreatedAt.Add(h.holdDuration)
		r.ExpiresAt = &exp
	}
	if r.FilmName == "" {
		r.FilmName = film.Name
		r.FilmImage = film.Image
	}

	h.seats.MarkBooked(filmID, seat)
	monitoring.RecordHold("created")
	slog.Info("hold created",
		"reservation_id", r.ID,
		"film_id", filmID,
		"seat", seat,
		"user_id", sess.UserID,
		"expires_at", r.ExpiresAt,
	)
	return r, nil
}

func holdMessage(err error) string {
	if msg := backend.Message(err); msg != "" {
		return msg
	}
	return "seat could not be reserved"
}

// Classify and Remaining use the service clock.
func (h *HoldService) Classify(r models.Reservation) models.ReservationStatus {
	return models.Classify(r, h.now())
}

func (h *HoldService) Remaining(r models.Reservation) models.RemainingTime {
	return models.Remaining(r, h.now(), h.holdDuration)
}

// Reservations lists the user's reservations with settlements seen here
// applied.
func (h *HoldService) Reservations(ctx context.Context, sess session.Session) ([]models.Reservation, error) {
	rs, err := h.store.ListReservations(ctx, sess, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("Reservations: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range rs {
		s, ok := h.settled[r.ID]
		switch {
		case !ok:
		case r.Verified:
			// backend caught up
			delete(h.settled, r.ID)
		default:
			rs[i] = s
		}
	}
	return rs, nil
}

func (h *HoldService) ListReservations(ctx context.Context, sess session.Session) (models.ReservationGroups, error) {
	rs, err := h.Reservations(ctx, sess)
	if err != nil {
		return models.ReservationGroups{}, err
	}
	return models.GroupReservations(rs, h.now(), h.holdDuration), nil
}

// Find returns one of the session user's reservations.
func (h *HoldService) Find(ctx context.Context, sess session.Session, reservationID string) (models.Reservation, error) {
	rs, err := h.Reservations(ctx, sess)
	if err != nil {
		return models.Reservation{}, err
	}
	for _, r := range rs {
		if r.ID == reservationID {
			return r, nil
		}
	}
	return models.Reservation{}, fmt.Errorf("reservation %s: %w", reservationID, status.ErrNotFound)
}

// Settle records that r was paid for.
func (h *HoldService) Settle(r models.Reservation) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settled[r.ID] = r
}
