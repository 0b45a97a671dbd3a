package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"
)

// SeatBoard is a point-in-time view of one film's seats.
type SeatBoard struct {
	FilmID     string `json:"film_id"`
	Capacity   int    `json:"capacity"`
	Booked     []int  `json:"booked"`
	Selectable []int  `json:"selectable"`
	Selected   *int   `json:"selected"`
	// Stale is set when booked seats could not be fetched and the board
	// shows every seat as free.
	Stale bool `json:"stale"`
}

// SeatTracker holds one viewer's seat map for one film. The booked set is
// what the server reported merged with seats booked here since.
type SeatTracker struct {
	mu         sync.RWMutex
	film       models.Film
	server     map[int]struct{}
	optimistic map[int]struct{}
	selected   int
	stale      bool
}

func NewSeatTracker(film models.Film) *SeatTracker {
	return &SeatTracker{
		film:       film,
		server:     make(map[int]struct{}),
		optimistic: make(map[int]struct{}),
	}
}

func (t *SeatTracker) Film() models.Film {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.film
}

// SetServerBooked replaces the server-reported set. Optimistic entries the
// server now confirms are dropped; the rest are kept.
func (t *SeatTracker) SetServerBooked(seats []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.server = make(map[int]struct{}, len(seats))
	for _, s := range seats {
		t.server[s] = struct{}{}
		delete(t.optimistic, s)
	}
	t.stale = false

	if t.isBookedLocked(t.selected) {
		t.selected = 0
	}
}

func (t *SeatTracker) markStale() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stale = true
}

// MarkBooked records a seat booked here before the server reports it.
func (t *SeatTracker) MarkBooked(seat int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.server[seat]; !ok {
		t.optimistic[seat] = struct{}{}
	}
	if t.selected == seat {
		t.selected = 0
	}
}

func (t *SeatTracker) IsBooked(seat int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isBookedLocked(seat)
}

func (t *SeatTracker) isBookedLocked(seat int) bool {
	if _, ok := t.server[seat]; ok {
		return true
	}
	_, ok := t.optimistic[seat]
	return ok
}

// Select toggles seat as the single selection. Booked or out-of-range
// seats leave the selection untouched.
func (t *SeatTracker) Select(seat int) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.film.HasSeat(seat) {
		return t.selected, fmt.Errorf("seat %d of %d: %w", seat, t.film.SeatCapacity, status.ErrInvalidSelection)
	}
	if t.isBookedLocked(seat) {
		return t.selected, fmt.Errorf("seat %d is booked: %w", seat, status.ErrInvalidSelection)
	}

	if t.selected == seat {
		t.selected = 0
	} else {
		t.selected = seat
	}
	return t.selected, nil
}

// Selection returns the selected seat, or 0 and false.
func (t *SeatTracker) Selection() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected, t.selected != 0
}

// Booked returns the effective booked set, sorted.
func (t *SeatTracker) Booked() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bookedLocked()
}

func (t *SeatTracker) bookedLocked() []int {
	out := make([]int, 0, len(t.server)+len(t.optimistic))
	for s := range t.server {
		out = append(out, s)
	}
	for s := range t.optimistic {
		if _, dup := t.server[s]; !dup {
			out = append(out, s)
		}
	}
	sort.Ints(out)
	return out
}

func (t *SeatTracker) Snapshot() SeatBoard {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b := SeatBoard{
		FilmID:     t.film.ID,
		Capacity:   t.film.SeatCapacity,
		Booked:     t.bookedLocked(),
		Selectable: make([]int, 0, t.film.SeatCapacity),
		Stale:      t.stale,
	}
	for s := 1; s <= t.film.SeatCapacity; s++ {
		if !t.isBookedLocked(s) {
			b.Selectable = append(b.Selectable, s)
		}
	}
	if t.selected != 0 {
		sel := t.selected
		b.Selected = &sel
	}
	return b
}

// FilmSource is the backend's film catalog.
type FilmSource interface {
	GetFilm(ctx context.Context, sess session.Session, filmID string) (*backend.FilmDetail, error)
	GetBookedSeats(ctx context.Context, sess session.Session, filmID string) ([]int, error)
}

// SeatService keeps a SeatTracker per viewer and film.
type SeatService struct {
	films FilmSource

	mu     sync.Mutex
	boards map[string]*SeatTracker
}

func NewSeatService(films FilmSource) *SeatService {
	return &SeatService{films: films, boards: make(map[string]*SeatTracker)}
}

func boardKey(userID, filmID string) string {
	return userID + "|" + filmID
}

// LoadBookedSeats fetches the film's bookings. On failure the caller should
// treat every seat as free.
func (s *SeatService) LoadBookedSeats(ctx context.Context, sess session.Session, filmID string) ([]int, error) {
	seats, err := s.films.GetBookedSeats(ctx, sess, filmID)
	if err != nil {
		return []int{}, fmt.Errorf("LoadBookedSeats %s: %w", filmID, err)
	}
	return seats, nil
}

// Load reloads the viewer's board from the backend, replacing any board
// the viewer had. When only the booked seats fail to load the board is
// still returned, marked stale, together with the error.
func (s *SeatService) Load(ctx context.Context, sess session.Session, filmID string) (*SeatTracker, error) {
	detail, err := s.films.GetFilm(ctx, sess, filmID)
	if err != nil {
		return nil, fmt.Errorf("Load film %s: %w", filmID, err)
	}

	t := NewSeatTracker(detail.Film)
	s.mu.Lock()
	if prev, ok := s.boards[boardKey(sess.UserID, filmID)]; ok {
		prev.mu.RLock()
		for seat := range prev.optimistic {
			t.optimistic[seat] = struct{}{}
		}
		prev.mu.RUnlock()
	}
	s.boards[boardKey(sess.UserID, filmID)] = t
	s.mu.Unlock()

	seats := detail.BookedSeats
	if !detail.HasBookedSeats {
		seats, err = s.LoadBookedSeats(ctx, sess, filmID)
		if err != nil {
			slog.Warn("booked seats unknown, showing all seats free", "film_id", filmID, "error", err)
			t.SetServerBooked(nil)
			t.markStale()
			return t, err
		}
	}
	t.SetServerBooked(seats)
	return t, nil
}

// Board returns the viewer's board, loading it on first use.
func (s *SeatService) Board(ctx context.Context, sess session.Session, filmID string) (*SeatTracker, error) {
	s.mu.Lock()
	t, ok := s.boards[boardKey(sess.UserID, filmID)]
	s.mu.Unlock()
	if ok {
		return t, nil
	}

	t, err := s.Load(ctx, sess, filmID)
	if t == nil {
		return nil, err
	}
	return t, nil
}

func (s *SeatService) Select(ctx context.Context, sess session.Session, filmID string, seat int) (SeatBoard, error) {
	t, err := s.Board(ctx, sess, filmID)
	if err != nil {
		return SeatBoard{}, err
	}
	if _, err := t.Select(seat); err != nil {
		return t.Snapshot(), err
	}
	return t.Snapshot(), nil
}

// MarkBooked marks the seat on every board for the film.
func (s *SeatService) MarkBooked(filmID string, seat int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, t := range s.boards {
		if strings.HasSuffix(key, "|"+filmID) {
			t.MarkBooked(seat)
		}
	}
}
