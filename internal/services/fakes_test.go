package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"

	"github.com/shopspring/decimal"
)

var testSession = session.Session{Token: "tok", UserID: "user-1", Email: "u@example.com"}

func testFilm() models.Film {
	return models.Film{
		ID:           "film-1",
		Name:         "Heat",
		Price:        decimal.RequireFromString("12.50"),
		SeatCapacity: 10,
	}
}

type fakeFilms struct {
	mu        sync.Mutex
	film      models.Film
	booked    []int
	filmErr   error
	seatsErr  error
	seatCalls int
}

func newFakeFilms(booked ...int) *fakeFilms {
	return &fakeFilms{film: testFilm(), booked: booked}
}

func (f *fakeFilms) GetFilm(_ context.Context, _ session.Session, filmID string) (*backend.FilmDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.filmErr != nil {
		return nil, f.filmErr
	}
	film := f.film
	film.ID = filmID
	return &backend.FilmDetail{Film: film}, nil
}

func (f *fakeFilms) GetBookedSeats(context.Context, session.Session, string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seatCalls++
	if f.seatsErr != nil {
		return nil, f.seatsErr
	}
	return append([]int(nil), f.booked...), nil
}

func (f *fakeFilms) setBooked(seats ...int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.booked = seats
	f.seatsErr = nil
}

type fakeStore struct {
	mu           sync.Mutex
	created      []backend.CreateReservationRequest
	createErr    error
	reservations []models.Reservation
}

func (s *fakeStore) CreateReservation(_ context.Context, _ session.Session, in backend.CreateReservationRequest) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, in)
	if s.createErr != nil {
		return nil, s.createErr
	}
	r := models.Reservation{
		ID:              fmt.Sprintf("res-%d", len(s.created)),
		FilmID:          in.FilmID,
		UserID:          in.UserID,
		SeatNumber:      in.SeatNumber,
		Verified:        in.BlockchainVerified,
		BlockIndex:      in.BlockIndex,
		TransactionHash: in.TransactionHash,
		WalletAddress:   in.WalletAddress,
	}
	s.reservations = append(s.reservations, r)
	return &r, nil
}

func (s *fakeStore) ListReservations(context.Context, session.Session, string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Reservation(nil), s.reservations...), nil
}

func (s *fakeStore) createCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type published struct {
	channel string
	msg     any
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (n *fakeNotifier) Publish(_ context.Context, channel string, msg any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, published{channel: channel, msg: msg})
	return n.err
}

func (n *fakeNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, p := range n.msgs {
		if pn, ok := p.msg.(models.PaymentNotification); ok {
			out = append(out, pn.Type)
		}
	}
	return out
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []*status.ReconciliationError
}

func (r *fakeRecorder) Record(_ context.Context, rec *status.ReconciliationError) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}
