package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/services/payment"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"
	"cinema-booking/monitoring"
)

// ReconciliationRecorder keeps payments that need manual settlement.
type ReconciliationRecorder interface {
	Record(ctx context.Context, rec *status.ReconciliationError) error
}

// ChainMinter performs the on-chain half of a wallet payment.
type ChainMinter interface {
	Mint(ctx context.Context, req *payment.Request) (*models.ChainProof, error)
}

type PaymentOption func(*PaymentService)

func WithNotifier(n Notifier) PaymentOption {
	return func(s *PaymentService) { s.notifier = n }
}

func WithReconciliationRecorder(r ReconciliationRecorder) PaymentOption {
	return func(s *PaymentService) { s.ledger = r }
}

// WithDirectPurchase enables buying a seat on-chain without a prior hold.
func WithDirectPurchase(m ChainMinter) PaymentOption {
	return func(s *PaymentService) { s.minter = m }
}

func WithPaymentClock(now func() time.Time) PaymentOption {
	return func(s *PaymentService) { s.now = now }
}

// PaymentService completes payment for held reservations. At most one
// attempt per reservation runs at a time, and a reservation is only
// reported verified after the backend accepted the payment.
type PaymentService struct {
	strategies *payment.Registry
	holds      *HoldService
	seats      *SeatService
	films      FilmSource
	store      ReservationStore
	ledger     ReconciliationRecorder
	notifier   Notifier
	minter     ChainMinter
	now        func() time.Time

	mu       sync.Mutex
	inFlight map[string]flight
}

type flight struct {
	userID string
	stage  models.PaymentStage
}

func NewPaymentService(strategies *payment.Registry, holds *HoldService, seats *SeatService, films FilmSource, store ReservationStore, opts ...PaymentOption) *PaymentService {
	s := &PaymentService{
		strategies: strategies,
		holds:      holds,
		seats:      seats,
		films:      films,
		store:      store,
		notifier:   NopNotifier{},
		now:        time.Now,
		inFlight:   make(map[string]flight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *PaymentService) Methods() []models.PaymentMethod {
	return s.strategies.Methods()
}

// begin claims key for one attempt by userID. The check and the claim
// happen under one lock.
func (s *PaymentService) begin(key, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return fmt.Errorf("%s: %w", key, status.ErrAlreadyInProgress)
	}
	s.inFlight[key] = flight{userID: userID, stage: models.StageIdle}
	monitoring.PaymentStarted()
	return nil
}

func (s *PaymentService) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inFlight, key)
	monitoring.PaymentFinished()
}

func (s *PaymentService) setStage(key string, stage models.PaymentStage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.inFlight[key]; ok {
		f.stage = stage
		s.inFlight[key] = f
	}
}

// Stage reports where userID's in-flight payment for the reservation is.
// It is idle when none is running or the payment belongs to someone else.
func (s *PaymentService) Stage(userID, reservationID string) (models.PaymentStage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.inFlight[reservationID]
	if !ok || f.userID != userID {
		return models.StageIdle, false
	}
	return f.stage, true
}

// PayReservation looks up the user's reservation and its film, then
// completes payment with method.
func (s *PaymentService) PayReservation(ctx context.Context, sess session.Session, reservationID string, method models.PaymentMethod) (*models.PaymentResult, error) {
	if _, err := s.strategies.Get(method); err != nil {
		return nil, err
	}

	r, err := s.holds.Find(ctx, sess, reservationID)
	if err != nil {
		return nil, fmt.Errorf("PayReservation: %w", err)
	}

	detail, err := s.films.GetFilm(ctx, sess, r.FilmID)
	if err != nil {
		return nil, fmt.Errorf("PayReservation: film %s: %w", r.FilmID, err)
	}

	return s.CompletePayment(ctx, sess, r, detail.Film, method)
}

// CompletePayment pays for reservation r with the given method.
func (s *PaymentService) CompletePayment(ctx context.Context, sess session.Session, r models.Reservation, film models.Film, method models.PaymentMethod) (*models.PaymentResult, error) {
	strategy, err := s.strategies.Get(method)
	if err != nil {
		return nil, err
	}
	if r.Verified {
		return nil, fmt.Errorf("reservation %s: %w", r.ID, status.ErrAlreadyVerified)
	}

	if err := s.begin(r.ID, sess.UserID); err != nil {
		return nil, err
	}
	defer s.end(r.ID)

	start := s.now()
	channel := UserChannel(sess.UserID)
	base := models.PaymentNotification{
		ReservationID: r.ID,
		FilmID:        r.FilmID,
		SeatNumber:    r.SeatNumber,
		Method:        method,
	}

	req := &payment.Request{
		Session:     sess,
		Reservation: r,
		Film:        film,
		Report: func(stage models.PaymentStage) {
			s.setStage(r.ID, stage)
			n := base
			n.Type = "payment_stage"
			n.Stage = stage
			notify(ctx, s.notifier, channel, n)
		},
	}

	out, err := strategy.Pay(ctx, req)
	if err != nil {
		s.fail(ctx, channel, base, method, start, err)
		return nil, err
	}

	updated := r
	if out.Confirmed != nil && out.Confirmed.ID == r.ID {
		updated = *out.Confirmed
		if updated.FilmName == "" {
			updated.FilmName = r.FilmName
			updated.FilmImage = r.FilmImage
		}
	}
	updated.Verified = true
	updated.ExpiresAt = nil
	if out.Proof != nil {
		block := out.Proof.BlockIndex
		updated.BlockIndex = &block
		updated.TransactionHash = out.Proof.TransactionHash
		updated.WalletAddress = out.Proof.WalletAddress
	}

	s.holds.Settle(updated)
	s.seats.MarkBooked(r.FilmID, r.SeatNumber)

	monitoring.RecordPayment(string(method), "success", s.now().Sub(start))
	slog.Info("payment completed",
		"reservation_id", r.ID,
		"method", method,
		"amount", out.Amount.String(),
		"user_id", sess.UserID,
		"session", sess.Fingerprint(),
	)

	n := base
	n.Type = "payment_success"
	notify(ctx, s.notifier, channel, n)

	return &models.PaymentResult{
		ReservationID: r.ID,
		Method:        method,
		Amount:        out.Amount,
		Proof:         out.Proof,
		Reservation:   updated,
		CompletedAt:   s.now(),
	}, nil
}

// fail reports a failed attempt. Reconciliation failures are written to the
// ledger and logged with everything needed to settle them by hand.
func (s *PaymentService) fail(ctx context.Context, channel string, base models.PaymentNotification, method models.PaymentMethod, start time.Time, err error) {
	n := base
	n.Error = status.Kind(err)
	n.Message = err.Error()

	var rec *status.ReconciliationError
	if errors.As(err, &rec) {
		monitoring.RecordReconciliationError()
		monitoring.RecordPayment(string(method), "reconciliation_error", s.now().Sub(start))

		slog.Error("payment taken on-chain but not recorded by backend",
			"reservation_id", rec.ReservationID,
			"film_id", rec.FilmID,
			"seat", rec.SeatNumber,
			"user_id", rec.UserID,
			"wallet", rec.WalletAddress,
			"tx", rec.TransactionHash,
			"block", rec.BlockIndex,
			"amount", rec.Amount.String(),
			"error", rec.Cause,
		)
		if s.ledger != nil {
			// the ledger write must outlive a cancelled request
			lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			if lerr := s.ledger.Record(lctx, rec); lerr != nil {
				slog.Error("reconciliation record lost", "tx", rec.TransactionHash, "error", lerr)
			}
			cancel()
		}

		n.Type = "payment_reconciliation_required"
		n.Message = "Payment was received on-chain but could not be recorded. Support has been notified; do not pay again."
		notify(ctx, s.notifier, channel, n)
		return
	}

	monitoring.RecordPayment(string(method), status.Kind(err), s.now().Sub(start))
	slog.Warn("payment failed",
		"reservation_id", base.ReservationID,
		"method", method,
		"kind", n.Error,
		"error", err,
	)
	n.Type = "payment_failed"
	notify(ctx, s.notifier, channel, n)
}

// PurchaseWithWallet buys a seat on-chain and records it as an already
// verified reservation, without a prior hold.
func (s *PaymentService) PurchaseWithWallet(ctx context.Context, sess session.Session, filmID string, seat int) (*models.Reservation, error) {
	if s.minter == nil {
		return nil, fmt.Errorf("direct purchase: %w", status.ErrWalletUnavailable)
	}

	board, err := s.seats.Board(ctx, sess, filmID)
	if err != nil {
		return nil, fmt.Errorf("PurchaseWithWallet: %w", err)
	}
	film := board.Film()
	if !film.HasSeat(seat) || board.IsBooked(seat) {
		return nil, fmt.Errorf("PurchaseWithWallet: seat %d: %w", seat, status.ErrInvalidSelection)
	}

	key := fmt.Sprintf("film:%s:seat:%d", filmID, seat)
	if err := s.begin(key, sess.UserID); err != nil {
		return nil, err
	}
	defer s.end(key)

	start := s.now()
	channel := UserChannel(sess.UserID)
	base := models.PaymentNotification{FilmID: filmID, SeatNumber: seat, Method: models.MethodBlockchain}

	req := &payment.Request{
		Session:     sess,
		Reservation: models.Reservation{FilmID: filmID, UserID: sess.UserID, SeatNumber: seat},
		Film:        film,
		Report: func(stage models.PaymentStage) {
			s.setStage(key, stage)
			n := base
			n.Type = "payment_stage"
			n.Stage = stage
			notify(ctx, s.notifier, channel, n)
		},
	}

	proof, err := s.minter.Mint(ctx, req)
	if err != nil {
		s.fail(ctx, channel, base, models.MethodBlockchain, start, err)
		return nil, err
	}

	req.Report(models.StageConfirmingBackend)
	block := proof.BlockIndex
	r, err := s.store.CreateReservation(ctx, sess, backend.CreateReservationRequest{
		UserID:             sess.UserID,
		FilmID:             filmID,
		SeatNumber:         seat,
		BlockchainVerified: true,
		WalletAddress:      proof.WalletAddress,
		BlockIndex:         &block,
		TransactionHash:    proof.TransactionHash,
	})
	if err != nil {
		rec := &status.ReconciliationError{
			FilmID:          filmID,
			UserID:          sess.UserID,
			SeatNumber:      seat,
			WalletAddress:   proof.WalletAddress,
			TransactionHash: proof.TransactionHash,
			BlockIndex:      proof.BlockIndex,
			Amount:          film.Price,
			Cause:           err,
		}
		s.fail(ctx, channel, base, models.MethodBlockchain, start, rec)
		return nil, rec
	}

	if r.FilmName == "" {
		r.FilmName = film.Name
		r.FilmImage = film.Image
	}
	s.holds.Settle(*r)
	s.seats.MarkBooked(filmID, seat)

	monitoring.RecordPayment(string(models.MethodBlockchain), "success", s.now().Sub(start))
	slog.Info("seat purchased on-chain",
		"reservation_id", r.ID,
		"film_id", filmID,
		"seat", seat,
		"tx", proof.TransactionHash,
		"block", proof.BlockIndex,
	)

	n := base
	n.Type = "payment_success"
	n.ReservationID = r.ID
	notify(ctx, s.notifier, channel, n)
	return r, nil
}
