package services

import (
	"context"
	"log/slog"
	"sync"

	"cinema-booking/internal/session"

	"golang.org/x/sync/errgroup"
)

type ReservationVerifier interface {
	VerifyReservation(ctx context.Context, sess session.Session, filmID, userID string, seat int) (bool, error)
}

type ChainVerifier interface {
	VerifyOnChain(ctx context.Context, filmID, userID string, seat int) (bool, error)
}

// VerifyService answers whether a user owns a valid ticket for a seat.
// The backend is asked first and the ticket contract second; when neither
// can answer the ticket is reported invalid.
type VerifyService struct {
	api   ReservationVerifier
	chain ChainVerifier
	limit int
}

// NewVerifyService accepts a nil chain verifier when no contract is
// configured.
func NewVerifyService(api ReservationVerifier, chain ChainVerifier) *VerifyService {
	return &VerifyService{api: api, chain: chain, limit: 8}
}

func (v *VerifyService) Verify(ctx context.Context, sess session.Session, filmID, userID string, seat int) bool {
	ok, err := v.api.VerifyReservation(ctx, sess, filmID, userID, seat)
	if err == nil {
		return ok
	}
	slog.Warn("backend verification failed, asking contract",
		"film_id", filmID, "seat", seat, "user_id", userID, "error", err)

	if v.chain == nil {
		return false
	}
	ok, err = v.chain.VerifyOnChain(ctx, filmID, userID, seat)
	if err != nil {
		slog.Error("ticket verification failed", "film_id", filmID, "seat", seat, "error", err)
		return false
	}
	return ok
}

// VerifyBatch verifies seats concurrently and returns a result per seat.
func (v *VerifyService) VerifyBatch(ctx context.Context, sess session.Session, filmID, userID string, seats []int) (map[int]bool, error) {
	var (
		mu  sync.Mutex
		out = make(map[int]bool, len(seats))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.limit)
	for _, seat := range seats {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ok := v.Verify(gctx, sess, filmID, userID, seat)

			mu.Lock()
			out[seat] = ok
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
