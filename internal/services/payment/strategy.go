// Package payment holds the interchangeable ways a held reservation can be
// paid for. Each strategy ends with the backend confirmation call.
package payment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/models"

	"github.com/shopspring/decimal"
)

// Request is one payment attempt for a held reservation.
type Request struct {
	Session     session.Session
	Reservation models.Reservation
	Film        models.Film
	// Report is told each stage as the attempt enters it. May be nil.
	Report func(models.PaymentStage)
}

func (r *Request) report(stage models.PaymentStage) {
	if r.Report != nil {
		r.Report(stage)
	}
}

// Outcome is a payment the backend accepted. Confirmed is the backend's
// copy of the reservation when it echoed one.
type Outcome struct {
	Method    models.PaymentMethod
	Amount    decimal.Decimal
	Proof     *models.ChainProof
	Confirmed *models.Reservation
}

type Strategy interface {
	Method() models.PaymentMethod
	Pay(ctx context.Context, req *Request) (*Outcome, error)
}

// Confirmer is the backend call every strategy finishes with.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, sess session.Session, reservationID string, details backend.PaymentDetails) (*models.Reservation, bool, error)
}

// Registry maps payment methods to their strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[models.PaymentMethod]Strategy
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[models.PaymentMethod]Strategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Method()] = s
}

func (r *Registry) Get(method models.PaymentMethod) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[method]
	if !ok {
		return nil, fmt.Errorf("payment method %q: %w", method, status.ErrUnsupportedMethod)
	}
	return s, nil
}

func (r *Registry) Methods() []models.PaymentMethod {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]models.PaymentMethod, 0, len(r.strategies))
	for m := range r.strategies {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
