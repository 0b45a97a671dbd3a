package payment

import (
	"context"
	"fmt"

	"cinema-booking/internal/services/backend"
	"cinema-booking/internal/status"
	"cinema-booking/models"
)

// Conventional settles with the backend alone; no chain proof is sent.
type Conventional struct {
	backend Confirmer
}

func NewConventional(b Confirmer) *Conventional {
	return &Conventional{backend: b}
}

func (c *Conventional) Method() models.PaymentMethod { return models.MethodConventional }

func (c *Conventional) Pay(ctx context.Context, req *Request) (*Outcome, error) {
	req.report(models.StageConfirmingBackend)

	details := backend.PaymentDetails{
		PaymentMethod: models.MethodConventional,
		Amount:        req.Film.Price,
	}

	confirmed, echoed, err := c.backend.ConfirmPayment(ctx, req.Session, req.Reservation.ID, details)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", status.ErrPayment, paymentMessage(err))
	}

	out := &Outcome{Method: models.MethodConventional, Amount: req.Film.Price}
	if echoed {
		out.Confirmed = confirmed
	}
	return out, nil
}

// paymentMessage prefers the backend's own words.
func paymentMessage(err error) string {
	if msg := backend.Message(err); msg != "" {
		return msg
	}
	return err.Error()
}
