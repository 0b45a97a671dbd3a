package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"cinema-booking/internal/session"
	"cinema-booking/models"

	"github.com/shopspring/decimal"
)

// FilmDetail is a normalized GET /film/{id}. HasBookedSeats is false when
// the response carried no reservations, and BookedSeats must then be
// fetched separately.
type FilmDetail struct {
	Film           models.Film
	BookedSeats    []int
	HasBookedSeats bool
}

func (c *Client) GetFilm(ctx context.Context, sess session.Session, filmID string) (*FilmDetail, error) {
	var payload filmPayload
	if err := c.do(ctx, sess, "GetFilm", http.MethodGet, pathf("/film/%s", filmID), nil, &payload); err != nil {
		return nil, err
	}

	film, seats, ok := payload.normalize()
	if film.ID == "" {
		film.ID = filmID
	}
	return &FilmDetail{Film: film, BookedSeats: seats, HasBookedSeats: ok}, nil
}

func (c *Client) GetBookedSeats(ctx context.Context, sess session.Session, filmID string) ([]int, error) {
	var reply struct {
		BookedSeats []int `json:"bookedSeats"`
	}
	if err := c.do(ctx, sess, "GetBookedSeats", http.MethodGet, pathf("/film/%s/seats", filmID), nil, &reply); err != nil {
		return nil, err
	}
	if reply.BookedSeats == nil {
		return []int{}, nil
	}
	return reply.BookedSeats, nil
}

type CreateReservationRequest struct {
	UserID             string  `json:"userId"`
	FilmID             string  `json:"filmId"`
	SeatNumber         int     `json:"seatNumber"`
	BlockchainVerified bool    `json:"blockchainVerified"`
	WalletAddress      string  `json:"walletAddress,omitempty"`
	BlockIndex         *uint64 `json:"blockIndex,omitempty"`
	TransactionHash    string  `json:"transactionHash,omitempty"`
}

// CreateReservation posts a hold (BlockchainVerified false) or an already
// paid on-chain booking. The returned reservation falls back to the request
// fields when the backend's reply omits them.
func (c *Client) CreateReservation(ctx context.Context, sess session.Session, in CreateReservationRequest) (*models.Reservation, error) {
	var reply reservationEnvelope
	if err := c.do(ctx, sess, "CreateReservation", http.MethodPost, "/reservations", in, &reply); err != nil {
		return nil, err
	}

	r, _ := reply.unwrap()
	if r.FilmID == "" {
		r.FilmID = in.FilmID
	}
	if r.UserID == "" {
		r.UserID = in.UserID
	}
	if r.SeatNumber == 0 {
		r.SeatNumber = in.SeatNumber
	}
	if in.BlockchainVerified {
		r.Verified = true
		r.ExpiresAt = nil
		if r.TransactionHash == "" {
			r.TransactionHash = in.TransactionHash
		}
		if r.WalletAddress == "" {
			r.WalletAddress = in.WalletAddress
		}
		if r.BlockIndex == nil {
			r.BlockIndex = in.BlockIndex
		}
	}
	return &r, nil
}

// PaymentDetails is the body of the payment confirmation call. Chain proof
// fields are left out for conventional payments.
type PaymentDetails struct {
	PaymentMethod   models.PaymentMethod
	Amount          decimal.Decimal
	WalletAddress   string
	BlockIndex      *uint64
	TransactionHash string
}

func (d PaymentDetails) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PaymentMethod   models.PaymentMethod `json:"paymentMethod"`
		Amount          json.Number          `json:"amount"`
		WalletAddress   string               `json:"walletAddress,omitempty"`
		BlockIndex      *uint64              `json:"blockIndex,omitempty"`
		TransactionHash string               `json:"transactionHash,omitempty"`
	}{
		PaymentMethod:   d.PaymentMethod,
		Amount:          json.Number(d.Amount.String()),
		WalletAddress:   d.WalletAddress,
		BlockIndex:      d.BlockIndex,
		TransactionHash: d.TransactionHash,
	})
}

// ConfirmPayment marks a reservation paid. The bool is false when the
// backend acknowledged without echoing the reservation.
func (c *Client) ConfirmPayment(ctx context.Context, sess session.Session, reservationID string, details PaymentDetails) (*models.Reservation, bool, error) {
	body := struct {
		PaymentDetails PaymentDetails `json:"paymentDetails"`
	}{details}

	var reply reservationEnvelope
	if err := c.do(ctx, sess, "ConfirmPayment", http.MethodPost, pathf("/reservation/payment/%s", reservationID), body, &reply); err != nil {
		return nil, false, err
	}

	r, ok := reply.unwrap()
	return &r, ok, nil
}

func (c *Client) ListReservations(ctx context.Context, sess session.Session, userID string) ([]models.Reservation, error) {
	var reply reservationList
	if err := c.do(ctx, sess, "ListReservations", http.MethodGet, pathf("/reservations/%s", userID), nil, &reply); err != nil {
		return nil, err
	}

	out := make([]models.Reservation, 0, len(reply))
	for i := range reply {
		out = append(out, reply[i].toModel())
	}
	return out, nil
}

func (c *Client) VerifyReservation(ctx context.Context, sess session.Session, filmID, userID string, seat int) (bool, error) {
	var reply struct {
		Verified bool `json:"verified"`
	}
	path := pathf("/reservations/verify/%s/%s/%d", filmID, userID, seat)
	if err := c.do(ctx, sess, "VerifyReservation", http.MethodGet, path, nil, &reply); err != nil {
		return false, fmt.Errorf("VerifyReservation: %w", err)
	}
	return reply.Verified, nil
}
