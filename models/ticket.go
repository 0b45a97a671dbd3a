package models

import (
	"time"
)

// DefaultHoldDuration is how long an unverified reservation keeps its seat.
const DefaultHoldDuration = 15 * time.Minute

type ReservationStatus string

const (
	StatusPending  ReservationStatus = "pending"
	StatusVerified ReservationStatus = "verified"
	StatusExpired  ReservationStatus = "expired"
)

// Reservation is a seat hold or a completed booking (a ticket).
// ExpiresAt is set only while unverified, BlockIndex only once paid on-chain.
type Reservation struct {
	ID              string     `json:"id"`
	FilmID          string     `json:"film_id"`
	FilmName        string     `json:"film_name,omitempty"`
	FilmImage       string     `json:"film_image,omitempty"`
	UserID          string     `json:"user_id"`
	SeatNumber      int        `json:"seat_number"`
	Verified        bool       `json:"verified"`
	CreatedAt       time.Time  `json:"created_at"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	BlockIndex      *uint64    `json:"block_index,omitempty"`
	TransactionHash string     `json:"transaction_hash,omitempty"`
	WalletAddress   string     `json:"wallet_address,omitempty"`
}

// Classify buckets r relative to now. An unverified reservation without an
// expiry cannot be paid for and is reported as expired.
func Classify(r Reservation, now time.Time) ReservationStatus {
	if r.Verified {
		return StatusVerified
	}
	if r.ExpiresAt != nil && r.ExpiresAt.After(now) {
		return StatusPending
	}
	return StatusExpired
}

type RemainingTime struct {
	Minutes     int     `json:"minutes"`
	Seconds     int     `json:"seconds"`
	PercentLeft float64 `json:"percent_left"`
}

// Remaining computes the hold countdown of r against the original window.
// Negative remainders clamp to zero.
func Remaining(r Reservation, now time.Time, window time.Duration) RemainingTime {
	if window <= 0 {
		window = DefaultHoldDuration
	}
	if r.ExpiresAt == nil {
		return RemainingTime{}
	}

	diff := r.ExpiresAt.Sub(now)
	if diff <= 0 {
		return RemainingTime{}
	}

	percent := float64(diff) / float64(window) * 100
	if percent > 100 {
		percent = 100
	}

	return RemainingTime{
		Minutes:     int(diff / time.Minute),
		Seconds:     int((diff % time.Minute) / time.Second),
		PercentLeft: percent,
	}
}

// ReservationView is a reservation with its classification at a point in time.
type ReservationView struct {
	Reservation
	Status    ReservationStatus `json:"status"`
	Remaining RemainingTime     `json:"remaining"`
}

type ReservationGroups struct {
	Pending  []ReservationView `json:"pending"`
	Verified []ReservationView `json:"verified"`
	Expired  []ReservationView `json:"expired"`
}

func GroupReservations(rs []Reservation, now time.Time, window time.Duration) ReservationGroups {
	groups := ReservationGroups{
		Pending:  []ReservationView{},
		Verified: []ReservationView{},
		Expired:  []ReservationView{},
	}

	for _, r := range rs {
		v := ReservationView{
			Reservation: r,
			Status:      Classify(r, now),
		}
		switch v.Status {
		case StatusPending:
			v.Remaining = Remaining(r, now, window)
			groups.Pending = append(groups.Pending, v)
		case StatusVerified:
			groups.Verified = append(groups.Verified, v)
		default:
			groups.Expired = append(groups.Expired, v)
		}
	}

	return groups
}
