package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Film is the catalog entry a seat is booked against. It is read-only here;
// the backend owns it.
type Film struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	SeatCapacity int             `json:"seat_capacity"`
	Description  string          `json:"description"`
	Duration     int             `json:"duration"` // minutes
	ReleaseDate  time.Time       `json:"release_date"`
	Genres       []string        `json:"genres"`
	Image        string          `json:"image"`
}

// HasSeat reports whether seat is a position in [1, SeatCapacity].
func (f Film) HasSeat(seat int) bool {
	return seat >= 1 && seat <= f.SeatCapacity
}
