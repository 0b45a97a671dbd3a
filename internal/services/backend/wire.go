package backend

import (
	"bytes"
	"encoding/json"
	"time"

	"cinema-booking/models"

	"github.com/shopspring/decimal"
)

// DefaultFilmDescription is shown for films the backend sent without one.
const DefaultFilmDescription = "No description available for this film."

// ref is an id that the backend sends either bare or populated as an
// object ({"_id": ..., "name": ..., "img": ...}).
type ref struct {
	ID   string
	Name string
	Img  string
}

func (r *ref) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		return json.Unmarshal(b, &r.ID)
	}

	var obj struct {
		ID    string `json:"_id"`
		AltID string `json:"id"`
		Name  string `json:"name"`
		Img   string `json:"img"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	r.ID = obj.ID
	if r.ID == "" {
		r.ID = obj.AltID
	}
	r.Name = obj.Name
	r.Img = obj.Img
	return nil
}

type filmFields struct {
	ID           string          `json:"_id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	SeatQuantity int             `json:"seatQuantity"`
	Img          string          `json:"img"`
	Description  string          `json:"description"`
	Duration     int             `json:"duration"`
	ReleaseDate  string          `json:"releaseDate"`
	Genres       []string        `json:"genres"`
}

type seatRef struct {
	SeatNumber int `json:"seatNumber"`
}

// filmPayload covers both shapes of GET /film/{id}: the film at top level,
// or nested under filmDetail. Reservations may ride along in either.
type filmPayload struct {
	filmFields
	Reservations *[]seatRef `json:"reservations"`
	FilmDetail   *struct {
		filmFields
		Reservations *[]seatRef `json:"reservations"`
	} `json:"filmDetail"`
}

// normalize merges the two shapes, top-level fields winning.
func (p *filmPayload) normalize() (models.Film, []int, bool) {
	top := p.filmFields
	var nested filmFields
	var reservations *[]seatRef = p.Reservations
	if p.FilmDetail != nil {
		nested = p.FilmDetail.filmFields
		if reservations == nil {
			reservations = p.FilmDetail.Reservations
		}
	}

	f := models.Film{
		ID:           firstString(top.ID, nested.ID),
		Name:         firstString(top.Name, nested.Name),
		Price:        top.Price,
		SeatCapacity: top.SeatQuantity,
		Description:  firstString(top.Description, nested.Description, DefaultFilmDescription),
		Duration:     top.Duration,
		Genres:       top.Genres,
		Image:        firstString(top.Img, nested.Img),
	}
	if f.Price.IsZero() {
		f.Price = nested.Price
	}
	if f.SeatCapacity == 0 {
		f.SeatCapacity = nested.SeatQuantity
	}
	if f.Duration == 0 {
		f.Duration = nested.Duration
	}
	if len(f.Genres) == 0 {
		f.Genres = nested.Genres
	}
	if f.Genres == nil {
		f.Genres = []string{}
	}
	f.ReleaseDate = parseTime(firstString(top.ReleaseDate, nested.ReleaseDate))

	if reservations == nil {
		return f, nil, false
	}
	seats := make([]int, 0, len(*reservations))
	for _, r := range *reservations {
		seats = append(seats, r.SeatNumber)
	}
	return f, seats, true
}

type reservationPayload struct {
	ID              string  `json:"_id"`
	AltID           string  `json:"id"`
	FilmID          ref     `json:"filmId"`
	FilmTitle       string  `json:"filmTitle"`
	UserID          ref     `json:"userId"`
	SeatNumber      int     `json:"seatNumber"`
	Verified        bool    `json:"verified"`
	CreatedAt       string  `json:"createdAt"`
	ExpiresAt       string  `json:"expiresAt"`
	BlockIndex      *uint64 `json:"blockIndex"`
	TransactionHash string  `json:"transactionHash"`
	WalletAddress   string  `json:"walletAddress"`
}

func (p *reservationPayload) toModel() models.Reservation {
	r := models.Reservation{
		ID:              firstString(p.ID, p.AltID),
		FilmID:          p.FilmID.ID,
		FilmName:        firstString(p.FilmID.Name, p.FilmTitle),
		FilmImage:       p.FilmID.Img,
		UserID:          p.UserID.ID,
		SeatNumber:      p.SeatNumber,
		Verified:        p.Verified,
		CreatedAt:       parseTime(p.CreatedAt),
		BlockIndex:      p.BlockIndex,
		TransactionHash: p.TransactionHash,
		WalletAddress:   p.WalletAddress,
	}
	if !r.Verified {
		if t := parseTime(p.ExpiresAt); !t.IsZero() {
			r.ExpiresAt = &t
		}
	}
	return r
}

// reservationEnvelope accepts a reservation sent bare or wrapped as
// {"reservation": {...}}.
type reservationEnvelope struct {
	reservationPayload
	Reservation *reservationPayload `json:"reservation"`
	Message     string              `json:"message"`
}

func (e *reservationEnvelope) unwrap() (models.Reservation, bool) {
	p := &e.reservationPayload
	if e.Reservation != nil {
		p = e.Reservation
	}
	r := p.toModel()
	return r, r.ID != ""
}

// reservationList accepts a bare array or {"reservations": [...]}.
type reservationList []reservationPayload

func (l *reservationList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, (*[]reservationPayload)(l))
	}

	var wrapped struct {
		Reservations []reservationPayload `json:"reservations"`
		Tickets      []reservationPayload `json:"tickets"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return err
	}
	if wrapped.Reservations != nil {
		*l = wrapped.Reservations
	} else {
		*l = wrapped.Tickets
	}
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(s string) time.Time {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
