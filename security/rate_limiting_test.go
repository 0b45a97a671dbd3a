package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cinema-booking/internal/status"

	"github.com/go-redis/redismock/v9"
	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowHold(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(mock redismock.ClientMock)
		wantErr bool
	}{
		{
			name: "First hold sets window",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectIncr("ratelimit:hold:user-1").SetVal(1)
				mock.ExpectExpire("ratelimit:hold:user-1", time.Minute).SetVal(true)
			},
		},
		{
			name: "At limit",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectIncr("ratelimit:hold:user-1").SetVal(3)
			},
		},
		{
			name: "Over limit",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectIncr("ratelimit:hold:user-1").SetVal(4)
			},
			wantErr: true,
		},
		{
			name: "Redis down fails open",
			setup: func(mock redismock.ClientMock) {
				mock.ExpectIncr("ratelimit:hold:user-1").SetErr(errors.New("connection refused"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := redismock.NewClientMock()
			tt.setup(mock)

			err := NewRateLimiter(db, 3, 60).AllowHold(context.Background(), "user-1")
			if tt.wantErr {
				assert.True(t, errors.Is(err, status.ErrRateLimited))
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAllowHold_NoRedis(t *testing.T) {
	assert.NoError(t, NewRateLimiter(nil, 1, 1).AllowHold(context.Background(), "user-1"))
}

func TestAntiBotMiddleware(t *testing.T) {
	e := echo.New()
	h := NewRateLimiter(nil, 0, 0).AntiBotMiddleware()(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	tests := []struct {
		ua   string
		want int
	}{
		{"Mozilla/5.0", http.StatusOK},
		{"Googlebot/2.1", http.StatusForbidden},
		{"my-scraper", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.ua, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("User-Agent", tt.ua)
			rec := httptest.NewRecorder()

			require.NoError(t, h(e.NewContext(req, rec)))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
