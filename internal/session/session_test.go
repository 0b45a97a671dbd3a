package session

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"cinema-booking/internal/status"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParser_Parse(t *testing.T) {
	token := signToken(t, testSecret, Claims{
		UserID:  "user-1",
		Email:   "a@b.c",
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	s, err := NewParser(testSecret).Parse(token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, "a@b.c", s.Email)
	assert.True(t, s.IsAdmin)
	assert.Equal(t, "Bearer "+token, s.AuthHeader())
	assert.Len(t, s.Fingerprint(), 12)
}

func TestParser_FallsBackToSubject(t *testing.T) {
	token := signToken(t, testSecret, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
	})

	s, err := NewParser(testSecret).Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-2", s.UserID)
}

func TestParser_Rejects(t *testing.T) {
	expired := signToken(t, testSecret, Claims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	wrongKey := signToken(t, "other", Claims{UserID: "user-1"})
	noUser := signToken(t, testSecret, Claims{Email: "a@b.c"})

	tests := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Garbage", "not-a-jwt"},
		{"Expired", expired},
		{"Wrong key", wrongKey},
		{"No user", noUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewParser(testSecret).Parse(tt.token)
			assert.True(t, errors.Is(err, status.ErrUnauthenticated))
		})
	}
}

func TestParser_EmptySecretRejectsEverything(t *testing.T) {
	enc := base64.RawURLEncoding
	unsigned := enc.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`)) + "." +
		enc.EncodeToString([]byte(`{"id":"admin-1","isAdmin":true}`))
	mac := hmac.New(sha256.New, nil)
	mac.Write([]byte(unsigned))
	forged := unsigned + "." + enc.EncodeToString(mac.Sum(nil))

	_, err := NewParser("").Parse(forged)
	assert.True(t, errors.Is(err, status.ErrUnauthenticated), "got %v", err)

	_, err = NewParser("").Parse(signToken(t, testSecret, Claims{UserID: "user-1"}))
	assert.True(t, errors.Is(err, status.ErrUnauthenticated), "got %v", err)
}

func TestBearerToken(t *testing.T) {
	token, err := BearerToken("Bearer abc.def")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	token, err = BearerToken("bearer   xyz ")
	require.NoError(t, err)
	assert.Equal(t, "xyz", token)

	_, err = BearerToken("Basic abc")
	assert.Error(t, err)
	_, err = BearerToken("")
	assert.Error(t, err)
}

func TestContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithSession(context.Background(), Session{UserID: "user-1"})
	s, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-1", s.UserID)
	assert.Equal(t, "", s.AuthHeader())
	assert.Equal(t, "", s.Fingerprint())
}
