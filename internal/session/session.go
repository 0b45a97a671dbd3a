// Package session carries the caller's identity explicitly through the
// booking flow instead of a process-wide auth store.
package session

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"cinema-booking/internal/status"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/sha3"
)

// Session is the token plus the user identity it grants.
type Session struct {
	Token   string
	UserID  string
	Email   string
	IsAdmin bool
}

// AuthHeader returns the Authorization header value, empty without a token.
func (s Session) AuthHeader() string {
	if s.Token == "" {
		return ""
	}
	return "Bearer " + s.Token
}

// Fingerprint identifies the token in logs without leaking it.
func (s Session) Fingerprint() string {
	if s.Token == "" {
		return ""
	}
	sum := sha3.Sum256([]byte(s.Token))
	return hex.EncodeToString(sum[:6])
}

type Claims struct {
	UserID  string `json:"id"`
	Email   string `json:"email,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// Parser validates HS256 tokens issued by the backend.
type Parser struct {
	secret []byte
}

func NewParser(secret string) *Parser {
	return &Parser{secret: []byte(secret)}
}

// Parse refuses every token when the parser has no secret.
func (p *Parser) Parse(token string) (Session, error) {
	if len(p.secret) == 0 {
		return Session{}, fmt.Errorf("%w: no signing secret configured", status.ErrUnauthenticated)
	}
	if token == "" {
		return Session{}, fmt.Errorf("%w: missing token", status.ErrUnauthenticated)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", status.ErrUnauthenticated, err)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Session{}, fmt.Errorf("%w: token has no user id", status.ErrUnauthenticated)
	}

	return Session{
		Token:   token,
		UserID:  userID,
		Email:   claims.Email,
		IsAdmin: claims.IsAdmin,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization header must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

type ctxKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(Session)
	return s, ok
}
