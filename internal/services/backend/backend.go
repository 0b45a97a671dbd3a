// Package backend is the REST client for the booking backend. Every
// response is normalized into the canonical models before it leaves here.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinema-booking/internal/session"
	"cinema-booking/internal/status"
	"cinema-booking/utils"

	"github.com/google/uuid"
)

const maxErrorBody = 64 << 10

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// HTTPError is a non-2xx answer from the backend. It unwraps to
// status.ErrFetch, and to status.ErrNotFound for 404s.
type HTTPError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *HTTPError) Unwrap() []error {
	if e.StatusCode == http.StatusNotFound {
		return []error{status.ErrFetch, status.ErrNotFound}
	}
	return []error{status.ErrFetch}
}

// IsClientError reports whether err is a 4xx answer, i.e. the backend
// understood and refused the request.
func IsClientError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode >= 400 && he.StatusCode < 500
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode
	}
	return 0
}

// Message returns the backend's human-readable message carried by err.
func Message(err error) string {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Message
	}
	return ""
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func WithBreaker(cb *utils.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

type Client struct {
	baseURL string
	hc      *http.Client
	breaker *utils.CircuitBreaker
}

// New builds a client. A zero Timeout leaves requests bounded only by
// their context.
func New(cfg Config, opts ...Option) *Client {
	hc := &http.Client{}
	if cfg.Timeout > 0 {
		hc.Timeout = cfg.Timeout
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		hc:      hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = utils.NewCircuitBreaker("backend")
	}
	return c
}

// do sends one JSON request through the breaker. in may be nil; out may be
// nil when the body is not needed.
func (c *Client) do(ctx context.Context, sess session.Session, op, method, path string, in, out any) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.roundTrip(ctx, sess, op, method, path, in, out)
	}, IsClientError)

	if errors.Is(err, utils.ErrOpenState) || errors.Is(err, utils.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %w", op, status.ErrFetch, err)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, sess session.Session, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: json.Marshal: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: http.NewRequestWithContext: %w: %w", op, status.ErrFetch, err)
	}
	c.setHeaders(req, sess)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: http.Client.Do: %w: %w", op, status.ErrFetch, err)
	}
	defer resp.Body.Close()

	slog.Debug("backend call",
		"op", op,
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", req.Header.Get("X-Request-ID"),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rbody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(rbody, resp.Status)}
	}

	if out == nil {
		return nil
	}
	// an empty 2xx body leaves out untouched
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s: json.Decode: %w: %w", op, status.ErrFetch, err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, sess session.Session) {
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if auth := sess.AuthHeader(); auth != "" {
		req.Header.Set("Authorization", auth)
	}
}

// errorMessage pulls {"message": ...} (or {"error": ...}) out of an error
// body, falling back to the raw text and then the status line.
func errorMessage(body []byte, fallback string) string {
	var reply struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &reply); err == nil {
		if reply.Message != "" {
			return reply.Message
		}
		if reply.Error != "" {
			return reply.Error
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" && !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "<") {
		return text
	}
	return fallback
}

func pathf(format string, args ...any) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		if s, ok := a.(string); ok {
			escaped[i] = url.PathEscape(s)
		} else {
			escaped[i] = a
		}
	}
	return fmt.Sprintf(format, escaped...)
}
