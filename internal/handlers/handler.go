// Package handlers exposes the booking engine over JSON HTTP.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"cinema-booking/internal/session"
	"cinema-booking/internal/status"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v5"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondError(c echo.Context, err error) error {
	code := status.HTTPStatus(err)
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(code, ErrorResponse{Error: status.Kind(err), Message: err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: msg})
}

// bindAndValidate decodes the JSON body into req and checks its tags.
// An empty body is allowed.
func bindAndValidate(c echo.Context, v *validator.Validate, req any) error {
	if c.Request().ContentLength != 0 {
		if err := c.Bind(req); err != nil {
			return err
		}
	}
	return v.Struct(req)
}

// RequireSession rejects requests without a valid bearer token and puts
// the caller's session on the request context.
func RequireSession(p *session.Parser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := session.BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: err.Error()})
			}
			s, err := p.Parse(token)
			if err != nil {
				return respondError(c, err)
			}

			req := c.Request()
			c.SetRequest(req.WithContext(session.WithSession(req.Context(), s)))
			return next(c)
		}
	}
}

func sessionFrom(c echo.Context) (session.Session, error) {
	s, ok := session.FromContext(c.Request().Context())
	if !ok {
		return session.Session{}, status.ErrUnauthenticated
	}
	return s, nil
}

var errBadSeat = errors.New("seat number must be a positive integer")

func seatParam(c echo.Context, name string) (int, error) {
	n, err := strconv.Atoi(c.PathParam(name))
	if err != nil || n < 1 {
		return 0, errBadSeat
	}
	return n, nil
}
