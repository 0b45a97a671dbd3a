package handlers

import (
	"context"
	"net/http"
	"strconv"

	"cinema-booking/internal/services"
	"cinema-booking/utils"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
)

type ReconciliationLister interface {
	Pending(ctx context.Context, limit int64) ([]services.ReconciliationRecord, error)
}

type AdminHandler struct {
	ledger      ReconciliationLister
	redisClient redis.Cmdable
}

func NewAdminHandler(ledger ReconciliationLister, redisClient redis.Cmdable) *AdminHandler {
	return &AdminHandler{ledger: ledger, redisClient: redisClient}
}

// Reconciliations lists payments the chain took and the backend never
// recorded, newest first.
func (h *AdminHandler) Reconciliations(c echo.Context) error {
	sess, err := sessionFrom(c)
	if err != nil {
		return respondError(c, err)
	}
	if !sess.IsAdmin {
		return c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: "admin access required"})
	}

	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	records, err := h.ledger.Pending(c.Request().Context(), limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (h *AdminHandler) Health(c echo.Context) error {
	if err := utils.RedisHealthCheck(c.Request().Context(), h.redisClient); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}
