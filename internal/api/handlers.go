package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/tphakala/logwatch/internal/datastore/repository"
	"github.com/tphakala/logwatch/internal/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Controller holds the handlers' dependencies.
type Controller struct {
	status  StatusProvider
	history repository.AlertHistoryRepository
	log     logger.Logger
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetStatus returns the monitor's latest snapshot.
func (c *Controller) GetStatus(ctx echo.Context) error {
	if c.status == nil {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Monitor not running"})
	}
	return ctx.JSON(http.StatusOK, c.status.Status())
}

// requireHistory answers requests made while no history database is configured.
func (c *Controller) requireHistory(ctx echo.Context) error {
	return ctx.JSON(http.StatusConflict, map[string]string{
		"error": "Alert history requires history.dsn to be configured",
	})
}

// ListAlertHistory returns paginated alert history, newest first.
func (c *Controller) ListAlertHistory(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	filter := repository.AlertHistoryFilter{
		Kind:  ctx.QueryParam("kind"),
		Limit: defaultHistoryLimit,
	}
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		v, err := strconv.Atoi(limitParam)
		if err != nil || v <= 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
		}
		filter.Limit = min(v, maxHistoryLimit)
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		v, err := strconv.Atoi(offsetParam)
		if err != nil || v < 0 {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid offset"})
		}
		filter.Offset = v
	}

	items, total, err := c.history.ListHistory(ctx.Request().Context(), filter)
	if err != nil {
		return c.HandleError(ctx, err, "Failed to list alert history", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"history": items,
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetAlertHistory returns one history entry by event ID.
func (c *Controller) GetAlertHistory(ctx echo.Context) error {
	if c.history == nil {
		return c.requireHistory(ctx)
	}

	entry, err := c.history.GetHistoryByEventID(ctx.Request().Context(), ctx.Param("event_id"))
	if err != nil {
		if errors.Is(err, repository.ErrAlertHistoryNotFound) {
			return ctx.JSON(http.StatusNotFound, map[string]string{"error": "Alert history entry not found"})
		}
		return c.HandleError(ctx, err, "Failed to get alert history entry", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, entry)
}

// HandleError logs err and responds with message. Internal error text is
// not sent to the client.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	c.log.Error(message,
		logger.String("path", ctx.Path()),
		logger.Error(err))
	return ctx.JSON(code, map[string]string{"error": message})
}
