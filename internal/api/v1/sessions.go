package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// SessionRequest is the body of POST /sessions. Expires defaults to the
// configured session lifetime.
type SessionRequest struct {
	Data    map[string]any `json:"data"`
	Expires *time.Time     `json:"expires"`
}

// CreateSession handles POST /sessions
func (c *Controller) CreateSession(ctx echo.Context) error {
	var req SessionRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	id, err := c.Catalog.CreateSession(requestContext(ctx), req.Data, req.Expires)
	if err != nil {
		return err
	}
	if c.sessions != nil {
		c.sessions.SetDefault(sessionKey(id), req.Data)
	}
	return ctx.JSON(http.StatusCreated, IDResponse{ID: id})
}

// GetSession handles GET /sessions/:id. Reads go through the session cache
// when one is configured.
func (c *Controller) GetSession(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}

	if c.sessions != nil {
		if data, ok := c.sessions.Get(sessionKey(id)); ok {
			c.metrics.RecordSessionCache(metrics.CacheHit)
			return ctx.JSON(http.StatusOK, data)
		}
		c.metrics.RecordSessionCache(metrics.CacheMiss)
	}

	data, err := c.Catalog.GetSession(requestContext(ctx), id)
	if err != nil {
		return err
	}
	if data == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no session "+strconv.FormatInt(id, 10))
	}
	if c.sessions != nil {
		c.sessions.SetDefault(sessionKey(id), data)
	}
	return ctx.JSON(http.StatusOK, data)
}

// ForgetSessions empties the session cache, e.g. after expired sessions
// were pruned
func (c *Controller) ForgetSessions() {
	if c.sessions != nil {
		c.sessions.Flush()
	}
}

func sessionKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
