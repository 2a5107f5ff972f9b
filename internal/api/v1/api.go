// Package api implements the PicPocket JSON API under /api/v1: locations,
// tags, images, tasks and web sessions over a catalog.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// Prefix is where the API is mounted
const Prefix = "/api/v1"

// Controller serves the API routes
type Controller struct {
	Echo    *echo.Echo
	Group   *echo.Group
	Catalog *catalog.Catalog

	log      logger.Logger
	metrics  *metrics.HTTPMetrics
	sessions *cache.Cache
}

// Options configure a Controller
type Options struct {
	Logger  logger.Logger
	Metrics *metrics.HTTPMetrics
	// CacheTTL is how long session reads are cached. Zero disables the cache.
	CacheTTL time.Duration
}

// New creates the controller and registers its routes on e
func New(e *echo.Echo, c *catalog.Catalog, opts Options) *Controller {
	log := opts.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelError, nil)
	}

	ctrl := &Controller{
		Echo:    e,
		Group:   e.Group(Prefix),
		Catalog: c,
		log:     log.Module("api"),
		metrics: opts.Metrics,
	}
	if opts.CacheTTL > 0 {
		ctrl.sessions = cache.New(opts.CacheTTL, 2*opts.CacheTTL)
	}
	ctrl.initRoutes()
	return ctrl
}

func (c *Controller) initRoutes() {
	g := c.Group

	g.GET("/locations", c.ListLocations)
	g.POST("/locations", c.AddLocation)
	g.GET("/locations/:ref", c.GetLocation)
	g.PATCH("/locations/:ref", c.EditLocation)
	g.DELETE("/locations/:ref", c.RemoveLocation)
	g.PUT("/locations/:ref/mount", c.MountLocation)
	g.DELETE("/locations/:ref/mount", c.UnmountLocation)
	g.POST("/locations/:ref/import", c.ImportLocation)

	// tag names contain slashes, so they are matched as wildcards
	g.GET("/tags", c.ListTags)
	g.POST("/tags", c.AddTag)
	g.GET("/tags/*", c.GetTag)
	g.DELETE("/tags/*", c.RemoveTag)
	g.POST("/tags/move", c.MoveTag)
	g.POST("/tagset", c.GetTagSet)

	g.POST("/images/search", c.SearchImages)
	g.POST("/images/count", c.CountImages)
	g.GET("/images/:id", c.GetImage)
	g.PATCH("/images/:id", c.EditImage)
	g.DELETE("/images/:id", c.RemoveImage)
	g.POST("/images/:id/move", c.MoveImage)
	g.PUT("/images/:id/tags/*", c.TagImage)
	g.DELETE("/images/:id/tags/*", c.UntagImage)

	g.GET("/tasks", c.ListTasks)
	g.GET("/tasks/:name", c.GetTask)
	g.POST("/tasks/:name/run", c.RunTask)

	g.POST("/sessions", c.CreateSession)
	g.GET("/sessions/:id", c.GetSession)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
	Code     int    `json:"code"`
}

// StatusFor maps an error onto the HTTP status the API answers with
func StatusFor(err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return http.StatusBadRequest
	case errors.CategoryNotFound:
		return http.StatusNotFound
	case errors.CategoryConflict:
		return http.StatusConflict
	case errors.CategoryFileIO:
		return http.StatusUnprocessableEntity
	case errors.CategoryVersion:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// HandleError is the echo error handler for the whole server
func (c *Controller) HandleError(err error, ctx echo.Context) {
	if ctx.Response().Committed {
		return
	}

	code := StatusFor(err)
	category := string(errors.CategoryOf(err))
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		category = string(errors.CategoryValidation)
		if code == http.StatusNotFound {
			category = string(errors.CategoryNotFound)
		}
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
	}
	if code >= http.StatusInternalServerError {
		// internals are logged, not returned
		c.log.Error("request failed",
			logger.String("method", ctx.Request().Method),
			logger.String("path", ctx.Request().URL.Path),
			logger.Error(err))
		message = http.StatusText(code)
	}
	c.metrics.RecordHTTPRequestError(routeOf(ctx), category)

	var writeErr error
	if ctx.Request().Method == http.MethodHead {
		writeErr = ctx.NoContent(code)
	} else {
		writeErr = ctx.JSON(code, ErrorResponse{Error: message, Category: category, Code: code})
	}
	if writeErr != nil {
		c.log.Warn("failed to write error response", logger.Error(writeErr))
	}
}

func routeOf(ctx echo.Context) string {
	if path := ctx.Path(); path != "" {
		return path
	}
	return "unmatched"
}

// requestContext is the context catalog calls run under
func requestContext(ctx echo.Context) context.Context {
	return ctx.Request().Context()
}

// bind decodes a JSON body, treating malformed input as a validation error
func bind(ctx echo.Context, v any) error {
	if ctx.Request().ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(ctx.Request().Body).Decode(v); err != nil {
		return errors.Newf("malformed request body: %v", err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// idParam reads a positive integer path parameter
func idParam(ctx echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(ctx.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid %s %q", name, ctx.Param(name)).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return id, nil
}

// boolQuery reads an optional boolean query parameter
func boolQuery(ctx echo.Context, name string) (bool, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.Newf("invalid %s %q", name, raw).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return v, nil
}

// optional decodes one field of a partial update: absent leaves it alone,
// null clears it
func optional[T any](fields map[string]json.RawMessage, key string) (catalog.Optional[T], error) {
	raw, ok := fields[key]
	if !ok {
		return catalog.Unset[T](), nil
	}
	if string(raw) == "null" {
		return catalog.Clear[T](), nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return catalog.Unset[T](), errors.Newf("invalid %s: %v", key, err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return catalog.Set(v), nil
}

// flag decodes an optional boolean of a partial update
func flag(fields map[string]json.RawMessage, key string) (*bool, error) {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return nil, nil
	}
	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, errors.Newf("invalid %s: %v", key, err).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return &v, nil
}
