package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/catalog"
)

// RunTaskRequest is the body of POST /tasks/:name/run
type RunTaskRequest struct {
	Since *time.Time `json:"since"`
	Full  bool       `json:"full"`
	Tags  []string   `json:"tags"`
}

// ListTasks handles GET /tasks
func (c *Controller) ListTasks(ctx echo.Context) error {
	tasks, err := c.Catalog.ListTasks(requestContext(ctx))
	if err != nil {
		return err
	}
	if tasks == nil {
		tasks = []*catalog.Task{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

// GetTask handles GET /tasks/:name
func (c *Controller) GetTask(ctx echo.Context) error {
	task, err := c.Catalog.GetTask(requestContext(ctx), ctx.Param("name"))
	if err != nil {
		return err
	}
	if task == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no task named "+ctx.Param("name"))
	}
	return ctx.JSON(http.StatusOK, task)
}

// RunTask handles POST /tasks/:name/run, answering with the ids of the
// copied images
func (c *Controller) RunTask(ctx echo.Context) error {
	var req RunTaskRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	ids, err := c.Catalog.RunTask(requestContext(ctx), ctx.Param("name"), catalog.RunOptions{
		Since: req.Since,
		Full:  req.Full,
		Tags:  req.Tags,
	})
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ctx.JSON(http.StatusOK, IDsResponse{IDs: ids})
}
