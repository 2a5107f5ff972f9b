package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/catalog"
)

// LocationRequest is the body of POST /locations
type LocationRequest struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description"`
	Source      bool   `json:"source"`
	Destination bool   `json:"destination"`
	Removable   bool   `json:"removable"`
}

// MountRequest is the body of PUT /locations/:ref/mount
type MountRequest struct {
	Path string `json:"path"`
}

// ImportRequest is the body of POST /locations/:ref/import
type ImportRequest struct {
	Formats   []string `json:"formats"`
	Tags      []string `json:"tags"`
	Creator   *string  `json:"creator"`
	BatchSize int      `json:"batch_size"`
}

// IDResponse reports the id of something created
type IDResponse struct {
	ID int64 `json:"id"`
}

// IDsResponse lists affected image ids
type IDsResponse struct {
	IDs []int64 `json:"ids"`
}

// ListLocations handles GET /locations
func (c *Controller) ListLocations(ctx echo.Context) error {
	locations, err := c.Catalog.ListLocations(requestContext(ctx))
	if err != nil {
		return err
	}
	if locations == nil {
		locations = []*catalog.Location{}
	}
	return ctx.JSON(http.StatusOK, locations)
}

// GetLocation handles GET /locations/:ref, where ref is an id or a name
func (c *Controller) GetLocation(ctx echo.Context) error {
	location, err := c.Catalog.ExpectLocation(requestContext(ctx), catalog.ParseRef(ctx.Param("ref")))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, location)
}

// AddLocation handles POST /locations
func (c *Controller) AddLocation(ctx echo.Context) error {
	var req LocationRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	id, err := c.Catalog.AddLocation(requestContext(ctx), catalog.LocationSpec{
		Name:        req.Name,
		Path:        req.Path,
		Description: req.Description,
		Source:      req.Source,
		Destination: req.Destination,
		Removable:   req.Removable,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, IDResponse{ID: id})
}

// EditLocation handles PATCH /locations/:ref. Fields left out of the body
// are unchanged and null clears path or description.
func (c *Controller) EditLocation(ctx echo.Context) error {
	fields := map[string]json.RawMessage{}
	if err := bind(ctx, &fields); err != nil {
		return err
	}

	var (
		edit catalog.LocationEdit
		err  error
	)
	if edit.Path, err = optional[string](fields, "path"); err != nil {
		return err
	}
	if edit.Description, err = optional[string](fields, "description"); err != nil {
		return err
	}
	if edit.Source, err = flag(fields, "source"); err != nil {
		return err
	}
	if edit.Destination, err = flag(fields, "destination"); err != nil {
		return err
	}
	if edit.Removable, err = flag(fields, "removable"); err != nil {
		return err
	}
	name, err := optional[string](fields, "name")
	if err != nil {
		return err
	}
	newName, _ := name.Value()

	ref := catalog.ParseRef(ctx.Param("ref"))
	if err := c.Catalog.EditLocation(requestContext(ctx), ref, newName, edit); err != nil {
		return err
	}
	if newName != "" && !isID(ctx.Param("ref")) {
		ref = catalog.ByName(newName)
	}
	location, err := c.Catalog.ExpectLocation(requestContext(ctx), ref)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, location)
}

// RemoveLocation handles DELETE /locations/:ref. A location with images
// needs force=true.
func (c *Controller) RemoveLocation(ctx echo.Context) error {
	force, err := boolQuery(ctx, "force")
	if err != nil {
		return err
	}
	if _, err := c.Catalog.RemoveLocation(requestContext(ctx), catalog.ParseRef(ctx.Param("ref")), force); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// MountLocation handles PUT /locations/:ref/mount
func (c *Controller) MountLocation(ctx echo.Context) error {
	var req MountRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	if err := c.Catalog.Mount(requestContext(ctx), catalog.ParseRef(ctx.Param("ref")), req.Path); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// UnmountLocation handles DELETE /locations/:ref/mount
func (c *Controller) UnmountLocation(ctx echo.Context) error {
	if err := c.Catalog.Unmount(requestContext(ctx), catalog.ParseRef(ctx.Param("ref"))); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ImportLocation handles POST /locations/:ref/import
func (c *Controller) ImportLocation(ctx echo.Context) error {
	var req ImportRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	ids, err := c.Catalog.ImportLocation(requestContext(ctx), catalog.ParseRef(ctx.Param("ref")), catalog.ImportOptions{
		Formats:   req.Formats,
		BatchSize: req.BatchSize,
		Creator:   req.Creator,
		Tags:      req.Tags,
	})
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []int64{}
	}
	return ctx.JSON(http.StatusOK, IDsResponse{IDs: ids})
}

func isID(ref string) bool {
	_, ok := catalog.ParseRef(ref).ID()
	return ok
}
