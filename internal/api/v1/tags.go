package api

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
)

// TagRequest is the body of POST /tags. A missing description leaves an
// existing one alone.
type TagRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

// MoveTagRequest is the body of POST /tags/move
type MoveTagRequest struct {
	Current string `json:"current"`
	Target  string `json:"target"`
	Cascade bool   `json:"cascade"`
}

// MoveTagResponse reports how many tags were renamed
type MoveTagResponse struct {
	Moved int `json:"moved"`
}

// TagSetRequest is the body of POST /tagset
type TagSetRequest struct {
	ImageIDs []int64 `json:"image_ids"`
	Minimum  int     `json:"minimum"`
}

// ListTags handles GET /tags. The default is the tag tree; format=names
// returns a flat sorted list.
func (c *Controller) ListTags(ctx echo.Context) error {
	switch ctx.QueryParam("format") {
	case "names":
		names, err := c.Catalog.AllTagNames(requestContext(ctx))
		if err != nil {
			return err
		}
		if names == nil {
			names = []string{}
		}
		return ctx.JSON(http.StatusOK, names)
	case "", "tree":
		tree, err := c.Catalog.AllTags(requestContext(ctx))
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, tree)
	default:
		return errors.Newf("unknown format %q", ctx.QueryParam("format")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
}

// GetTag handles GET /tags/{name}, answering with the description and
// immediate children
func (c *Controller) GetTag(ctx echo.Context) error {
	name, err := tagParam(ctx)
	if err != nil {
		return err
	}
	tag, err := c.Catalog.GetTag(requestContext(ctx), name, true)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, tag)
}

// AddTag handles POST /tags
func (c *Controller) AddTag(ctx echo.Context) error {
	var req TagRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	description := catalog.Unset[string]()
	if req.Description != nil {
		description = catalog.Set(*req.Description)
	}
	id, err := c.Catalog.AddTag(requestContext(ctx), req.Name, description)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, IDResponse{ID: id})
}

// RemoveTag handles DELETE /tags/{name}. cascade=true removes descendants too.
func (c *Controller) RemoveTag(ctx echo.Context) error {
	name, err := tagParam(ctx)
	if err != nil {
		return err
	}
	cascade, err := boolQuery(ctx, "cascade")
	if err != nil {
		return err
	}
	if err := c.Catalog.RemoveTag(requestContext(ctx), name, cascade); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// MoveTag handles POST /tags/move
func (c *Controller) MoveTag(ctx echo.Context) error {
	var req MoveTagRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	moved, err := c.Catalog.MoveTag(requestContext(ctx), req.Current, req.Target, req.Cascade)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, MoveTagResponse{Moved: moved})
}

// GetTagSet handles POST /tagset
func (c *Controller) GetTagSet(ctx echo.Context) error {
	var req TagSetRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	counts, err := c.Catalog.GetTagSet(requestContext(ctx), req.ImageIDs, req.Minimum)
	if err != nil {
		return err
	}
	if counts == nil {
		counts = []catalog.TagCount{}
	}
	return ctx.JSON(http.StatusOK, counts)
}

// tagParam reads the wildcard tag name, which may contain slashes
func tagParam(ctx echo.Context) (string, error) {
	name, err := url.PathUnescape(ctx.Param("*"))
	if err != nil || name == "" {
		return "", errors.Newf("invalid tag %q", ctx.Param("*")).
			Component("api").
			Category(errors.CategoryValidation).
			Build()
	}
	return name, nil
}
