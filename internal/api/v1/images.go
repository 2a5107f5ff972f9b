package api

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/filter"
)

// SearchRequest is the body of POST /images/search and /images/count
type SearchRequest struct {
	Filter    *filter.Spec `json:"filter"`
	Tagged    *bool        `json:"tagged"`
	AnyTags   []string     `json:"any_tags"`
	AllTags   []string     `json:"all_tags"`
	NoTags    []string     `json:"no_tags"`
	Reachable *bool        `json:"reachable"`
	Order     []string     `json:"order"`
	Limit     int          `json:"limit"`
	Offset    int          `json:"offset"`
}

// SearchResponse carries the images found
type SearchResponse struct {
	Images []*catalog.Image `json:"images"`
}

// CountResponse carries the number of images found
type CountResponse struct {
	Count int64 `json:"count"`
}

// MoveImageRequest is the body of POST /images/:id/move. Path is relative
// to the destination location, which defaults to the current one.
type MoveImageRequest struct {
	Path     string `json:"path"`
	Location *int64 `json:"location"`
}

// query converts the request into a catalog query
func (r SearchRequest) query() (catalog.Query, error) {
	q := catalog.Query{
		Tagged:    r.Tagged,
		AnyTags:   r.AnyTags,
		AllTags:   r.AllTags,
		NoTags:    r.NoTags,
		Reachable: r.Reachable,
		Order:     r.Order,
		Limit:     r.Limit,
		Offset:    r.Offset,
	}
	if r.Filter != nil {
		comparison, err := r.Filter.Build(catalog.ImageColumns)
		if err != nil {
			return q, err
		}
		q.Filter = comparison
	}
	return q, nil
}

// SearchImages handles POST /images/search
func (c *Controller) SearchImages(ctx echo.Context) error {
	var req SearchRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	q, err := req.query()
	if err != nil {
		return err
	}
	images, err := c.Catalog.SearchImages(requestContext(ctx), q)
	if err != nil {
		return err
	}
	if images == nil {
		images = []*catalog.Image{}
	}
	return ctx.JSON(http.StatusOK, SearchResponse{Images: images})
}

// CountImages handles POST /images/count. Order and paging are ignored.
func (c *Controller) CountImages(ctx echo.Context) error {
	var req SearchRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	q, err := req.query()
	if err != nil {
		return err
	}
	count, err := c.Catalog.CountImages(requestContext(ctx), q)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

// GetImage handles GET /images/:id. tags=true includes the image's tags.
func (c *Controller) GetImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	tags, err := boolQuery(ctx, "tags")
	if err != nil {
		return err
	}
	return c.writeImage(ctx, id, tags)
}

// EditImage handles PATCH /images/:id. Fields left out of the body are
// unchanged and null clears them.
func (c *Controller) EditImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	fields := map[string]json.RawMessage{}
	if err := bind(ctx, &fields); err != nil {
		return err
	}

	var edit catalog.ImageEdit
	for key, target := range map[string]*catalog.Optional[string]{
		"creator": &edit.Creator,
		"title":   &edit.Title,
		"caption": &edit.Caption,
		"alt":     &edit.Alt,
	} {
		if *target, err = optional[string](fields, key); err != nil {
			return err
		}
	}
	if edit.Rating, err = optional[int64](fields, "rating"); err != nil {
		return err
	}

	if err := c.Catalog.EditImage(requestContext(ctx), id, edit); err != nil {
		return err
	}
	return c.writeImage(ctx, id, true)
}

// RemoveImage handles DELETE /images/:id. delete_file=true removes the file too.
func (c *Controller) RemoveImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	deleteFile, err := boolQuery(ctx, "delete_file")
	if err != nil {
		return err
	}
	if err := c.Catalog.RemoveImage(requestContext(ctx), id, deleteFile); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// MoveImage handles POST /images/:id/move
func (c *Controller) MoveImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	var req MoveImageRequest
	if err := bind(ctx, &req); err != nil {
		return err
	}
	if err := c.Catalog.MoveImage(requestContext(ctx), id, req.Path, req.Location); err != nil {
		return err
	}
	return c.writeImage(ctx, id, false)
}

// TagImage handles PUT /images/:id/tags/{tag}
func (c *Controller) TagImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	tag, err := tagParam(ctx)
	if err != nil {
		return err
	}
	if err := c.Catalog.TagImage(requestContext(ctx), id, tag); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// UntagImage handles DELETE /images/:id/tags/{tag}
func (c *Controller) UntagImage(ctx echo.Context) error {
	id, err := idParam(ctx, "id")
	if err != nil {
		return err
	}
	tag, err := tagParam(ctx)
	if err != nil {
		return err
	}
	if err := c.Catalog.UntagImage(requestContext(ctx), id, tag); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (c *Controller) writeImage(ctx echo.Context, id int64, tags bool) error {
	img, err := c.Catalog.GetImage(requestContext(ctx), id, tags)
	if err != nil {
		return err
	}
	if img == nil {
		return errors.Newf("image %d not found", id).
			Component("api").
			Category(errors.CategoryNotFound).
			Build()
	}
	return ctx.JSON(http.StatusOK, img)
}
