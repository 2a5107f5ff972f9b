package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/catalog"
)

func TestEditImage(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		_, _, ids := importFixtures(t, ctx, c)

		assert.ErrorIs(t, c.EditImage(ctx, ids[0], catalog.ImageEdit{}), catalog.ErrInvalidInput)
		assert.ErrorIs(t, c.EditImage(ctx, 9999, catalog.ImageEdit{Title: catalog.Set("x")}), catalog.ErrNotFound)

		require.NoError(t, c.EditImage(ctx, ids[0], catalog.ImageEdit{
			Title:   catalog.Set("title"),
			Caption: catalog.Set("caption"),
			Alt:     catalog.Set("alt"),
		}))
		require.NoError(t, c.EditImage(ctx, ids[0], catalog.ImageEdit{Caption: catalog.Clear[string]()}))

		img, err := c.GetImage(ctx, ids[0], false)
		require.NoError(t, err)
		assert.Equal(t, "title", *img.Title)
		assert.Nil(t, img.Caption)
		assert.Equal(t, "alt", *img.Alt)
		assert.Nil(t, img.Tags, "tags not requested")

		missing, err := c.GetImage(ctx, 9999, true)
		require.NoError(t, err)
		assert.Nil(t, missing)

		assert.ErrorIs(t, c.TagImage(ctx, 9999, "x"), catalog.ErrNotFound)
	})
}

func TestMoveImage(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		_, root, ids := importFixtures(t, ctx, c)

		require.NoError(t, c.MoveImage(ctx, ids[0], "2024/moved.png", nil))
		assert.NoFileExists(t, filepath.Join(root, "a.png"))
		assert.FileExists(t, filepath.Join(root, "2024", "moved.png"))

		img, err := c.GetImage(ctx, ids[0], false)
		require.NoError(t, err)
		assert.Equal(t, "2024/moved.png", img.Path)

		found, err := c.FindImage(ctx, filepath.Join(root, "2024", "moved.png"), true)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, ids[0], found.ID)
		assert.Empty(t, found.Tags)

		other, otherRoot := addLocation(t, ctx, c, "other")
		require.NoError(t, c.MoveImage(ctx, ids[1], "b.png", &other))
		assert.FileExists(t, filepath.Join(otherRoot, "b.png"))
		img, err = c.GetImage(ctx, ids[1], false)
		require.NoError(t, err)
		assert.Equal(t, other, img.Location)
	})
}

func TestMoveImageCollisions(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		_, root, ids := importFixtures(t, ctx, c)
		writePNG(t, filepath.Join(root, "taken.png"), 2, 2)

		err := c.MoveImage(ctx, ids[0], "taken.png", nil)
		assert.ErrorIs(t, err, catalog.ErrConflict)
		assert.FileExists(t, filepath.Join(root, "a.png"))
		assert.FileExists(t, filepath.Join(root, "taken.png"))
		img, err := c.GetImage(ctx, ids[0], false)
		require.NoError(t, err)
		assert.Equal(t, "a.png", img.Path)

		assert.ErrorIs(t, c.MoveImage(ctx, ids[0], "b.png", nil), catalog.ErrConflict, "recorded image")
		assert.ErrorIs(t, c.MoveImage(ctx, ids[0], "a.png", nil), catalog.ErrInvalidInput, "same path")
		assert.ErrorIs(t, c.MoveImage(ctx, ids[0], "../a.png", nil), catalog.ErrInvalidPath)
		require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0o755))
		assert.ErrorIs(t, c.MoveImage(ctx, ids[0], "dir", nil), catalog.ErrInvalidPath)
		assert.ErrorIs(t, c.MoveImage(ctx, 9999, "x.png", nil), catalog.ErrNotFound)
	})
}

func TestMoveImageAlreadyMovedByHand(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		_, root, ids := importFixtures(t, ctx, c)
		require.NoError(t, os.Rename(filepath.Join(root, "a.png"), filepath.Join(root, "z.png")))

		require.NoError(t, c.MoveImage(ctx, ids[0], "z.png", nil))
		img, err := c.GetImage(ctx, ids[0], false)
		require.NoError(t, err)
		assert.Equal(t, "z.png", img.Path)

		require.NoError(t, os.Remove(filepath.Join(root, "b.png")))
		assert.ErrorIs(t, c.MoveImage(ctx, ids[1], "y.png", nil), catalog.ErrNotFound)
	})
}

func TestRemoveImage(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		_, root, ids := importFixtures(t, ctx, c)

		require.NoError(t, c.RemoveImage(ctx, ids[0], false))
		assert.FileExists(t, filepath.Join(root, "a.png"))

		require.NoError(t, c.RemoveImage(ctx, ids[1], true))
		assert.NoFileExists(t, filepath.Join(root, "b.png"))

		count, err := c.CountImages(ctx, catalog.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		found, err := c.FindImage(ctx, filepath.Join(root, "a.png"), false)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}
