package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
)

func TestAddLocationValidation(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		root := t.TempDir()

		_, err := c.AddLocation(ctx, catalog.LocationSpec{Name: "neither", Path: root})
		assert.ErrorIs(t, err, catalog.ErrInvalidInput)

		_, err = c.AddLocation(ctx, catalog.LocationSpec{Name: "pathless", Source: true})
		assert.ErrorIs(t, err, catalog.ErrInvalidInput)

		_, err = c.AddLocation(ctx, catalog.LocationSpec{Name: "file", Path: filepath.Join(root, "nope"), Source: true})
		assert.ErrorIs(t, err, catalog.ErrInvalidPath)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

		id, err := c.AddLocation(ctx, catalog.LocationSpec{Name: "main", Path: root, Description: "photos", Source: true})
		require.NoError(t, err)

		_, err = c.AddLocation(ctx, catalog.LocationSpec{Name: "main", Path: root, Destination: true})
		assert.ErrorIs(t, err, catalog.ErrConflict)

		removable, err := c.AddLocation(ctx, catalog.LocationSpec{Name: "card", Source: true, Removable: true})
		require.NoError(t, err)

		locations, err := c.ListLocations(ctx)
		require.NoError(t, err)
		require.Len(t, locations, 2)
		assert.Equal(t, id, locations[0].ID)
		assert.Equal(t, "photos", *locations[0].Description)
		assert.Equal(t, root, *locations[0].Path)
		assert.Equal(t, removable, locations[1].ID)
		assert.Nil(t, locations[1].Path)
	})
}

func TestEditLocation(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, _ := addLocation(t, ctx, c, "main")
		addLocation(t, ctx, c, "other")

		err := c.EditLocation(ctx, catalog.ByID(id), "", catalog.LocationEdit{})
		assert.ErrorIs(t, err, catalog.ErrInvalidInput, "no edits")

		err = c.EditLocation(ctx, catalog.ByID(id), "other", catalog.LocationEdit{})
		assert.ErrorIs(t, err, catalog.ErrConflict)

		err = c.EditLocation(ctx, catalog.ByID(id), "", catalog.LocationEdit{Path: catalog.Clear[string]()})
		assert.ErrorIs(t, err, catalog.ErrInvalidInput, "non-removable needs a path")

		err = c.EditLocation(ctx, catalog.ByID(id), "", catalog.LocationEdit{
			Source:      ptr(false),
			Destination: ptr(false),
		})
		assert.ErrorIs(t, err, catalog.ErrInvalidInput)

		err = c.EditLocation(ctx, catalog.ByID(id), "renamed", catalog.LocationEdit{
			Description: catalog.Set("described"),
			Removable:   ptr(true),
			Path:        catalog.Clear[string](),
		})
		require.NoError(t, err)

		location, err := c.GetLocation(ctx, catalog.ByName("renamed"))
		require.NoError(t, err)
		require.NotNil(t, location)
		assert.Equal(t, "described", *location.Description)
		assert.True(t, location.Removable)
		assert.Nil(t, location.Path)

		err = c.EditLocation(ctx, catalog.ByName("renamed"), "", catalog.LocationEdit{Description: catalog.Clear[string]()})
		require.NoError(t, err)
		location, err = c.ExpectLocation(ctx, catalog.ByID(id))
		require.NoError(t, err)
		assert.Nil(t, location.Description)

		missing, err := c.GetLocation(ctx, catalog.ByName("main"))
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = c.ExpectLocation(ctx, catalog.ByName("main"))
		assert.ErrorIs(t, err, catalog.ErrNotFound)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestRemoveLocationNeedsForceWithImages(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		writePNG(t, filepath.Join(root, "a.png"), 4, 4)
		_, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{})
		require.NoError(t, err)

		_, err = c.RemoveLocation(ctx, catalog.ByID(id), false)
		assert.ErrorIs(t, err, catalog.ErrConflict)

		removed, err := c.RemoveLocation(ctx, catalog.ByID(id), true)
		require.NoError(t, err)
		assert.True(t, removed)
		assert.FileExists(t, filepath.Join(root, "a.png"), "files are never deleted")

		count, err := c.CountImages(ctx, catalog.Query{})
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}

func TestMountOverridesPath(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, err := c.AddLocation(ctx, catalog.LocationSpec{Name: "card", Source: true, Removable: true})
		require.NoError(t, err)

		mount := t.TempDir()
		require.NoError(t, c.Mount(ctx, catalog.ByID(id), mount))
		assert.Equal(t, map[int64]string{id: mount}, c.Mounts())

		location, err := c.ExpectLocation(ctx, catalog.ByName("card"))
		require.NoError(t, err)
		root, ok := location.Root()
		assert.True(t, ok)
		assert.Equal(t, mount, root)

		err = c.Mount(ctx, catalog.ByID(id), filepath.Join(mount, "missing"))
		assert.ErrorIs(t, err, catalog.ErrInvalidPath)

		require.NoError(t, c.Unmount(ctx, catalog.ByID(id)))
		require.NoError(t, c.Unmount(ctx, catalog.ByID(id)), "unmounting twice is fine")
		assert.Empty(t, c.Mounts())

		_, err = c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{})
		assert.ErrorIs(t, err, catalog.ErrInvalidPath)
	})
}
