package catalog_test

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/datastore"
	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/testutil"
)

// withCatalog runs fn against an initialized catalog on every backend
func withCatalog(t *testing.T, fn func(t *testing.T, ctx context.Context, c *catalog.Catalog)) {
	t.Helper()
	testutil.Backends(t, func(t *testing.T, store *datastore.Store) {
		ctx := testutil.Context(t)
		require.NoError(t, store.Initialize(ctx))
		fn(t, ctx, catalog.New(store, catalog.Options{}))
	})
}

// freshCatalog opens a second, empty catalog on the same kind of backend as c
func freshCatalog(t *testing.T, ctx context.Context, c *catalog.Catalog) *catalog.Catalog {
	t.Helper()
	var store *datastore.Store
	if c.Backend().Name() == dialect.PostgresName {
		store = testutil.Postgres(t)
	} else {
		store = testutil.SQLite(t)
	}
	require.NoError(t, store.Initialize(ctx))
	return catalog.New(store, catalog.Options{})
}

// writePNG writes a width x height PNG, creating parent directories
func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, solid(width, height)))
}

// writeJPEG writes a width x height JPEG, creating parent directories
func writeJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, solid(width, height), nil))
}

func solid(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return img
}

// touch sets a file's modification time
func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

// addLocation adds a source and destination location rooted at a new temp directory
func addLocation(t *testing.T, ctx context.Context, c *catalog.Catalog, name string) (int64, string) {
	t.Helper()
	root := t.TempDir()
	id, err := c.AddLocation(ctx, catalog.LocationSpec{
		Name:        name,
		Path:        root,
		Source:      true,
		Destination: true,
	})
	require.NoError(t, err)
	return id, root
}

func ptr[T any](v T) *T { return &v }
