package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
)

func TestImportLocationIsIdempotent(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		writePNG(t, filepath.Join(root, "a.png"), 4, 4)
		writeJPEG(t, filepath.Join(root, "sub", "b.JPG"), 8, 6)
		require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0o644))

		first, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{})
		require.NoError(t, err)
		assert.Len(t, first, 2)

		second, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{})
		require.NoError(t, err)
		assert.Empty(t, second, "nothing changed on disk")

		changed := filepath.Join(root, "sub", "b.JPG")
		writeJPEG(t, changed, 10, 10)
		touch(t, changed, time.Now().Add(time.Hour))

		third, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{})
		require.NoError(t, err)
		require.Len(t, third, 1)

		img, err := c.GetImage(ctx, third[0], false)
		require.NoError(t, err)
		require.NotNil(t, img)
		assert.Equal(t, "sub/b.JPG", img.Path)
		assert.Equal(t, int64(10), *img.Width)
		assert.Equal(t, filepath.Join(root, "sub", "b.JPG"), *img.FullPath)
		assert.NotNil(t, img.Hash)
		assert.NotNil(t, img.CreationDate, "falls back to the modification time")
	})
}

func TestImportFormatsAndTags(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		writePNG(t, filepath.Join(root, "a.png"), 4, 4)
		writeJPEG(t, filepath.Join(root, "b.jpg"), 4, 4)

		ids, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{
			Formats: []string{"PNG"},
			Creator: ptr("Alice"),
			Tags:    []string{"trip/beach"},
		})
		require.NoError(t, err)
		require.Len(t, ids, 1)

		img, err := c.GetImage(ctx, ids[0], true)
		require.NoError(t, err)
		assert.Equal(t, "a.png", img.Path)
		assert.Equal(t, "Alice", *img.Creator)
		assert.Equal(t, []string{"trip/beach"}, img.Tags)
	})
}

func TestImportPreservesUserFields(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		path := filepath.Join(root, "a.png")
		writePNG(t, path, 4, 4)

		ids, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{Creator: ptr("importer")})
		require.NoError(t, err)
		require.Len(t, ids, 1)
		image := ids[0]

		require.NoError(t, c.EditImage(ctx, image, catalog.ImageEdit{
			Creator: catalog.Set("me"),
			Title:   catalog.Set("mine"),
			Rating:  catalog.Set[int64](3),
		}))

		writePNG(t, path, 6, 6)
		touch(t, path, time.Now().Add(time.Hour))

		importer, err := c.NewImporter(ctx, id, root, catalog.ImporterOptions{
			Fields: catalog.ImageFields{
				Creator: ptr("someone else"),
				Title:   ptr("replaced"),
				Alt:     ptr("filled in"),
			},
		})
		require.NoError(t, err)
		require.NoError(t, importer.Submit(path))
		require.NoError(t, importer.Close())
		assert.Equal(t, []int64{image}, importer.Imported())

		img, err := c.GetImage(ctx, image, false)
		require.NoError(t, err)
		assert.Equal(t, "me", *img.Creator)
		assert.Equal(t, "mine", *img.Title)
		assert.Equal(t, int64(3), *img.Rating)
		assert.Equal(t, "filled in", *img.Alt, "unset fields get populated")
		assert.Equal(t, int64(6), *img.Width, "derived fields follow the file")
	})
}

func TestImportSkipsUnreadableFiles(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		writePNG(t, filepath.Join(root, "a", "good.png"), 4, 4)
		writePNG(t, filepath.Join(root, "b.png"), 6, 6)
		require.NoError(t, os.Symlink(filepath.Join(root, "gone.png"), filepath.Join(root, "broken.png")))

		ids, err := c.ImportLocation(ctx, catalog.ByID(id), catalog.ImportOptions{BatchSize: 10})
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		count, err := c.CountImages(ctx, catalog.Query{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		img, err := c.FindImage(ctx, filepath.Join(root, "broken.png"), false)
		require.NoError(t, err)
		assert.Nil(t, img)
	})
}

func TestImporterSubmitKeepsBatchOnFileErrors(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		good := filepath.Join(root, "good.png")
		writePNG(t, good, 4, 4)

		importer, err := c.NewImporter(ctx, id, root, catalog.ImporterOptions{BatchSize: 10})
		require.NoError(t, err)
		require.NoError(t, importer.Submit(good))

		err = importer.Submit(filepath.Join(root, "missing.png"))
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))

		require.NoError(t, importer.Close())
		assert.Len(t, importer.Imported(), 1)
	})
}

func TestImporterCommitsInBatches(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		var paths []string
		for _, name := range []string{"a.png", "b.png", "c.png"} {
			path := filepath.Join(root, name)
			writePNG(t, path, 2, 2)
			paths = append(paths, path)
		}

		importer, err := c.NewImporter(ctx, id, root, catalog.ImporterOptions{BatchSize: 2})
		require.NoError(t, err)
		require.NoError(t, importer.Submit(paths[0]))
		assert.Empty(t, importer.Imported())
		require.NoError(t, importer.Submit(paths[1]))
		assert.Len(t, importer.Imported(), 2, "first batch committed")
		require.NoError(t, importer.Submit(paths[2]))
		assert.Len(t, importer.Imported(), 2)
		require.NoError(t, importer.Close())
		assert.Len(t, importer.Imported(), 3)

		assert.ErrorIs(t, importer.Submit(paths[0]), catalog.ErrInvalidInput, "closed")

		outside := filepath.Join(t.TempDir(), "d.png")
		writePNG(t, outside, 2, 2)
		importer, err = c.NewImporter(ctx, id, root, catalog.ImporterOptions{})
		require.NoError(t, err)
		assert.ErrorIs(t, importer.Submit(outside), catalog.ErrInvalidPath)
		require.NoError(t, importer.Close())
	})
}

func TestAddImageCopy(t *testing.T) {
	withCatalog(t, func(t *testing.T, ctx context.Context, c *catalog.Catalog) {
		id, root := addLocation(t, ctx, c, "main")
		source := filepath.Join(t.TempDir(), "in.png")
		writePNG(t, source, 3, 3)

		image, err := c.AddImageCopy(ctx, source, catalog.ByID(id), "2024/in.png",
			catalog.ImageFields{Title: ptr("copied")}, []string{"copies"})
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(root, "2024", "in.png"))
		assert.FileExists(t, source, "copying keeps the source")

		img, err := c.GetImage(ctx, image, true)
		require.NoError(t, err)
		assert.Equal(t, "2024/in.png", img.Path)
		assert.Equal(t, "copied", *img.Title)
		assert.Equal(t, []string{"copies"}, img.Tags)

		_, err = c.AddImageCopy(ctx, source, catalog.ByID(id), "2024/in.png", catalog.ImageFields{}, nil)
		assert.ErrorIs(t, err, catalog.ErrConflict)

		_, err = c.AddImageCopy(ctx, source, catalog.ByID(id), "../escape.png", catalog.ImageFields{}, nil)
		assert.ErrorIs(t, err, catalog.ErrInvalidPath)
	})
}
