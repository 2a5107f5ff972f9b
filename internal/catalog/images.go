package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// ImageEdit changes the user fields of an image
type ImageEdit struct {
	Creator Optional[string]
	Title   Optional[string]
	Caption Optional[string]
	Alt     Optional[string]
	Rating  Optional[int64]
}

// splitName returns the stem and the lowercase extension without its dot
func splitName(path string) (string, string) {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext), strings.ToLower(strings.TrimPrefix(ext, "."))
}

// GetImage returns an image or nil when there is none
func (c *Catalog) GetImage(ctx context.Context, id int64, tags bool) (*Image, error) {
	var img *Image
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var err error
		img, err = c.getImage(ctx, tx, id, tags)
		return err
	})
	return img, err
}

func (c *Catalog) getImage(ctx context.Context, tx *sql.Tx, id int64, tags bool) (*Image, error) {
	img, err := scanImage(tx.QueryRowContext(ctx, c.q(imageSelect+" WHERE id = ?"), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "get_image")
	}
	if err := c.completeImage(ctx, tx, img, tags); err != nil {
		return nil, err
	}
	return img, nil
}

// completeImage fills FullPath and, when asked, Tags
func (c *Catalog) completeImage(ctx context.Context, tx *sql.Tx, img *Image, tags bool) error {
	root, err := c.root(ctx, tx, img.Location)
	img.withRoot(root, err == nil)
	if tags {
		if img.Tags, err = c.fetchTags(ctx, tx, img.ID); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) fetchTags(ctx context.Context, tx *sql.Tx, id int64) ([]string, error) {
	rows, err := tx.QueryContext(ctx, c.q(`SELECT tags.name
		FROM image_tags JOIN tags ON tags.id = image_tags.tag
		WHERE image_tags.image = ?
		ORDER BY tags.name`), id)
	if err != nil {
		return nil, dbError(err, "fetch_tags")
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, dbError(err, "fetch_tags")
		}
		tags = append(tags, deserializeTag(name))
	}
	return tags, dbError(rows.Err(), "fetch_tags")
}

// FindImage looks up an image by its absolute path on disk. Mounted
// locations are tried before stored paths.
func (c *Catalog) FindImage(ctx context.Context, path string, tags bool) (*Image, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fileError(err, path)
	}

	var img *Image
	err = c.tx(ctx, "", func(tx *sql.Tx) error {
		lookup := func(location int64, root string) error {
			relative, err := filepath.Rel(root, absolute)
			if err != nil || !filepath.IsLocal(relative) {
				return nil
			}
			found, err := scanImage(tx.QueryRowContext(ctx,
				c.q(imageSelect+" WHERE location = ? AND path = ?"), location, filepath.ToSlash(relative)))
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return dbError(err, "find_image")
			}
			img = found
			return nil
		}

		mounts := c.Mounts()
		for location, root := range mounts {
			if err := lookup(location, root); err != nil || img != nil {
				return err
			}
		}

		locations, err := c.listLocations(ctx, tx)
		if err != nil {
			return err
		}
		for _, location := range locations {
			if _, mounted := mounts[location.ID]; mounted || location.Path == nil {
				continue
			}
			if err := lookup(location.ID, *location.Path); err != nil || img != nil {
				return err
			}
		}
		return nil
	})
	if err != nil || img == nil {
		return nil, err
	}

	err = c.tx(ctx, "", func(tx *sql.Tx) error {
		return c.completeImage(ctx, tx, img, tags)
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// EditImage changes user fields
func (c *Catalog) EditImage(ctx context.Context, id int64, edit ImageEdit) error {
	var (
		sets []string
		args []any
	)
	for _, field := range []struct {
		column   string
		supplied bool
		value    any
	}{
		{"creator", edit.Creator.Supplied(), edit.Creator.arg()},
		{"title", edit.Title.Supplied(), edit.Title.arg()},
		{"caption", edit.Caption.Supplied(), edit.Caption.arg()},
		{"alt", edit.Alt.Supplied(), edit.Alt.arg()},
		{"rating", edit.Rating.Supplied(), edit.Rating.arg()},
	} {
		if field.supplied {
			sets = append(sets, field.column+" = ?")
			args = append(args, field.value)
		}
	}
	if len(sets) == 0 {
		return invalidInput("no edits made to image %d", id)
	}

	return c.tx(ctx, metrics.OpEditImage, func(tx *sql.Tx) error {
		var updated int64
		err := tx.QueryRowContext(ctx,
			c.q("UPDATE images SET "+strings.Join(sets, ", ")+" WHERE id = ? RETURNING id"),
			append(args, id)...,
		).Scan(&updated)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("image", id)
		}
		return dbError(err, "edit_image")
	})
}

// TagImage adds a tag to an image, creating the tag if needed
func (c *Catalog) TagImage(ctx context.Context, id int64, tag string) error {
	return c.tx(ctx, metrics.OpEditImage, func(tx *sql.Tx) error {
		if err := c.expectImage(ctx, tx, id); err != nil {
			return err
		}
		tagID, err := c.addTag(ctx, tx, tag, Unset[string]())
		if err != nil {
			return err
		}
		return c.linkTags(ctx, tx, id, []int64{tagID})
	})
}

// UntagImage removes a tag from an image. The tag itself is kept.
func (c *Catalog) UntagImage(ctx context.Context, id int64, tag string) error {
	return c.tx(ctx, metrics.OpEditImage, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, c.q(`DELETE FROM image_tags
			WHERE image = ? AND tag IN (SELECT id FROM tags WHERE name = ?)`), id, serializeTag(tag))
		return dbError(err, "untag_image")
	})
}

func (c *Catalog) expectImage(ctx context.Context, tx *sql.Tx, id int64) error {
	var found int64
	err := tx.QueryRowContext(ctx, c.q("SELECT id FROM images WHERE id = ?"), id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound("image", id)
	}
	return dbError(err, "get_image")
}

func (c *Catalog) linkTags(ctx context.Context, tx *sql.Tx, image int64, tags []int64) error {
	for _, tag := range tags {
		_, err := tx.ExecContext(ctx,
			c.q("INSERT INTO image_tags (image, tag) VALUES (?, ?) ON CONFLICT DO NOTHING"), image, tag)
		if err != nil {
			return dbError(err, "tag_image")
		}
	}
	return nil
}

// MoveImage moves an image file and its record to path, relative to the
// root of location (the image's own location when nil). A file that was
// already moved by hand only has its record updated.
func (c *Catalog) MoveImage(ctx context.Context, id int64, path string, location *int64) error {
	return c.tx(ctx, metrics.OpMoveImage, func(tx *sql.Tx) error {
		img, err := c.getImage(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if img == nil {
			return notFound("image", id)
		}

		sourceRoot, err := c.reachableRoot(ctx, tx, img.Location)
		if err != nil {
			return err
		}

		destinationRoot, target := sourceRoot, img.Location
		if location != nil && *location != img.Location {
			target = *location
			if destinationRoot, err = c.reachableRoot(ctx, tx, target); err != nil {
				return err
			}
		}

		if filepath.IsAbs(path) || !filepath.IsLocal(filepath.FromSlash(path)) {
			return invalidPath(path, "destination %s must be relative to the location", path)
		}
		relative := filepath.Clean(filepath.FromSlash(path))
		source := filepath.Join(sourceRoot, filepath.FromSlash(img.Path))
		destination := filepath.Join(destinationRoot, relative)

		if source == destination {
			return invalidInput("source and destination must be different: %s", source)
		}
		if isDir(destination) {
			return invalidPath(destination, "filename must be supplied")
		}

		var taken int64
		err = tx.QueryRowContext(ctx, c.q("SELECT id FROM images WHERE location = ? AND path = ?"),
			target, filepath.ToSlash(relative)).Scan(&taken)
		if err == nil {
			return conflict("image %d is already recorded at %s", taken, destination)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return dbError(err, "move_image")
		}

		moved := false
		if !isFile(source) {
			if !isFile(destination) {
				return notFound("image file", source)
			}
			c.log.Info("image already moved",
				logger.String("source", source),
				logger.String("destination", destination))
			moved = true
		} else if isFile(destination) {
			return conflict("file already exists at %s", destination)
		}

		name, extension := splitName(relative)
		_, err = tx.ExecContext(ctx, c.q(`UPDATE images
			SET name = ?, extension = ?, location = ?, path = ?
			WHERE id = ? AND location = ? AND path = ?`),
			name, extension, target, filepath.ToSlash(relative), id, img.Location, img.Path)
		if err != nil {
			return dbError(err, "move_image")
		}

		if moved {
			return nil
		}
		if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
			return fileError(err, destination)
		}
		return moveFile(source, destination)
	})
}

// RemoveImage deletes an image record and, when asked, its file
func (c *Catalog) RemoveImage(ctx context.Context, id int64, deleteFile bool) error {
	return c.tx(ctx, metrics.OpRemoveImage, func(tx *sql.Tx) error {
		var (
			location int64
			path     string
		)
		err := tx.QueryRowContext(ctx, c.q("DELETE FROM images WHERE id = ? RETURNING location, path"), id).
			Scan(&location, &path)
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("image", id)
		}
		if err != nil {
			return dbError(err, "remove_image")
		}
		if !deleteFile {
			return nil
		}

		root, err := c.reachableRoot(ctx, tx, location)
		if err != nil {
			return err
		}
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return fileError(err, full)
		}
		c.log.Debug("deleted image file", logger.String("path", full))
		return nil
	})
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
