package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/filter"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// VerifyOptions narrow VerifyImageFiles
type VerifyOptions struct {
	// Location limits the check to one location
	Location *int64
	// Path limits the check to images under this absolute path
	Path string
	// ReparseExif re-reads every file even when it looks unchanged
	ReparseExif bool
}

// VerifyImageFiles checks recorded images against the disk. Files whose
// modification time moved are rehashed and, when their contents changed,
// re-inspected. It returns the images whose files are missing.
func (c *Catalog) VerifyImageFiles(ctx context.Context, opts VerifyOptions) ([]*Image, error) {
	scope := ""
	if opts.Path != "" {
		absolute, err := filepath.Abs(opts.Path)
		if err != nil {
			return nil, fileError(err, opts.Path)
		}
		scope = absolute
	}

	var missing []*Image
	err := c.tx(ctx, metrics.OpVerifyImageFiles, func(tx *sql.Tx) error {
		roots, err := c.searchRoots(ctx, tx, opts.Location, scope)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(roots))
		for id := range roots {
			ids = append(ids, id)
		}
		values := map[string]any{}
		condition, err := filter.Number{Column: "location", Comparator: filter.Equals, Value: ids}.
			Prepare(c.dialect, values, "")
		if err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, imageSelect+" WHERE "+condition+" ORDER BY id", c.dialect.Args(values)...)
		if err != nil {
			return dbError(err, "verify_image_files")
		}
		var images []*Image
		for rows.Next() {
			img, err := scanImage(rows)
			if err != nil {
				rows.Close()
				return dbError(err, "verify_image_files")
			}
			images = append(images, img)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError(err, "verify_image_files")
		}

		for _, img := range images {
			img.withRoot(roots[img.Location], true)
			full := *img.FullPath
			if scope != "" && !within(full, scope) {
				continue
			}

			stat, err := os.Stat(full)
			if err != nil {
				missing = append(missing, img)
				continue
			}
			if err := c.refreshImage(ctx, tx, img, full, stat, opts.ReparseExif); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.metrics.SetMissing(len(missing))
	return missing, nil
}

// searchRoots maps each location to check onto its root
func (c *Catalog) searchRoots(ctx context.Context, tx *sql.Tx, location *int64, scope string) (map[int64]string, error) {
	roots := map[int64]string{}
	inScope := func(root string) bool {
		return scope == "" || within(root, scope) || within(scope, root)
	}

	if location != nil {
		l, err := c.expectLocation(ctx, tx, ByID(*location))
		if err != nil {
			return nil, err
		}
		root, ok := l.Root()
		if !ok {
			return nil, invalidPath("", "no information about where %s is mounted", l.Name)
		}
		switch {
		case !isDir(root) && l.Removable:
			return nil, invalidPath(root, "location %s not mounted at %s", l.Name, root)
		case !isDir(root):
			return nil, invalidPath(root, "location %s missing", l.Name)
		case inScope(root):
			roots[l.ID] = root
		}
	} else {
		locations, err := c.listLocations(ctx, tx)
		if err != nil {
			return nil, err
		}
		for _, l := range locations {
			root, ok := l.Root()
			switch {
			case ok && isDir(root):
				if inScope(root) {
					roots[l.ID] = root
				}
			case !l.Removable:
				c.log.Warn("permanent location missing", logger.String("location", l.Name))
			}
		}
	}

	if len(roots) == 0 {
		return nil, invalidInput("no valid search locations")
	}
	return roots, nil
}

// refreshImage brings the record up to date with a file that still exists
func (c *Catalog) refreshImage(ctx context.Context, tx *sql.Tx, img *Image, full string, stat os.FileInfo, reparse bool) error {
	modified := stat.ModTime().Truncate(time.Second).UTC()
	if sameTime(img.LastModified, &modified) && !reparse {
		return nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	set("last_modified", c.timeArg(&modified))

	hash, err := imageinfo.Hash(full)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryFileIO) {
			c.log.Warn("skipping unreadable image", logger.Int64("id", img.ID),
				logger.String("path", full), logger.Error(err))
			return nil
		}
		return err
	}
	if img.Hash == nil || *img.Hash != hash || reparse {
		set("hash", hash)

		info := imageinfo.Inspect(full, c.log)
		if width := widen(info.Width); !equalPtr(img.Width, width) {
			set("width", width)
		}
		if height := widen(info.Height); !equalPtr(img.Height, height) {
			set("height", height)
		}
		if info.CreationDate != nil && !sameTime(img.CreationDate, info.CreationDate) {
			set("creation_date", c.timeArg(info.CreationDate))
		}
		// values already in the catalog beat the file's
		if img.Creator == nil && info.Creator != nil {
			set("creator", *info.Creator)
		}
		if img.Caption == nil && info.Caption != nil {
			set("caption", *info.Caption)
		}
		if len(info.Exif) > 0 {
			exif, err := jsonArg(info.Exif)
			if err != nil {
				return invalidInput("unencodable exif data in %s: %v", full, err)
			}
			stored, _ := jsonArg(img.Exif)
			if !sameJSON([]byte(stored), exif) {
				set("exif", exif)
			}
		}
	}

	// only write over the hash this refresh was based on
	query := "UPDATE images SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, img.ID)
	if img.Hash == nil {
		query += " AND hash IS NULL"
	} else {
		query += " AND hash = ?"
		args = append(args, *img.Hash)
	}

	c.log.Debug("refreshing image", logger.Int64("id", img.ID), logger.String("path", full))
	result, err := tx.ExecContext(ctx, c.q(query), args...)
	if err != nil {
		return dbError(err, "verify_image_files")
	}
	if updated, err := result.RowsAffected(); err == nil && updated == 0 {
		c.log.Info("image changed during verify, not refreshed",
			logger.Int64("id", img.ID), logger.String("path", full))
	}
	return nil
}

// within reports whether path is root or below it
func within(path, root string) bool {
	relative, err := filepath.Rel(root, path)
	return err == nil && (relative == "." || filepath.IsLocal(relative))
}
