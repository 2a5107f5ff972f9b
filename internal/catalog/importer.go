package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// ImportOptions control ImportLocation
type ImportOptions struct {
	// Formats limits the imported extensions; empty means the catalog defaults
	Formats []string
	// BatchSize is how many files are handled per commit
	BatchSize int
	Creator   *string
	Tags      []string
}

// ImportLocation walks a location breadth first and records every image
// file with an accepted extension. Files already in the catalog are
// refreshed without touching user fields that are set. It returns the ids of
// images that were added or changed.
func (c *Catalog) ImportLocation(ctx context.Context, ref Ref, opts ImportOptions) ([]int64, error) {
	start := time.Now()
	ids, err := c.importLocation(ctx, ref, opts)
	c.metrics.RecordOperation(metrics.OpImportLocation, time.Since(start), err)
	return ids, err
}

func (c *Catalog) importLocation(ctx context.Context, ref Ref, opts ImportOptions) ([]int64, error) {
	location, err := c.ExpectLocation(ctx, ref)
	if err != nil {
		return nil, err
	}
	root, ok := location.Root()
	if !ok {
		return nil, invalidPath("", "location %s not mounted", location.Name)
	}
	if _, err := os.Stat(root); err != nil {
		return nil, invalidPath(root, "location %s not found at %s", location.Name, root)
	}
	if !isDir(root) {
		return nil, invalidPath(root, "location %s not a directory: %s", location.Name, root)
	}

	formats := imageinfo.NormalizeFormats(opts.Formats)
	if len(formats) == 0 {
		formats = c.formats
	}

	log := c.log.With(logger.String("location", location.Name), logger.String("root", root))
	log.Info("importing location")

	importer, err := c.NewImporter(ctx, location.ID, root, ImporterOptions{
		BatchSize: opts.BatchSize,
		Fields:    ImageFields{Creator: opts.Creator},
		Tags:      opts.Tags,
	})
	if err != nil {
		return nil, err
	}

	queue := []string{root}
	for len(queue) > 0 {
		directory := queue[0]
		queue = queue[1:]

		entries, err := readDir(directory)
		if err != nil {
			// what was staged so far is kept
			if closeErr := importer.Close(); closeErr != nil {
				return nil, closeErr
			}
			return nil, fileError(err, directory)
		}
		for _, entry := range entries {
			current := filepath.Join(directory, entry.Name())
			switch {
			case entry.IsDir():
				queue = append(queue, current)
			case imageinfo.HasFormat(current, formats):
				log.Debug("importing image", logger.String("path", current))
				if err := importer.Submit(current); err != nil {
					if !errors.IsCategory(err, errors.CategoryFileIO) {
						return nil, err
					}
					log.Warn("skipping unreadable image", logger.String("path", current), logger.Error(err))
				}
			}
		}
	}

	if err := importer.Close(); err != nil {
		return nil, err
	}
	ids := importer.Imported()
	log.Info("imported location", logger.Int("images", len(ids)))
	return ids, nil
}

// readDir lists a directory during import walks
var readDir = os.ReadDir

// ImporterOptions configure NewImporter
type ImporterOptions struct {
	// BatchSize is how many files are handled per commit
	BatchSize int
	// Fields seed the user fields of new images
	Fields ImageFields
	// Tags are applied to every submitted image
	Tags []string
}

type importerConfig struct {
	location  int64
	root      string
	batchSize int
	fields    ImageFields
	tags      []int64
	source    string
}

// Importer records files into one location, committing every batchSize
// files attempted. Ids become visible through Imported only once the batch
// holding them has committed.
type Importer struct {
	c   *Catalog
	ctx context.Context
	cfg importerConfig

	tx       *sql.Tx
	count    int
	pending  []int64
	imported []int64
	closed   bool
}

// NewImporter starts a bulk import into the location with the given id,
// whose files live under root. The caller must Close it.
func (c *Catalog) NewImporter(ctx context.Context, location int64, root string, opts ImporterOptions) (*Importer, error) {
	var tags []int64
	if len(opts.Tags) > 0 {
		err := c.tx(ctx, "", func(tx *sql.Tx) error {
			var err error
			tags, err = c.tagIDs(ctx, tx, opts.Tags)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Importer{c: c, ctx: ctx, cfg: importerConfig{
		location:  location,
		root:      root,
		batchSize: batchSize,
		fields:    opts.Fields,
		tags:      tags,
		source:    metrics.SourceImport,
	}}, nil
}

// Submit imports one file given by its full path. A file that can't be
// read fails with a file-io error and leaves the batch as it was; any other
// error discards the uncommitted batch and closes the importer.
func (im *Importer) Submit(path string) error {
	if im.closed {
		return invalidInput("importer is closed")
	}
	if im.tx == nil {
		tx, err := im.c.db.BeginTx(im.ctx, nil)
		if err != nil {
			im.closed = true
			return dbError(err, "import_image")
		}
		im.tx = tx
	}

	id, modified, err := im.c.importImage(im.ctx, im.tx, importSpec{
		location: im.cfg.location,
		root:     im.cfg.root,
		path:     path,
		fields:   im.cfg.fields,
		tags:     im.cfg.tags,
	})
	if err != nil {
		if !errors.IsCategory(err, errors.CategoryFileIO) {
			im.abort()
		}
		return err
	}
	if modified {
		im.pending = append(im.pending, id)
	}

	im.count++
	if im.count%im.cfg.batchSize == 0 {
		return im.commit()
	}
	return nil
}

// Close commits the final batch
func (im *Importer) Close() error {
	if im.closed {
		return nil
	}
	err := im.commit()
	im.closed = true
	return err
}

// Imported returns the ids committed so far
func (im *Importer) Imported() []int64 {
	return append([]int64(nil), im.imported...)
}

func (im *Importer) commit() error {
	if im.tx == nil {
		return nil
	}
	tx := im.tx
	im.tx = nil
	if err := tx.Commit(); err != nil {
		im.closed = true
		return dbError(err, "import_image")
	}
	im.c.metrics.RecordImported(im.cfg.source, len(im.pending))
	im.imported = append(im.imported, im.pending...)
	im.pending = nil
	return nil
}

// abort discards the uncommitted batch
func (im *Importer) abort() {
	if im.tx != nil {
		_ = im.tx.Rollback()
		im.tx = nil
	}
	im.pending = nil
	im.closed = true
}

type importSpec struct {
	location int64
	root     string
	path     string
	fields   ImageFields
	tags     []int64
	// noUpdate leaves an existing record alone
	noUpdate bool
}

// importImage inserts or refreshes the record for one file. It returns the
// image id (0 when noUpdate hit an existing record) and whether anything
// was written.
func (c *Catalog) importImage(ctx context.Context, tx *sql.Tx, spec importSpec) (int64, bool, error) {
	stat, err := os.Stat(spec.path)
	if err != nil {
		return 0, false, fileError(err, spec.path)
	}
	relative, err := filepath.Rel(spec.root, spec.path)
	if err != nil || !filepath.IsLocal(relative) {
		return 0, false, invalidPath(spec.path, "%s is not inside %s", spec.path, spec.root)
	}
	relative = filepath.ToSlash(relative)

	info := imageinfo.Inspect(spec.path, c.log)
	hash, err := imageinfo.Hash(spec.path)
	if err != nil {
		return 0, false, err
	}
	exif, err := jsonArg(info.Exif)
	if err != nil {
		return 0, false, invalidInput("unencodable exif data in %s: %v", spec.path, err)
	}

	modified := stat.ModTime().Truncate(time.Second).UTC()
	created := info.CreationDate
	if created == nil {
		created = &modified
	}

	creator := spec.fields.Creator
	if creator == nil {
		creator = info.Creator
	}
	caption := spec.fields.Caption
	if caption == nil {
		caption = info.Caption
	}
	width, height := widen(info.Width), widen(info.Height)
	name, extension := splitName(spec.path)

	var id int64
	err = tx.QueryRowContext(ctx, c.q(`INSERT INTO images
		(location, path, name, extension, hash, creation_date, last_modified,
		width, height, exif, creator, title, caption, alt, rating)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`),
		spec.location, relative, name, extension, hash, c.timeArg(created), c.timeArg(&modified),
		width, height, exif, creator, spec.fields.Title, caption, spec.fields.Alt, spec.fields.Rating,
	).Scan(&id)

	switch {
	case err == nil:
		if err := c.linkTags(ctx, tx, id, spec.tags); err != nil {
			return 0, false, err
		}
		return id, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, false, dbError(err, "import_image")
	case spec.noUpdate:
		return 0, false, nil
	}

	current, err := scanImage(tx.QueryRowContext(ctx,
		c.q(imageSelect+" WHERE location = ? AND path = ?"), spec.location, relative))
	if err != nil {
		return 0, false, dbError(err, "import_image")
	}
	id = current.ID

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	// user fields are only filled in, never replaced
	for _, field := range []struct {
		column  string
		current any
		value   any
	}{
		{"creator", current.Creator, creator},
		{"title", current.Title, spec.fields.Title},
		{"caption", current.Caption, caption},
		{"alt", current.Alt, spec.fields.Alt},
		{"rating", current.Rating, spec.fields.Rating},
	} {
		if isNil(field.current) && !isNil(field.value) {
			set(field.column, field.value)
		}
	}

	if !equalPtr(current.Hash, &hash) {
		set("hash", hash)
	}
	if !equalPtr(current.Width, width) {
		set("width", width)
	}
	if !equalPtr(current.Height, height) {
		set("height", height)
	}
	if !sameTime(current.CreationDate, created) {
		set("creation_date", c.timeArg(created))
	}
	if !sameTime(current.LastModified, &modified) {
		set("last_modified", c.timeArg(&modified))
	}
	if stored, err := json.Marshal(current.Exif); err != nil || !sameJSON(stored, exif) {
		set("exif", exif)
	}

	changed := len(sets) > 0
	if changed {
		_, err := tx.ExecContext(ctx, c.q("UPDATE images SET "+strings.Join(sets, ", ")+" WHERE id = ?"),
			append(args, id)...)
		if err != nil {
			return 0, false, dbError(err, "import_image")
		}
	}
	if err := c.linkTags(ctx, tx, id, spec.tags); err != nil {
		return 0, false, err
	}
	return id, changed, nil
}

func widen(v *int) *int64 {
	if v == nil {
		return nil
	}
	n := int64(*v)
	return &n
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Truncate(time.Second).Equal(b.Truncate(time.Second))
}

// sameJSON compares two encodings of the same kind of value. A nil map
// encodes as null and an empty one as {}; both mean no exif.
func sameJSON(stored []byte, fresh string) bool {
	empty := func(s string) bool { return s == "null" || s == "{}" }
	if empty(string(stored)) && empty(fresh) {
		return true
	}
	var a, b any
	if json.Unmarshal(stored, &a) != nil || json.Unmarshal([]byte(fresh), &b) != nil {
		return false
	}
	x, _ := json.Marshal(a)
	y, _ := json.Marshal(b)
	return string(x) == string(y)
}

// isNil reports whether a typed pointer held in an interface is nil
func isNil(v any) bool {
	switch p := v.(type) {
	case nil:
		return true
	case *string:
		return p == nil
	case *int64:
		return p == nil
	}
	return false
}

// AddImageCopy copies a file into a location at destination (relative to
// the location root) and records it. Existing files are never overwritten.
func (c *Catalog) AddImageCopy(ctx context.Context, source string, ref Ref, destination string, fields ImageFields, tags []string) (int64, error) {
	if filepath.IsAbs(destination) || !filepath.IsLocal(filepath.FromSlash(destination)) {
		return 0, invalidPath(destination, "destination %s must be relative to the location", destination)
	}

	var id int64
	err := c.tx(ctx, metrics.OpAddImageCopy, func(tx *sql.Tx) error {
		location, err := c.expectLocation(ctx, tx, ref)
		if err != nil {
			return err
		}
		root, ok := location.Root()
		if !ok {
			return invalidPath("", "unknown path for location %s", ref)
		}

		tagIDs, err := c.tagIDs(ctx, tx, tags)
		if err != nil {
			return err
		}

		target := filepath.Join(root, filepath.FromSlash(destination))
		id, err = c.addImageCopy(ctx, tx, location.ID, root, source, target, fields, tagIDs)
		if err != nil {
			return err
		}
		if id == 0 {
			return conflict("image already exists at %s", target)
		}
		return nil
	})
	if err == nil {
		c.metrics.RecordImported(metrics.SourceCopy, 1)
	}
	return id, err
}

// addImageCopy returns 0 when destination already exists
func (c *Catalog) addImageCopy(ctx context.Context, tx *sql.Tx, location int64, root, source, destination string, fields ImageFields, tags []int64) (int64, error) {
	if _, err := os.Lstat(destination); err == nil {
		return 0, nil
	}
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return 0, fileError(err, destination)
	}
	if err := copyFile(source, destination); err != nil {
		return 0, err
	}

	id, _, err := c.importImage(ctx, tx, importSpec{
		location: location,
		root:     root,
		path:     destination,
		fields:   fields,
		tags:     tags,
		noUpdate: true,
	})
	return id, err
}

// copyFile copies contents, permissions and modification time. It refuses
// to replace an existing file.
func copyFile(source, destination string) error {
	in, err := os.Open(source)
	if err != nil {
		return fileError(err, source)
	}
	defer in.Close()

	stat, err := in.Stat()
	if err != nil {
		return fileError(err, source)
	}

	out, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_EXCL, stat.Mode().Perm())
	if err != nil {
		return fileError(err, destination)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(destination)
		return fileError(err, destination)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(destination)
		return fileError(err, destination)
	}
	if err := os.Chtimes(destination, stat.ModTime(), stat.ModTime()); err != nil {
		return fileError(err, destination)
	}
	return nil
}

// moveFile renames, falling back to copy and delete across filesystems
func moveFile(source, destination string) error {
	err := os.Rename(source, destination)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fileError(err, source)
	}
	if err := copyFile(source, destination); err != nil {
		return err
	}
	if err := os.Remove(source); err != nil {
		return fileError(err, source)
	}
	return nil
}
