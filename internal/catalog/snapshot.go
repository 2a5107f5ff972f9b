package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/filter"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// Snapshot is the portable form of a catalog. Only what can't be derived
// from the image files themselves is kept. Fields are in key order so the
// encoding is stable.
type Snapshot struct {
	Locations map[string]*SnapshotLocation `json:"locations"`
	Tags      map[string]string            `json:"tags"`
	Tasks     map[string]*SnapshotTask     `json:"tasks"`
	Version   buildinfo.Version            `json:"version"`
}

// SnapshotLocation is a location and the images stored in it
type SnapshotLocation struct {
	Description *string          `json:"description"`
	Destination bool             `json:"destination"`
	Images      []*SnapshotImage `json:"images"`
	Path        *string          `json:"path"`
	Removable   bool             `json:"removable"`
	Source      bool             `json:"source"`
}

// SnapshotImage holds an image's user fields, keyed by its path in the location
type SnapshotImage struct {
	Alt     *string  `json:"alt"`
	Caption *string  `json:"caption"`
	Creator *string  `json:"creator"`
	Path    string   `json:"path"`
	Rating  *int64   `json:"rating"`
	Tags    []string `json:"tags"`
	Title   *string  `json:"title"`
}

// SnapshotTask names its locations rather than using ids
type SnapshotTask struct {
	Configuration TaskConfiguration `json:"configuration"`
	Description   *string           `json:"description"`
	Destination   string            `json:"destination"`
	Source        string            `json:"source"`
}

// ExportFile writes a snapshot to path
func (c *Catalog) ExportFile(ctx context.Context, path string, locations []Ref) error {
	f, err := os.Create(path)
	if err != nil {
		return fileError(err, path)
	}
	if err := c.ExportData(ctx, f, locations); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fileError(err, path)
	}
	return nil
}

// ExportData writes a snapshot of the catalog, or of only the given
// locations. Tasks are kept only when both their locations are exported.
func (c *Catalog) ExportData(ctx context.Context, w io.Writer, locations []Ref) error {
	start := time.Now()
	snapshot, err := c.snapshot(ctx, locations)
	if err == nil {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if encodeErr := encoder.Encode(snapshot); encodeErr != nil {
			err = fileError(encodeErr, "snapshot")
		}
	}
	c.metrics.RecordOperation(metrics.OpExportData, time.Since(start), err)
	return err
}

func (c *Catalog) snapshot(ctx context.Context, refs []Ref) (*Snapshot, error) {
	snapshot := &Snapshot{
		Locations: map[string]*SnapshotLocation{},
		Tags:      map[string]string{},
		Tasks:     map[string]*SnapshotTask{},
		Version:   buildinfo.Current,
	}

	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var ids []int64
		for _, ref := range refs {
			location, err := c.expectLocation(ctx, tx, ref)
			if err != nil {
				return err
			}
			ids = append(ids, location.ID)
		}

		tagNames := map[int64]string{}
		rows, err := tx.QueryContext(ctx, "SELECT id, name, description FROM tags")
		if err != nil {
			return dbError(err, "export_data")
		}
		for rows.Next() {
			var (
				id          int64
				name        string
				description *string
			)
			if err := rows.Scan(&id, &name, &description); err != nil {
				rows.Close()
				return dbError(err, "export_data")
			}
			tag := deserializeTag(name)
			tagNames[id] = tag
			if description != nil && *description != "" {
				snapshot.Tags[tag] = *description
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError(err, "export_data")
		}

		values := map[string]any{}
		var where string
		if len(ids) > 0 {
			if where, err = c.buildFilter(LocationColumns, filter.Number{Column: "id", Comparator: filter.Equals, Value: ids}, values); err != nil {
				return err
			}
		}
		rows, err = tx.QueryContext(ctx, locationSelect+where+" ORDER BY id", c.dialect.Args(values)...)
		if err != nil {
			return dbError(err, "export_data")
		}
		var exported []*Location
		for rows.Next() {
			location, err := c.scanLocation(rows)
			if err != nil {
				rows.Close()
				return dbError(err, "export_data")
			}
			exported = append(exported, location)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return dbError(err, "export_data")
		}

		names := map[int64]string{}
		for _, location := range exported {
			names[location.ID] = location.Name
			images, err := c.snapshotImages(ctx, tx, location.ID, tagNames)
			if err != nil {
				return err
			}
			snapshot.Locations[location.Name] = &SnapshotLocation{
				Description: location.Description,
				Path:        location.Path,
				Source:      location.Source,
				Destination: location.Destination,
				Removable:   location.Removable,
				Images:      images,
			}
		}

		rows, err = tx.QueryContext(ctx, taskSelect)
		if err != nil {
			return dbError(err, "export_data")
		}
		defer rows.Close()
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return dbError(err, "export_data")
			}
			source, sourceOK := names[task.Source]
			destination, destinationOK := names[task.Destination]
			if !sourceOK || !destinationOK {
				continue
			}
			snapshot.Tasks[task.Name] = &SnapshotTask{
				Description:   task.Description,
				Source:        source,
				Destination:   destination,
				Configuration: task.Configuration,
			}
		}
		return dbError(rows.Err(), "export_data")
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (c *Catalog) snapshotImages(ctx context.Context, tx *sql.Tx, location int64, tagNames map[int64]string) ([]*SnapshotImage, error) {
	rows, err := tx.QueryContext(ctx, c.q(`SELECT id, path, creator, title, caption, alt, rating
		FROM images WHERE location = ? ORDER BY path`), location)
	if err != nil {
		return nil, dbError(err, "export_data")
	}
	images := []*SnapshotImage{}
	byID := map[int64]*SnapshotImage{}
	for rows.Next() {
		var (
			id  int64
			img SnapshotImage
		)
		if err := rows.Scan(&id, &img.Path, &img.Creator, &img.Title, &img.Caption, &img.Alt, &img.Rating); err != nil {
			rows.Close()
			return nil, dbError(err, "export_data")
		}
		img.Tags = []string{}
		images = append(images, &img)
		byID[id] = &img
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, dbError(err, "export_data")
	}

	rows, err = tx.QueryContext(ctx, c.q(`SELECT image_tags.image, image_tags.tag
		FROM image_tags JOIN images ON images.id = image_tags.image
		WHERE images.location = ?`), location)
	if err != nil {
		return nil, dbError(err, "export_data")
	}
	defer rows.Close()
	for rows.Next() {
		var image, tag int64
		if err := rows.Scan(&image, &tag); err != nil {
			return nil, dbError(err, "export_data")
		}
		if img, ok := byID[image]; ok {
			img.Tags = append(img.Tags, tagNames[tag])
		}
	}
	for _, img := range images {
		slices.Sort(img.Tags)
	}
	return images, dbError(rows.Err(), "export_data")
}

// ImportFile loads a snapshot from path
func (c *Catalog) ImportFile(ctx context.Context, path string, locations map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return fileError(err, path)
	}
	defer f.Close()
	return c.ImportData(ctx, f, locations)
}

// ImportData loads a snapshot written by the same version of PicPocket.
// A non-empty locations map restricts the import to the named locations;
// a non-empty path in it says where that location is mounted for the
// duration of the import.
func (c *Catalog) ImportData(ctx context.Context, r io.Reader, locations map[string]string) error {
	start := time.Now()
	err := c.importData(ctx, r, locations)
	c.metrics.RecordOperation(metrics.OpImportData, time.Since(start), err)
	return err
}

func (c *Catalog) importData(ctx context.Context, r io.Reader, locations map[string]string) error {
	var snapshot Snapshot
	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return invalidInput("unreadable snapshot: %v", err)
	}
	if !snapshot.Version.Equal(buildinfo.Current) {
		return versionMismatch("incompatible versions: snapshot is %s, PicPocket is %s",
			snapshot.Version, buildinfo.Current)
	}

	tagIDs := map[string]int64{}
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		for _, name := range sortedKeys(snapshot.Tags) {
			id, err := c.addTag(ctx, tx, name, Set(snapshot.Tags[name]))
			if err != nil {
				return err
			}
			tagIDs[name] = id
		}
		return nil
	})
	if err != nil {
		return err
	}

	included := func(name string) bool {
		if len(locations) == 0 {
			return true
		}
		_, ok := locations[name]
		return ok
	}

	imported := 0
	for _, name := range sortedKeys(snapshot.Locations) {
		if !included(name) {
			c.log.Info("skipping location", logger.String("location", name))
			continue
		}
		count, err := c.importSnapshotLocation(ctx, name, snapshot.Locations[name], locations[name], tagIDs)
		if err != nil {
			return err
		}
		imported += count
	}
	c.metrics.RecordImported(metrics.SourceSnapshot, imported)

	for _, name := range sortedKeys(snapshot.Tasks) {
		task := snapshot.Tasks[name]
		if !included(task.Source) || !included(task.Destination) {
			c.log.Info("skipping task, its locations were skipped", logger.String("task", name))
			continue
		}
		err := c.tx(ctx, "", func(tx *sql.Tx) error {
			return c.addTask(ctx, tx, TaskSpec{
				Name:          name,
				Source:        ByName(task.Source),
				Destination:   ByName(task.Destination),
				Description:   task.Description,
				Configuration: task.Configuration,
			}, false)
		})
		if err != nil {
			c.log.Warn("failed to import task", logger.String("task", name), logger.Error(err))
		}
	}
	return nil
}

func (c *Catalog) importSnapshotLocation(ctx context.Context, name string, info *SnapshotLocation, mount string, tagIDs map[string]int64) (int, error) {
	c.log.Info("importing location", logger.String("location", name))

	count := 0
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		existing, err := c.getLocation(ctx, tx, ByName(name))
		if err != nil {
			return err
		}

		var (
			id   int64
			root *string
		)
		if existing != nil {
			switch {
			case existing.Path == nil && info.Path != nil:
				return conflict("location %s doesn't match existing version: no path != %s", name, *info.Path)
			case existing.Path != nil && info.Path == nil && *existing.Path != mount:
				return conflict("location %s doesn't match existing version: imported version has no path", name)
			case existing.Path != nil && info.Path != nil && filepath.Clean(*existing.Path) != filepath.Clean(*info.Path):
				return conflict("location %s doesn't match existing version: %s != %s", name, *existing.Path, *info.Path)
			}
			id, root = existing.ID, existing.Path
		} else {
			spec := LocationSpec{
				Name:        name,
				Source:      info.Source,
				Destination: info.Destination,
				Removable:   info.Removable,
			}
			if info.Path != nil {
				spec.Path = *info.Path
			}
			if info.Description != nil {
				spec.Description = *info.Description
			}
			if id, err = c.addLocation(ctx, tx, spec); err != nil {
				return err
			}
			root = info.Path
		}

		if mount != "" {
			previous, wasMounted := c.mountPoint(id)
			c.setMount(id, mount)
			defer func() {
				if wasMounted {
					c.setMount(id, previous)
				} else {
					c.clearMount(id)
				}
			}()
			root = &mount
		} else if root == nil {
			c.log.Info("skipping location, path not known", logger.String("location", name))
			return nil
		}

		for _, img := range info.Images {
			tags := make([]int64, 0, len(img.Tags))
			for _, tag := range img.Tags {
				tagID, ok := tagIDs[tag]
				if !ok {
					if tagID, err = c.addTag(ctx, tx, tag, Unset[string]()); err != nil {
						return err
					}
					tagIDs[tag] = tagID
				}
				tags = append(tags, tagID)
			}

			_, _, err := c.importImage(ctx, tx, importSpec{
				location: id,
				root:     *root,
				path:     filepath.Join(*root, filepath.FromSlash(img.Path)),
				fields: ImageFields{
					Creator: img.Creator,
					Title:   img.Title,
					Caption: img.Caption,
					Alt:     img.Alt,
					Rating:  img.Rating,
				},
				tags: tags,
			})
			if errors.IsCategory(err, errors.CategoryDatabase) {
				return err
			}
			if err != nil {
				c.log.Warn("skipping image", logger.String("location", name),
					logger.String("path", img.Path), logger.Error(err))
				continue
			}
			count++
		}
		return nil
	})
	return count, err
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
