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

// LocationSpec describes a new location
type LocationSpec struct {
	Name        string
	Path        string // optional
	Description string // optional
	Source      bool
	Destination bool
	Removable   bool
}

// LocationEdit changes a location. Zero values leave fields alone.
type LocationEdit struct {
	Path        Optional[string]
	Description Optional[string]
	Source      *bool
	Destination *bool
	Removable   *bool
}

const locationSelect = `SELECT id, name, description, path, source, destination, removable FROM locations`

// AddLocation stores a new location and returns its id
func (c *Catalog) AddLocation(ctx context.Context, spec LocationSpec) (int64, error) {
	var id int64
	err := c.tx(ctx, metrics.OpAddLocation, func(tx *sql.Tx) error {
		var err error
		id, err = c.addLocation(ctx, tx, spec)
		return err
	})
	return id, err
}

func (c *Catalog) addLocation(ctx context.Context, tx *sql.Tx, spec LocationSpec) (int64, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return 0, invalidInput("a location needs a name")
	}
	if !spec.Source && !spec.Destination {
		return 0, invalidInput("a location must be a source, destination, or both")
	}
	if spec.Path == "" && !spec.Removable {
		return 0, invalidInput("non-removable storage must have a supplied path")
	}

	var path, description any
	if spec.Path != "" {
		absolute, err := directory(spec.Path)
		if err != nil {
			return 0, err
		}
		path = absolute
	}
	if spec.Description != "" {
		description = spec.Description
	}

	exists, err := c.locationExists(ctx, tx, spec.Name)
	if err != nil {
		return 0, dbError(err, "add_location")
	}
	if exists {
		return 0, conflict("a location named %q already exists", spec.Name)
	}

	var id int64
	err = tx.QueryRowContext(ctx, c.q(`INSERT INTO locations
		(name, description, path, source, destination, removable)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		spec.Name, description, path, spec.Source, spec.Destination, spec.Removable,
	).Scan(&id)
	if err != nil {
		return 0, dbError(err, "add_location")
	}

	c.log.Info("added location", logger.Int64("id", id), logger.String("name", spec.Name))
	return id, nil
}

func (c *Catalog) locationExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, c.q("SELECT COUNT(*) FROM locations WHERE name = ?"), name).Scan(&n)
	return n > 0, err
}

// directory returns the absolute form of path, which must be an existing directory
func directory(path string) (string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return "", fileError(err, path)
	}
	info, err := os.Stat(absolute)
	if err != nil || !info.IsDir() {
		return "", invalidPath(absolute, "supplied path (%s) is not a directory", absolute)
	}
	return absolute, nil
}

// EditLocation updates a location. newName is ignored when empty.
func (c *Catalog) EditLocation(ctx context.Context, ref Ref, newName string, edit LocationEdit) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if newName != "" {
		add("name", newName)
	}
	if edit.Path.Supplied() {
		var value any
		if path, ok := edit.Path.Value(); ok && path != "" {
			absolute, err := directory(path)
			if err != nil {
				return err
			}
			value = absolute
		}
		add("path", value)
	}
	if edit.Description.Supplied() {
		add("description", edit.Description.arg())
	}
	for column, flag := range map[string]*bool{
		"source":      edit.Source,
		"destination": edit.Destination,
		"removable":   edit.Removable,
	} {
		if flag != nil {
			add(column, *flag)
		}
	}

	if len(sets) == 0 {
		return invalidInput("no edits made to location %s", ref)
	}

	return c.tx(ctx, metrics.OpEditLocation, func(tx *sql.Tx) error {
		location, err := c.expectLocation(ctx, tx, ref)
		if err != nil {
			return err
		}

		source, destination := location.Source, location.Destination
		if edit.Source != nil {
			source = *edit.Source
		}
		if edit.Destination != nil {
			destination = *edit.Destination
		}
		if !source && !destination {
			return invalidInput("a location must be a source, destination, or both")
		}

		if newName != "" && newName != location.Name {
			exists, err := c.locationExists(ctx, tx, newName)
			if err != nil {
				return dbError(err, "edit_location")
			}
			if exists {
				return conflict("a location named %q already exists", newName)
			}
		}

		query := "UPDATE locations SET " + strings.Join(sets, ", ") + " WHERE id = ?"
		if _, err := tx.ExecContext(ctx, c.q(query), append(args, location.ID)...); err != nil {
			return dbError(err, "edit_location")
		}

		removable, path := location.Removable, location.Path
		if edit.Removable != nil {
			removable = *edit.Removable
		}
		if edit.Path.Supplied() {
			path = nil
			if p, ok := edit.Path.Value(); ok && p != "" {
				path = &p
			}
		}
		if !removable && path == nil {
			return invalidInput("non-removable storage must have a supplied path")
		}
		return nil
	})
}

// RemoveLocation deletes a location. A location with images is only removed
// when force is set, taking its image records (never files) with it.
func (c *Catalog) RemoveLocation(ctx context.Context, ref Ref, force bool) (bool, error) {
	removed := false
	err := c.tx(ctx, metrics.OpRemoveLocation, func(tx *sql.Tx) error {
		location, err := c.expectLocation(ctx, tx, ref)
		if err != nil {
			return err
		}

		var images int64
		err = tx.QueryRowContext(ctx, c.q("SELECT COUNT(id) FROM images WHERE location = ?"), location.ID).Scan(&images)
		if err != nil {
			return dbError(err, "remove_location")
		}
		if images > 0 {
			if !force {
				return conflict("cannot delete location %s: %d images are associated with it", ref, images)
			}
			c.log.Warn("deleting image records with location",
				logger.String("location", location.Name),
				logger.Int64("images", images))
			if _, err := tx.ExecContext(ctx, c.q("DELETE FROM images WHERE location = ?"), location.ID); err != nil {
				return dbError(err, "remove_location")
			}
		}

		result, err := tx.ExecContext(ctx, c.q("DELETE FROM locations WHERE id = ?"), location.ID)
		if err != nil {
			return dbError(err, "remove_location")
		}
		n, _ := result.RowsAffected()
		removed = n > 0
		if removed {
			c.clearMount(location.ID)
		}
		return nil
	})
	return removed, err
}

// GetLocation returns the location or nil when there is none
func (c *Catalog) GetLocation(ctx context.Context, ref Ref) (*Location, error) {
	var location *Location
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var err error
		location, err = c.getLocation(ctx, tx, ref)
		return err
	})
	return location, err
}

// ExpectLocation returns the location or a not-found error
func (c *Catalog) ExpectLocation(ctx context.Context, ref Ref) (*Location, error) {
	var location *Location
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var err error
		location, err = c.expectLocation(ctx, tx, ref)
		return err
	})
	return location, err
}

func (c *Catalog) getLocation(ctx context.Context, tx *sql.Tx, ref Ref) (*Location, error) {
	column, value := "name", any(ref.name)
	if ref.byID {
		column, value = "id", ref.id
	}

	row := tx.QueryRowContext(ctx, c.q(locationSelect+" WHERE "+column+" = ?"), value)
	location, err := c.scanLocation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError(err, "get_location")
	}
	return location, nil
}

func (c *Catalog) expectLocation(ctx context.Context, tx *sql.Tx, ref Ref) (*Location, error) {
	location, err := c.getLocation(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, notFound("location", ref.String())
	}
	return location, nil
}

// ListLocations returns every location ordered by id
func (c *Catalog) ListLocations(ctx context.Context) ([]*Location, error) {
	var locations []*Location
	err := c.tx(ctx, "", func(tx *sql.Tx) error {
		var err error
		locations, err = c.listLocations(ctx, tx)
		return err
	})
	return locations, err
}

func (c *Catalog) listLocations(ctx context.Context, tx *sql.Tx) ([]*Location, error) {
	rows, err := tx.QueryContext(ctx, locationSelect+" ORDER BY id")
	if err != nil {
		return nil, dbError(err, "list_locations")
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		location, err := c.scanLocation(rows)
		if err != nil {
			return nil, dbError(err, "list_locations")
		}
		locations = append(locations, location)
	}
	return locations, dbError(rows.Err(), "list_locations")
}

func (c *Catalog) scanLocation(row rowScanner) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Description, &l.Path, &l.Source, &l.Destination, &l.Removable)
	if err != nil {
		return nil, err
	}
	if mount, ok := c.mountPoint(l.ID); ok {
		l.MountPoint = &mount
	}
	return &l, nil
}

// Mount attaches a location to a directory for the life of this catalog,
// replacing any earlier mount
func (c *Catalog) Mount(ctx context.Context, ref Ref, path string) error {
	location, err := c.ExpectLocation(ctx, ref)
	if err != nil {
		return err
	}
	absolute, err := directory(path)
	if err != nil {
		return err
	}
	c.setMount(location.ID, absolute)
	c.log.Debug("mounted location", logger.String("location", location.Name), logger.String("path", absolute))
	return nil
}

// Unmount detaches a location. Unmounting a location that is not mounted does nothing.
func (c *Catalog) Unmount(ctx context.Context, ref Ref) error {
	location, err := c.ExpectLocation(ctx, ref)
	if err != nil {
		return err
	}
	c.clearMount(location.ID)
	return nil
}

// root resolves where a location currently lives: its mount point, then its
// stored path
func (c *Catalog) root(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	if mount, ok := c.mountPoint(id); ok {
		return mount, nil
	}
	location, err := c.expectLocation(ctx, tx, ByID(id))
	if err != nil {
		return "", err
	}
	root, ok := location.Root()
	if !ok {
		return "", invalidPath("", "location %s is not mounted and has no path", location.Name)
	}
	return root, nil
}

// reachableRoot is root plus a check that the directory exists
func (c *Catalog) reachableRoot(ctx context.Context, tx *sql.Tx, id int64) (string, error) {
	root, err := c.root(ctx, tx, id)
	if err != nil {
		return "", err
	}
	if !isDir(root) {
		return "", invalidPath(root, "location %d not mounted at %s", id, root)
	}
	return root, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
