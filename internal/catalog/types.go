package catalog

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/picpocket/picpocket/internal/dialect"
)

// Ref names a location either by id or by name
type Ref struct {
	id   int64
	name string
	byID bool
}

// ByID refers to a location by id
func ByID(id int64) Ref { return Ref{id: id, byID: true} }

// ByName refers to a location by name
func ByName(name string) Ref { return Ref{name: name} }

// ParseRef treats an all-digit string as an id and anything else as a name
func ParseRef(s string) Ref {
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ByID(id)
	}
	return ByName(s)
}

// ID returns the id of a by-id reference
func (r Ref) ID() (int64, bool) { return r.id, r.byID }

func (r Ref) String() string {
	if r.byID {
		return strconv.FormatInt(r.id, 10)
	}
	return r.name
}

// Location is a filesystem root images are read from or copied to
type Location struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Path        *string `json:"path"`
	Source      bool    `json:"source"`
	Destination bool    `json:"destination"`
	Removable   bool    `json:"removable"`
	MountPoint  *string `json:"mount_point"`
}

// Root is the mount point if mounted, else the stored path
func (l *Location) Root() (string, bool) {
	if l.MountPoint != nil {
		return *l.MountPoint, true
	}
	if l.Path != nil {
		return *l.Path, true
	}
	return "", false
}

// Image is one file in one location
type Image struct {
	ID       int64   `json:"id"`
	Location int64   `json:"location"`
	Path     string  `json:"path"`
	FullPath *string `json:"full_path"`

	Creator *string `json:"creator"`
	Title   *string `json:"title"`
	Caption *string `json:"caption"`
	Alt     *string `json:"alt"`
	Rating  *int64  `json:"rating"`

	Hash         *string        `json:"hash"`
	Width        *int64         `json:"width"`
	Height       *int64         `json:"height"`
	CreationDate *time.Time     `json:"creation_date"`
	LastModified *time.Time     `json:"last_modified"`
	Exif         map[string]any `json:"exif"`

	// Tags is nil unless requested
	Tags []string `json:"tags"`
}

// ImageFields are the user-editable fields set when an image is added
type ImageFields struct {
	Creator *string
	Title   *string
	Caption *string
	Alt     *string
	Rating  *int64
}

// Tag is a tag with the names of its immediate children
type Tag struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Children    []string `json:"children"`
}

// TagNode is one level of the tag tree returned by AllTags
type TagNode struct {
	Description *string             `json:"description"`
	Children    map[string]*TagNode `json:"children"`
}

// TaskConfiguration is the stored definition of what a task copies
type TaskConfiguration struct {
	Creator string   `json:"creator,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	// Source is a path pattern below the source location
	Source string `json:"source,omitempty"`
	// Destination is a format for the copied file's path
	Destination string   `json:"destination,omitempty"`
	Formats     []string `json:"formats,omitempty"`
}

// Task copies new images from one location to another
type Task struct {
	Name          string            `json:"name"`
	Source        int64             `json:"source"`
	Destination   int64             `json:"destination"`
	Description   *string           `json:"description"`
	Configuration TaskConfiguration `json:"configuration"`
	LastRan       *time.Time        `json:"last_ran"`
}

// Column types of the filterable tables
var (
	ImageColumns = map[string]dialect.Type{
		"id":            dialect.TypeID,
		"name":          dialect.TypeText,
		"extension":     dialect.TypeText,
		"width":         dialect.TypeNumber,
		"height":        dialect.TypeNumber,
		"creator":       dialect.TypeText,
		"location":      dialect.TypeID,
		"path":          dialect.TypeText,
		"title":         dialect.TypeText,
		"caption":       dialect.TypeText,
		"alt":           dialect.TypeText,
		"rating":        dialect.TypeNumber,
		"hash":          dialect.TypeText,
		"creation_date": dialect.TypeDateTime,
		"last_modified": dialect.TypeDateTime,
		"exif":          dialect.TypeJSON,
	}

	LocationColumns = map[string]dialect.Type{
		"id":          dialect.TypeID,
		"name":        dialect.TypeText,
		"description": dialect.TypeText,
		"path":        dialect.TypeText,
		"source":      dialect.TypeBoolean,
		"destination": dialect.TypeBoolean,
		"removable":   dialect.TypeBoolean,
	}
)

// dbTime scans a date stored either natively or as epoch seconds
type dbTime struct {
	time *time.Time
}

func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.time = nil
	case int64:
		t := time.Unix(v, 0).UTC()
		d.time = &t
	case float64:
		t := time.Unix(int64(v), 0).UTC()
		d.time = &t
	case time.Time:
		t := v.UTC()
		d.time = &t
	default:
		return fmt.Errorf("unsupported date value %T", src)
	}
	return nil
}

// timeArg converts t for the backend's date columns
func (c *Catalog) timeArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return c.dialect.TimeValue(t.Truncate(time.Second))
}

// jsonArg encodes v for a JSON column
func jsonArg(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

const imageSelect = `SELECT id, location, path, creator, title, caption, alt, rating,
width, height, hash, creation_date, last_modified, exif FROM images`

func scanImage(row rowScanner) (*Image, error) {
	var (
		img               Image
		created, modified dbTime
		exif              []byte
	)
	err := row.Scan(&img.ID, &img.Location, &img.Path,
		&img.Creator, &img.Title, &img.Caption, &img.Alt, &img.Rating,
		&img.Width, &img.Height, &img.Hash, &created, &modified, &exif)
	if err != nil {
		return nil, err
	}
	img.CreationDate, img.LastModified = created.time, modified.time
	if len(exif) > 0 {
		if err := json.Unmarshal(exif, &img.Exif); err != nil {
			return nil, err
		}
	}
	return &img, nil
}

// withRoot fills FullPath
func (img *Image) withRoot(root string, ok bool) {
	if ok {
		full := filepath.Join(root, filepath.FromSlash(img.Path))
		img.FullPath = &full
	}
}
