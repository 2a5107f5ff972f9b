// Package buildinfo holds the versions PicPocket checks for compatibility:
// the code version embedded in snapshots and the schema version stamped
// into each database.
package buildinfo

import (
	"fmt"
)

// UnknownValue is reported for build metadata that was not injected
const UnknownValue = "unknown"

// Version is a semantic version with an optional label. Compatibility is
// exact equality; no field may differ.
type Version struct {
	Major int     `json:"major"`
	Minor int     `json:"minor"`
	Patch int     `json:"patch"`
	Label *string `json:"label"`
}

func label(s string) *string { return &s }

var (
	// Current is the version of this build of PicPocket
	Current = Version{Major: 0, Minor: 1, Patch: 0, Label: label("dev")}
	// SQLiteSchema is the schema version written by the SQLite backend
	SQLiteSchema = Version{Major: 0, Minor: 1, Patch: 0, Label: label("dev")}
	// PostgresSchema is the schema version written by the PostgreSQL backend
	PostgresSchema = Version{Major: 0, Minor: 1, Patch: 0, Label: label("dev")}
)

// String renders "major.minor.patch[-label]"
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Label != nil && *v.Label != "" {
		s += "-" + *v.Label
	}
	return s
}

// Equal reports whether every field matches, label included
func (v Version) Equal(other Version) bool {
	if v.Major != other.Major || v.Minor != other.Minor || v.Patch != other.Patch {
		return false
	}
	if v.Label == nil || other.Label == nil {
		return v.Label == nil && other.Label == nil
	}
	return *v.Label == *other.Label
}

// Context is build metadata injected at link time
type Context struct {
	Version   string
	BuildDate string
}

// GetVersion returns the build version, falling back to Current
func (c *Context) GetVersion() string {
	if c == nil || c.Version == "" {
		return Current.String()
	}
	return c.Version
}

// GetBuildDate returns the build date string
func (c *Context) GetBuildDate() string {
	if c == nil || c.BuildDate == "" {
		return UnknownValue
	}
	return c.BuildDate
}
