// Package dialect captures the differences between the SQL backends PicPocket
// talks to: which column types are native, whether arrays can be bound,
// how identifiers, literals and placeholders are written, and the symbol used
// to escape LIKE patterns.
//
// SQL throughout the catalog is written once against Dialect. Statements with
// positional arguments are written with "?" and passed through Rebind;
// statements assembled from filters use named placeholders bound with Args.
package dialect

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/picpocket/picpocket/internal/errors"
)

// Type is the declared type of a catalog column
type Type string

const (
	TypeBoolean  Type = "boolean"
	TypeDateTime Type = "datetime"
	TypeID       Type = "id"
	TypeJSON     Type = "json"
	TypeNumber   Type = "number"
	TypeText     Type = "text"
)

// DefaultEscape is the LIKE escape symbol both backends use.
// It is unlikely to appear in tag names, so escaping stays rare.
const DefaultEscape = "#"

// Dialect renders SQL fragments for one backend
type Dialect interface {
	// Name is the backend name stored in configuration ("sqlite", "postgres")
	Name() string
	// HasType reports whether the backend stores t natively
	HasType(t Type) bool
	// Arrays reports whether list values can be bound as a single array parameter
	Arrays() bool

	// Param returns the n-th (1-based) positional placeholder
	Param(n int) string
	// Rebind rewrites "?" placeholders into the backend's positional syntax
	Rebind(query string) string

	// Identifier quotes a table or column name. Dotted names are quoted per part.
	Identifier(name string) (string, error)
	// Literal renders a value inline
	Literal(v any) string
	// Placeholder renders a named placeholder
	Placeholder(name string) (string, error)
	// Escape is the LIKE escape symbol, or "" when escaping is unsupported
	Escape() string

	// Args converts named values into driver arguments
	Args(values map[string]any) []any
	// TimeValue converts a timestamp into the stored representation
	TimeValue(t time.Time) any
}

var (
	identifierPattern  = regexp.MustCompile(`^(?:\w+(?:\.\w+)*)$`)
	placeholderPattern = regexp.MustCompile(`^\w+$`)
)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return errors.Newf("refusing to use identifier: %q", name).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validPlaceholder(name string) error {
	if !placeholderPattern.MatchString(name) {
		return errors.Newf("refusing to use placeholder: %q", name).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Format replaces each "{}" in template with the next part
func Format(template string, parts ...string) string {
	var b strings.Builder
	b.Grow(len(template))

	next := 0
	for {
		i := strings.Index(template, "{}")
		if i < 0 || next >= len(parts) {
			b.WriteString(template)
			return b.String()
		}
		b.WriteString(template[:i])
		b.WriteString(parts[next])
		next++
		template = template[i+2:]
	}
}

// Join joins already formatted fragments
func Join(sep string, parts []string) string {
	return strings.Join(parts, sep)
}

// EscapeLike neutralizes LIKE wildcards in text. The escape symbol itself is
// doubled first so that user text containing it survives.
func EscapeLike(text, symbol string) string {
	if symbol == "" {
		return text
	}
	return strings.NewReplacer(
		symbol, symbol+symbol,
		"%", symbol+"%",
		"_", symbol+"_",
	).Replace(text)
}

// literal renders values the same way for both backends
func literal(v any) string {
	switch value := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if value {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(value, "'", "''") + "'"
	case time.Time:
		return "'" + value.UTC().Format(time.RFC3339) + "'"
	default:
		return "NULL"
	}
}

// rebind rewrites each "?" with param(n)
func rebind(query string, param func(int) string) string {
	if !strings.Contains(query, "?") {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(param(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ByName returns the dialect for a backend name
func ByName(name string) (Dialect, error) {
	switch name {
	case SQLiteName:
		return SQLite(), nil
	case PostgresName:
		return Postgres(), nil
	default:
		return nil, errors.Newf("unknown backend: %q", name).
			Category(errors.CategoryConfiguration).
			Build()
	}
}
