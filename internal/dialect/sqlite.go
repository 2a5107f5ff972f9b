package dialect

import (
	"database/sql"
	"time"
)

// SQLiteName is the configured backend name for SQLite
const SQLiteName = "sqlite"

type sqliteDialect struct{}

// SQLite returns the dialect for the embedded single-file backend.
// Dates are stored as epoch seconds and arrays are not available.
func SQLite() Dialect {
	return sqliteDialect{}
}

func (sqliteDialect) Name() string { return SQLiteName }

func (sqliteDialect) HasType(t Type) bool {
	switch t {
	case TypeBoolean, TypeID, TypeNumber, TypeText:
		return true
	default:
		return false
	}
}

func (sqliteDialect) Arrays() bool { return false }

func (sqliteDialect) Param(int) string { return "?" }

func (sqliteDialect) Rebind(query string) string { return query }

func (sqliteDialect) Identifier(name string) (string, error) {
	if err := validIdentifier(name); err != nil {
		return "", err
	}
	return quoteParts(name), nil
}

func (sqliteDialect) Literal(v any) string { return literal(v) }

func (sqliteDialect) Placeholder(name string) (string, error) {
	if err := validPlaceholder(name); err != nil {
		return "", err
	}
	return ":" + name, nil
}

func (sqliteDialect) Escape() string { return DefaultEscape }

// Args binds every value with sql.Named; the driver ignores names that the
// statement doesn't reference.
func (sqliteDialect) Args(values map[string]any) []any {
	args := make([]any, 0, len(values))
	for name, value := range values {
		args = append(args, sql.Named(name, value))
	}
	return args
}

func (sqliteDialect) TimeValue(t time.Time) any {
	return t.Unix()
}

// quoteParts double quotes each dotted part; the pattern check already
// guarantees parts are plain word characters.
func quoteParts(name string) string {
	out := make([]byte, 0, len(name)+4)
	out = append(out, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, '"', '.', '"')
			continue
		}
		out = append(out, name[i])
	}
	return string(append(out, '"'))
}
