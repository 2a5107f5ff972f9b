package dialect

import (
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// PostgresName is the configured backend name for PostgreSQL
const PostgresName = "postgres"

type postgresDialect struct{}

// Postgres returns the dialect for the client/server backend. Every column
// type is native and list values bind as arrays.
func Postgres() Dialect {
	return postgresDialect{}
}

func (postgresDialect) Name() string { return PostgresName }

func (postgresDialect) HasType(Type) bool { return true }

func (postgresDialect) Arrays() bool { return true }

func (postgresDialect) Param(n int) string { return "$" + strconv.Itoa(n) }

func (d postgresDialect) Rebind(query string) string { return rebind(query, d.Param) }

func (postgresDialect) Identifier(name string) (string, error) {
	if err := validIdentifier(name); err != nil {
		return "", err
	}
	return pgx.Identifier(strings.Split(name, ".")).Sanitize(), nil
}

func (postgresDialect) Literal(v any) string { return literal(v) }

func (postgresDialect) Placeholder(name string) (string, error) {
	if err := validPlaceholder(name); err != nil {
		return "", err
	}
	return "@" + name, nil
}

func (postgresDialect) Escape() string { return DefaultEscape }

// Args passes the values as one pgx.NamedArgs, which pgx rewrites into
// positional parameters at execution time.
func (postgresDialect) Args(values map[string]any) []any {
	named := make(pgx.NamedArgs, len(values))
	for name, value := range values {
		named[name] = value
	}
	return []any{named}
}

func (postgresDialect) TimeValue(t time.Time) any {
	return t.UTC()
}
