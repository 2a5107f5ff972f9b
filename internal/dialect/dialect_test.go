package dialect

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/errors"
)

func TestFormatReplacesInOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `"a" = :b`, Format("{} = {}", `"a"`, ":b"))
	assert.Equal(t, "NOT (x)", Format("NOT ({})", "x"))
	// extra placeholders are left alone when parts run out
	assert.Equal(t, "x {}", Format("{} {}", "x"))
	assert.Equal(t, "a, b", Join(", ", []string{"a", "b"}))
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		text, symbol, want string
	}{
		{"plain", "#", "plain"},
		{"50%", "#", "50#%"},
		{"a_b", "#", "a#_b"},
		{"#tag", "#", "##tag"},
		{"#%_", "#", "###%#_"},
		{"50%", "", "50%"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, EscapeLike(tc.text, tc.symbol), "escaping %q", tc.text)
	}
}

func TestSQLiteRendering(t *testing.T) {
	t.Parallel()
	d := SQLite()

	ident, err := d.Identifier("images.rating")
	require.NoError(t, err)
	assert.Equal(t, `"images"."rating"`, ident)

	ident, err = d.Identifier("rating")
	require.NoError(t, err)
	assert.Equal(t, `"rating"`, ident)

	_, err = d.Identifier(`rating"; DROP TABLE images; --`)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	placeholder, err := d.Placeholder("rating1")
	require.NoError(t, err)
	assert.Equal(t, ":rating1", placeholder)

	_, err = d.Placeholder("bad name")
	require.Error(t, err)

	assert.Equal(t, "SELECT ? FROM t WHERE a = ?", d.Rebind("SELECT ? FROM t WHERE a = ?"))
	assert.False(t, d.Arrays())
	assert.False(t, d.HasType(TypeDateTime))
	assert.True(t, d.HasType(TypeID))
	assert.Equal(t, "#", d.Escape())
}

func TestSQLiteArgsAreNamed(t *testing.T) {
	t.Parallel()

	args := SQLite().Args(map[string]any{"rating": 3})
	require.Len(t, args, 1)
	assert.Equal(t, sql.Named("rating", 3), args[0])

	when := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, when.Unix(), SQLite().TimeValue(when))
}

func TestPostgresRendering(t *testing.T) {
	t.Parallel()
	d := Postgres()

	ident, err := d.Identifier("images.rating")
	require.NoError(t, err)
	assert.Equal(t, `"images"."rating"`, ident)

	placeholder, err := d.Placeholder("rating")
	require.NoError(t, err)
	assert.Equal(t, "@rating", placeholder)

	assert.Equal(t, "UPDATE t SET a = $1 WHERE b = $2", d.Rebind("UPDATE t SET a = ? WHERE b = ?"))
	assert.True(t, d.Arrays())
	assert.True(t, d.HasType(TypeDateTime))
	assert.True(t, d.HasType(TypeJSON))

	args := d.Args(map[string]any{"id": []int64{1, 2}})
	require.Len(t, args, 1)
	assert.Equal(t, pgx.NamedArgs{"id": []int64{1, 2}}, args[0])

	when := time.Date(2023, 5, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	assert.Equal(t, when.UTC(), d.TimeValue(when))
}

func TestLiterals(t *testing.T) {
	t.Parallel()
	d := SQLite()

	assert.Equal(t, "NULL", d.Literal(nil))
	assert.Equal(t, "TRUE", d.Literal(true))
	assert.Equal(t, "FALSE", d.Literal(false))
	assert.Equal(t, "42", d.Literal(42))
	assert.Equal(t, "1.5", d.Literal(1.5))
	assert.Equal(t, "'#'", d.Literal("#"))
	assert.Equal(t, "'it''s'", Postgres().Literal("it's"))
}

func TestByName(t *testing.T) {
	t.Parallel()

	d, err := ByName("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLiteName, d.Name())

	d, err = ByName("postgres")
	require.NoError(t, err)
	assert.Equal(t, PostgresName, d.Name())

	_, err = ByName("mysql")
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
