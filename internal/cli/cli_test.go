package cli

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/conf"
	"github.com/picpocket/picpocket/internal/errors"
)

func categorized(category errors.ErrorCategory) error {
	return errors.Newf("boom").Category(category).Build()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain", fmt.Errorf("boom"), ExitFailure},
		{"validation", categorized(errors.CategoryValidation), ExitValidation},
		{"not found", categorized(errors.CategoryNotFound), ExitNotFound},
		{"conflict", categorized(errors.CategoryConflict), ExitConflict},
		{"file io", categorized(errors.CategoryFileIO), ExitFileIO},
		{"version", categorized(errors.CategoryVersion), ExitVersion},
		{"database", categorized(errors.CategoryDatabase), ExitFailure},
		{"wrapped", fmt.Errorf("outer: %w", categorized(errors.CategoryNotFound)), ExitNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestUsageError(t *testing.T) {
	require.NoError(t, UsageError(nil))

	err := UsageError(fmt.Errorf("accepts 1 arg(s), received 2"))
	assert.Equal(t, ExitValidation, ExitCode(err))
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestArgs(t *testing.T) {
	check := Args(cobra.ExactArgs(1))
	require.NoError(t, check(&cobra.Command{}, []string{"a"}))

	err := check(&cobra.Command{}, []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCode(err))
}

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"", "0", "-3", "abc", "1.5"} {
		_, err := ParseID(bad)
		require.Error(t, err, bad)
		assert.Equal(t, ExitValidation, ExitCode(err), bad)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		input string
		want  time.Time
	}{
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.Local)},
		{"2024-03-01 12:30:05", time.Date(2024, 3, 1, 12, 30, 5, 0, time.Local)},
		{"2024-03-01T12:30:05Z", time.Date(2024, 3, 1, 12, 30, 5, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := ParseTime(tt.input)
		require.NoError(t, err, tt.input)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.input, got)
	}

	_, err := ParseTime("yesterday")
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCode(err))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList([]string{"a,b", " c ", ",,"}))
	assert.Nil(t, SplitList(nil))
}

func TestPrint(t *testing.T) {
	type row struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	rows := []row{{"beach", 3}, {"mountains", 12}}
	text := func(w io.Writer) error {
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%d\n", r.Name, r.Count)
		}
		return nil
	}

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		c := &Context{Out: &out}
		require.NoError(t, c.Print(rows, text))
		assert.Equal(t, "beach      3\nmountains  12\n", out.String())
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		c := &Context{Out: &out, JSON: true}
		require.NoError(t, c.Print(rows, text))
		assert.JSONEq(t, `[{"name": "beach", "count": 3}, {"name": "mountains", "count": 12}]`, out.String())
	})

	t.Run("no text form", func(t *testing.T) {
		var out bytes.Buffer
		c := &Context{Out: &out}
		require.NoError(t, c.Print(map[string]int{"n": 1}, nil))
		assert.JSONEq(t, `{"n": 1}`, out.String())
	})
}

func TestPrintfSilentForJSON(t *testing.T) {
	var out bytes.Buffer
	c := &Context{Out: &out}
	c.Printf("added %d\n", 3)
	assert.Equal(t, "added 3\n", out.String())

	out.Reset()
	c.JSON = true
	c.Printf("added %d\n", 3)
	assert.Empty(t, out.String())
}

func TestDeref(t *testing.T) {
	s, empty := "ann", ""
	n := 4
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "-", Deref[string](nil))
	assert.Equal(t, "-", Deref(&empty))
	assert.Equal(t, "ann", Deref(&s))
	assert.Equal(t, "4", Deref(&n))
	assert.Equal(t, "2024-03-01 12:00:00", Deref(&at))
}

func TestReadLine(t *testing.T) {
	password, err := readLine(strings.NewReader("hunter2\r\nrest\n"))
	require.NoError(t, err)
	assert.Equal(t, "hunter2", password)

	_, err = readLine(strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestContextSettingsAndClose(t *testing.T) {
	dir := t.TempDir()
	c := &Context{ConfigDir: dir, Out: io.Discard}

	_, err := c.Settings()
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, ExitCode(err))

	settings := conf.Default()
	cat, err := c.Initialize(t.Context(), settings)
	require.NoError(t, err)

	again, err := c.Catalog(t.Context())
	require.NoError(t, err)
	assert.Same(t, cat, again)

	loaded, err := c.Settings()
	require.NoError(t, err)
	assert.Same(t, settings, loaded)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// a fresh context opens the store from the configuration file
	other := &Context{ConfigDir: dir, Out: io.Discard}
	reopened, err := other.Catalog(t.Context())
	require.NoError(t, err)
	assert.Equal(t, conf.BackendSQLite, reopened.Backend().Name())
	require.NoError(t, other.Close())
}
