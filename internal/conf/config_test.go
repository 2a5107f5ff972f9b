package conf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/imageinfo"
)

func TestDefaultSettings(t *testing.T) {
	settings := Default()

	assert.Equal(t, BackendSQLite, settings.Backend.Type)
	assert.Equal(t, DefaultSQLitePath, settings.Backend.SQLite.Path)
	assert.Equal(t, 5432, settings.Backend.Postgres.Port)
	assert.Equal(t, "picpocket", settings.Backend.Postgres.DBName)
	assert.Equal(t, imageinfo.DefaultFormats, settings.Files.Formats)
	assert.Equal(t, 24*time.Hour, settings.Web.SessionTTL)
	assert.True(t, settings.Version.Equal(buildinfo.Current))
	require.NoError(t, ValidateSettings(settings))
}

func TestCreateAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "config")

	settings := Default()
	settings.Files.Formats = []string{".jpg", ".png"}
	settings.Web.SessionTTL = time.Hour
	require.NoError(t, Create(dir, settings))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, loaded.Directory)
	assert.Equal(t, []string{".jpg", ".png"}, loaded.Files.Formats)
	assert.Equal(t, time.Hour, loaded.Web.SessionTTL)
	assert.Equal(t, DefaultCacheTTL, loaded.Web.CacheTTL)
	assert.Equal(t, filepath.Join(dir, DefaultSQLitePath), loaded.SQLitePath())
	assert.True(t, loaded.Version.Equal(buildinfo.Current))
}

func TestCreateRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Create(dir, Default()))

	err := Create(dir, Default())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConflict))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestPasswordOnlyStoredWhenAsked(t *testing.T) {
	for _, store := range []bool{false, true} {
		dir := t.TempDir()
		settings := Default()
		settings.Backend.Type = BackendPostgres
		settings.Backend.Postgres.Password = "hunter2"
		settings.Backend.Postgres.StorePassword = store
		require.NoError(t, Create(dir, settings))

		raw, err := os.ReadFile(filepath.Join(dir, FileName))
		require.NoError(t, err)
		assert.Equal(t, store, strings.Contains(string(raw), "hunter2"), "store=%v", store)

		info, err := os.Stat(filepath.Join(dir, FileName))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	settings := Default()
	settings.Backend.Type = BackendPostgres
	require.NoError(t, Create(dir, settings))

	t.Setenv("PICPOCKET_BACKEND_POSTGRES_PASSWORD", "from-env")
	t.Setenv("PICPOCKET_BACKEND_POSTGRES_HOST", "db.example")

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", loaded.Backend.Postgres.Password)
	assert.Equal(t, "db.example", loaded.Backend.Postgres.Host)
}

func TestSQLitePathAbsolute(t *testing.T) {
	settings := Default()
	settings.Directory = "/etc/picpocket"
	settings.Backend.SQLite.Path = "/var/lib/picpocket.db"
	assert.Equal(t, "/var/lib/picpocket.db", settings.SQLitePath())
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Settings)
		errMsg string
	}{
		{"unknown backend", func(s *Settings) { s.Backend.Type = "mysql" }, "unsupported backend"},
		{"empty sqlite path", func(s *Settings) { s.Backend.SQLite.Path = " " }, "backend.sqlite.path"},
		{"bad port", func(s *Settings) {
			s.Backend.Type = BackendPostgres
			s.Backend.Postgres.Port = 70000
		}, "backend.postgres.port"},
		{"missing host", func(s *Settings) {
			s.Backend.Type = BackendPostgres
			s.Backend.Postgres.Host = ""
		}, "backend.postgres.host"},
		{"format with separator", func(s *Settings) { s.Files.Formats = []string{"a/b"} }, "invalid file format"},
		{"bad listen", func(s *Settings) { s.Web.Listen = "nope" }, "web.listen"},
		{"zero session ttl", func(s *Settings) { s.Web.SessionTTL = 0 }, "web.sessionttl"},
		{"bad log level", func(s *Settings) { s.Logging.DefaultLevel = "loud" }, "unknown log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := Default()
			tt.modify(settings)

			err := ValidateSettings(settings)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

			var ve ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Len(t, ve.Errors, 1)
		})
	}
}
