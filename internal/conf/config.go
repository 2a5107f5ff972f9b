// Package conf reads and writes the PicPocket configuration file: which
// backend holds the catalog, how to reach it, the default import formats and
// the web and logging settings.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
)

// FileName is the configuration file inside a configuration directory
const FileName = "picpocket.yaml"

// EnvPrefix prefixes environment variables that override file settings,
// e.g. PICPOCKET_BACKEND_POSTGRES_PASSWORD
const EnvPrefix = "PICPOCKET"

// Backend types
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Settings is the whole configuration file
type Settings struct {
	Version buildinfo.Version    `yaml:"version" mapstructure:"version"`
	Backend BackendSettings      `yaml:"backend" mapstructure:"backend"`
	Files   FilesSettings        `yaml:"files" mapstructure:"files"`
	Web     WebSettings          `yaml:"web" mapstructure:"web"`
	Logging logger.LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Directory the settings were loaded from. Not serialized.
	Directory string `yaml:"-" mapstructure:"-"`
}

// BackendSettings selects and configures the database
type BackendSettings struct {
	Type     string           `yaml:"type" mapstructure:"type"` // sqlite or postgres
	SQLite   SQLiteSettings   `yaml:"sqlite" mapstructure:"sqlite"`
	Postgres PostgresSettings `yaml:"postgres" mapstructure:"postgres"`
}

// SQLiteSettings locates the database file
type SQLiteSettings struct {
	Path string `yaml:"path" mapstructure:"path"` // relative to the configuration directory unless absolute
}

// PostgresSettings holds connection parameters for a PostgreSQL server
type PostgresSettings struct {
	Host          string `yaml:"host" mapstructure:"host"`
	Port          int    `yaml:"port" mapstructure:"port"`
	DBName        string `yaml:"dbname" mapstructure:"dbname"`
	User          string `yaml:"user" mapstructure:"user"`
	Password      string `yaml:"password,omitempty" mapstructure:"password"`
	StorePassword bool   `yaml:"storepassword" mapstructure:"storepassword"` // write the password to disk
	SSLMode       string `yaml:"sslmode,omitempty" mapstructure:"sslmode"`
}

// FilesSettings lists the extensions imported when a command names none
type FilesSettings struct {
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// WebSettings configures the HTTP server
type WebSettings struct {
	Listen     string        `yaml:"listen" mapstructure:"listen"`
	SessionTTL time.Duration `yaml:"sessionttl" mapstructure:"sessionttl"` // lifetime of new sessions
	CacheTTL   time.Duration `yaml:"cachettl" mapstructure:"cachettl"`     // how long session reads are cached
}

// MarshalYAML writes durations as "24h" rather than nanoseconds
func (w WebSettings) MarshalYAML() (any, error) {
	return struct {
		Listen     string `yaml:"listen"`
		SessionTTL string `yaml:"sessionttl"`
		CacheTTL   string `yaml:"cachettl"`
	}{w.Listen, w.SessionTTL.String(), w.CacheTTL.String()}, nil
}

// SQLitePath resolves the database file against the configuration directory
func (s *Settings) SQLitePath() string {
	path := s.Backend.SQLite.Path
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.Directory, path)
}

// DefaultDirectory is where the configuration lives when no directory is given
func DefaultDirectory() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Build()
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "picpocket"), nil
}

// Default returns settings with every default applied
func Default() *Settings {
	v := newViper()
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	settings.Version = buildinfo.Current
	return settings
}

// Load reads the configuration file in directory, layering PICPOCKET_*
// environment variables over it, and validates the result
func Load(directory string) (*Settings, error) {
	v := newViper()
	v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	v.SetConfigType("yaml")
	v.AddConfigPath(directory)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, errors.Newf("no configuration found in %s", directory).
				Component("conf").
				Category(errors.CategoryNotFound).
				Context("directory", directory).
				Build()
		}
		return nil, errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("directory", directory).
			Build()
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	settings.Directory = directory
	settings.Files.Formats = imageinfo.NormalizeFormats(settings.Files.Formats)

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// Create writes a new configuration file into directory. It refuses to
// replace an existing one.
func Create(directory string, settings *Settings) error {
	if err := ValidateSettings(settings); err != nil {
		return err
	}

	path := filepath.Join(directory, FileName)
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config already exists at %s", path).
			Component("conf").
			Category(errors.CategoryConflict).
			Context("path", path).
			Build()
	}
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("directory", directory).
			Build()
	}

	settings.Directory = directory
	return Save(path, settings)
}

// Save writes settings to path through a temporary file and rename. The
// PostgreSQL password is only written when StorePassword is set.
func Save(path string, settings *Settings) error {
	out := *settings
	if !out.Backend.Postgres.StorePassword {
		out.Backend.Postgres.Password = ""
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return errors.New(fmt.Errorf("error marshaling settings to YAML: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	temp, err := os.CreateTemp(filepath.Dir(path), "picpocket-*.yaml")
	if err != nil {
		return fileError(err, path)
	}
	tempName := temp.Name()
	defer os.Remove(tempName)

	if _, err := temp.Write(data); err != nil {
		temp.Close()
		return fileError(err, tempName)
	}
	if err := temp.Close(); err != nil {
		return fileError(err, tempName)
	}
	// the file may hold a password
	if err := os.Chmod(tempName, 0o600); err != nil {
		return fileError(err, tempName)
	}
	if err := os.Rename(tempName, path); err != nil {
		return fileError(err, path)
	}
	return nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("conf").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// newViper returns an isolated viper instance with defaults and environment
// overrides bound
func newViper() *viper.Viper {
	v := viper.New()
	setDefaultConfig(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}
