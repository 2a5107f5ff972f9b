// Package cli holds what the picpocket commands share: the configuration
// directory, a lazily opened catalog, logging and output.
package cli

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/conf"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability"
)

// Context is handed to every command
type Context struct {
	// ConfigDir holds picpocket.yaml; empty means conf.DefaultDirectory
	ConfigDir string
	Debug     bool
	JSON      bool

	Out io.Writer
	// Prompt asks for the PostgreSQL password when it isn't stored
	Prompt func() (string, error)
	// Metrics, when set, are passed to the catalog
	Metrics *observability.Metrics

	settings *conf.Settings
	central  *logger.CentralLogger
	log      logger.Logger
	catalog  *catalog.Catalog
}

// NewContext returns a context writing to stdout and prompting on the terminal
func NewContext() *Context {
	return &Context{
		Out:    os.Stdout,
		Prompt: PasswordPrompt(os.Stdin, os.Stderr),
	}
}

// Directory resolves the configuration directory
func (c *Context) Directory() (string, error) {
	if c.ConfigDir != "" {
		return c.ConfigDir, nil
	}
	dir, err := conf.DefaultDirectory()
	if err != nil {
		return "", err
	}
	c.ConfigDir = dir
	return dir, nil
}

// Settings loads the configuration file once
func (c *Context) Settings() (*conf.Settings, error) {
	if c.settings != nil {
		return c.settings, nil
	}
	dir, err := c.Directory()
	if err != nil {
		return nil, err
	}
	settings, err := conf.Load(dir)
	if err != nil {
		return nil, err
	}
	c.settings = settings
	return settings, nil
}

// Logger returns a module logger configured from the settings when they are
// loaded, otherwise from the defaults
func (c *Context) Logger(module string) logger.Logger {
	if c.central == nil {
		cfg := logger.LoggingConfig{DefaultLevel: logger.DefaultLogLevel}
		if c.settings != nil {
			cfg = c.settings.Logging
		}
		if c.Debug {
			cfg.DefaultLevel = string(logger.LogLevelDebug)
			if cfg.Console != nil {
				cfg.Console.Level = cfg.DefaultLevel
			}
		}
		central, err := logger.NewCentralLogger(&cfg)
		if err != nil {
			return c.fallback().Module(module)
		}
		c.central = central
	}
	return c.central.Module(module)
}

func (c *Context) fallback() logger.Logger {
	if c.log == nil {
		c.log = logger.NewSlogLogger(os.Stderr, logger.LogLevelWarn, nil)
	}
	return c.log
}

// Catalog opens the catalog on first use
func (c *Context) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	settings, err := c.Settings()
	if err != nil {
		return nil, err
	}
	cat, err := catalog.OpenSettings(ctx, settings, c.openOptions())
	if err != nil {
		return nil, err
	}
	c.catalog = cat
	return cat, nil
}

// Initialize creates a new store from settings in the configuration directory
func (c *Context) Initialize(ctx context.Context, settings *conf.Settings) (*catalog.Catalog, error) {
	dir, err := c.Directory()
	if err != nil {
		return nil, err
	}
	cat, err := catalog.Initialize(ctx, dir, settings, c.openOptions())
	if err != nil {
		return nil, err
	}
	c.settings = settings
	c.catalog = cat
	return cat, nil
}

func (c *Context) openOptions() catalog.OpenOptions {
	opts := catalog.OpenOptions{
		Logger: c.Logger("catalog"),
		Prompt: c.Prompt,
	}
	if c.Metrics != nil {
		opts.Metrics = c.Metrics.Catalog
	}
	return opts
}

// Close releases the catalog and flushes log files
func (c *Context) Close() error {
	var err error
	if c.catalog != nil {
		err = c.catalog.Close()
		c.catalog = nil
	}
	if c.central != nil {
		if closeErr := c.central.Close(); err == nil {
			err = closeErr
		}
		c.central = nil
	}
	return err
}

// SplitList splits a comma separated flag value, dropping empty items
func SplitList(values []string) []string {
	var out []string
	for _, v := range values {
		for item := range strings.SplitSeq(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
