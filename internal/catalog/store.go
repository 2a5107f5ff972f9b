package catalog

import (
	"context"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/conf"
	"github.com/picpocket/picpocket/internal/datastore"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// OpenOptions configure Initialize and Open
type OpenOptions struct {
	Logger  logger.Logger
	Metrics *metrics.CatalogMetrics
	// Prompt supplies the PostgreSQL password when the configuration holds none
	Prompt func() (string, error)
}

// Initialize creates a new PicPocket store: the configuration file in
// directory first, then the database schema
func Initialize(ctx context.Context, directory string, settings *conf.Settings, opts OpenOptions) (*Catalog, error) {
	if settings.Version == (buildinfo.Version{}) {
		settings.Version = buildinfo.Current
	}
	if err := conf.Create(directory, settings); err != nil {
		return nil, err
	}

	backend, err := openBackend(settings, opts)
	if err != nil {
		return nil, err
	}
	if err := backend.Initialize(ctx); err != nil {
		_ = backend.Close()
		return nil, err
	}
	return newFromSettings(backend, settings, opts), nil
}

// Open loads the configuration in directory and connects to its store
func Open(ctx context.Context, directory string, opts OpenOptions) (*Catalog, error) {
	settings, err := conf.Load(directory)
	if err != nil {
		return nil, err
	}
	return OpenSettings(ctx, settings, opts)
}

// OpenSettings connects to the store described by settings and checks that
// its schema version is the one this build expects
func OpenSettings(ctx context.Context, settings *conf.Settings, opts OpenOptions) (*Catalog, error) {
	backend, err := openBackend(settings, opts)
	if err != nil {
		return nil, err
	}

	stored, err := backend.Version(ctx)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	if !backend.MatchingVersion(ctx) {
		_ = backend.Close()
		return nil, versionMismatch("database schema is %s, this build expects %s",
			stored, backend.Expected())
	}
	return newFromSettings(backend, settings, opts), nil
}

func openBackend(settings *conf.Settings, opts OpenOptions) (*datastore.Store, error) {
	switch settings.Backend.Type {
	case conf.BackendSQLite:
		return datastore.NewSQLite(settings.SQLitePath(), opts.Logger)
	case conf.BackendPostgres:
		pg := settings.Backend.Postgres
		if pg.Password == "" && !pg.StorePassword && opts.Prompt != nil {
			password, err := opts.Prompt()
			if err != nil {
				return nil, errors.New(err).
					Component("catalog").
					Category(errors.CategoryConfiguration).
					Build()
			}
			pg.Password = password
		}
		return datastore.NewPostgres(datastore.PostgresConfig{
			Host:     pg.Host,
			Port:     pg.Port,
			DBName:   pg.DBName,
			User:     pg.User,
			Password: pg.Password,
			SSLMode:  pg.SSLMode,
		}, opts.Logger)
	default:
		return nil, invalidInput("unsupported backend %s", settings.Backend.Type)
	}
}

func newFromSettings(backend datastore.Backend, settings *conf.Settings, opts OpenOptions) *Catalog {
	return New(backend, Options{
		Formats:    settings.Files.Formats,
		SessionTTL: settings.Web.SessionTTL,
		Logger:     opts.Logger,
		Metrics:    opts.Metrics,
	})
}
