package datastore

import (
	"net"
	"net/url"
	"strconv"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/logger"
)

// DefaultPostgresPort is used when PostgresConfig.Port is zero
const DefaultPostgresPort = 5432

// PostgresConfig holds the connection parameters for a PostgreSQL server
type PostgresConfig struct {
	Host     string
	Port     int
	DBName   string
	User     string
	Password string
	SSLMode  string
}

// DSN renders the connection URL
func (c PostgresConfig) DSN() string {
	port := c.Port
	if port == 0 {
		port = DefaultPostgresPort
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + c.DBName,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// NewPostgres connects to a PostgreSQL server
func NewPostgres(cfg PostgresConfig, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelError, nil)
	}
	log = log.Module("datastore").With(logger.String("backend", dialect.PostgresName))

	db, err := gorm.Open(postgres.New(postgres.Config{DSN: cfg.DSN()}), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		log.Error("failed to connect to PostgreSQL",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.DBName),
			logger.Error(err))
		return nil, dbError(err, "open", "host", cfg.Host, "database", cfg.DBName)
	}

	log.Debug("connected to PostgreSQL", logger.String("host", cfg.Host), logger.String("database", cfg.DBName))
	return newStore(dialect.PostgresName, dialect.Postgres(), db, buildinfo.PostgresSchema, log)
}
