// Package datastore opens the relational store behind a catalog: the
// connection pool, the schema bootstrap and the version stamp for the SQLite
// and PostgreSQL backends.
package datastore

import (
	"context"
	"database/sql"
	"embed"
	"strings"

	"gorm.io/gorm"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
)

//go:embed schema/*.sql
var schemas embed.FS

// Tables are the tables a catalog owns. Initialize refuses to run when any exists.
var Tables = []string{
	"version",
	"locations",
	"tags",
	"images",
	"image_tags",
	"tasks",
	"task_invocations",
	"session_info",
}

// Backend is a connected store the catalog engine runs against
type Backend interface {
	Name() string
	Dialect() dialect.Dialect
	DB() *sql.DB
	Gorm() *gorm.DB
	// Initialize creates the schema and stamps its version
	Initialize(ctx context.Context) error
	// Version returns the stored schema version
	Version(ctx context.Context) (buildinfo.Version, error)
	// MatchingVersion reports whether the stored version equals the expected one
	MatchingVersion(ctx context.Context) bool
	Close() error
}

// Store implements Backend on top of a gorm connection
type Store struct {
	name     string
	dialect  dialect.Dialect
	gormDB   *gorm.DB
	sqlDB    *sql.DB
	schema   string
	expected buildinfo.Version
	log      logger.Logger
}

// versionRow maps the version table
type versionRow struct {
	ID    int64 `gorm:"primaryKey"`
	Major int
	Minor int
	Patch int
	Label *string
}

func (versionRow) TableName() string { return "version" }

func newStore(name string, d dialect.Dialect, db *gorm.DB, expected buildinfo.Version, log logger.Logger) (*Store, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, dbError(err, "open", "backend", name)
	}
	return &Store{
		name:     name,
		dialect:  d,
		gormDB:   db,
		sqlDB:    sqlDB,
		schema:   "schema/" + name + ".sql",
		expected: expected,
		log:      log,
	}, nil
}

func (s *Store) Name() string { return s.name }
func (s *Store) Dialect() dialect.Dialect { return s.dialect }
func (s *Store) DB() *sql.DB { return s.sqlDB }
func (s *Store) Gorm() *gorm.DB { return s.gormDB }
func (s *Store) Expected() buildinfo.Version { return s.expected }

// Initialize applies the schema and inserts the version row in one transaction
func (s *Store) Initialize(ctx context.Context) error {
	migrator := s.gormDB.WithContext(ctx).Migrator()
	for _, table := range Tables {
		if migrator.HasTable(table) {
			return errors.Newf("database already initialized: table %q exists", table).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("backend", s.name).
				Context("table", table).
				Build()
		}
	}

	ddl, err := schemas.ReadFile(s.schema)
	if err != nil {
		return dbError(err, "read_schema", "schema", s.schema)
	}

	err = s.gormDB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, statement := range splitStatements(string(ddl)) {
			if err := tx.Exec(statement).Error; err != nil {
				return err
			}
		}
		return tx.Create(&versionRow{
			Major: s.expected.Major,
			Minor: s.expected.Minor,
			Patch: s.expected.Patch,
			Label: s.expected.Label,
		}).Error
	})
	if err != nil {
		return dbError(err, "initialize", "backend", s.name)
	}

	s.log.Info("initialized database",
		logger.String("backend", s.name),
		logger.String("version", s.expected.String()))
	return nil
}

// splitStatements breaks a DDL file on ";". The schema files hold no
// semicolons inside statements.
func splitStatements(ddl string) []string {
	var statements []string
	for statement := range strings.SplitSeq(ddl, ";") {
		if statement = strings.TrimSpace(statement); statement != "" {
			statements = append(statements, statement)
		}
	}
	return statements
}

// Version reads the latest version row
func (s *Store) Version(ctx context.Context) (buildinfo.Version, error) {
	var row versionRow
	err := s.gormDB.WithContext(ctx).Order("id DESC").Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return buildinfo.Version{}, errors.Newf("no version information found").
			Component("datastore").
			Category(errors.CategoryVersion).
			Context("backend", s.name).
			Build()
	}
	if err != nil {
		return buildinfo.Version{}, dbError(err, "version", "backend", s.name)
	}
	return buildinfo.Version{Major: row.Major, Minor: row.Minor, Patch: row.Patch, Label: row.Label}, nil
}

// MatchingVersion is false on any error or when any field differs
func (s *Store) MatchingVersion(ctx context.Context) bool {
	stored, err := s.Version(ctx)
	if err != nil {
		s.log.Debug("could not read schema version", logger.Error(err))
		return false
	}
	return stored.Equal(s.expected)
}

// Close releases the connection pool
func (s *Store) Close() error {
	if err := s.sqlDB.Close(); err != nil {
		return dbError(err, "close", "backend", s.name)
	}
	return nil
}
