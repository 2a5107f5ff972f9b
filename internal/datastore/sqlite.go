package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/logger"
)

// slowQueryThreshold is when the gorm adapter starts warning
const slowQueryThreshold = 200 * time.Millisecond

// NewSQLite opens (creating if needed) the database file at path with
// foreign keys enforced
func NewSQLite(path string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelError, nil)
	}
	log = log.Module("datastore").With(logger.String("backend", dialect.SQLiteName))

	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, dbError(err, "open", "path", path)
	}
	if err := os.MkdirAll(filepath.Dir(absolute), 0o755); err != nil {
		return nil, dbError(err, "open", "path", absolute)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", absolute)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log, slowQueryThreshold),
	})
	if err != nil {
		log.Error("failed to open SQLite database", logger.String("path", absolute), logger.Error(err))
		return nil, dbError(err, "open", "path", absolute)
	}

	log.Debug("opened SQLite database", logger.String("path", absolute))
	return newStore(dialect.SQLiteName, dialect.SQLite(), db, buildinfo.SQLiteSchema, log)
}
