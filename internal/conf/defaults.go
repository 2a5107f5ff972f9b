// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/picpocket/picpocket/internal/datastore"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
)

// Default values that other packages refer to
const (
	DefaultSQLitePath = "picpocket.sqlite3"
	DefaultListen     = "127.0.0.1:8080"
	DefaultSessionTTL = 24 * time.Hour
	DefaultCacheTTL   = 5 * time.Minute
)

// setDefaultConfig sets default values for the configuration
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("backend.type", BackendSQLite)
	v.SetDefault("backend.sqlite.path", DefaultSQLitePath)

	v.SetDefault("backend.postgres.host", "localhost")
	v.SetDefault("backend.postgres.port", datastore.DefaultPostgresPort)
	v.SetDefault("backend.postgres.dbname", "picpocket")
	v.SetDefault("backend.postgres.user", "picpocket")
	v.SetDefault("backend.postgres.password", "")
	v.SetDefault("backend.postgres.storepassword", false)
	v.SetDefault("backend.postgres.sslmode", "")

	v.SetDefault("files.formats", imageinfo.DefaultFormats)

	v.SetDefault("web.listen", DefaultListen)
	v.SetDefault("web.sessionttl", DefaultSessionTTL)
	v.SetDefault("web.cachettl", DefaultCacheTTL)

	v.SetDefault("logging.defaultlevel", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file.enabled", false)
	v.SetDefault("logging.file.path", logger.DefaultLogPath)
	v.SetDefault("logging.file.maxsize", logger.DefaultMaxSize)
	v.SetDefault("logging.file.maxage", logger.DefaultMaxAge)
	v.SetDefault("logging.file.maxbackups", logger.DefaultMaxBackups)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("logging.file.level", logger.DefaultLogLevel)
}
