// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"

	"github.com/picpocket/picpocket/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

var logLevels = []string{"trace", "debug", "info", "warn", "warning", "error"}

// ValidateSettings validates the entire Settings struct. The returned error
// wraps a ValidationError.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBackendSettings(&settings.Backend); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateFilesSettings(&settings.Files); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if err := validateWebSettings(&settings.Web); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if level := strings.ToLower(settings.Logging.DefaultLevel); level != "" && !slices.Contains(logLevels, level) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("unknown log level %q", settings.Logging.DefaultLevel))
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateBackendSettings(settings *BackendSettings) error {
	switch settings.Type {
	case BackendSQLite:
		if strings.TrimSpace(settings.SQLite.Path) == "" {
			return fmt.Errorf("backend.sqlite.path must be set")
		}
	case BackendPostgres:
		pg := settings.Postgres
		if pg.Host == "" {
			return fmt.Errorf("backend.postgres.host must be set")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("backend.postgres.port must be between 1 and 65535, got %d", pg.Port)
		}
		if pg.DBName == "" {
			return fmt.Errorf("backend.postgres.dbname must be set")
		}
	default:
		return fmt.Errorf("unsupported backend %q: must be %s or %s", settings.Type, BackendSQLite, BackendPostgres)
	}
	return nil
}

func validateFilesSettings(settings *FilesSettings) error {
	for _, format := range settings.Formats {
		if strings.ContainsAny(format, `/\`) {
			return fmt.Errorf("invalid file format %q", format)
		}
	}
	return nil
}

func validateWebSettings(settings *WebSettings) error {
	if settings.Listen != "" {
		if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
			return fmt.Errorf("invalid web.listen address %q: %w", settings.Listen, err)
		}
	}
	if settings.SessionTTL <= 0 {
		return fmt.Errorf("web.sessionttl must be positive, got %s", settings.SessionTTL)
	}
	if settings.CacheTTL < 0 {
		return fmt.Errorf("web.cachettl must not be negative, got %s", settings.CacheTTL)
	}
	return nil
}
