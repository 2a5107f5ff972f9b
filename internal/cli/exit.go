package cli

import (
	"github.com/picpocket/picpocket/internal/errors"
)

// Exit codes by error category
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitConflict   = 4
	ExitFileIO     = 5
	ExitVersion    = 6
)

// ExitCode maps an error onto the process exit code
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch errors.CategoryOf(err) {
	case errors.CategoryValidation:
		return ExitValidation
	case errors.CategoryNotFound:
		return ExitNotFound
	case errors.CategoryConflict:
		return ExitConflict
	case errors.CategoryFileIO:
		return ExitFileIO
	case errors.CategoryVersion:
		return ExitVersion
	default:
		return ExitFailure
	}
}

// UsageError marks a bad command line as a validation failure
func UsageError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(err).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}
