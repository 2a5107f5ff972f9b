package catalog

import (
	"fmt"

	"github.com/picpocket/picpocket/internal/errors"
)

// Sentinels matched with errors.Is. Every error the catalog returns is also
// an *errors.EnhancedError carrying the matching category.
var (
	ErrNotFound        = errors.NewStd("not found")
	ErrConflict        = errors.NewStd("conflict")
	ErrInvalidPath     = errors.NewStd("invalid path")
	ErrInvalidInput    = errors.NewStd("invalid input")
	ErrVersionMismatch = errors.NewStd("version mismatch")
)

// kindError carries a message and unwraps to one of the sentinels
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func build(kind error, category errors.ErrorCategory, format string, args ...any) *errors.ErrorBuilder {
	return errors.New(&kindError{msg: fmt.Sprintf(format, args...), kind: kind}).
		Component("catalog").
		Category(category)
}

func invalidInput(format string, args ...any) error {
	return build(ErrInvalidInput, errors.CategoryValidation, format, args...).Build()
}

func notFound(kind string, item any) error {
	return build(ErrNotFound, errors.CategoryNotFound, "unknown %s: %v", kind, item).
		Context(kind, item).
		Build()
}

// NotFoundError reports an unknown item the way catalog lookups do
func NotFoundError(kind string, item any) error {
	return notFound(kind, item)
}

func conflict(format string, args ...any) error {
	return build(ErrConflict, errors.CategoryConflict, format, args...).Build()
}

func invalidPath(path, format string, args ...any) error {
	return build(ErrInvalidPath, errors.CategoryFileIO, format, args...).
		Context("path", path).
		Build()
}

func versionMismatch(format string, args ...any) error {
	return build(ErrVersionMismatch, errors.CategoryVersion, format, args...).Build()
}

// fileError wraps an OS error for path
func fileError(err error, path string) error {
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// dbError wraps a driver error; errors that already carry a category pass through
func dbError(err error, operation string) error {
	if err == nil {
		return nil
	}
	var enhanced *errors.EnhancedError
	if errors.As(err, &enhanced) {
		return err
	}
	return errors.New(err).
		Component("catalog").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
