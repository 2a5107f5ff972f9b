package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/errors"
)

// Args reports positional argument errors as usage errors
func Args(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		return UsageError(check(cmd, args))
	}
}

// ParseID reads an image id argument
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Newf("invalid image id %q", s).
			Component("cli").
			Category(errors.CategoryValidation).
			Build()
	}
	return id, nil
}

var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// ParseTime reads a date given on the command line in local time
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("invalid time %q, expected YYYY-MM-DD[ HH:MM:SS]", s).
		Component("cli").
		Category(errors.CategoryValidation).
		Build()
}
