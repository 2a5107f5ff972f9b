// Package filter implements the portable predicate language used to search
// the catalog. Comparisons are validated against a column schema and then
// rendered into dialect specific SQL plus a map of named parameters.
package filter

import (
	"strconv"

	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/errors"
)

// Comparator is the comparison made between a column and a value
type Comparator string

const (
	Equals        Comparator = "="
	StartsWith    Comparator = "=%"
	EndsWith      Comparator = "%="
	Contains      Comparator = "%=%"
	Greater       Comparator = ">"
	GreaterEquals Comparator = ">="
	Less          Comparator = "<"
	LessEquals    Comparator = "<="
)

// Comparators lists every comparator in declaration order
var Comparators = []Comparator{Equals, StartsWith, EndsWith, Contains, Greater, GreaterEquals, Less, LessEquals}

// ParseComparator converts a comparator symbol
func ParseComparator(symbol string) (Comparator, error) {
	for _, c := range Comparators {
		if string(c) == symbol {
			return c, nil
		}
	}
	return "", errors.Newf("%w: %q", ErrUnknownComparator, symbol).
		Category(errors.CategoryValidation).
		Build()
}

// IsText reports whether c applies to text columns
func (c Comparator) IsText() bool {
	switch c {
	case Equals, StartsWith, EndsWith, Contains:
		return true
	}
	return false
}

// IsNumeric reports whether c applies to number and date columns
func (c Comparator) IsNumeric() bool {
	switch c {
	case Equals, Greater, GreaterEquals, Less, LessEquals:
		return true
	}
	return false
}

// inverse is the logical complement of a numeric comparator
func (c Comparator) inverse() (string, bool) {
	switch c {
	case Equals:
		return "!=", true
	case Greater:
		return string(LessEquals), true
	case GreaterEquals:
		return string(Less), true
	case Less:
		return string(GreaterEquals), true
	case LessEquals:
		return string(Greater), true
	}
	return "", false
}

var (
	ErrUnknownColumn     = errors.NewStd("unknown column")
	ErrTypeMismatch      = errors.NewStd("column type mismatch")
	ErrNullComparison    = errors.NewStd("cannot compare to NULL")
	ErrUnsupportedValue  = errors.NewStd("unsupported value")
	ErrUnknownComparator = errors.NewStd("unknown comparison")
)

// Comparison is a predicate over one or more columns
type Comparison interface {
	// Validate checks the comparison against a column -> type schema
	Validate(columns map[string]dialect.Type) error
	// Prepare renders the comparison, adding any parameters it needs to
	// values without overwriting existing entries. A non-empty table
	// qualifies column names.
	Prepare(d dialect.Dialect, values map[string]any, table string) (string, error)
}

// Not returns c with its invert flag flipped
func Not(c Comparison) Comparison {
	switch v := c.(type) {
	case Text:
		v.Invert = !v.Invert
		return v
	case Number:
		v.Invert = !v.Invert
		return v
	case DateTime:
		v.Invert = !v.Invert
		return v
	case Boolean:
		v.Invert = !v.Invert
		return v
	case *Combination:
		out := *v
		out.Invert = !v.Invert
		return &out
	}
	return c
}

// freeName returns name if it is unused in values, otherwise name1, name2...
func freeName(name string, values map[string]any) string {
	if _, taken := values[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		key := name + strconv.Itoa(i)
		if _, taken := values[key]; !taken {
			return key
		}
	}
}

// bind stores value under a free name and returns its rendered placeholder
func bind(d dialect.Dialect, values map[string]any, name string, value any) (string, error) {
	key := freeName(name, values)
	values[key] = value
	return d.Placeholder(key)
}

func qualify(d dialect.Dialect, table, column string) (string, error) {
	if table != "" {
		column = table + "." + column
	}
	return d.Identifier(column)
}

func lookupColumn(columns map[string]dialect.Type, column string) (dialect.Type, error) {
	columnType, ok := columns[column]
	if !ok {
		return "", errors.Newf("%w: %s", ErrUnknownColumn, column).
			Category(errors.CategoryValidation).
			Context("column", column).
			Build()
	}
	return columnType, nil
}

func mismatch(column string, expected string, actual dialect.Type) error {
	return errors.Newf("%w: %s is expected to be %s not %s", ErrTypeMismatch, column, expected, actual).
		Category(errors.CategoryValidation).
		Context("column", column).
		Build()
}

func unsupported(column string, value any) error {
	return errors.Newf("%w for %s: %v (%T)", ErrUnsupportedValue, column, value, value).
		Category(errors.CategoryValidation).
		Context("column", column).
		Build()
}

func unknownComparator(c Comparator) error {
	return errors.Newf("%w: %q", ErrUnknownComparator, string(c)).
		Category(errors.CategoryValidation).
		Build()
}

func nullCheck(d dialect.Dialect, table, column string, invert bool) (string, error) {
	ident, err := qualify(d, table, column)
	if err != nil {
		return "", err
	}
	if invert {
		return dialect.Format("{} IS NOT NULL", ident), nil
	}
	return dialect.Format("{} IS NULL", ident), nil
}
