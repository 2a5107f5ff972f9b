package filter

import (
	"github.com/picpocket/picpocket/internal/dialect"
)

// Boolean compares a boolean column. A nil Value checks for NULL.
type Boolean struct {
	Column string
	Value  *bool
	Invert bool
}

// Is is shorthand for a Boolean comparison against a concrete value
func Is(column string, value bool) Boolean {
	return Boolean{Column: column, Value: &value}
}

func (b Boolean) Validate(columns map[string]dialect.Type) error {
	columnType, err := lookupColumn(columns, b.Column)
	if err != nil {
		return err
	}
	if columnType != dialect.TypeBoolean {
		return mismatch(b.Column, "boolean", columnType)
	}
	return nil
}

func (b Boolean) Prepare(d dialect.Dialect, values map[string]any, table string) (string, error) {
	if b.Value == nil {
		return nullCheck(d, table, b.Column, b.Invert)
	}

	ident, err := qualify(d, table, b.Column)
	if err != nil {
		return "", err
	}
	placeholder, err := bind(d, values, b.Column, *b.Value)
	if err != nil {
		return "", err
	}

	comparator := "="
	if b.Invert {
		comparator = "!="
	}
	return dialect.Format("{} {} {}", ident, comparator, placeholder), nil
}
