package filter

import (
	"time"

	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/errors"
)

// Number compares a number (or id) column. Value is nil, an int, int64 or
// float64, or a slice of one of those.
type Number struct {
	Column     string
	Comparator Comparator
	Value      any
	Invert     bool
}

func (n Number) Validate(columns map[string]dialect.Type) error {
	columnType, err := lookupColumn(columns, n.Column)
	if err != nil {
		return err
	}
	switch columnType {
	case dialect.TypeNumber:
		return nil
	case dialect.TypeID:
		if n.Comparator != Equals {
			return errors.Newf("%w: %s is an identifier, only equality comparisons allowed, found %s",
				ErrTypeMismatch, n.Column, n.Comparator).
				Category(errors.CategoryValidation).
				Context("column", n.Column).
				Build()
		}
		return nil
	default:
		return mismatch(n.Column, "number", columnType)
	}
}

func (n Number) Prepare(d dialect.Dialect, values map[string]any, table string) (string, error) {
	single := func(v any) Comparison {
		return Number{Column: n.Column, Comparator: n.Comparator, Value: v, Invert: n.Invert}
	}
	node := numeric{column: n.Column, comparator: n.Comparator, invert: n.Invert}

	switch v := n.Value.(type) {
	case nil:
		return node.null(d, table)
	case int, int32, int64, float32, float64:
		return node.scalar(d, values, table, v)
	case []int:
		return node.list(d, values, table, elements(v), v, single)
	case []int64:
		return node.list(d, values, table, elements(v), v, single)
	case []float64:
		return node.list(d, values, table, elements(v), v, single)
	default:
		return "", unsupported(n.Column, n.Value)
	}
}

// DateTime compares a date column. Value is nil, a time.Time or a
// []time.Time. Backends without a native datetime type compare epoch seconds.
type DateTime struct {
	Column     string
	Comparator Comparator
	Value      any
	Invert     bool
}

func (t DateTime) Validate(columns map[string]dialect.Type) error {
	columnType, err := lookupColumn(columns, t.Column)
	if err != nil {
		return err
	}
	if columnType != dialect.TypeDateTime && columnType != dialect.TypeNumber {
		return mismatch(t.Column, "date", columnType)
	}
	return nil
}

func (t DateTime) Prepare(d dialect.Dialect, values map[string]any, table string) (string, error) {
	single := func(v any) Comparison {
		return DateTime{Column: t.Column, Comparator: t.Comparator, Value: v, Invert: t.Invert}
	}
	node := numeric{column: t.Column, comparator: t.Comparator, invert: t.Invert}

	switch v := t.Value.(type) {
	case nil:
		return node.null(d, table)
	case time.Time:
		return node.scalar(d, values, table, timeValue(d, v))
	case []time.Time:
		var array any = v
		if !d.HasType(dialect.TypeDateTime) {
			epochs := make([]int64, len(v))
			for i, item := range v {
				epochs[i] = item.Unix()
			}
			array = epochs
		}
		return node.list(d, values, table, elements(v), array, single)
	default:
		return "", unsupported(t.Column, t.Value)
	}
}

func timeValue(d dialect.Dialect, t time.Time) any {
	if d.HasType(dialect.TypeDateTime) {
		return t
	}
	return t.Unix()
}

func elements[T any](list []T) []any {
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = item
	}
	return out
}

// numeric holds what Number and DateTime share when rendering
type numeric struct {
	column     string
	comparator Comparator
	invert     bool
}

func (n numeric) null(d dialect.Dialect, table string) (string, error) {
	if n.comparator != Equals {
		return "", errors.Newf("%w: %s %s NULL", ErrNullComparison, n.column, n.comparator).
			Category(errors.CategoryValidation).
			Context("column", n.column).
			Build()
	}
	return nullCheck(d, table, n.column, n.invert)
}

func (n numeric) operator() (string, error) {
	if !n.comparator.IsNumeric() {
		return "", unknownComparator(n.comparator)
	}
	if !n.invert {
		return string(n.comparator), nil
	}
	op, _ := n.comparator.inverse()
	return op, nil
}

func (n numeric) scalar(d dialect.Dialect, values map[string]any, table string, value any) (string, error) {
	op, err := n.operator()
	if err != nil {
		return "", err
	}
	ident, err := qualify(d, table, n.column)
	if err != nil {
		return "", err
	}
	placeholder, err := bind(d, values, n.column, value)
	if err != nil {
		return "", err
	}
	return dialect.Format("{} {} {}", ident, op, placeholder), nil
}

// list binds an array with ANY when the backend allows it. Otherwise each
// element becomes its own comparison, joined with OR; every element keeps the
// inverted operator rather than the whole group being negated.
func (n numeric) list(d dialect.Dialect, values map[string]any, table string, items []any, array any, single func(any) Comparison) (string, error) {
	op, err := n.operator()
	if err != nil {
		return "", err
	}

	if !d.Arrays() {
		switch len(items) {
		case 0:
			return "1 = 2", nil
		case 1:
			return single(items[0]).Prepare(d, values, table)
		}

		parts := make([]Comparison, len(items))
		for i, item := range items {
			parts[i] = single(item)
		}
		text, err := (&Combination{joiner: "OR", comparisons: parts}).Prepare(d, values, table)
		if err != nil {
			return "", err
		}
		return dialect.Format("({})", text), nil
	}

	ident, err := qualify(d, table, n.column)
	if err != nil {
		return "", err
	}
	placeholder, err := bind(d, values, n.column, array)
	if err != nil {
		return "", err
	}
	return dialect.Format("{} {} ANY({})", ident, op, placeholder), nil
}
