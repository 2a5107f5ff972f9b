package filter

import (
	"github.com/picpocket/picpocket/internal/dialect"
)

// Text compares a text column. Value is nil, a string, or a []string
// (only with Equals).
type Text struct {
	Column     string
	Comparator Comparator
	Value      any
	Invert     bool
}

func (t Text) Validate(columns map[string]dialect.Type) error {
	columnType, err := lookupColumn(columns, t.Column)
	if err != nil {
		return err
	}
	if columnType != dialect.TypeText {
		return mismatch(t.Column, "text", columnType)
	}
	return nil
}

func (t Text) Prepare(d dialect.Dialect, values map[string]any, table string) (string, error) {
	switch t.Comparator {
	case Equals:
		return t.prepareEquals(d, values, table)
	case StartsWith, EndsWith, Contains:
		return t.prepareLike(d, values, table)
	default:
		return "", unknownComparator(t.Comparator)
	}
}

func (t Text) prepareEquals(d dialect.Dialect, values map[string]any, table string) (string, error) {
	var value any
	switch v := t.Value.(type) {
	case nil:
		return nullCheck(d, table, t.Column, t.Invert)
	case string:
		value = v
	case []string:
		return t.prepareList(d, values, table, v)
	default:
		return "", unsupported(t.Column, t.Value)
	}

	ident, err := qualify(d, table, t.Column)
	if err != nil {
		return "", err
	}
	placeholder, err := bind(d, values, t.Column, value)
	if err != nil {
		return "", err
	}

	comparator := "="
	if t.Invert {
		comparator = "!="
	}
	return dialect.Format("{} {} {}", ident, comparator, placeholder), nil
}

func (t Text) prepareList(d dialect.Dialect, values map[string]any, table string, list []string) (string, error) {
	// an empty set matches nothing, and its complement everything
	if len(list) == 0 {
		if t.Invert {
			return "1 = 1", nil
		}
		return "1 = 2", nil
	}

	ident, err := qualify(d, table, t.Column)
	if err != nil {
		return "", err
	}

	// != ANY is not the complement of = ANY, so inverted lists always use NOT IN
	if d.Arrays() && !t.Invert {
		placeholder, err := bind(d, values, t.Column, list)
		if err != nil {
			return "", err
		}
		return dialect.Format("{} = ANY({})", ident, placeholder), nil
	}

	placeholders := make([]string, 0, len(list))
	for _, item := range list {
		placeholder, err := bind(d, values, t.Column, item)
		if err != nil {
			return "", err
		}
		placeholders = append(placeholders, placeholder)
	}

	comparator := "IN"
	if t.Invert {
		comparator = "NOT IN"
	}
	return dialect.Format("{} {} ({})", ident, comparator, dialect.Join(", ", placeholders)), nil
}

func (t Text) prepareLike(d dialect.Dialect, values map[string]any, table string) (string, error) {
	text, ok := t.Value.(string)
	if !ok {
		return "", unsupported(t.Column, t.Value)
	}

	symbol := d.Escape()
	pattern := dialect.EscapeLike(text, symbol)
	switch t.Comparator {
	case StartsWith:
		pattern += "%"
	case EndsWith:
		pattern = "%" + pattern
	default:
		pattern = "%" + pattern + "%"
	}

	ident, err := qualify(d, table, t.Column)
	if err != nil {
		return "", err
	}
	placeholder, err := bind(d, values, t.Column, pattern)
	if err != nil {
		return "", err
	}

	comparator := "LIKE"
	if t.Invert {
		comparator = "NOT LIKE"
	}

	suffix := ""
	if symbol != "" {
		suffix = dialect.Format(" ESCAPE {}", d.Literal(symbol))
	}
	return dialect.Format("{} {} {}{}", ident, comparator, placeholder, suffix), nil
}
