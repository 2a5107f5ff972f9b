package filter

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/errors"
)

// Spec is the JSON form of a comparison. Exactly one of Column, And, Or or
// Not is set. Value is decoded according to the column's type.
//
//	{"column": "rating", "comparator": ">=", "value": 3}
//	{"or": [{"column": "creator", "value": null}, {"column": "creator", "comparator": "=%", "value": "Ann"}]}
type Spec struct {
	Column     string          `json:"column,omitempty"`
	Comparator string          `json:"comparator,omitempty"` // defaults to "="
	Value      json.RawMessage `json:"value,omitempty"`
	Invert     bool            `json:"invert,omitempty"`

	And []Spec `json:"and,omitempty"`
	Or  []Spec `json:"or,omitempty"`
	Not *Spec  `json:"not,omitempty"`
}

// Build turns s into a validated comparison over columns
func (s Spec) Build(columns map[string]dialect.Type) (Comparison, error) {
	switch {
	case s.Not != nil:
		inner, err := s.Not.Build(columns)
		if err != nil {
			return nil, err
		}
		return Not(inner), nil
	case len(s.And) > 0 || len(s.Or) > 0:
		children, join := s.And, And
		if len(s.Or) > 0 {
			children, join = s.Or, Or
		}
		built := make([]Comparison, 0, len(children))
		for _, child := range children {
			c, err := child.Build(columns)
			if err != nil {
				return nil, err
			}
			built = append(built, c)
		}
		var c Comparison = built[0]
		if len(built) > 1 {
			c = join(built[0], built[1], built[2:]...)
		}
		if s.Invert {
			c = Not(c)
		}
		return c, nil
	}

	comparator := Equals
	if s.Comparator != "" {
		var err error
		if comparator, err = ParseComparator(s.Comparator); err != nil {
			return nil, err
		}
	}
	var raw any
	if len(s.Value) > 0 {
		if err := json.Unmarshal(s.Value, &raw); err != nil {
			return nil, invalid("%w: %s: %v", ErrUnsupportedValue, s.Column, err)
		}
	}
	c, err := column(columns, s.Column, comparator, raw, s.Invert)
	if err != nil {
		return nil, err
	}
	return c, c.Validate(columns)
}

// ParseExpression reads a command line comparison of the form
// column<comparator>value, e.g. "rating>=3", "title=%beach" or
// "creator=null". A leading "!" inverts it. Commas separate a list of
// values for "=".
func ParseExpression(expr string, columns map[string]dialect.Type) (Comparison, error) {
	invert := false
	if rest, ok := strings.CutPrefix(expr, "!"); ok {
		invert, expr = true, rest
	}

	start := strings.IndexAny(expr, "=%<>")
	if start <= 0 {
		return nil, invalid("%w: %q", ErrUnknownComparator, expr)
	}
	end := start
	for end < len(expr) && strings.ContainsRune("=%<>", rune(expr[end])) {
		end++
	}
	comparator, err := ParseComparator(expr[start:end])
	if err != nil {
		return nil, err
	}
	name, text := strings.TrimSpace(expr[:start]), strings.TrimSpace(expr[end:])
	columnType, err := lookupColumn(columns, name)
	if err != nil {
		return nil, err
	}

	var raw any
	switch {
	case text == "null":
		raw = nil
	case comparator == Equals && strings.Contains(text, ","):
		items := []any{}
		for item := range strings.SplitSeq(text, ",") {
			items = append(items, literal(strings.TrimSpace(item), columnType))
		}
		raw = items
	default:
		raw = literal(text, columnType)
	}

	c, err := column(columns, name, comparator, raw, invert)
	if err != nil {
		return nil, err
	}
	return c, c.Validate(columns)
}

// literal reads a command line value the way a JSON value for a column
// of that type would decode. Anything unreadable stays a string.
func literal(text string, columnType dialect.Type) any {
	switch columnType {
	case dialect.TypeNumber, dialect.TypeID, dialect.TypeDateTime:
		if f, err := strconv.ParseFloat(text, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return f
		}
	case dialect.TypeBoolean:
		if b, err := strconv.ParseBool(text); err == nil {
			return b
		}
	}
	return text
}

func column(columns map[string]dialect.Type, name string, comparator Comparator, raw any, invert bool) (Comparison, error) {
	columnType, err := lookupColumn(columns, name)
	if err != nil {
		return nil, err
	}

	switch columnType {
	case dialect.TypeText:
		value, err := textValue(name, raw)
		return Text{Column: name, Comparator: comparator, Value: value, Invert: invert}, err
	case dialect.TypeNumber, dialect.TypeID:
		value, err := numberValue(name, raw)
		return Number{Column: name, Comparator: comparator, Value: value, Invert: invert}, err
	case dialect.TypeDateTime:
		value, err := timeValueOf(name, raw)
		return DateTime{Column: name, Comparator: comparator, Value: value, Invert: invert}, err
	case dialect.TypeBoolean:
		if comparator != Equals {
			return nil, unknownComparator(comparator)
		}
		b := Boolean{Column: name, Invert: invert}
		if raw != nil {
			v, ok := raw.(bool)
			if !ok {
				return nil, unsupported(name, raw)
			}
			b.Value = &v
		}
		return b, nil
	default:
		return nil, mismatch(name, "comparable", columnType)
	}
}

func textValue(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return v, nil
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, unsupported(name, item)
			}
			list = append(list, str)
		}
		return list, nil
	}
	return nil, unsupported(name, raw)
}

func numberValue(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return int64(v), nil
		}
		return v, nil
	case []any:
		ints := make([]int64, 0, len(v))
		floats := make([]float64, 0, len(v))
		integral := true
		for _, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil, unsupported(name, item)
			}
			integral = integral && f == math.Trunc(f)
			ints = append(ints, int64(f))
			floats = append(floats, f)
		}
		if integral {
			return ints, nil
		}
		return floats, nil
	}
	return nil, unsupported(name, raw)
}

// timeLayouts are accepted for date values, most specific first
var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", time.DateOnly}

func timeValueOf(name string, raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
				return t, nil
			}
		}
	case float64:
		return time.Unix(int64(v), 0), nil
	case []any:
		list := make([]time.Time, 0, len(v))
		for _, item := range v {
			t, err := timeValueOf(name, item)
			if err != nil {
				return nil, err
			}
			parsed, ok := t.(time.Time)
			if !ok {
				return nil, unsupported(name, item)
			}
			list = append(list, parsed)
		}
		return list, nil
	}
	return nil, unsupported(name, raw)
}

func invalid(format string, args ...any) error {
	return errors.Newf(format, args...).
		Category(errors.CategoryValidation).
		Build()
}
