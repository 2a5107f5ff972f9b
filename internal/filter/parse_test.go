package filter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/errors"
)

func TestParseExpression(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		expr     string
		expected Comparison
	}{
		{"rating>=3", Number{Column: "rating", Comparator: GreaterEquals, Value: int64(3)}},
		{"rating=2.5", Number{Column: "rating", Comparator: Equals, Value: 2.5}},
		{"creator=%Ann", Text{Column: "creator", Comparator: StartsWith, Value: "Ann"}},
		{"creator%=%nn", Text{Column: "creator", Comparator: Contains, Value: "nn"}},
		{"creator=null", Text{Column: "creator", Comparator: Equals}},
		{"!creator=Ann", Text{Column: "creator", Comparator: Equals, Value: "Ann", Invert: true}},
		{"id=1,2,3", Number{Column: "id", Comparator: Equals, Value: []int64{1, 2, 3}}},
		{"name=a, b", Text{Column: "name", Comparator: Equals, Value: []string{"a", "b"}}},
		{"source=true", Is("source", true)},
		{"name=0042", Text{Column: "name", Comparator: Equals, Value: "0042"}},
		{"name=1e3", Text{Column: "name", Comparator: Equals, Value: "1e3"}},
		{"name=Inf", Text{Column: "name", Comparator: Equals, Value: "Inf"}},
		{"name=%007", Text{Column: "name", Comparator: StartsWith, Value: "007"}},
		{"creator=true", Text{Column: "creator", Comparator: Equals, Value: "true"}},
		{"name=01,2", Text{Column: "name", Comparator: Equals, Value: []string{"01", "2"}}},
		{"creation_date<2024-01-02", DateTime{
			Column:     "creation_date",
			Comparator: Less,
			Value:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local),
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			c, err := ParseExpression(tc.expr, imageColumns)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, c)
		})
	}
}

func TestParseExpressionErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		expr string
		err  error
	}{
		{"rating", ErrUnknownComparator},
		{">=3", ErrUnknownComparator},
		{"rating~3", ErrUnknownComparator},
		{"bogus=1", ErrUnknownColumn},
		{"rating=high", ErrUnsupportedValue},
		{"rating=Inf", ErrUnsupportedValue},
		{"source=yes", ErrUnsupportedValue},
		{"id>3", ErrTypeMismatch},
		{"source>true", ErrUnknownComparator},
	}

	for _, tc := range testCases {
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()
			_, err := ParseExpression(tc.expr, imageColumns)
			require.ErrorIs(t, err, tc.err)
			assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestSpecBuild(t *testing.T) {
	t.Parallel()

	var spec Spec
	require.NoError(t, json.Unmarshal([]byte(`{
		"or": [
			{"column": "creator", "value": null},
			{"and": [
				{"column": "rating", "comparator": ">", "value": 2},
				{"not": {"column": "name", "comparator": "%=", "value": ".png"}}
			]}
		]
	}`), &spec))

	c, err := spec.Build(imageColumns)
	require.NoError(t, err)
	expected := Or(
		Text{Column: "creator", Comparator: Equals},
		And(
			Number{Column: "rating", Comparator: Greater, Value: int64(2)},
			Text{Column: "name", Comparator: EndsWith, Value: ".png", Invert: true},
		),
	)
	assert.Equal(t, expected, c)

	single := Spec{And: []Spec{{Column: "rating", Value: json.RawMessage("5")}}}
	c, err = single.Build(imageColumns)
	require.NoError(t, err)
	assert.Equal(t, Number{Column: "rating", Comparator: Equals, Value: int64(5)}, c)

	_, err = Spec{Column: "rating", Value: json.RawMessage(`"five"`)}.Build(imageColumns)
	require.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Spec{Column: "name", Value: json.RawMessage(`42`)}.Build(imageColumns)
	require.ErrorIs(t, err, ErrUnsupportedValue)

	_, err = Spec{Column: "rating", Comparator: "~", Value: json.RawMessage(`5`)}.Build(imageColumns)
	require.ErrorIs(t, err, ErrUnknownComparator)
}
