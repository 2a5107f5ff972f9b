package filter

import (
	"github.com/picpocket/picpocket/internal/dialect"
)

// Combination joins two or more comparisons with AND or OR
type Combination struct {
	joiner      string
	comparisons []Comparison
	Invert      bool
}

// And requires every comparison to hold
func And(first, second Comparison, rest ...Comparison) *Combination {
	return &Combination{joiner: "AND", comparisons: append([]Comparison{first, second}, rest...)}
}

// Or requires at least one comparison to hold
func Or(first, second Comparison, rest ...Comparison) *Combination {
	return &Combination{joiner: "OR", comparisons: append([]Comparison{first, second}, rest...)}
}

// Joiner is "AND" or "OR"
func (c *Combination) Joiner() string { return c.joiner }

// Comparisons returns the combined comparisons
func (c *Combination) Comparisons() []Comparison { return c.comparisons }

func (c *Combination) Validate(columns map[string]dialect.Type) error {
	for _, comparison := range c.comparisons {
		if err := comparison.Validate(columns); err != nil {
			return err
		}
	}
	return nil
}

func (c *Combination) Prepare(d dialect.Dialect, values map[string]any, table string) (string, error) {
	parts := make([]string, 0, len(c.comparisons))
	for _, comparison := range c.comparisons {
		text, err := comparison.Prepare(d, values, table)
		if err != nil {
			return "", err
		}
		if _, nested := comparison.(*Combination); nested {
			text = dialect.Format("({})", text)
		}
		parts = append(parts, text)
	}

	combined := dialect.Join(" "+c.joiner+" ", parts)
	if c.Invert {
		combined = dialect.Format("NOT ({})", combined)
	}
	return combined, nil
}
