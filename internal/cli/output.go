package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Print writes v as indented JSON when --json is given or no text form
// exists, otherwise through text into aligned columns
func (c *Context) Print(v any, text func(w io.Writer) error) error {
	if c.JSON || text == nil {
		enc := json.NewEncoder(c.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(c.Out, 0, 4, 2, ' ', 0)
	if err := text(tw); err != nil {
		return err
	}
	return tw.Flush()
}

// Printf writes a plain message unless JSON output is requested
func (c *Context) Printf(format string, args ...any) {
	if c.JSON {
		return
	}
	fmt.Fprintf(c.Out, format, args...)
}

// Deref formats an optional value, printing "-" for nil
func Deref[T any](v *T) string {
	if v == nil {
		return "-"
	}
	switch t := any(*v).(type) {
	case time.Time:
		return t.Format(time.DateTime)
	case string:
		if t == "" {
			return "-"
		}
		return t
	}
	return fmt.Sprint(*v)
}
