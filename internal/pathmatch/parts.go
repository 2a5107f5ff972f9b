// Package pathmatch implements the small pattern language tasks use to pick
// source directories ("photos/{year}/{month}", "{regex:^DCIM\d+$}") and the
// format strings that name copied files at the destination.
package pathmatch

import (
	"maps"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"

	"github.com/picpocket/picpocket/internal/errors"
)

// Params are the values discovered while walking down a pattern, plus the
// time the task last ran (nil for a full scan).
type Params struct {
	LastRan *time.Time
	values  map[string]any
}

// NewParams starts a walk
func NewParams(lastRan *time.Time) Params {
	return Params{LastRan: lastRan}
}

// Get returns a discovered value
func (p Params) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Values returns a copy of every discovered value
func (p Params) Values() map[string]any {
	return maps.Clone(p.values)
}

// Merge returns new params with updates layered over the current values
func (p Params) Merge(updates map[string]any) Params {
	merged := make(map[string]any, len(p.values)+len(updates))
	maps.Copy(merged, p.values)
	maps.Copy(merged, updates)
	return Params{LastRan: p.LastRan, values: merged}
}

// number reads a value set by Year/Month/Day or a regex group of digits.
// Zero counts as unset.
func (p Params) number(key string) (int, bool) {
	switch v := p.values[key].(type) {
	case int:
		return v, v != 0
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil && n != 0
	}
	return 0, false
}

// Part is a dynamic directory name
type Part interface {
	// Matches reports whether dir is acceptable and what it adds to params
	Matches(dir string, params Params) (map[string]any, bool)
	String() string
}

// Year matches a numeric year. With a last-ran date, earlier years are
// pruned, and for the same year any month and day already discovered are
// compared too.
type Year struct{}

func (Year) Matches(dir string, params Params) (map[string]any, bool) {
	year, err := strconv.Atoi(dir)
	if err != nil {
		return nil, false
	}

	if last := params.LastRan; last != nil {
		switch {
		case year < last.Year():
			return nil, false
		case year == last.Year():
			if month, ok := params.number("month"); ok {
				if month < int(last.Month()) {
					return nil, false
				}
				if month == int(last.Month()) {
					if day, ok := params.number("day"); ok && day < last.Day() {
						return nil, false
					}
				}
			}
		}
	}

	return map[string]any{"year": year}, true
}

func (Year) String() string { return "{year}" }

// Month matches 1-12. It is compared against last-ran only when the year is known.
type Month struct{}

func (Month) Matches(dir string, params Params) (map[string]any, bool) {
	month, err := strconv.Atoi(dir)
	if err != nil || month < 1 || month > 12 {
		return nil, false
	}

	if last := params.LastRan; last != nil {
		if year, ok := params.number("year"); ok {
			switch compareDates(year, month, 0, last.Year(), int(last.Month()), 0) {
			case -1:
				return nil, false
			case 0:
				if day, ok := params.number("day"); ok && day < last.Day() {
					return nil, false
				}
			}
		}
	}

	return map[string]any{"month": month}, true
}

func (Month) String() string { return "{month}" }

// Day matches 1-31. It is compared against last-ran only when year and
// month are both known.
type Day struct{}

func (Day) Matches(dir string, params Params) (map[string]any, bool) {
	day, err := strconv.Atoi(dir)
	if err != nil || day < 1 || day > 31 {
		return nil, false
	}

	if last := params.LastRan; last != nil {
		year, hasYear := params.number("year")
		month, hasMonth := params.number("month")
		if hasYear && hasMonth && compareDates(year, month, day, last.Year(), int(last.Month()), last.Day()) < 0 {
			return nil, false
		}
	}

	return map[string]any{"day": day}, true
}

func (Day) String() string { return "{day}" }

// compareDates compares (y, m, d) tuples
func compareDates(y1, m1, d1, y2, m2, d2 int) int {
	for _, pair := range [][2]int{{y1, y2}, {m1, m2}, {d1, d2}} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}
	return 0
}

// Date matches a directory that parses under a strftime format, in local
// time, and is not before last-ran.
type Date struct {
	Format string
}

func (d Date) Matches(dir string, params Params) (map[string]any, bool) {
	date, err := timefmt.ParseInLocation(dir, d.Format, time.Local)
	if err != nil {
		return nil, false
	}
	if params.LastRan != nil && date.Before(*params.LastRan) {
		return nil, false
	}
	return map[string]any{"date": date}, true
}

func (d Date) String() string { return "{date:" + d.Format + "}" }

// Regex matches a directory name that satisfies the whole pattern. Named
// groups are added to params.
type Regex struct {
	Pattern string
	re      *regexp.Regexp
}

// NewRegex compiles pattern anchored at both ends
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, errors.Newf("invalid regex %q: %w", pattern, err).
			Category(errors.CategoryValidation).
			Build()
	}
	return &Regex{Pattern: pattern, re: re}, nil
}

func (r *Regex) Matches(dir string, _ Params) (map[string]any, bool) {
	match := r.re.FindStringSubmatchIndex(dir)
	if match == nil {
		return nil, false
	}

	groups := map[string]any{}
	for i, name := range r.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		if start := match[2*i]; start >= 0 {
			groups[name] = dir[start:match[2*i+1]]
		} else {
			groups[name] = nil
		}
	}
	return groups, true
}

func (r *Regex) String() string { return "{regex:" + r.Pattern + "}" }

// Segment is one "/" separated element of a pattern: either a literal
// directory name or a Part.
type Segment struct {
	Literal string
	Part    Part
}

// Match checks dir against the segment and returns the params for its children
func (s Segment) Match(dir string, params Params) (Params, bool) {
	if s.Part == nil {
		return params, dir == s.Literal
	}
	updates, ok := s.Part.Matches(dir, params)
	if !ok {
		return params, false
	}
	return params.Merge(updates), true
}

var dynamicSegment = regexp.MustCompile(`^\{(\w+)(?::(.*?))?}$`)

// Load parses a pattern. Empty segments (leading, trailing or doubled "/")
// are ignored.
func Load(pattern string) ([]Segment, error) {
	var segments []Segment
	for raw := range strings.SplitSeq(pattern, "/") {
		if raw == "" {
			continue
		}

		match := dynamicSegment.FindStringSubmatch(raw)
		if match == nil {
			segments = append(segments, Segment{Literal: raw})
			continue
		}

		function, argument := match[1], match[2]
		var part Part
		switch function {
		case "str":
			segments = append(segments, Segment{Literal: argument})
			continue
		case "year":
			part = Year{}
		case "month":
			part = Month{}
		case "day":
			part = Day{}
		case "date":
			if argument == "" {
				return nil, unsupported(raw)
			}
			part = Date{Format: argument}
		case "regex":
			if argument == "" {
				return nil, unsupported(raw)
			}
			re, err := NewRegex(argument)
			if err != nil {
				return nil, err
			}
			part = re
		default:
			return nil, unsupported(raw)
		}
		segments = append(segments, Segment{Part: part})
	}
	return segments, nil
}

func unsupported(segment string) error {
	return errors.Newf("unsupported dynamic path: %s", segment).
		Category(errors.CategoryValidation).
		Context("segment", segment).
		Build()
}

// Serialize turns segments back into a pattern. Literals containing "{"
// are wrapped as {str:...} so they load back as literals.
func Serialize(segments []Segment) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		switch {
		case s.Part != nil:
			parts[i] = s.Part.String()
		case strings.Contains(s.Literal, "{"):
			parts[i] = "{str:" + s.Literal + "}"
		default:
			parts[i] = s.Literal
		}
	}
	return strings.Join(parts, "/")
}
