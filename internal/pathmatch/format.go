package pathmatch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/itchyny/timefmt-go"

	"github.com/picpocket/picpocket/internal/errors"
)

// FormatArgs are the values a destination format can reference
type FormatArgs struct {
	Path      string    // path relative to the source root
	Directory string    // directory of Path, "." at the root
	File      string    // file name with extension
	Name      string    // file name without extension
	Extension string    // extension without the dot
	UUID      string    // random hex string
	Date      time.Time // file modification time
	Hash      string    // content hash
	Index     int       // 1-based order of encounter within a run
}

// DummyArgs are the values used to validate a format before it is stored
func DummyArgs() FormatArgs {
	return FormatArgs{
		Path:      "a/b/c.jpg",
		Directory: "a/b",
		File:      "c.jpg",
		Name:      "c",
		Extension: "jpg",
		UUID:      "uuid4",
		Date:      time.Now(),
		Hash:      "hash",
		Index:     1,
	}
}

type piece struct {
	literal string
	token   string
	spec    string
}

// Format is a parsed destination format such as "{date:%Y/%m}/{name}-{index:03}.{extension}".
// "{{" and "}}" produce literal braces.
type Format struct {
	raw    string
	pieces []piece
}

var indexSpec = regexp.MustCompile(`^0?\d+$`)

// ParseFormat parses and checks a destination format
func ParseFormat(format string) (*Format, error) {
	f := &Format{raw: format}

	var literal strings.Builder
	flush := func() {
		if literal.Len() > 0 {
			f.pieces = append(f.pieces, piece{literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch {
		case c == '{' && i+1 < len(format) && format[i+1] == '{':
			literal.WriteByte('{')
			i++
		case c == '}' && i+1 < len(format) && format[i+1] == '}':
			literal.WriteByte('}')
			i++
		case c == '}':
			return nil, formatError(format, "single '}' encountered")
		case c == '{':
			end := strings.IndexByte(format[i:], '}')
			if end < 0 {
				return nil, formatError(format, "unterminated '{'")
			}
			name, spec, _ := strings.Cut(format[i+1:i+end], ":")
			if err := checkToken(name, spec); err != nil {
				return nil, formatError(format, err.Error())
			}
			flush()
			f.pieces = append(f.pieces, piece{token: name, spec: spec})
			i += end
		default:
			literal.WriteByte(c)
		}
	}
	flush()

	return f, nil
}

func checkToken(name, spec string) error {
	switch name {
	case "path", "directory", "file", "name", "extension", "uuid", "hash":
		if spec != "" {
			return fmt.Errorf("%s does not take a format", name)
		}
	case "date":
	case "index":
		if spec != "" && !indexSpec.MatchString(spec) {
			return fmt.Errorf("invalid index format %q", spec)
		}
	default:
		return fmt.Errorf("unknown field %q", name)
	}
	return nil
}

func formatError(format, reason string) error {
	return errors.Newf("invalid destination format %q: %s", format, reason).
		Category(errors.CategoryValidation).
		Context("format", format).
		Build()
}

// ValidateFormat parses format and renders it against DummyArgs
func ValidateFormat(format string) error {
	f, err := ParseFormat(format)
	if err != nil {
		return err
	}
	_, err = f.Render(DummyArgs())
	return err
}

func (f *Format) String() string { return f.raw }

// NeedsDate reports whether rendering reads the file date
func (f *Format) NeedsDate() bool { return f.uses("date") }

// NeedsHash reports whether rendering reads the content hash
func (f *Format) NeedsHash() bool { return f.uses("hash") }

func (f *Format) uses(token string) bool {
	for _, p := range f.pieces {
		if p.token == token {
			return true
		}
	}
	return false
}

// Render produces a destination path. The result must stay inside the
// destination root.
func (f *Format) Render(args FormatArgs) (string, error) {
	var b strings.Builder
	for _, p := range f.pieces {
		if p.token == "" {
			b.WriteString(p.literal)
			continue
		}

		switch p.token {
		case "path":
			b.WriteString(args.Path)
		case "directory":
			b.WriteString(args.Directory)
		case "file":
			b.WriteString(args.File)
		case "name":
			b.WriteString(args.Name)
		case "extension":
			b.WriteString(args.Extension)
		case "uuid":
			b.WriteString(args.UUID)
		case "hash":
			b.WriteString(args.Hash)
		case "date":
			if p.spec == "" {
				b.WriteString(args.Date.Format(time.DateTime))
			} else {
				b.WriteString(timefmt.Format(args.Date, p.spec))
			}
		case "index":
			if p.spec == "" {
				b.WriteString(strconv.Itoa(args.Index))
			} else {
				fmt.Fprintf(&b, "%"+p.spec+"d", args.Index)
			}
		}
	}

	rendered := filepath.Clean(filepath.FromSlash(b.String()))
	if rendered == "." || !filepath.IsLocal(rendered) {
		return "", formatError(f.raw, fmt.Sprintf("%q is not a relative path inside the destination", rendered))
	}
	return rendered, nil
}
