// Package imageinfo reads what PicPocket records about an image file: a
// content hash, pixel dimensions and the EXIF fields that seed creator,
// caption and creation date.
package imageinfo

import (
	"crypto/sha256"
	"encoding/hex"
	"image"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	// decoders registered for image.DecodeConfig
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/logger"
)

// DefaultFormats are the extensions imported when nothing else is configured
var DefaultFormats = []string{".bmp", ".gif", ".heic", ".jpeg", ".jpg", ".mp4", ".orf", ".png"}

var mimeTypes = map[string]string{
	".bmp":  "image/bmp",
	".gif":  "image/gif",
	".heic": "image/heic",
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".orf":  "image/x-olympus-orf",
	".mp4":  "video/mp4",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".webp": "image/webp",
}

// MimeType guesses a mime type from the extension, "" when unknown
func MimeType(path string) string {
	return mimeTypes[strings.ToLower(filepath.Ext(path))]
}

// NormalizeFormats lowercases extensions and makes sure each starts with a dot
func NormalizeFormats(formats []string) []string {
	out := make([]string, 0, len(formats))
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			continue
		}
		if !strings.HasPrefix(format, ".") {
			format = "." + format
		}
		if !slices.Contains(out, format) {
			out = append(out, format)
		}
	}
	return out
}

// HasFormat reports whether path's extension is in formats, ignoring case.
// formats must already be normalized.
func HasFormat(path string, formats []string) bool {
	return slices.Contains(formats, strings.ToLower(filepath.Ext(path)))
}

// Hash returns the hex sha256 of the file's contents
func Hash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.FileError(err, path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.FileError(err, path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Info is what could be learned about an image. Fields are nil when unknown.
type Info struct {
	Width        *int
	Height       *int
	CreationDate *time.Time
	Creator      *string
	Caption      *string
	Exif         map[string]any
}

// Inspect reads dimensions and EXIF data. It never fails; problems are
// logged at debug level and leave the corresponding fields empty.
func Inspect(path string, log logger.Logger) Info {
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelError, nil)
	}
	log = log.With(logger.String("path", path))
	info := Info{Exif: map[string]any{}}

	f, err := os.Open(path)
	if err != nil {
		log.Debug("could not open image", logger.Error(err))
		return info
	}
	defer f.Close()

	if cfg, _, err := image.DecodeConfig(f); err == nil {
		info.Width, info.Height = &cfg.Width, &cfg.Height
	} else {
		log.Debug("could not read image dimensions", logger.Error(err))
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		log.Debug("could not rewind image", logger.Error(err))
		return info
	}

	x, err := exif.Decode(f)
	if err != nil {
		log.Trace("no exif data", logger.Error(err))
		return info
	}

	w := &exifWalker{values: info.Exif, log: log}
	if err := x.Walk(w); err != nil {
		log.Debug("could not walk exif data", logger.Error(err))
	}

	info.Creator = w.stringField(exif.Artist)
	info.Caption = w.stringField(exif.ImageDescription)
	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTimeDigitized, exif.DateTime} {
		if raw := w.stringField(field); raw != nil {
			if date, err := ParseExifDate(*raw); err == nil {
				info.CreationDate = &date
				break
			}
		}
	}

	return info
}

// skipped tags point at other directories rather than holding data
var skippedTags = map[exif.FieldName]bool{
	exif.ExifIFDPointer:             true,
	exif.GPSInfoIFDPointer:          true,
	exif.InteroperabilityIFDPointer: true,
}

// exifWalker collects every tag with a JSON friendly value
type exifWalker struct {
	values map[string]any
	log    logger.Logger
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if skippedTags[name] {
		return nil
	}

	value, ok := tagValue(name, tag)
	if !ok {
		w.log.Trace("skipping exif tag", logger.String("tag", string(name)))
		return nil
	}
	w.values[string(name)] = value
	return nil
}

func (w *exifWalker) stringField(name exif.FieldName) *string {
	s, ok := w.values[string(name)].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

func tagValue(name exif.FieldName, tag *tiff.Tag) (any, bool) {
	count := int(tag.Count)

	switch tag.Format() {
	case tiff.StringVal:
		s, err := tag.StringVal()
		if err != nil {
			return nil, false
		}
		return strings.TrimRight(s, "\x00 "), true
	case tiff.IntVal:
		return collect(count, tag.Int64)
	case tiff.RatVal:
		return collect(count, func(i int) (float64, error) {
			num, den, err := tag.Rat2(i)
			if err != nil || den == 0 {
				return 0, errors.NewStd("invalid rational")
			}
			return float64(num) / float64(den), nil
		})
	case tiff.FloatVal:
		return collect(count, tag.Float)
	case tiff.UndefVal:
		// version tags are ascii digits stored as undefined bytes
		if name == exif.ExifVersion || name == exif.FlashpixVersion {
			return string(tag.Val), true
		}
	}
	return nil, false
}

func collect[T any](count int, get func(int) (T, error)) (any, bool) {
	values := make([]T, 0, count)
	for i := range count {
		v, err := get(i)
		if err != nil {
			return nil, false
		}
		values = append(values, v)
	}
	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return values[0], true
	default:
		return values, true
	}
}

const exifDateLayout = "2006:01:02 15:04:05"

// ParseExifDate parses "YYYY:MM:DD HH:MM:SS" with an optional UTC offset.
// Dates without an offset are taken as local time.
func ParseExifDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{exifDateLayout + "-07:00", exifDateLayout + "-0700", exifDateLayout + "Z07:00"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	t, err := time.ParseInLocation(exifDateLayout, value, time.Local)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
