package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// execute runs one picpocket command line against the store in dir
func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	ctx := &cli.Context{
		Out: &out,
		Prompt: func() (string, error) {
			t.Fatal("unexpected password prompt")
			return "", nil
		},
	}
	root := RootCommand(ctx, &buildinfo.Context{Version: "test", BuildDate: "today"})
	root.SetArgs(append([]string{"--config", dir}, args...))
	root.SetOut(&out)
	root.SetErr(&out)

	err := root.ExecuteContext(t.Context())
	if closeErr := ctx.Close(); err == nil {
		err = closeErr
	}
	return out.String(), err
}

func mustExecute(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := execute(t, dir, args...)
	require.NoError(t, err, "picpocket %v: %s", args, out)
	return out
}

func writePNG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// setupStore initializes a SQLite store with one imported source location
func setupStore(t *testing.T) (dir, photos string, ids []int64) {
	t.Helper()
	dir = t.TempDir()
	photos = t.TempDir()
	writePNG(t, filepath.Join(photos, "beach.png"), 12, 8)
	writePNG(t, filepath.Join(photos, "2024", "icon.png"), 4, 4)

	out := mustExecute(t, dir, "init")
	assert.Contains(t, out, "Initialized PicPocket (sqlite)")

	out = mustExecute(t, dir, "location", "add", "photos", photos, "--source", "--description", "Main disk")
	assert.Contains(t, out, "Added location photos")

	out = mustExecute(t, dir, "--json", "location", "import", "photos", "--tag", "trips/beach")
	var imported struct {
		IDs []int64 `json:"ids"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	require.Len(t, imported.IDs, 2)
	return dir, photos, imported.IDs
}

func TestImportAndSearch(t *testing.T) {
	dir, _, _ := setupStore(t)

	assert.Equal(t, "2\n", mustExecute(t, dir, "image", "count"))
	assert.Equal(t, "2\n", mustExecute(t, dir, "image", "count", "--all", "trips/beach"))
	assert.Equal(t, "0\n", mustExecute(t, dir, "image", "count", "--tagged=false"))

	out := mustExecute(t, dir, "--json", "image", "search", "--filter", "width>5")
	var images []catalog.Image
	require.NoError(t, json.Unmarshal([]byte(out), &images))
	require.Len(t, images, 1)
	assert.Equal(t, "beach.png", images[0].Path)
	require.NotNil(t, images[0].Width)
	assert.Equal(t, int64(12), *images[0].Width)

	out = mustExecute(t, dir, "image", "search", "--order", "path")
	assert.Contains(t, out, "2024/icon.png")
	assert.Contains(t, out, "beach.png")
	assert.Less(t, bytes.Index([]byte(out), []byte("2024/icon.png")), bytes.Index([]byte(out), []byte("beach.png")))

	out = mustExecute(t, dir, "--json", "tag", "list")
	var tags []string
	require.NoError(t, json.Unmarshal([]byte(out), &tags))
	assert.Contains(t, tags, "trips/beach")

	out = mustExecute(t, dir, "tag", "list", "--tree")
	assert.Contains(t, out, "trips\n  beach\n")
}

func TestEditAndTagImage(t *testing.T) {
	dir, _, ids := setupStore(t)
	id := strconv.FormatInt(ids[0], 10)

	mustExecute(t, dir, "image", "edit", id, "--title", "Sunset", "--rating", "4")
	mustExecute(t, dir, "image", "tag", id, "people/ann", "places/coast")
	mustExecute(t, dir, "image", "untag", id, "places/coast")

	out := mustExecute(t, dir, "--json", "image", "show", id)
	var img catalog.Image
	require.NoError(t, json.Unmarshal([]byte(out), &img))
	require.NotNil(t, img.Title)
	assert.Equal(t, "Sunset", *img.Title)
	require.NotNil(t, img.Rating)
	assert.Equal(t, int64(4), *img.Rating)
	assert.ElementsMatch(t, []string{"people/ann", "trips/beach"}, img.Tags)

	mustExecute(t, dir, "image", "edit", id, "--clear", "title")
	out = mustExecute(t, dir, "image", "show", id)
	assert.Contains(t, out, "title     -")

	assert.Equal(t, "1\n", mustExecute(t, dir, "image", "count", "--filter", "rating>=4"))
	assert.Equal(t, "1\n", mustExecute(t, dir, "image", "count", "--any", "people"))
}

func TestExportAndImport(t *testing.T) {
	dir, photos, ids := setupStore(t)
	mustExecute(t, dir, "image", "edit", strconv.FormatInt(ids[0], 10), "--creator", "Ann")

	snapshot := filepath.Join(t.TempDir(), "catalog.json")
	mustExecute(t, dir, "export", snapshot)

	other := t.TempDir()
	mustExecute(t, other, "init")
	mustExecute(t, other, "import", snapshot)

	assert.Equal(t, "2\n", mustExecute(t, other, "image", "count"))
	assert.Equal(t, "1\n", mustExecute(t, other, "image", "count", "--filter", "creator=Ann"))

	out := mustExecute(t, other, "--json", "location", "show", "photos")
	var location catalog.Location
	require.NoError(t, json.Unmarshal([]byte(out), &location))
	require.NotNil(t, location.Path)
	assert.Equal(t, photos, *location.Path)
}

func TestExitCodes(t *testing.T) {
	dir, _, _ := setupStore(t)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"missing location", []string{"location", "show", "nowhere"}, cli.ExitNotFound},
		{"duplicate location", []string{"location", "add", "photos", t.TempDir(), "--source"}, cli.ExitConflict},
		{"bad image id", []string{"image", "show", "abc"}, cli.ExitValidation},
		{"missing image", []string{"image", "show", "999"}, cli.ExitNotFound},
		{"bad filter", []string{"image", "search", "--filter", "colour=red"}, cli.ExitValidation},
		{"unknown flag", []string{"image", "search", "--sideways"}, cli.ExitValidation},
		{"too many args", []string{"tag", "show", "a", "b"}, cli.ExitValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, dir, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, cli.ExitCode(err), "%v", err)
		})
	}
}

func TestCommandsNeedInit(t *testing.T) {
	_, err := execute(t, t.TempDir(), "location", "list")
	require.Error(t, err)
	assert.Equal(t, cli.ExitNotFound, cli.ExitCode(err))

	dir := t.TempDir()
	mustExecute(t, dir, "init")
	_, err = execute(t, dir, "init")
	require.Error(t, err)
	assert.Equal(t, cli.ExitConflict, cli.ExitCode(err))
}

func TestVersion(t *testing.T) {
	out := mustExecute(t, t.TempDir(), "--json", "version")
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "test", info["version"])
	assert.NotEmpty(t, info["error"], "no store has been created")

	dir := t.TempDir()
	mustExecute(t, dir, "init")
	out = mustExecute(t, dir, "version")
	assert.Regexp(t, `backend\s+sqlite\n`, out)
	assert.Regexp(t, `schema\s+`+regexp.QuoteMeta(buildinfo.Current.String()), out)
}
