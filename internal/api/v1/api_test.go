package api

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/errors"
	"github.com/picpocket/picpocket/internal/observability/metrics"
	"github.com/picpocket/picpocket/internal/testutil"
)

// setupTestEnvironment serves the API over a fresh SQLite catalog
func setupTestEnvironment(t *testing.T) (*echo.Echo, *catalog.Catalog, *Controller) {
	t.Helper()
	store := testutil.SQLite(t)
	require.NoError(t, store.Initialize(testutil.Context(t)))
	cat := catalog.New(store, catalog.Options{})

	httpMetrics, err := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	e := echo.New()
	controller := New(e, cat, Options{Metrics: httpMetrics, CacheTTL: time.Minute})
	e.HTTPErrorHandler = controller.HandleError
	return e, cat, controller
}

// request sends body as JSON through the full router
func request(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, Prefix+path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func writePNG(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, size, size))))
}

func TestLocationEndpoints(t *testing.T) {
	e, _, _ := setupTestEnvironment(t)
	root := t.TempDir()

	rec := request(t, e, http.MethodPost, "/locations", LocationRequest{
		Name: "main", Path: root, Description: "laptop", Source: true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode[IDResponse](t, rec).ID
	assert.Positive(t, id)

	rec = request(t, e, http.MethodPost, "/locations", LocationRequest{Name: "main", Path: root, Source: true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, rec).Category)

	rec = request(t, e, http.MethodGet, "/locations/main", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	location := decode[catalog.Location](t, rec)
	assert.Equal(t, id, location.ID)
	require.NotNil(t, location.Description)
	assert.Equal(t, "laptop", *location.Description)

	rec = request(t, e, http.MethodPatch, "/locations/main", `{"name": "renamed", "description": null, "destination": true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	location = decode[catalog.Location](t, rec)
	assert.Equal(t, "renamed", location.Name)
	assert.Nil(t, location.Description)
	assert.True(t, location.Destination)

	rec = request(t, e, http.MethodGet, "/locations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.Location](t, rec), 1)

	rec = request(t, e, http.MethodDelete, "/locations/renamed", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = request(t, e, http.MethodGet, "/locations/renamed", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	response := decode[ErrorResponse](t, rec)
	assert.Equal(t, "not-found", response.Category)
	assert.Equal(t, http.StatusNotFound, response.Code)
}

func TestMalformedBody(t *testing.T) {
	e, _, _ := setupTestEnvironment(t)

	rec := request(t, e, http.MethodPost, "/locations", `{"name": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Category)

	rec = request(t, e, http.MethodPost, "/locations", LocationRequest{Name: "nowhere"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportSearchAndEdit(t *testing.T) {
	e, _, _ := setupTestEnvironment(t)
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "small.png"), 4)
	writePNG(t, filepath.Join(root, "trip", "large.png"), 16)

	rec := request(t, e, http.MethodPost, "/locations", LocationRequest{Name: "main", Path: root, Source: true})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = request(t, e, http.MethodPost, "/locations/main/import", ImportRequest{Tags: []string{"imported"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[IDsResponse](t, rec).IDs, 2)

	rec = request(t, e, http.MethodPost, "/images/search", `{"filter": {"column": "width", "comparator": ">", "value": 5}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	images := decode[SearchResponse](t, rec).Images
	require.Len(t, images, 1)
	large := images[0]
	assert.Equal(t, "trip/large.png", large.Path)

	rec = request(t, e, http.MethodPost, "/images/count", SearchRequest{AnyTags: []string{"imported"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[CountResponse](t, rec).Count)

	rec = request(t, e, http.MethodPatch, "/images/"+itoa(large.ID), `{"title": "Harbour", "rating": 4}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[catalog.Image](t, rec)
	require.NotNil(t, edited.Rating)
	assert.Equal(t, int64(4), *edited.Rating)
	assert.Equal(t, []string{"imported"}, edited.Tags)

	rec = request(t, e, http.MethodPut, "/images/"+itoa(large.ID)+"/tags/animals/cat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = request(t, e, http.MethodGet, "/images/"+itoa(large.ID)+"?tags=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.ElementsMatch(t, []string{"animals/cat", "imported"}, decode[catalog.Image](t, rec).Tags)

	rec = request(t, e, http.MethodGet, "/tags/animals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"cat"}, decode[catalog.Tag](t, rec).Children)

	rec = request(t, e, http.MethodPost, "/tagset", TagSetRequest{ImageIDs: []int64{large.ID}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.TagCount](t, rec), 2)

	rec = request(t, e, http.MethodDelete, "/images/"+itoa(large.ID)+"/tags/animals/cat", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = request(t, e, http.MethodPost, "/images/"+itoa(large.ID)+"/move", MoveImageRequest{Path: "archive/large.png"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "archive/large.png", decode[catalog.Image](t, rec).Path)
	assert.FileExists(t, filepath.Join(root, "archive", "large.png"))

	rec = request(t, e, http.MethodDelete, "/images/"+itoa(large.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = request(t, e, http.MethodGet, "/images/"+itoa(large.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImageRequestErrors(t *testing.T) {
	e, _, _ := setupTestEnvironment(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"non-numeric id", http.MethodGet, "/images/abc", nil, http.StatusBadRequest},
		{"unknown image", http.MethodGet, "/images/999", nil, http.StatusNotFound},
		{"bad bool", http.MethodGet, "/images/1?tags=maybe", nil, http.StatusBadRequest},
		{"unknown column", http.MethodPost, "/images/search", `{"filter": {"column": "colour", "value": "red"}}`, http.StatusBadRequest},
		{"bad order", http.MethodPost, "/images/search", SearchRequest{Order: []string{"random", "id"}}, http.StatusBadRequest},
		{"bad tag format", http.MethodGet, "/tags?format=xml", nil, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/nope", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := request(t, e, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.status, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestTaskEndpoints(t *testing.T) {
	e, cat, _ := setupTestEnvironment(t)
	ctx := testutil.Context(t)

	source, destination := t.TempDir(), t.TempDir()
	writePNG(t, filepath.Join(source, "a.png"), 4)
	for name, path := range map[string]string{"camera": source, "archive": destination} {
		_, err := cat.AddLocation(ctx, catalog.LocationSpec{Name: name, Path: path, Source: true, Destination: true})
		require.NoError(t, err)
	}
	require.NoError(t, cat.AddTask(ctx, catalog.TaskSpec{
		Name:        "backup",
		Source:      catalog.ByName("camera"),
		Destination: catalog.ByName("archive"),
	}, false))

	rec := request(t, e, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]catalog.Task](t, rec), 1)

	rec = request(t, e, http.MethodGet, "/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not-found", decode[ErrorResponse](t, rec).Category)

	rec = request(t, e, http.MethodPost, "/tasks/backup/run", RunTaskRequest{Tags: []string{"copied"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[IDsResponse](t, rec).IDs, 1)
	assert.FileExists(t, filepath.Join(destination, "a.png"))

	rec = request(t, e, http.MethodGet, "/tasks/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, decode[catalog.Task](t, rec).LastRan)

	rec = request(t, e, http.MethodPost, "/tasks/missing/run", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionsAreCached(t *testing.T) {
	e, _, controller := setupTestEnvironment(t)

	rec := request(t, e, http.MethodPost, "/sessions", SessionRequest{Data: map[string]any{"user": "ann"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[IDResponse](t, rec).ID

	rec = request(t, e, http.MethodGet, "/sessions/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"user": "ann"}, decode[map[string]any](t, rec))
	assert.InDelta(t, 1, controller.metrics.SessionCacheLookups(metrics.CacheHit), 0)

	controller.ForgetSessions()
	rec = request(t, e, http.MethodGet, "/sessions/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, controller.metrics.SessionCacheLookups(metrics.CacheMiss), 0)

	rec = request(t, e, http.MethodGet, "/sessions/"+itoa(id), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 2, controller.metrics.SessionCacheLookups(metrics.CacheHit), 0)

	rec = request(t, e, http.MethodGet, "/sessions/999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		category errors.ErrorCategory
		status   int
	}{
		{errors.CategoryValidation, http.StatusBadRequest},
		{errors.CategoryNotFound, http.StatusNotFound},
		{errors.CategoryConflict, http.StatusConflict},
		{errors.CategoryFileIO, http.StatusUnprocessableEntity},
		{errors.CategoryVersion, http.StatusPreconditionFailed},
		{errors.CategoryDatabase, http.StatusInternalServerError},
		{errors.CategoryGeneric, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			err := errors.Newf("failed").Category(tt.category).Build()
			assert.Equal(t, tt.status, StatusFor(err))
		})
	}

	assert.Equal(t, http.StatusTeapot, StatusFor(echo.NewHTTPError(http.StatusTeapot)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.NewStd("plain")))
}

func TestHandleErrorHidesInternalDetails(t *testing.T) {
	e, _, controller := setupTestEnvironment(t)
	e.GET("/broken", func(echo.Context) error {
		return errors.Newf("connection to 10.0.0.5 refused").Category(errors.CategoryDatabase).Build()
	})

	req := httptest.NewRequest(http.MethodGet, "/broken", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	response := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), response.Error)
	assert.Equal(t, "database", response.Category)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")

	req = httptest.NewRequest(http.MethodHead, "/broken", http.NoBody)
	rec = httptest.NewRecorder()
	controller.HandleError(errors.Newf("gone").Category(errors.CategoryNotFound).Build(), e.NewContext(req, rec))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func itoa(id int64) string {
	return sessionKey(id)
}
