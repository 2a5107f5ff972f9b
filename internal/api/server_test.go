package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/picpocket/picpocket/internal/api/v1"
	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/conf"
	"github.com/picpocket/picpocket/internal/observability"
	"github.com/picpocket/picpocket/internal/testutil"
)

func newTestServer(t *testing.T, config *Config) (*Server, *catalog.Catalog) {
	t.Helper()
	store := testutil.SQLite(t)
	require.NoError(t, store.Initialize(testutil.Context(t)))

	m, err := observability.NewMetrics()
	require.NoError(t, err)
	cat := catalog.New(store, catalog.Options{Metrics: m.Catalog})

	server, err := New(cat, config, WithMetrics(m))
	require.NoError(t, err)
	return server, cat
}

func get(server *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestHealthCheck(t *testing.T) {
	server, _ := newTestServer(t, DefaultConfig())

	rec := get(server, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var response map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "sqlite", response["backend"])
	assert.InDelta(t, 0, response["mounted"], 0)
	_, err := time.Parse(time.RFC3339, response["timestamp"].(string))
	assert.NoError(t, err, "timestamp should be RFC3339")
}

func TestMetricsEndpoint(t *testing.T) {
	server, cat := newTestServer(t, DefaultConfig())
	_, err := cat.AddLocation(testutil.Context(t), catalog.LocationSpec{Name: "main", Path: t.TempDir(), Source: true})
	require.NoError(t, err)

	// generate an API request and an API error
	assert.Equal(t, http.StatusOK, get(server, v1.Prefix+"/locations").Code)
	assert.Equal(t, http.StatusNotFound, get(server, v1.Prefix+"/locations/missing").Code)

	rec := get(server, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `picpocket_http_requests_total{method="GET",route="/api/v1/locations",status_code="200"} 1`)
	assert.Contains(t, body, `picpocket_http_requests_total{method="GET",route="/api/v1/locations/:ref",status_code="404"} 1`)
	assert.Contains(t, body, `picpocket_http_request_errors_total{category="not-found",route="/api/v1/locations/:ref"} 1`)
	assert.Contains(t, body, "picpocket_catalog_operations_total")
}

func TestSecurityHeadersOnAPI(t *testing.T) {
	server, _ := newTestServer(t, DefaultConfig())
	rec := get(server, v1.Prefix+"/tags")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestPruneSessionsForgetsCachedSessions(t *testing.T) {
	config := DefaultConfig()
	config.PruneInterval = 10 * time.Millisecond
	server, _ := newTestServer(t, config)

	expired := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	req := httptest.NewRequest(http.MethodPost, v1.Prefix+"/sessions",
		strings.NewReader(`{"data": {"user": "ann"}, "expires": "`+expired+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created v1.IDResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := v1.Prefix + "/sessions/" + strconv.FormatInt(created.ID, 10)

	// expired but not yet pruned, and cached
	assert.Equal(t, http.StatusOK, get(server, path).Code)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.PruneSessions(ctx) }()

	assert.Eventually(t, func() bool {
		return get(server, path).Code == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestStartAndShutdown(t *testing.T) {
	config := DefaultConfig()
	config.Listen = "127.0.0.1:0"
	server, _ := newTestServer(t, config)

	done := make(chan error, 1)
	go func() { done <- server.Start() }()

	// wait for the listener before shutting down
	require.Eventually(t, func() bool {
		return server.Echo().ListenerAddr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Shutdown(context.Background()))
	require.NoError(t, <-done)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"bad listen", func(c *Config) { c.Listen = "localhost" }, "invalid listen address"},
		{"zero read timeout", func(c *Config) { c.ReadTimeout = 0 }, "read timeout"},
		{"zero write timeout", func(c *Config) { c.WriteTimeout = 0 }, "write timeout"},
		{"negative cache ttl", func(c *Config) { c.CacheTTL = -time.Second }, "cache TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.modify(config)
			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)

			_, err = New(nil, config)
			require.Error(t, err)
		})
	}

	require.NoError(t, DefaultConfig().Validate())
}

func TestConfigFromSettings(t *testing.T) {
	settings := conf.Default()
	settings.Web.Listen = "0.0.0.0:9000"
	settings.Web.CacheTTL = time.Second

	config := ConfigFromSettings(settings)
	assert.Equal(t, "0.0.0.0:9000", config.Listen)
	assert.Equal(t, time.Second, config.CacheTTL)
	assert.Equal(t, DefaultBodyLimit, config.BodyLimit)
}
