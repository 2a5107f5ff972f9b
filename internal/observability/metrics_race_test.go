package observability

import (
	"net/http"
	"path/filepath"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picpocket/picpocket/internal/datastore"
)

// TestNewMetricsConcurrency verifies that NewMetrics can be called concurrently
// without causing race conditions
func TestNewMetricsConcurrency(t *testing.T) {
	const numGoroutines = 50

	var wg sync.WaitGroup
	for range numGoroutines {
		wg.Go(func() {
			m, err := NewMetrics()
			if !assert.NoError(t, err) {
				return
			}
			assert.NotNil(t, m.registry)
			assert.NotNil(t, m.Catalog)
			assert.NotNil(t, m.HTTP)
		})
	}
	wg.Wait()
}

func TestHandlerServesCollectors(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Catalog.SetMounted(2)

	store, err := datastore.NewSQLite(filepath.Join(t.TempDir(), "stats.sqlite3"), nil)
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, m.RegisterDatabase(store.DB(), store.Name()))
	assert.Error(t, m.RegisterDatabase(store.DB(), store.Name()), "registered twice")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "picpocket_mounted_locations 2")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
	assert.Contains(t, rec.Body.String(), `go_sql_open_connections{db_name="sqlite"}`)
}
