// Package catalog is the PicPocket engine: every operation on locations,
// mounts, tags, images, tasks, sessions and snapshots, written once against
// the datastore backend and its SQL dialect.
//
// Each exported method runs in its own transaction. The mount table is
// process-local state; it is guarded for use from concurrent goroutines but
// is never shared between processes.
package catalog

import (
	"context"
	"database/sql"
	"maps"
	"sync"
	"time"

	"github.com/picpocket/picpocket/internal/datastore"
	"github.com/picpocket/picpocket/internal/dialect"
	"github.com/picpocket/picpocket/internal/imageinfo"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability/metrics"
)

// DefaultBatchSize is how many files an import handles between commits
const DefaultBatchSize = 1000

// DefaultSessionTTL is how long a session lives when no expiry is given
const DefaultSessionTTL = 24 * time.Hour

// Options configure a Catalog
type Options struct {
	// Formats are the file extensions imported when a call names none
	Formats    []string
	SessionTTL time.Duration
	Logger     logger.Logger
	Metrics    *metrics.CatalogMetrics
}

// Catalog is the engine over one backend
type Catalog struct {
	backend datastore.Backend
	db      *sql.DB
	dialect dialect.Dialect
	log     logger.Logger
	metrics *metrics.CatalogMetrics

	formats    []string
	sessionTTL time.Duration

	mountsMu sync.RWMutex
	mounts   map[int64]string
}

// New builds a catalog over an open backend
func New(backend datastore.Backend, opts Options) *Catalog {
	log := opts.Logger
	if log == nil {
		log = logger.NewSlogLogger(nil, logger.LogLevelError, nil)
	}

	formats := imageinfo.NormalizeFormats(opts.Formats)
	if len(formats) == 0 {
		formats = imageinfo.DefaultFormats
	}

	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	return &Catalog{
		backend:    backend,
		db:         backend.DB(),
		dialect:    backend.Dialect(),
		log:        log.Module("catalog"),
		metrics:    opts.Metrics,
		formats:    formats,
		sessionTTL: ttl,
		mounts:     map[int64]string{},
	}
}

// Backend returns the store the catalog runs on
func (c *Catalog) Backend() datastore.Backend { return c.backend }

// Formats returns the default import extensions
func (c *Catalog) Formats() []string { return append([]string(nil), c.formats...) }

// Close closes the backend
func (c *Catalog) Close() error { return c.backend.Close() }

// tx runs fn in one transaction and records the operation
func (c *Catalog) tx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	start := time.Now()
	err := datastore.WithTx(ctx, c.db, fn)
	if operation != "" {
		c.metrics.RecordOperation(operation, time.Since(start), err)
	}
	return err
}

// q rewrites "?" placeholders for the backend
func (c *Catalog) q(query string) string {
	return c.dialect.Rebind(query)
}

// Mounts returns a copy of the mount table
func (c *Catalog) Mounts() map[int64]string {
	c.mountsMu.RLock()
	defer c.mountsMu.RUnlock()
	return maps.Clone(c.mounts)
}

func (c *Catalog) mountPoint(id int64) (string, bool) {
	c.mountsMu.RLock()
	defer c.mountsMu.RUnlock()
	path, ok := c.mounts[id]
	return path, ok
}

func (c *Catalog) setMount(id int64, path string) {
	c.mountsMu.Lock()
	c.mounts[id] = path
	count := len(c.mounts)
	c.mountsMu.Unlock()
	c.metrics.SetMounted(count)
}

func (c *Catalog) clearMount(id int64) {
	c.mountsMu.Lock()
	delete(c.mounts, id)
	count := len(c.mounts)
	c.mountsMu.Unlock()
	c.metrics.SetMounted(count)
}
