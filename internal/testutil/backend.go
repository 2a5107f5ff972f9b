// Package testutil provides shared fixtures for tests that need a real
// database: a SQLite file per test and, when Docker is available, a
// PostgreSQL container per package run.
package testutil

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/picpocket/picpocket/internal/datastore"
)

// DefaultTestTimeout bounds a single test's database work
const DefaultTestTimeout = 30 * time.Second

// postgresImage is the server used by integration tests
const postgresImage = "postgres:16-alpine"

// Context returns a context that is cancelled when the test ends or times out
func Context(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), DefaultTestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// SQLite opens an uninitialized SQLite store in a temp directory
func SQLite(t *testing.T) *datastore.Store {
	t.Helper()
	store, err := datastore.NewSQLite(filepath.Join(t.TempDir(), "picpocket.sqlite3"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Postgres opens an uninitialized store in a fresh database on a shared
// container. The test is skipped under -short or without Docker.
func Postgres(t *testing.T) *datastore.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	cfg := sharedServer(t)
	ctx := Context(t)

	admin, err := datastore.NewPostgres(cfg, nil)
	require.NoError(t, err)
	defer admin.Close()

	cfg.DBName = uniqueName()
	_, err = admin.DB().ExecContext(ctx, "CREATE DATABASE "+cfg.DBName)
	require.NoError(t, err)

	store, err := datastore.NewPostgres(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Backends runs fn once per available backend as a subtest
func Backends(t *testing.T, fn func(t *testing.T, store *datastore.Store)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		fn(t, SQLite(t))
	})
	t.Run("postgres", func(t *testing.T) {
		fn(t, Postgres(t))
	})
}

var (
	serverOnce sync.Once
	serverCfg  datastore.PostgresConfig
	serverErr  error

	dbCounter   int
	dbCounterMu sync.Mutex
)

func uniqueName() string {
	dbCounterMu.Lock()
	defer dbCounterMu.Unlock()
	dbCounter++
	return "picpocket_test_" + time.Now().Format("150405") + "_" + strconv.Itoa(dbCounter)
}

// sharedServer starts one container for the whole test binary. It is left
// for the reaper to remove when the binary exits.
func sharedServer(t *testing.T) datastore.PostgresConfig {
	t.Helper()
	serverOnce.Do(func() {
		ctx := context.Background()
		container, err := postgres.Run(ctx, postgresImage,
			postgres.WithDatabase("picpocket"),
			postgres.WithUsername("picpocket"),
			postgres.WithPassword("picpocket"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			serverErr = err
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			serverErr = err
			_ = testcontainers.TerminateContainer(container)
			return
		}
		port, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			serverErr = err
			_ = testcontainers.TerminateContainer(container)
			return
		}

		serverCfg = datastore.PostgresConfig{
			Host:     host,
			Port:     port.Int(),
			DBName:   "picpocket",
			User:     "picpocket",
			Password: "picpocket",
			SSLMode:  "disable",
		}
	})
	require.NoError(t, serverErr, "starting PostgreSQL container")
	return serverCfg
}
