package testutil

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lold2424/LessURL-Service/internal/infra"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// tables in truncation order
var tables = "click_events, insight_history, monitor_events, links"

// TestDB is a migrated PostgreSQL holding links, click events, insight
// history and monitor events.
type TestDB struct {
	Pool      *pgxpool.Pool
	container *postgres.PostgresContainer
}

// SetupTestDB starts PostgreSQL and applies migrations/schema
func SetupTestDB(ctx context.Context) (*TestDB, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("lessurl_test"),
		postgres.WithUsername("lessurl"),
		postgres.WithPassword("lessurl"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*TestDB, error) {
		_ = container.Terminate(ctx)
		return nil, err
	}

	connString, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fail(err)
	}
	if err := infra.RunMigrations(MigrationsPath(), connString); err != nil {
		return fail(err)
	}
	pool, err := infra.NewPostgresPool(ctx, connString)
	if err != nil {
		return fail(err)
	}

	return &TestDB{Pool: pool, container: container}, nil
}

// MigrationsPath returns the absolute path of migrations/schema
func MigrationsPath() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "../../migrations/schema")
}

// Container exposes the postgres container to infra tests
func (t *TestDB) Container() *postgres.PostgresContainer {
	return t.container
}

// ClickEventCount returns how many click events are stored for shortID
func (t *TestDB) ClickEventCount(ctx context.Context, shortID string) (int, error) {
	var n int
	err := t.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM click_events WHERE short_id = $1`, shortID).Scan(&n)
	return n, err
}

// Cleanup empties every table between tests
func (t *TestDB) Cleanup(ctx context.Context) {
	if t == nil || t.Pool == nil {
		return
	}
	_, _ = t.Pool.Exec(ctx, "TRUNCATE TABLE "+tables+" RESTART IDENTITY")
}

// Teardown closes the pool and stops the container
func (t *TestDB) Teardown(ctx context.Context) {
	if t.Pool != nil {
		t.Pool.Close()
	}
	if t.container != nil {
		_ = t.container.Terminate(ctx)
	}
}
