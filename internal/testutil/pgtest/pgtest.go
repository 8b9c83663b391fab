//go:build integration

// Package pgtest starts a disposable PostgreSQL container with the shortage
// schema applied.
package pgtest

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

// Container wraps a testcontainers PostgreSQL instance.
type Container struct {
	Container testcontainers.Container
	URL       string
	Pool      *pgxpool.Pool
}

// SchemaPath returns the absolute path of sql/schema.sql.
func SchemaPath() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "sql", "schema.sql")
}

// Start runs a container and connects a pool to it. Both are released when
// the test ends.
func Start(t *testing.T) *Container {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("shortages"),
		tcpostgres.WithUsername("shortages"),
		tcpostgres.WithPassword("shortages"),
		tcpostgres.WithInitScripts(SchemaPath()),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to connect to postgres: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		_ = container.Terminate(context.Background())
	})

	return &Container{Container: container, URL: url, Pool: pool}
}

// TruncateTables empties the given tables.
func (c *Container) TruncateTables(ctx context.Context, tables ...string) error {
	for _, table := range tables {
		if _, err := c.Pool.Exec(ctx, "TRUNCATE "+pgx.Identifier{table}.Sanitize()); err != nil {
			return err
		}
	}
	return nil
}
