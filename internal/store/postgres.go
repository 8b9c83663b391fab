// Package store persists table snapshots.
//
// Every load replaces a table wholesale: the previous contents are deleted and
// the new snapshot is copied in within one transaction. A failed load rolls
// back and leaves the previous snapshot in place. There is no transaction
// spanning several tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds connection parameters for one store.
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Postgres is a PostgreSQL-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// Open builds a connection pool. It does not verify connectivity; call Ping.
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Pool exposes the underlying pool for read-side queries.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Ping verifies the store is reachable.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// ReplaceTable swaps the contents of table for rows in one transaction and
// returns the number of rows copied.
func (p *Postgres) ReplaceTable(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(ctx)
	}()

	ident := pgx.Identifier{table}
	if _, err := tx.Exec(ctx, "DELETE FROM "+ident.Sanitize()); err != nil {
		return 0, fmt.Errorf("clear %s: %w", table, err)
	}

	copied, err := tx.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit %s: %w", table, err)
	}
	return copied, nil
}

// CountRows returns the number of rows currently in table.
func (p *Postgres) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{table}.Sanitize()).Scan(&n)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Close releases all pool connections.
func (p *Postgres) Close() {
	p.pool.Close()
}
