package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/JonMunkholm/shortages/internal/core"
)

// Memory is an in-process store with the same replace semantics as Postgres.
// It backs dry runs and tests, and can inject failures.
type Memory struct {
	mu          sync.Mutex
	tables      map[string][][]any
	columns     map[string][]string
	failures    map[string]error
	drift       map[string]int64
	unavailable bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tables:   make(map[string][][]any),
		columns:  make(map[string][]string),
		failures: make(map[string]error),
		drift:    make(map[string]int64),
	}
}

// Ping fails with core.ErrStoreUnavailable after SetUnavailable(true).
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return fmt.Errorf("%w: memory store marked unavailable", core.ErrStoreUnavailable)
	}
	return ctx.Err()
}

// ReplaceTable stores a copy of rows. On an injected failure the previous
// contents are kept.
func (m *Memory) ReplaceTable(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return 0, fmt.Errorf("%w: memory store marked unavailable", core.ErrStoreUnavailable)
	}
	if err, ok := m.failures[table]; ok {
		return 0, err
	}

	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("copy into %s: row %d has %d values for %d columns", table, i, len(row), len(columns))
		}
	}

	snapshot := make([][]any, len(rows))
	for i, row := range rows {
		snapshot[i] = append([]any(nil), row...)
	}
	m.tables[table] = snapshot
	m.columns[table] = append([]string(nil), columns...)
	delete(m.drift, table)

	return int64(len(snapshot)), nil
}

// CountRows returns the stored row count plus any injected drift.
func (m *Memory) CountRows(ctx context.Context, table string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.unavailable {
		return 0, fmt.Errorf("%w: memory store marked unavailable", core.ErrStoreUnavailable)
	}
	return int64(len(m.tables[table])) + m.drift[table], nil
}

// Rows returns a copy of the stored rows of table.
func (m *Memory) Rows(table string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	out := make([][]any, len(rows))
	for i, row := range rows {
		out[i] = append([]any(nil), row...)
	}
	return out
}

// Columns returns the column list of the last successful load of table.
func (m *Memory) Columns(table string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.columns[table]...)
}

// FailTable makes every later load of table return err. A nil err clears it.
func (m *Memory) FailTable(table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err == nil {
		delete(m.failures, table)
		return
	}
	m.failures[table] = err
}

// SetUnavailable toggles simulated unreachability.
func (m *Memory) SetUnavailable(unavailable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = unavailable
}

// AddDrift simulates another writer touching table after a load, so the
// next CountRows differs from what was persisted.
func (m *Memory) AddDrift(table string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drift[table] += n
}
