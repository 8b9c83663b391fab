package core

import (
	"fmt"
	"sort"
	"sync"
)

// TableInfo describes a destination table.
type TableInfo struct {
	Key        string   // table name in the store: "shortages_with_ndc"
	Label      string   // display name: "Enriched shortages"
	Order      int      // load order, lower first
	Columns    []string // column names in the order Rows emits values
	NaturalKey []string // columns that identify a row within one snapshot
}

// RowsFunc encodes a snapshot into rows matching TableInfo.Columns.
// Each value is a native Go type or a pgtype value.
type RowsFunc func(s *Snapshot) [][]any

// TableDefinition contains everything needed to load a table.
type TableDefinition struct {
	Info TableInfo

	// Requires lists the extracts the table is derived from. When one is
	// missing the table is skipped.
	Requires []DatasetKind

	// Optional lists extracts the table can be built without. A missing
	// optional extract is logged as degraded.
	Optional []DatasetKind

	Rows RowsFunc
}

var (
	registry   = make(map[string]TableDefinition)
	registryMu sync.RWMutex
)

// Register adds a table definition to the registry.
// Panics if a table with the same key is already registered.
func Register(def TableDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("table already registered: %s", def.Info.Key))
	}
	if def.Rows == nil {
		panic(fmt.Sprintf("table %s has no Rows func", def.Info.Key))
	}

	registry[def.Info.Key] = def
}

// Get returns a table definition by key.
func Get(key string) (TableDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered table definitions in load order.
func All() []TableDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]TableDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Order != result[j].Info.Order {
			return result[i].Info.Order < result[j].Info.Order
		}
		return result[i].Info.Key < result[j].Info.Key
	})

	return result
}

// Keys returns the keys of all registered tables in load order.
func Keys() []string {
	defs := All()
	keys := make([]string, len(defs))
	for i, def := range defs {
		keys[i] = def.Info.Key
	}
	return keys
}

// TableCount returns the number of registered tables.
func TableCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}
