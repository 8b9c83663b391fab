// Package core provides the reconciliation logic for the drug shortage pipeline.
//
// This package holds every data-integrity rule of the system and is
// independent of files, the store, and any transport. The pipeline package
// drives it; tests exercise it directly.
//
// # Stages
//
//  1. Normalize: [NormalizeRegistry] and [NormalizeShortage] map raw rows
//     (header name -> cell) into canonical records. Empty cells and N/A
//     sentinels become NULL; posting dates parse as YYYYMMDD only.
//  2. Resolve keys: [NormalizeProductCode] derives the join key. Registry
//     rows without one are rejected; shortage events without one are kept
//     and flagged unjoinable.
//  3. Reconcile: [Reconcile] deduplicates events and left-joins them to the
//     registry. When several registry rows share a key the first under the
//     declared [TieBreak] wins, so re-runs are reproducible.
//  4. Aggregate: [ManufacturerRiskFrom] derives per-company current counts.
//
// # Table Registry
//
// Destination tables are registered at init time with [Register]; see the
// tables subpackage. Each [TableDefinition] declares its columns, the
// extracts it depends on, and how to encode a [Snapshot] into rows.
//
// # Error Handling
//
// Per-row problems are [RowError] values with ROWxxx codes. Table-level
// problems map to operator codes through [MapError].
package core
