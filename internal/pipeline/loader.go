package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/logging"
)

// load replaces every registered table in load order. A failed table does
// not stop the tables after it.
func (r *Runner) load(ctx context.Context, snap *core.Snapshot, inputs map[core.DatasetKind]InputStatus, opts Options, report *Report) {
	for _, def := range r.tables {
		tr := r.loadTable(ctx, def, snap, inputs, opts)
		r.metrics.ObserveTableLoad(tr.Table, string(tr.Status), tr.RowsPersisted)
		report.Tables = append(report.Tables, tr)
	}
}

func (r *Runner) loadTable(ctx context.Context, def core.TableDefinition, snap *core.Snapshot, inputs map[core.DatasetKind]InputStatus, opts Options) TableReport {
	key := def.Info.Key
	logger := logging.WithFields(ctx, "table", key)
	tr := TableReport{Table: key}

	if blocked, ok := blockedBy(def, inputs); ok {
		tr.Status = blocked.status
		tr.ErrorCode = blocked.code
		tr.Error = blocked.reason
		if blocked.status == TableSkipped {
			logger.Warn("table skipped", "reason", blocked.reason)
		} else {
			logger.Error("table failed", "reason", blocked.reason, "code", blocked.code)
		}
		return tr
	}

	for _, kind := range def.Optional {
		if inputs[kind] == InputMissing {
			tr.Degraded = true
			logger.Warn("loading without optional extract", "missing", kind)
		}
	}

	rows := def.Rows(snap)
	tr.RowsAttempted = len(rows)

	loadCtx := ctx
	if opts.LoadTimeout > 0 {
		var cancel context.CancelFunc
		loadCtx, cancel = context.WithTimeout(ctx, opts.LoadTimeout)
		defer cancel()
	}

	start := time.Now()
	persisted, err := r.store.ReplaceTable(loadCtx, key, def.Info.Columns, rows)
	tr.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		loadErr := &core.LoadError{Table: key, Err: err}
		msg := core.MapError(loadErr)
		tr.Status = TableFailed
		tr.ErrorCode = msg.Code
		tr.Error = loadErr.Error()
		logger.Error("table load failed, previous snapshot kept",
			"error", err,
			"code", msg.Code,
			"rows_attempted", tr.RowsAttempted,
		)
		return tr
	}

	tr.Status = TableSuccess
	tr.RowsPersisted = persisted
	logger.Info("table loaded",
		"rows", persisted,
		"degraded", tr.Degraded,
		"duration_ms", tr.DurationMS,
	)
	return tr
}

type blockage struct {
	status TableStatus
	code   string
	reason string
}

// blockedBy decides whether a table can be built from the extracts read.
// A missing required extract skips the table. An unreadable extract, required
// or optional, fails it so the previous snapshot is not replaced with data
// derived from a corrupt file.
func blockedBy(def core.TableDefinition, inputs map[core.DatasetKind]InputStatus) (blockage, bool) {
	for _, kind := range def.Requires {
		switch inputs[kind] {
		case InputMissing:
			return blockage{TableSkipped, "IN001", fmt.Sprintf("%s extract missing", kind)}, true
		case InputUnreadable:
			return blockage{TableFailed, "IN002", fmt.Sprintf("%s extract unreadable", kind)}, true
		}
	}
	for _, kind := range def.Optional {
		if inputs[kind] == InputUnreadable {
			return blockage{TableFailed, "IN002", fmt.Sprintf("%s extract unreadable", kind)}, true
		}
	}
	return blockage{}, false
}
