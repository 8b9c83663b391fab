// Package pipeline runs the batch: read both extracts, normalize and
// reconcile them, replace every destination table and verify the counts.
//
// Stages run sequentially. The only state shared between runs is the store.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/logging"
	"github.com/JonMunkholm/shortages/internal/metrics"
	"github.com/JonMunkholm/shortages/internal/source"
	"github.com/google/uuid"
)

// DefaultRowErrorSamples is how many row errors a report keeps verbatim.
const DefaultRowErrorSamples = 20

// DefaultPingTimeout bounds the store reachability check before any load.
const DefaultPingTimeout = 5 * time.Second

// Store is the persistence the pipeline needs.
type Store interface {
	Ping(ctx context.Context) error
	ReplaceTable(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	CountRows(ctx context.Context, table string) (int64, error)
}

// Inputs names the two extract files.
type Inputs struct {
	RegistryPath  string
	ShortagesPath string
}

// Options configures one run.
type Options struct {
	AsOf            time.Time     // reference date for exported and reported days_active, zero means today (UTC)
	TieBreak        core.TieBreak // registry tie-break order
	LoadTimeout     time.Duration // per table, zero means no timeout
	RowErrorSamples int           // row errors kept in the report
	ExportDir       string        // write processed CSVs here when set
	DryRun          bool          // marks the report; the caller supplies a throwaway store
}

// Runner executes pipeline runs against one store.
type Runner struct {
	store       Store
	metrics     *metrics.Metrics
	tables      []core.TableDefinition
	now         func() time.Time
	pingTimeout time.Duration
}

// NewRunner creates a runner over every registered table. m may be nil.
func NewRunner(store Store, m *metrics.Metrics) *Runner {
	return &Runner{
		store:       store,
		metrics:     m,
		tables:      core.All(),
		now:         time.Now,
		pingTimeout: DefaultPingTimeout,
	}
}

// Run executes one full pipeline run. It never returns nil; inspect
// Report.Outcome for the result.
func (r *Runner) Run(ctx context.Context, in Inputs, opts Options) *Report {
	opts = r.withDefaults(opts)

	report := &Report{
		RunID:     uuid.NewString(),
		StartedAt: r.now(),
		AsOf:      opts.AsOf.Format(time.DateOnly),
		TieBreak:  opts.TieBreak,
		DryRun:    opts.DryRun,
	}
	ctx = logging.WithRunID(ctx, report.RunID)
	logger := logging.FromContext(ctx)

	logger.Info("pipeline run started",
		"registry", in.RegistryPath,
		"shortages", in.ShortagesPath,
		"as_of", report.AsOf,
		"tie_break", opts.TieBreak,
		"dry_run", opts.DryRun,
	)

	defer r.finish(ctx, report)

	if err := r.ping(ctx); err != nil {
		msg := core.MapError(err)
		report.Error = err.Error()
		report.ErrorCode = msg.Code
		logger.Error("store unreachable, no table attempted", "error", err, "code", msg.Code)
		return report
	}

	snap, inputs := r.prepare(ctx, in, opts, report)

	r.load(ctx, snap, inputs, opts, report)
	r.verify(ctx, report)

	if opts.ExportDir != "" {
		r.export(ctx, snap, opts.ExportDir, report)
	}

	return report
}

// ping checks the store under its own deadline. Any failure, a timeout
// included, means the store is unreachable.
func (r *Runner) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.pingTimeout)
	defer cancel()

	err := r.store.Ping(ctx)
	if err != nil && !errors.Is(err, core.ErrStoreUnavailable) {
		return fmt.Errorf("%w: %v", core.ErrStoreUnavailable, err)
	}
	return err
}

func (r *Runner) withDefaults(opts Options) Options {
	if opts.AsOf.IsZero() {
		opts.AsOf = r.now().UTC()
	}
	y, m, d := opts.AsOf.Date()
	opts.AsOf = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	if opts.TieBreak == "" {
		opts.TieBreak = core.DefaultTieBreak
	}
	if opts.RowErrorSamples <= 0 {
		opts.RowErrorSamples = DefaultRowErrorSamples
	}
	return opts
}

// prepare reads both extracts and derives the snapshot. Input problems are
// recorded on the report; they never abort the run.
func (r *Runner) prepare(ctx context.Context, in Inputs, opts Options, report *Report) (*core.Snapshot, map[core.DatasetKind]InputStatus) {
	logger := logging.FromContext(ctx)

	var batch core.Batch
	inputs := make(map[core.DatasetKind]InputStatus, 2)
	snap := &core.Snapshot{AsOf: opts.AsOf, Inputs: make(map[core.DatasetKind]bool, 2)}

	for _, spec := range []struct {
		kind core.DatasetKind
		path string
	}{
		{core.DatasetRegistry, in.RegistryPath},
		{core.DatasetShortage, in.ShortagesPath},
	} {
		ir := InputReport{Kind: spec.kind, Path: spec.path}

		ext, err := source.ReadFile(spec.path, spec.kind)
		switch {
		case err == nil:
			ir.Status = InputRead
			ir.Rows = len(ext.Rows)
			snap.Inputs[spec.kind] = true
			if spec.kind == core.DatasetRegistry {
				core.NormalizeRegistryRows(ext.Rows, &batch)
			} else {
				core.NormalizeShortageRows(ext.Rows, &batch)
			}
			logger.Info("extract read", "kind", spec.kind, "path", spec.path, "rows", ir.Rows)

		case errors.Is(err, core.ErrMissingInput):
			ir.Status = InputMissing
			ir.ErrorCode = core.MapError(err).Code
			ir.Error = err.Error()
			logger.Warn("extract missing, dependent tables will be skipped", "kind", spec.kind, "path", spec.path)

		default:
			ir.Status = InputUnreadable
			ir.ErrorCode = core.MapError(err).Code
			ir.Error = err.Error()
			logger.Error("extract unreadable, dependent tables will fail", "kind", spec.kind, "path", spec.path, "error", err)
		}

		inputs[spec.kind] = ir.Status
		report.Inputs = append(report.Inputs, ir)
	}

	rec := core.Reconcile(batch.Events, batch.Registry, core.ReconcileOptions{
		TieBreak: opts.TieBreak,
		AsOf:     opts.AsOf,
	})

	snap.Registry = batch.Registry
	snap.Events = rec.Events
	snap.Enriched = rec.Records
	snap.Risk = core.ManufacturerRiskFrom(rec.Records)

	report.Reconcile = rec.Stats
	report.RowErrors.add(batch.RowErrors, opts.RowErrorSamples)
	for code, n := range report.RowErrors.ByCode {
		r.metrics.AddRowErrors(code, n)
	}

	logger.Info("reconciled",
		"events", rec.Stats.Events,
		"duplicates_dropped", rec.Stats.DuplicatesDropped,
		"joined", rec.Stats.Joined,
		"unmatched", rec.Stats.Unmatched,
		"unjoinable", rec.Stats.Unjoinable,
		"ambiguous_keys", rec.Stats.AmbiguousKeys,
		"row_errors", report.RowErrors.Total,
	)

	return snap, inputs
}

func (r *Runner) export(ctx context.Context, snap *core.Snapshot, dir string, report *Report) {
	logger := logging.FromContext(ctx)

	var keys []string
	for _, t := range report.Tables {
		if t.Status == TableSuccess {
			keys = append(keys, t.Table)
		}
	}

	paths, err := source.Export(dir, snap, keys)
	report.Exported = paths
	if err != nil {
		logger.Warn("export failed", "dir", dir, "error", err)
		return
	}
	logger.Info("processed tables exported", "dir", dir, "files", len(paths))
}

func (r *Runner) finish(ctx context.Context, report *Report) {
	report.FinishedAt = r.now()
	report.decide()
	r.metrics.ObserveRun(string(report.Outcome), report.Duration())

	logger := logging.FromContext(ctx)
	attrs := []any{
		"outcome", report.Outcome,
		"succeeded", report.Count(TableSuccess),
		"skipped", report.Count(TableSkipped),
		"failed", report.Count(TableFailed),
		"duration_ms", report.Duration().Milliseconds(),
	}
	switch report.Outcome {
	case OutcomeSuccess:
		logger.Info("pipeline run completed", attrs...)
	case OutcomePartial:
		logger.Warn("pipeline run completed partially", attrs...)
	default:
		logger.Error("pipeline run failed", attrs...)
	}
}
