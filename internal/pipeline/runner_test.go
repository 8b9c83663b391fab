package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/core/tables"
	"github.com/JonMunkholm/shortages/internal/metrics"
	"github.com/JonMunkholm/shortages/internal/store"
)

const registryCSV = `product_ndc,package_ndc,generic_name,brand_name,route,product_type,package_description
A100,A100-2,zorvex,Zorvex,ORAL,HUMAN PRESCRIPTION DRUG,30 tablets
A100,A100-1,zorvex,Zorvex XR,ORAL,HUMAN PRESCRIPTION DRUG,90 tablets
C300,C300-1,otherin,Otherex,TOPICAL,HUMAN OTC DRUG,1 tube
`

// Same rows, reversed.
const registryReversedCSV = `product_ndc,package_ndc,generic_name,brand_name,route,product_type,package_description
C300,C300-1,otherin,Otherex,TOPICAL,HUMAN OTC DRUG,1 tube
A100,A100-1,zorvex,Zorvex XR,ORAL,HUMAN PRESCRIPTION DRUG,90 tablets
A100,A100-2,zorvex,Zorvex,ORAL,HUMAN PRESCRIPTION DRUG,30 tablets
`

const shortagesCSV = `product_ndc,generic_name,status,initial_posting_date,company_name,dosage_form
A100,Zorvex,Current,20240115,Acme,Tablet
B200,Quellin,Current,20240201,Beta,Injection
`

var testAsOf = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// Column positions in shortages_with_ndc.
const (
	colProductNDC  = 0
	colPostingDate = 4
	colPackageNDC  = 7
	colBrandName   = 9
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type fixture struct {
	dir    string
	inputs Inputs
	mem    *store.Memory
	runner *Runner
}

func newFixture(t *testing.T, registry, shortages string) *fixture {
	t.Helper()
	dir := t.TempDir()

	in := Inputs{
		RegistryPath:  filepath.Join(dir, "ndc.csv"),
		ShortagesPath: filepath.Join(dir, "shortages.csv"),
	}
	if registry != "" {
		writeFile(t, dir, "ndc.csv", registry)
	}
	if shortages != "" {
		writeFile(t, dir, "shortages.csv", shortages)
	}

	mem := store.NewMemory()
	return &fixture{dir: dir, inputs: in, mem: mem, runner: NewRunner(mem, metrics.New())}
}

func (f *fixture) run(t *testing.T) *Report {
	t.Helper()
	return f.runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf})
}

func TestRun_EnrichesEveryEvent(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	report := f.run(t)

	require.Equal(t, OutcomeSuccess, report.Outcome, "report: %+v", report)
	assert.Equal(t, ExitSuccess, report.ExitCode())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "2024-03-01", report.AsOf)

	rows := f.mem.Rows(tables.ShortagesWithNDC)
	require.Len(t, rows, 2, "one enriched row per shortage event")

	a := rows[0]
	assert.Equal(t, pgtype.Text{String: "A100", Valid: true}, a[colProductNDC])
	assert.Equal(t, pgtype.Text{String: "A1001", Valid: true}, a[colPackageNDC], "lowest package code wins")
	assert.Equal(t, pgtype.Text{String: "Zorvex XR", Valid: true}, a[colBrandName])
	assert.Equal(t, pgtype.Date{Time: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Valid: true}, a[colPostingDate])

	b := rows[1]
	assert.Equal(t, pgtype.Text{String: "B200", Valid: true}, b[colProductNDC])
	for i := colPackageNDC; i < len(b); i++ {
		assert.Equal(t, pgtype.Text{}, b[i], "unmatched registry column %d is NULL", i)
	}

	assert.Len(t, f.mem.Rows(tables.RawNDC), 3)
	assert.Len(t, f.mem.Rows(tables.RawDrugShortages), 2)

	risk := f.mem.Rows(tables.ManufacturerRisk)
	require.Len(t, risk, 2)
	assert.Equal(t, []any{"Acme", int32(1), int32(1)}, risk[0])
	assert.Equal(t, []any{"Beta", int32(1), int32(1)}, risk[1])

	assert.Equal(t, 1, report.Reconcile.Joined)
	assert.Equal(t, 1, report.Reconcile.Unmatched)
	assert.Equal(t, 1, report.Reconcile.AmbiguousKeys)

	for _, tr := range report.Tables {
		require.NotNil(t, tr.RowsVerified, tr.Table)
		assert.Equal(t, tr.RowsPersisted, *tr.RowsVerified, tr.Table)
		assert.False(t, tr.Mismatch, tr.Table)
	}
}

func TestRun_IdempotentReload(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)

	first := f.run(t)
	require.Equal(t, OutcomeSuccess, first.Outcome)
	snapshot := make(map[string][][]any)
	for _, key := range core.Keys() {
		snapshot[key] = f.mem.Rows(key)
	}

	second := f.run(t)
	require.Equal(t, OutcomeSuccess, second.Outcome)
	assert.NotEqual(t, first.RunID, second.RunID)

	for _, key := range core.Keys() {
		assert.Equal(t, snapshot[key], f.mem.Rows(key), "table %s changed on reload", key)
		assert.Equal(t, first.Table(key).RowsPersisted, second.Table(key).RowsPersisted)
	}
}

func TestRun_DeterministicAcrossRegistryOrder(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	require.Equal(t, OutcomeSuccess, f.run(t).Outcome)
	want := f.mem.Rows(tables.ShortagesWithNDC)

	writeFile(t, f.dir, "ndc.csv", registryReversedCSV)
	require.Equal(t, OutcomeSuccess, f.run(t).Outcome)
	assert.Equal(t, want, f.mem.Rows(tables.ShortagesWithNDC))
}

func TestRun_MissingRegistry(t *testing.T) {
	f := newFixture(t, "", shortagesCSV)
	report := f.run(t)

	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, ExitPartial, report.ExitCode())

	raw := report.Table(tables.RawNDC)
	require.NotNil(t, raw)
	assert.Equal(t, TableSkipped, raw.Status)
	assert.Equal(t, "IN001", raw.ErrorCode)

	enriched := report.Table(tables.ShortagesWithNDC)
	require.NotNil(t, enriched)
	assert.Equal(t, TableSuccess, enriched.Status)
	assert.True(t, enriched.Degraded)
	assert.Equal(t, int64(2), enriched.RowsPersisted)

	for _, row := range f.mem.Rows(tables.ShortagesWithNDC) {
		assert.Equal(t, pgtype.Text{}, row[colBrandName])
	}
	assert.Equal(t, InputMissing, report.Inputs[0].Status)
}

func TestRun_MissingShortages(t *testing.T) {
	f := newFixture(t, registryCSV, "")
	report := f.run(t)

	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, TableSuccess, report.Table(tables.RawNDC).Status)
	for _, key := range []string{tables.RawDrugShortages, tables.ShortagesWithNDC, tables.ManufacturerRisk} {
		assert.Equal(t, TableSkipped, report.Table(key).Status, key)
	}
}

func TestRun_BothMissingIsFailure(t *testing.T) {
	f := newFixture(t, "", "")
	report := f.run(t)

	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Equal(t, ExitFailure, report.ExitCode())
	assert.Equal(t, len(core.Keys()), report.Count(TableSkipped))
}

func TestRun_UnreadableShortages(t *testing.T) {
	f := newFixture(t, registryCSV, "name,notes\nZorvex,x\n")
	report := f.run(t)

	assert.Equal(t, OutcomePartial, report.Outcome)
	assert.Equal(t, InputUnreadable, report.Inputs[1].Status)
	assert.Equal(t, "IN002", report.Inputs[1].ErrorCode)

	for _, key := range []string{tables.RawDrugShortages, tables.ShortagesWithNDC, tables.ManufacturerRisk} {
		tr := report.Table(key)
		assert.Equal(t, TableFailed, tr.Status, key)
		assert.Equal(t, "IN002", tr.ErrorCode, key)
	}
}

func TestRun_ShortagesWithoutProductCodeColumn(t *testing.T) {
	shortages := "generic_name,status,initial_posting_date,company_name\n" +
		"Zorvex,Current,20240115,Acme\n" +
		"Quellin,Current,20240201,Beta\n"
	f := newFixture(t, registryCSV, shortages)

	report := f.run(t)
	require.Equal(t, OutcomeSuccess, report.Outcome, "report: %+v", report)
	assert.Equal(t, InputRead, report.Inputs[1].Status)

	assert.Equal(t, 2, report.Reconcile.Unjoinable)
	assert.Zero(t, report.Reconcile.Joined)
	assert.Zero(t, report.Reconcile.Unmatched)

	rows := f.mem.Rows(tables.ShortagesWithNDC)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, pgtype.Text{}, row[colProductNDC])
		assert.Equal(t, pgtype.Text{}, row[colBrandName])
	}
	assert.Len(t, f.mem.Rows(tables.RawDrugShortages), 2)
}

func TestRun_FansOutOneRegistryProduct(t *testing.T) {
	registry := "product_ndc,package_ndc,brand_name\nA100,A100-1,Zorvex\n"
	shortages := "product_ndc,generic_name,status,initial_posting_date,company_name\n" +
		"A100,Zorvex,Current,20240115,Acme\n" +
		"A100,Zorvex,Current,20240120,Beta\n" +
		"B200,Quellin,Current,20240201,Gamma\n"
	f := newFixture(t, registry, shortages)

	report := f.run(t)
	require.Equal(t, OutcomeSuccess, report.Outcome, "report: %+v", report)

	rows := f.mem.Rows(tables.ShortagesWithNDC)
	require.Len(t, rows, 3)

	zorvex := pgtype.Text{String: "Zorvex", Valid: true}
	var branded int
	for _, row := range rows {
		if row[colBrandName] == zorvex {
			branded++
		}
	}
	assert.Equal(t, 2, branded)
	assert.Equal(t, pgtype.Text{}, rows[2][colBrandName], "B200 has no registry match")
	assert.Equal(t, 2, report.Reconcile.Joined)
	assert.Equal(t, 1, report.Reconcile.Unmatched)
}

func TestRun_PersistedRowsIgnoreClock(t *testing.T) {
	snapshot := func(now time.Time) map[string][][]any {
		f := newFixture(t, registryCSV, shortagesCSV)
		f.runner.now = func() time.Time { return now }

		report := f.runner.Run(context.Background(), f.inputs, Options{})
		require.Equal(t, OutcomeSuccess, report.Outcome)
		require.Equal(t, now.Format(time.DateOnly), report.AsOf)

		out := make(map[string][][]any)
		for _, key := range core.Keys() {
			out[key] = f.mem.Rows(key)
		}
		return out
	}

	first := snapshot(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	second := snapshot(time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC))
	for key, rows := range first {
		assert.Equal(t, rows, second[key], "table %s depends on the run date", key)
	}
}

func TestRun_UnreadableRegistryFailsEnriched(t *testing.T) {
	f := newFixture(t, "name\nZorvex\n", shortagesCSV)
	report := f.run(t)

	assert.Equal(t, TableFailed, report.Table(tables.RawNDC).Status)
	assert.Equal(t, TableFailed, report.Table(tables.ShortagesWithNDC).Status)
	assert.Equal(t, TableSuccess, report.Table(tables.RawDrugShortages).Status)
	assert.Equal(t, OutcomePartial, report.Outcome)
}

func TestRun_StoreUnavailable(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	f.mem.SetUnavailable(true)

	report := f.run(t)
	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Equal(t, "DB004", report.ErrorCode)
	assert.Empty(t, report.Tables, "no table is attempted")
}

// hangingStore never answers a ping until the caller gives up.
type hangingStore struct {
	*store.Memory
}

func (h hangingStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRun_PingTimesOut(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	runner := NewRunner(hangingStore{Memory: f.mem}, metrics.New())
	runner.pingTimeout = 20 * time.Millisecond

	start := time.Now()
	report := runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf})

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, OutcomeFailure, report.Outcome)
	assert.Equal(t, "DB004", report.ErrorCode)
	assert.Contains(t, report.Error, "deadline exceeded")
	assert.Empty(t, report.Tables, "no table is attempted")
}

func TestRun_TableFailureKeepsPreviousSnapshot(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	require.Equal(t, OutcomeSuccess, f.run(t).Outcome)
	previous := f.mem.Rows(tables.ShortagesWithNDC)

	writeFile(t, f.dir, "shortages.csv", shortagesCSV+"C300,Otherin,Current,20240210,Gamma,Cream\n")
	f.mem.FailTable(tables.ShortagesWithNDC, errors.New("connection reset by peer"))

	report := f.run(t)
	assert.Equal(t, OutcomePartial, report.Outcome)

	failed := report.Table(tables.ShortagesWithNDC)
	assert.Equal(t, TableFailed, failed.Status)
	assert.Equal(t, "DB005", failed.ErrorCode)
	assert.Nil(t, failed.RowsVerified, "failed tables are not verified")
	assert.Equal(t, previous, f.mem.Rows(tables.ShortagesWithNDC))

	// Later tables still load.
	assert.Equal(t, TableSuccess, report.Table(tables.ManufacturerRisk).Status)
	assert.Len(t, f.mem.Rows(tables.ManufacturerRisk), 3)
}

// driftingStore reports one extra row for a table on every count.
type driftingStore struct {
	*store.Memory
	table string
}

func (d driftingStore) CountRows(ctx context.Context, table string) (int64, error) {
	n, err := d.Memory.CountRows(ctx, table)
	if table == d.table {
		n++
	}
	return n, err
}

func TestRun_VerificationMismatchIsNonFatal(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	m := metrics.New()
	runner := NewRunner(driftingStore{Memory: f.mem, table: tables.RawNDC}, m)

	report := runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf})
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	tr := report.Table(tables.RawNDC)
	assert.True(t, tr.Mismatch)
	assert.Equal(t, "VER001", tr.ErrorCode)
	require.NotNil(t, tr.RowsVerified)
	assert.Equal(t, tr.RowsPersisted+1, *tr.RowsVerified)
}

// uncountableStore fails every row count for one table.
type uncountableStore struct {
	*store.Memory
	table string
}

func (u uncountableStore) CountRows(ctx context.Context, table string) (int64, error) {
	if table == u.table {
		return 0, errors.New("connection reset by peer")
	}
	return u.Memory.CountRows(ctx, table)
}

func TestRun_VerificationCountFailureIsRecorded(t *testing.T) {
	f := newFixture(t, registryCSV, shortagesCSV)
	runner := NewRunner(uncountableStore{Memory: f.mem, table: tables.RawNDC}, metrics.New())

	report := runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf})
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	tr := report.Table(tables.RawNDC)
	assert.Equal(t, TableSuccess, tr.Status)
	assert.Equal(t, "VER002", tr.ErrorCode)
	assert.Contains(t, tr.Error, "connection reset by peer")
	assert.Nil(t, tr.RowsVerified)
	assert.False(t, tr.Mismatch)

	other := report.Table(tables.RawDrugShortages)
	assert.Empty(t, other.ErrorCode)
	require.NotNil(t, other.RowsVerified)
}

func TestRun_DuplicatesAndUnjoinable(t *testing.T) {
	shortages := shortagesCSV +
		"A100,Zorvex,Current,20240115,ACME,Tablet\n" +
		"N/A,Mystery,Current,20240120,Acme,Tablet\n" +
		",Mystery,Current,20240120,Acme,Tablet\n"
	f := newFixture(t, registryCSV, shortages)

	report := f.run(t)
	require.Equal(t, OutcomeSuccess, report.Outcome)

	assert.Equal(t, 5, report.Reconcile.EventsRead)
	assert.Equal(t, 2, report.Reconcile.DuplicatesDropped)
	assert.Equal(t, 1, report.Reconcile.Unjoinable)
	assert.Len(t, f.mem.Rows(tables.ShortagesWithNDC), 3)

	risk := f.mem.Rows(tables.ManufacturerRisk)
	assert.Equal(t, []any{"Acme", int32(2), int32(1)}, risk[0])
}

func TestRun_RowErrorsSampled(t *testing.T) {
	shortages := "product_ndc,status,initial_posting_date,company_name\n" +
		"A100,Current,2024-01-15,Acme\n" +
		"A101,Maybe,20240115,Acme\n" +
		"A102,Current,bad,Acme\n"
	f := newFixture(t, registryCSV, shortages)

	report := f.runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf, RowErrorSamples: 2})
	assert.Equal(t, 3, report.RowErrors.Total)
	assert.Len(t, report.RowErrors.Samples, 2)
	assert.Equal(t, 2, report.RowErrors.ByCode[core.CodeBadDate])
	assert.Equal(t, 1, report.RowErrors.ByCode[core.CodeUnknownStatus])
}

func TestRun_Export(t *testing.T) {
	f := newFixture(t, "", shortagesCSV)
	out := filepath.Join(f.dir, "out")

	report := f.runner.Run(context.Background(), f.inputs, Options{AsOf: testAsOf, ExportDir: out})
	require.Len(t, report.Exported, 3, "skipped tables are not exported")
	assert.FileExists(t, filepath.Join(out, "shortages_with_ndc.csv"))
	assert.NoFileExists(t, filepath.Join(out, "raw_ndc.csv"))
}

func TestReport_Render(t *testing.T) {
	f := newFixture(t, "", shortagesCSV)
	report := f.run(t)

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, "table"))
		out := buf.String()
		assert.Contains(t, out, "PARTIAL")
		assert.Contains(t, out, "raw_ndc")
		assert.Contains(t, out, "degraded")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, report.Render(&buf, "json"))

		var decoded Report
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, report.RunID, decoded.RunID)
		assert.Equal(t, OutcomePartial, decoded.Outcome)
		assert.Len(t, decoded.Tables, len(report.Tables))
	})

	t.Run("unknown format", func(t *testing.T) {
		assert.Error(t, report.Render(&bytes.Buffer{}, "yaml"))
	})
}

func TestReport_Decide(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   Outcome
	}{
		{"all success", Report{Tables: []TableReport{{Status: TableSuccess}, {Status: TableSuccess}}}, OutcomeSuccess},
		{"one skipped", Report{Tables: []TableReport{{Status: TableSuccess}, {Status: TableSkipped}}}, OutcomePartial},
		{"one failed", Report{Tables: []TableReport{{Status: TableFailed}, {Status: TableSuccess}}}, OutcomePartial},
		{"none succeeded", Report{Tables: []TableReport{{Status: TableFailed}, {Status: TableSkipped}}}, OutcomeFailure},
		{"no tables", Report{}, OutcomeFailure},
		{"run error", Report{Error: "down", Tables: []TableReport{{Status: TableSuccess}}}, OutcomeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.report.decide()
			assert.Equal(t, tt.want, tt.report.Outcome)
		})
	}
}
