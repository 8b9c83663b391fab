package pipeline

// report.go defines the run report and its rendering.
//
// The report is the operational signal of a run: the CLI maps its outcome to
// an exit code and prints it as a table or JSON. A partial run is never
// reported as success.

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/olekukonko/tablewriter"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// TableStatus is the result of loading one table.
type TableStatus string

const (
	TableSuccess TableStatus = "success"
	TableSkipped TableStatus = "skipped"
	TableFailed  TableStatus = "failed"
)

// InputStatus is the result of reading one extract.
type InputStatus string

const (
	InputRead       InputStatus = "read"
	InputMissing    InputStatus = "missing"
	InputUnreadable InputStatus = "unreadable"
)

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitPartial = 2
)

// InputReport describes one extract file.
type InputReport struct {
	Kind      core.DatasetKind `json:"kind"`
	Path      string           `json:"path"`
	Status    InputStatus      `json:"status"`
	Rows      int              `json:"rows"`
	ErrorCode string           `json:"error_code,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// TableReport describes the load of one table.
type TableReport struct {
	Table         string      `json:"table"`
	Status        TableStatus `json:"status"`
	Degraded      bool        `json:"degraded,omitempty"` // built without an optional extract
	RowsAttempted int         `json:"rows_attempted"`
	RowsPersisted int64       `json:"rows_persisted"`
	RowsVerified  *int64      `json:"rows_verified,omitempty"`
	Mismatch      bool        `json:"mismatch,omitempty"`
	ErrorCode     string      `json:"error_code,omitempty"`
	Error         string      `json:"error,omitempty"`
	DurationMS    int64       `json:"duration_ms"`
}

// RowErrorSummary counts normalization problems and keeps the first few.
type RowErrorSummary struct {
	Total   int             `json:"total"`
	Fatal   int             `json:"rejected"`
	ByCode  map[string]int  `json:"by_code,omitempty"`
	Samples []core.RowError `json:"samples,omitempty"`
}

func (s *RowErrorSummary) add(errs []core.RowError, limit int) {
	for _, e := range errs {
		s.Total++
		if e.Fatal {
			s.Fatal++
		}
		if s.ByCode == nil {
			s.ByCode = make(map[string]int)
		}
		s.ByCode[e.Code]++
		if len(s.Samples) < limit {
			s.Samples = append(s.Samples, e)
		}
	}
}

// Report is the summary of one pipeline run.
type Report struct {
	RunID      string              `json:"run_id"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	AsOf       string              `json:"as_of"`
	TieBreak   core.TieBreak       `json:"tie_break"`
	DryRun     bool                `json:"dry_run,omitempty"`
	Outcome    Outcome             `json:"outcome"`
	ErrorCode  string              `json:"error_code,omitempty"`
	Error      string              `json:"error,omitempty"` // run-level failure
	Inputs     []InputReport       `json:"inputs"`
	Tables     []TableReport       `json:"tables"`
	Reconcile  core.ReconcileStats `json:"reconcile"`
	RowErrors  RowErrorSummary     `json:"row_errors"`
	Exported   []string            `json:"exported,omitempty"`
}

// Table returns the report for a table, or nil.
func (r *Report) Table(key string) *TableReport {
	for i := range r.Tables {
		if r.Tables[i].Table == key {
			return &r.Tables[i]
		}
	}
	return nil
}

// Count returns how many tables ended with status.
func (r *Report) Count(status TableStatus) int {
	n := 0
	for _, t := range r.Tables {
		if t.Status == status {
			n++
		}
	}
	return n
}

// decide sets the outcome. A run-level error or a run where no table
// succeeded is a failure; any failed or skipped table makes it partial.
func (r *Report) decide() {
	switch {
	case r.Error != "":
		r.Outcome = OutcomeFailure
	case r.Count(TableSuccess) == 0:
		r.Outcome = OutcomeFailure
	case r.Count(TableFailed) > 0 || r.Count(TableSkipped) > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeSuccess
	}
}

// ExitCode maps the outcome to a process exit code.
func (r *Report) ExitCode() int {
	switch r.Outcome {
	case OutcomeSuccess:
		return ExitSuccess
	case OutcomePartial:
		return ExitPartial
	default:
		return ExitFailure
	}
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Render writes the report as "table" (default) or "json".
func (r *Report) Render(w io.Writer, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "", "table", "text":
		return r.renderTable(w)
	default:
		return fmt.Errorf("unknown output format %q: want table or json", format)
	}
}

func (r *Report) renderTable(w io.Writer) error {
	fmt.Fprintf(w, "Run %s  outcome=%s  as_of=%s  duration=%s\n",
		r.RunID, strings.ToUpper(string(r.Outcome)), r.AsOf, r.Duration().Round(time.Millisecond))
	if r.DryRun {
		fmt.Fprintln(w, "Dry run: nothing was written to the database")
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s (%s)\n", r.Error, r.ErrorCode)
	}
	fmt.Fprintln(w)

	inputs := tablewriter.NewTable(w)
	inputs.Header("Input", "Path", "Status", "Rows", "Error")
	for _, in := range r.Inputs {
		if err := inputs.Append(string(in.Kind), in.Path, string(in.Status), strconv.Itoa(in.Rows), codeAndMessage(in.ErrorCode, in.Error)); err != nil {
			return err
		}
	}
	if err := inputs.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	tables := tablewriter.NewTable(w)
	tables.Header("Table", "Status", "Attempted", "Persisted", "Verified", "Duration", "Error")
	for _, t := range r.Tables {
		status := string(t.Status)
		if t.Degraded {
			status += " (degraded)"
		}
		verified := "-"
		if t.RowsVerified != nil {
			verified = strconv.FormatInt(*t.RowsVerified, 10)
			if t.Mismatch {
				verified += " !"
			}
		}
		err := tables.Append(
			t.Table,
			status,
			strconv.Itoa(t.RowsAttempted),
			strconv.FormatInt(t.RowsPersisted, 10),
			verified,
			(time.Duration(t.DurationMS) * time.Millisecond).String(),
			codeAndMessage(t.ErrorCode, t.Error),
		)
		if err != nil {
			return err
		}
	}
	if err := tables.Render(); err != nil {
		return err
	}
	fmt.Fprintln(w)

	s := r.Reconcile
	fmt.Fprintf(w, "Events: %d read, %d duplicates dropped, %d kept (%d joined, %d unmatched, %d unjoinable)\n",
		s.EventsRead, s.DuplicatesDropped, s.Events, s.Joined, s.Unmatched, s.Unjoinable)
	fmt.Fprintf(w, "Registry: %d records, %d product codes, %d with several packages\n",
		s.RegistryRecords, s.RegistryKeys, s.AmbiguousKeys)
	fmt.Fprintf(w, "Row errors: %d (%d rejected)%s\n", r.RowErrors.Total, r.RowErrors.Fatal, formatCodes(r.RowErrors.ByCode))
	for _, e := range r.RowErrors.Samples {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
	for _, path := range r.Exported {
		fmt.Fprintf(w, "Exported %s\n", path)
	}
	return nil
}

func codeAndMessage(code, msg string) string {
	if code == "" {
		return msg
	}
	return code + ": " + msg
}

func formatCodes(byCode map[string]int) string {
	if len(byCode) == 0 {
		return ""
	}
	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprintf("%s=%d", code, byCode[code])
	}
	return " [" + strings.Join(parts, " ") + "]"
}
