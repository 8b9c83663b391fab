package core

// errors.go defines the pipeline error taxonomy and operator-facing codes.
//
// # Error Codes Reference
//
// Row errors (ROW001-ROW099), recovered per row, never abort a batch:
//
//	ROW001 - Bad posting date: initial_posting_date is not YYYYMMDD
//	         Effect: row kept, days_active unavailable
//	ROW002 - Missing product code: registry row has no usable identifier
//	         Effect: registry row rejected
//	ROW003 - Unknown status: status is not Current/Resolved/Discontinued
//	         Effect: row kept, never counted as current
//
// Input errors (IN001-IN099), recovered per table:
//
//	IN001 - Missing input: the extract file does not exist
//	        Effect: dependent tables skipped with a warning
//	IN002 - Unreadable input: the extract exists but cannot be parsed
//	        Effect: dependent tables reported failed
//
// Store errors (DB001-DB099, LOAD001), recovered per table unless noted:
//
//	DB002 - Unique constraint violated by the snapshot
//	DB004 - Store unreachable (fatal: no table is attempted)
//	DB005 - Connection reset mid-load
//	DB006 - Load timed out
//	DB008 - Destination table does not exist (schema not applied)
//	LOAD001 - Table load failed for another reason
//
// Verification (VER001-VER099), reported only:
//
//	VER001 - Row count in the store differs from the persisted count
//	VER002 - Row count could not be read back after the load

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Sentinel errors. Wrap them with fmt.Errorf and match with errors.Is.
var (
	ErrMissingInput     = errors.New("missing input")
	ErrUnreadableInput  = errors.New("unreadable input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnknownTable     = errors.New("unknown table")
)

// Row error codes.
const (
	CodeBadDate            = "ROW001"
	CodeMissingProductCode = "ROW002"
	CodeUnknownStatus      = "ROW003"
)

// RowError describes one record that failed part of normalization.
type RowError struct {
	Dataset DatasetKind `json:"dataset"`
	Line    int         `json:"line"`
	Field   string      `json:"field"`
	Value   string      `json:"value"`
	Code    string      `json:"code"`
	Reason  string      `json:"reason"`
	Fatal   bool        `json:"fatal"` // the row was rejected rather than degraded
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s line %d: %s %q: %s (%s)", e.Dataset, e.Line, e.Field, e.Value, e.Reason, e.Code)
}

// LoadError records a table that failed to persist.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// VerificationMismatch records a post-load count discrepancy.
type VerificationMismatch struct {
	Table    string
	Reported int64
	Counted  int64
}

func (e *VerificationMismatch) Error() string {
	return fmt.Sprintf("verify %s: persisted %d rows but store has %d (VER001)", e.Table, e.Reported, e.Counted)
}

// VerificationError records a table whose post-load count failed.
type VerificationError struct {
	Table string
	Err   error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify %s: count rows: %v", e.Table, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// OperatorMessage is the short form of an error shown in run summaries.
type OperatorMessage struct {
	Code    string
	Message string
}

// errorPattern maps a lowercased substring of an error to a message.
// The first match wins, so specific patterns go first.
type errorPattern struct {
	pattern string
	msg     OperatorMessage
}

var errorPatterns = []errorPattern{
	{"duplicate key", OperatorMessage{"DB002", "snapshot violates a unique constraint"}},
	{"violates unique", OperatorMessage{"DB002", "snapshot violates a unique constraint"}},
	{"connection refused", OperatorMessage{"DB004", "store unreachable"}},
	{"connection reset", OperatorMessage{"DB005", "store connection was interrupted"}},
	{"deadline exceeded", OperatorMessage{"DB006", "load timed out"}},
	{"timeout", OperatorMessage{"DB006", "load timed out"}},
	{"does not exist", OperatorMessage{"DB008", "destination table does not exist"}},
}

var defaultMessage = OperatorMessage{Code: "LOAD001", Message: "table load failed"}

// pgCodes maps PostgreSQL SQLSTATE codes to messages.
var pgCodes = map[string]OperatorMessage{
	"23505": {"DB002", "snapshot violates a unique constraint"},
	"42P01": {"DB008", "destination table does not exist"},
	"57014": {"DB006", "load timed out"},
}

// MapError converts an error to an operator message with a code.
func MapError(err error) OperatorMessage {
	if err == nil {
		return OperatorMessage{}
	}

	var verifyErr *VerificationError
	if errors.As(err, &verifyErr) {
		return OperatorMessage{"VER002", "row count could not be verified"}
	}

	switch {
	case errors.Is(err, ErrMissingInput):
		return OperatorMessage{"IN001", "input file missing"}
	case errors.Is(err, ErrUnreadableInput):
		return OperatorMessage{"IN002", "input file unreadable"}
	case errors.Is(err, ErrStoreUnavailable):
		return OperatorMessage{"DB004", "store unreachable"}
	}

	var mismatch *VerificationMismatch
	if errors.As(err, &mismatch) {
		return OperatorMessage{"VER001", "row count mismatch"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if msg, ok := pgCodes[pgErr.Code]; ok {
			return msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}
