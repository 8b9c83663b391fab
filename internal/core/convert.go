package core

// convert.go turns raw extract cells into canonical values.
//
// All To* helpers return pgtype values with Valid=false for empty input and
// for the N/A-style sentinels both feeds use, so the store sees real NULLs.

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/text/cases"
)

// PostingDateLayout is the only accepted layout for initial_posting_date.
const PostingDateLayout = "20060102"

// nullSentinels are compared after lowercasing.
var nullSentinels = map[string]struct{}{
	"n/a":  {},
	"na":   {},
	"null": {},
	"none": {},
	"nil":  {},
	"-":    {},
	"--":   {},
}

// CleanCell trims the value, removes the Excel ="..." wrapper and collapses
// internal whitespace runs to a single space.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}

	return strings.Join(strings.Fields(s), " ")
}

// IsNullValue reports whether a cleaned cell should be stored as NULL.
func IsNullValue(s string) bool {
	if s == "" {
		return true
	}
	_, ok := nullSentinels[strings.ToLower(s)]
	return ok
}

// ToPgText converts a raw cell to pgtype.Text.
func ToPgText(s string) pgtype.Text {
	s = CleanCell(s)
	if IsNullValue(s) {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

// ParsePostingDate parses a YYYYMMDD date. Dates are UTC midnight.
func ParsePostingDate(s string) (pgtype.Date, bool) {
	s = CleanCell(s)
	if IsNullValue(s) {
		return pgtype.Date{Valid: false}, false
	}
	t, err := time.ParseInLocation(PostingDateLayout, s, time.UTC)
	if err != nil {
		return pgtype.Date{Valid: false}, false
	}
	return pgtype.Date{Time: t, Valid: true}, true
}

const secondsPerDay = 24 * 60 * 60

// DaysActive returns whole days from posted to asOf, compared as calendar dates.
// The span is counted in Unix seconds; time.Duration overflows after about
// 292 years.
func DaysActive(posted pgtype.Date, asOf time.Time) pgtype.Int4 {
	if !posted.Valid || asOf.IsZero() {
		return pgtype.Int4{Valid: false}
	}
	end := truncateDate(asOf)
	start := truncateDate(posted.Time)
	if end.Before(start) {
		return pgtype.Int4{Valid: false}
	}
	days := int32((end.Unix() - start.Unix()) / secondsPerDay)
	return pgtype.Int4{Int32: days, Valid: true}
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FoldKey returns the case-folded form of a key field.
// A new Caser is built per call since Casers are stateful.
func FoldKey(s string) string {
	return cases.Fold().String(CleanCell(s))
}

// ParseStatus maps a raw status to its canonical form. Unrecognized
// non-empty values are returned verbatim with ok=false.
func ParseStatus(s string) (Status, bool) {
	s = CleanCell(s)
	if IsNullValue(s) {
		return "", true
	}

	folded := FoldKey(s)
	switch {
	case folded == "current":
		return StatusCurrent, true
	case folded == "resolved":
		return StatusResolved, true
	case strings.Contains(folded, "discontinu"):
		return StatusDiscontinued, true
	default:
		return Status(s), false
	}
}

// TextOrEmpty returns the string value or "" when null.
func TextOrEmpty(t pgtype.Text) string {
	if !t.Valid {
		return ""
	}
	return t.String
}

// StatusText converts a status to a nullable text value.
func StatusText(s Status) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: string(s), Valid: true}
}
