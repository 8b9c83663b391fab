package core

import (
	"fmt"
	"strings"
	"time"
)

// TieBreak names the declared order used to choose one registry record when
// several share a product code. The first record under the order wins.
type TieBreak string

const (
	// TieBreakPackageCode orders by package code, then packaging
	// description, then source line.
	TieBreakPackageCode TieBreak = "package_code"

	// TieBreakPackagingDescription orders by packaging description, then
	// package code, then source line.
	TieBreakPackagingDescription TieBreak = "packaging_description"
)

// DefaultTieBreak is used when no order is configured.
const DefaultTieBreak = TieBreakPackageCode

// ParseTieBreak validates a configured tie-break name.
func ParseTieBreak(s string) (TieBreak, error) {
	switch TieBreak(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultTieBreak, nil
	case TieBreakPackageCode:
		return TieBreakPackageCode, nil
	case TieBreakPackagingDescription:
		return TieBreakPackagingDescription, nil
	default:
		return "", fmt.Errorf("unknown tie-break %q: want %s or %s", s, TieBreakPackageCode, TieBreakPackagingDescription)
	}
}

// Less reports whether a sorts before b under the order. Null descriptions
// sort after any non-null description. The source line makes the order total.
func (t TieBreak) Less(a, b RegistryRecord) bool {
	primary, secondary := comparePackage, compareDescription
	if t == TieBreakPackagingDescription {
		primary, secondary = compareDescription, comparePackage
	}

	if c := primary(a, b); c != 0 {
		return c < 0
	}
	if c := secondary(a, b); c != 0 {
		return c < 0
	}
	return a.Line < b.Line
}

func comparePackage(a, b RegistryRecord) int {
	return strings.Compare(a.PackageCode, b.PackageCode)
}

func compareDescription(a, b RegistryRecord) int {
	switch {
	case a.PackagingDescription.Valid && !b.PackagingDescription.Valid:
		return -1
	case !a.PackagingDescription.Valid && b.PackagingDescription.Valid:
		return 1
	}
	return strings.Compare(a.PackagingDescription.String, b.PackagingDescription.String)
}

// ReconcileOptions configures one reconciliation.
type ReconcileOptions struct {
	TieBreak TieBreak
	AsOf     time.Time // reference date for days_active
}

// ReconcileStats summarizes a reconciliation.
type ReconcileStats struct {
	EventsRead        int `json:"events_read"`
	DuplicatesDropped int `json:"duplicates_dropped"`
	Events            int `json:"events"`
	Joined            int `json:"joined"`
	Unmatched         int `json:"unmatched"`
	Unjoinable        int `json:"unjoinable"`
	RegistryRecords   int `json:"registry_records"`
	RegistryKeys      int `json:"registry_keys"`
	AmbiguousKeys     int `json:"ambiguous_keys"`
}

// Reconciliation is the output of Reconcile.
type Reconciliation struct {
	Events  []ShortageEvent // deduplicated, in source order
	Records []EnrichedShortageRecord
	Stats   ReconcileStats
}

// Reconcile left-joins shortage events to registry records on product code.
// It emits exactly one record per deduplicated event, in source order.
func Reconcile(events []ShortageEvent, registry []RegistryRecord, opts ReconcileOptions) Reconciliation {
	tb := opts.TieBreak
	if tb == "" {
		tb = DefaultTieBreak
	}

	deduped, dropped := DedupeEvents(events)
	index, ambiguous := IndexRegistry(registry, tb)

	out := Reconciliation{
		Events:  deduped,
		Records: make([]EnrichedShortageRecord, 0, len(deduped)),
		Stats: ReconcileStats{
			EventsRead:        len(events),
			DuplicatesDropped: dropped,
			Events:            len(deduped),
			RegistryRecords:   len(registry),
			RegistryKeys:      len(index),
			AmbiguousKeys:     ambiguous,
		},
	}

	for _, ev := range deduped {
		rec := EnrichedShortageRecord{
			Event:      ev,
			DaysActive: ev.DaysActive(opts.AsOf),
		}

		switch {
		case !ev.Joinable():
			out.Stats.Unjoinable++
		default:
			if match, ok := index[ev.ProductCode]; ok {
				m := match
				rec.Registry = &m
				out.Stats.Joined++
			} else {
				out.Stats.Unmatched++
			}
		}

		out.Records = append(out.Records, rec)
	}

	return out
}

// IndexRegistry picks one representative record per product code under tb.
// It also returns how many codes had more than one candidate.
func IndexRegistry(registry []RegistryRecord, tb TieBreak) (map[string]RegistryRecord, int) {
	index := make(map[string]RegistryRecord, len(registry))
	counts := make(map[string]int, len(registry))

	for _, rec := range registry {
		if rec.ProductCode == "" {
			continue
		}
		counts[rec.ProductCode]++
		current, ok := index[rec.ProductCode]
		if !ok || tb.Less(rec, current) {
			index[rec.ProductCode] = rec
		}
	}

	ambiguous := 0
	for _, n := range counts {
		if n > 1 {
			ambiguous++
		}
	}
	return index, ambiguous
}

// DedupeEvents removes exact duplicate events, keeping the first occurrence.
// Returns the kept events and the number dropped.
func DedupeEvents(events []ShortageEvent) ([]ShortageEvent, int) {
	seen := make(map[string]struct{}, len(events))
	result := make([]ShortageEvent, 0, len(events))

	for _, ev := range events {
		key := EventKey(ev)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, ev)
	}

	return result, len(events) - len(result)
}

// EventKey is the identity of a shortage event for deduplication.
//
// Joinable events are identified by product code, raw posting date and
// case-folded company. Unjoinable events have no product identity, so every
// normalized field takes part in the key.
func EventKey(ev ShortageEvent) string {
	parts := []string{
		ev.ProductCode,
		TextOrEmpty(ev.InitialPostingDate),
		FoldKey(TextOrEmpty(ev.CompanyName)),
	}
	if !ev.Joinable() {
		parts = append(parts,
			TextOrEmpty(ev.RawProductCode),
			TextOrEmpty(ev.GenericName),
			FoldKey(string(ev.Status)),
			TextOrEmpty(ev.DosageForm),
		)
	}
	return strings.Join(parts, "\x1f")
}
