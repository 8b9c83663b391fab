package core

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// DatasetKind identifies which raw extract a row came from.
type DatasetKind string

const (
	DatasetRegistry DatasetKind = "registry"
	DatasetShortage DatasetKind = "shortage"
)

// Status is the canonical shortage status.
type Status string

const (
	StatusCurrent      Status = "Current"
	StatusResolved     Status = "Resolved"
	StatusDiscontinued Status = "Discontinued"
)

// IsCurrent reports whether the event counts toward current aggregates.
func (s Status) IsCurrent() bool {
	return s == StatusCurrent
}

// RawRow is one extract row keyed by lowercased, trimmed header name.
type RawRow struct {
	Line   int // 1-based line in the source file, header is line 1
	Values map[string]string
}

// Get returns the first present value among the given header names.
func (r RawRow) Get(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := r.Values[strings.ToLower(name)]; ok {
			return v, true
		}
	}
	return "", false
}

// RegistryRecord is one manufactured-package identity from the drug registry.
type RegistryRecord struct {
	Line                 int
	RawProductCode       string
	ProductCode          string // normalized join key, never empty once resolved
	PackageCode          string // normalized package identifier, natural key of raw_ndc
	GenericName          pgtype.Text
	BrandName            pgtype.Text
	Route                pgtype.Text
	ProductType          pgtype.Text
	PackagingDescription pgtype.Text
}

// ShortageEvent is one reported shortage occurrence.
type ShortageEvent struct {
	Line               int
	RawProductCode     pgtype.Text
	ProductCode        string // empty when the event is unjoinable
	GenericName        pgtype.Text
	Status             Status // empty when null
	InitialPostingDate pgtype.Text
	PostingDate        pgtype.Date
	CompanyName        pgtype.Text
	DosageForm         pgtype.Text
}

// Joinable reports whether the event carries a usable product code.
func (e ShortageEvent) Joinable() bool {
	return e.ProductCode != ""
}

// DaysActive returns the whole days between the posting date and asOf.
// Invalid when the posting date did not parse or lies after asOf.
func (e ShortageEvent) DaysActive(asOf time.Time) pgtype.Int4 {
	return DaysActive(e.PostingDate, asOf)
}

// EnrichedShortageRecord is a shortage event left-joined to its registry match.
type EnrichedShortageRecord struct {
	Event      ShortageEvent
	DaysActive pgtype.Int4
	Registry   *RegistryRecord // nil when no registry row matched
}

// Matched reports whether a registry record was joined.
func (r EnrichedShortageRecord) Matched() bool {
	return r.Registry != nil
}

// BrandName returns the joined brand name, null when unmatched.
func (r EnrichedShortageRecord) BrandName() pgtype.Text {
	if r.Registry == nil {
		return pgtype.Text{}
	}
	return r.Registry.BrandName
}

// ManufacturerRisk counts current shortages per company.
type ManufacturerRisk struct {
	CompanyName             string
	CurrentAffectedPackages int
	CurrentAffectedProducts int
}

// Snapshot is the complete derived record set of one pipeline run.
type Snapshot struct {
	AsOf     time.Time
	Inputs   map[DatasetKind]bool // true when the extract was read
	Registry []RegistryRecord
	Events   []ShortageEvent // deduplicated
	Enriched []EnrichedShortageRecord
	Risk     []ManufacturerRisk
}

// Has reports whether the given extract was read for this snapshot.
func (s *Snapshot) Has(kind DatasetKind) bool {
	return s.Inputs[kind]
}
