package core

// normalize.go maps raw extract rows into canonical records.
//
// Normalization is pure and per-row: a bad cell degrades the row or, for a
// registry row with no identifier, rejects it. It never aborts a batch.

// Canonical field names.
const (
	FieldProductCode          = "product_code"
	FieldPackageCode          = "package_code"
	FieldGenericName          = "generic_name"
	FieldBrandName            = "brand_name"
	FieldRoute                = "route"
	FieldProductType          = "product_type"
	FieldPackagingDescription = "packaging_description"
	FieldStatus               = "status"
	FieldInitialPostingDate   = "initial_posting_date"
	FieldCompanyName          = "company_name"
	FieldDosageForm           = "dosage_form"
)

// FieldSpec names a canonical field and the source headers it may arrive under.
type FieldSpec struct {
	Name    string
	Aliases []string // lowercase header names, first match wins
}

// Headers returns the canonical name followed by its aliases.
func (f FieldSpec) Headers() []string {
	return append([]string{f.Name}, f.Aliases...)
}

// RegistryFields lists the registry extract columns.
var RegistryFields = []FieldSpec{
	{Name: FieldProductCode, Aliases: []string{"product_ndc", "ndc", "product code"}},
	{Name: FieldPackageCode, Aliases: []string{"package_ndc", "packaging.package_ndc", "package code"}},
	{Name: FieldGenericName, Aliases: []string{"generic name", "nonproprietaryname"}},
	{Name: FieldBrandName, Aliases: []string{"brand name", "proprietaryname"}},
	{Name: FieldRoute, Aliases: []string{"route_of_administration", "routename"}},
	{Name: FieldProductType, Aliases: []string{"product type", "producttypename"}},
	{Name: FieldPackagingDescription, Aliases: []string{"package_description", "packaging.description", "packagedescription"}},
}

// ShortageFields lists the shortage extract columns.
var ShortageFields = []FieldSpec{
	{Name: FieldProductCode, Aliases: []string{"product_ndc", "openfda.product_ndc", "openfda_product_ndc", "ndc"}},
	{Name: FieldGenericName, Aliases: []string{"generic name"}},
	{Name: FieldStatus, Aliases: []string{"shortage_status"}},
	{Name: FieldInitialPostingDate, Aliases: []string{"posting_date", "initial posting date"}},
	{Name: FieldCompanyName, Aliases: []string{"company", "company name", "manufacturer"}},
	{Name: FieldDosageForm, Aliases: []string{"dosage form"}},
}

// Fields returns the field specs for a dataset.
func Fields(kind DatasetKind) []FieldSpec {
	if kind == DatasetRegistry {
		return RegistryFields
	}
	return ShortageFields
}

func cell(row RawRow, specs []FieldSpec, name string) string {
	for _, spec := range specs {
		if spec.Name == name {
			v, _ := row.Get(spec.Headers()...)
			return v
		}
	}
	return ""
}

// NormalizeRegistry converts a raw registry row. The product code is left
// raw; ResolveRegistryKey derives the join key.
func NormalizeRegistry(row RawRow) RegistryRecord {
	get := func(name string) string { return cell(row, RegistryFields, name) }

	return RegistryRecord{
		Line:                 row.Line,
		RawProductCode:       CleanCell(get(FieldProductCode)),
		PackageCode:          CleanCell(get(FieldPackageCode)),
		GenericName:          ToPgText(get(FieldGenericName)),
		BrandName:            ToPgText(get(FieldBrandName)),
		Route:                ToPgText(get(FieldRoute)),
		ProductType:          ToPgText(get(FieldProductType)),
		PackagingDescription: ToPgText(get(FieldPackagingDescription)),
	}
}

// NormalizeShortage converts a raw shortage row. Row errors are warnings:
// the event is always returned.
func NormalizeShortage(row RawRow) (ShortageEvent, []RowError) {
	get := func(name string) string { return cell(row, ShortageFields, name) }

	var errs []RowError
	ev := ShortageEvent{
		Line:               row.Line,
		RawProductCode:     ToPgText(get(FieldProductCode)),
		GenericName:        ToPgText(get(FieldGenericName)),
		InitialPostingDate: ToPgText(get(FieldInitialPostingDate)),
		CompanyName:        ToPgText(get(FieldCompanyName)),
		DosageForm:         ToPgText(get(FieldDosageForm)),
	}

	status, ok := ParseStatus(get(FieldStatus))
	ev.Status = status
	if !ok {
		errs = append(errs, RowError{
			Dataset: DatasetShortage,
			Line:    row.Line,
			Field:   FieldStatus,
			Value:   string(status),
			Code:    CodeUnknownStatus,
			Reason:  "unknown status",
		})
	}

	if ev.InitialPostingDate.Valid {
		date, ok := ParsePostingDate(ev.InitialPostingDate.String)
		ev.PostingDate = date
		if !ok {
			errs = append(errs, RowError{
				Dataset: DatasetShortage,
				Line:    row.Line,
				Field:   FieldInitialPostingDate,
				Value:   ev.InitialPostingDate.String,
				Code:    CodeBadDate,
				Reason:  "expected YYYYMMDD",
			})
		}
	}

	return ev, errs
}

// Batch is the normalized and key-resolved content of both extracts.
type Batch struct {
	Registry  []RegistryRecord
	Events    []ShortageEvent
	RowErrors []RowError
	Rejected  int // registry rows dropped for lack of a product code
}

// NormalizeRegistryRows normalizes and key-resolves registry rows.
func NormalizeRegistryRows(rows []RawRow, b *Batch) {
	for _, row := range rows {
		rec := NormalizeRegistry(row)
		if rowErr := ResolveRegistryKey(&rec); rowErr != nil {
			b.RowErrors = append(b.RowErrors, *rowErr)
			b.Rejected++
			continue
		}
		b.Registry = append(b.Registry, rec)
	}
}

// NormalizeShortageRows normalizes and key-resolves shortage rows.
func NormalizeShortageRows(rows []RawRow, b *Batch) {
	for _, row := range rows {
		ev, errs := NormalizeShortage(row)
		ResolveShortageKey(&ev)
		b.RowErrors = append(b.RowErrors, errs...)
		b.Events = append(b.Events, ev)
	}
}
