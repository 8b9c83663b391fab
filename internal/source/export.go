package source

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/JonMunkholm/shortages/internal/core/tables"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jszwec/csvutil"
)

// Processed CSV rows. Nullable values are pointers so NULL exports as an
// empty cell.

type registryRow struct {
	PackageNDC         string  `csv:"package_ndc"`
	ProductNDC         string  `csv:"product_ndc"`
	RawProductNDC      string  `csv:"raw_product_ndc"`
	GenericName        *string `csv:"generic_name"`
	BrandName          *string `csv:"brand_name"`
	Route              *string `csv:"route"`
	ProductType        *string `csv:"product_type"`
	PackageDescription *string `csv:"package_description"`
}

type shortageRow struct {
	ProductNDC         *string `csv:"product_ndc"`
	RawProductNDC      *string `csv:"raw_product_ndc"`
	GenericName        *string `csv:"generic_name"`
	Status             *string `csv:"status"`
	InitialPostingDate *string `csv:"initial_posting_date"`
	PostingDate        *string `csv:"posting_date"`
	CompanyName        *string `csv:"company_name"`
	DosageForm         *string `csv:"dosage_form"`
	SourceLine         int     `csv:"source_line"`
}

type enrichedRow struct {
	ProductNDC          *string `csv:"product_ndc"`
	ShortageGenericName *string `csv:"shortage_generic_name"`
	Status              *string `csv:"status"`
	InitialPostingDate  *string `csv:"initial_posting_date"`
	PostingDate         *string `csv:"posting_date"`
	DaysActive          *int32  `csv:"days_active"`
	CompanyName         *string `csv:"company_name"`
	ShortageDosageForm  *string `csv:"shortage_dosage_form"`
	PackageNDC          *string `csv:"package_ndc"`
	GenericName         *string `csv:"generic_name"`
	BrandName           *string `csv:"brand_name"`
	Route               *string `csv:"route"`
	ProductType         *string `csv:"product_type"`
	PackageDescription  *string `csv:"package_description"`
}

type riskRow struct {
	CompanyName             string `csv:"company_name"`
	CurrentAffectedPackages int    `csv:"current_affected_packages"`
	CurrentAffectedProducts int    `csv:"current_affected_products"`
}

// exporters build the csvutil-encodable slice for each table.
var exporters = map[string]func(s *core.Snapshot) any{
	tables.RawNDC:           exportRegistry,
	tables.RawDrugShortages: exportShortages,
	tables.ShortagesWithNDC: exportEnriched,
	tables.ManufacturerRisk: exportRisk,
}

// Export writes one <table>.csv per requested table into dir and returns the
// paths written. Unknown table names wrap core.ErrUnknownTable.
func Export(dir string, snap *core.Snapshot, tableKeys []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	var written []string
	for _, key := range tableKeys {
		build, ok := exporters[key]
		if !ok {
			return written, fmt.Errorf("export %s: %w", key, core.ErrUnknownTable)
		}

		path := filepath.Join(dir, key+".csv")
		if err := writeCSV(path, build(snap)); err != nil {
			return written, fmt.Errorf("export %s: %w", key, err)
		}
		written = append(written, path)
	}
	return written, nil
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	enc := csvutil.NewEncoder(w)
	if err := enc.Encode(rows); err != nil {
		f.Close()
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func exportRegistry(s *core.Snapshot) any {
	rows := make([]registryRow, 0, len(s.Registry))
	for _, r := range s.Registry {
		rows = append(rows, registryRow{
			PackageNDC:         r.PackageCode,
			ProductNDC:         r.ProductCode,
			RawProductNDC:      r.RawProductCode,
			GenericName:        textPtr(r.GenericName),
			BrandName:          textPtr(r.BrandName),
			Route:              textPtr(r.Route),
			ProductType:        textPtr(r.ProductType),
			PackageDescription: textPtr(r.PackagingDescription),
		})
	}
	return rows
}

func exportShortages(s *core.Snapshot) any {
	rows := make([]shortageRow, 0, len(s.Events))
	for _, ev := range s.Events {
		rows = append(rows, shortageRow{
			ProductNDC:         codePtr(ev.ProductCode),
			RawProductNDC:      textPtr(ev.RawProductCode),
			GenericName:        textPtr(ev.GenericName),
			Status:             textPtr(core.StatusText(ev.Status)),
			InitialPostingDate: textPtr(ev.InitialPostingDate),
			PostingDate:        datePtr(ev.PostingDate),
			CompanyName:        textPtr(ev.CompanyName),
			DosageForm:         textPtr(ev.DosageForm),
			SourceLine:         ev.Line,
		})
	}
	return rows
}

func exportEnriched(s *core.Snapshot) any {
	rows := make([]enrichedRow, 0, len(s.Enriched))
	for _, rec := range s.Enriched {
		ev := rec.Event
		row := enrichedRow{
			ProductNDC:          codePtr(ev.ProductCode),
			ShortageGenericName: textPtr(ev.GenericName),
			Status:              textPtr(core.StatusText(ev.Status)),
			InitialPostingDate:  textPtr(ev.InitialPostingDate),
			PostingDate:         datePtr(ev.PostingDate),
			CompanyName:         textPtr(ev.CompanyName),
			ShortageDosageForm:  textPtr(ev.DosageForm),
		}
		if rec.DaysActive.Valid {
			d := rec.DaysActive.Int32
			row.DaysActive = &d
		}
		if reg := rec.Registry; reg != nil {
			row.PackageNDC = codePtr(reg.PackageCode)
			row.GenericName = textPtr(reg.GenericName)
			row.BrandName = textPtr(reg.BrandName)
			row.Route = textPtr(reg.Route)
			row.ProductType = textPtr(reg.ProductType)
			row.PackageDescription = textPtr(reg.PackagingDescription)
		}
		rows = append(rows, row)
	}
	return rows
}

func exportRisk(s *core.Snapshot) any {
	rows := make([]riskRow, 0, len(s.Risk))
	for _, r := range s.Risk {
		rows = append(rows, riskRow(r))
	}
	return rows
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func codePtr(code string) *string {
	if code == "" {
		return nil
	}
	return &code
}

func datePtr(d pgtype.Date) *string {
	if !d.Valid {
		return nil
	}
	s := d.Time.Format(time.DateOnly)
	return &s
}
