package tables

import (
	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

func init() {
	registerShortagesWithNDC()
}

func registerShortagesWithNDC() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   ShortagesWithNDC,
			Label: "Enriched shortages",
			Order: 30,
			Columns: []string{
				"product_ndc",
				"shortage_generic_name",
				"status",
				"initial_posting_date",
				"posting_date",
				"company_name",
				"shortage_dosage_form",
				"package_ndc",
				"generic_name",
				"brand_name",
				"route",
				"product_type",
				"package_description",
			},
			NaturalKey: []string{"product_ndc", "initial_posting_date", "company_name"},
		},
		Requires: []core.DatasetKind{core.DatasetShortage},
		Optional: []core.DatasetKind{core.DatasetRegistry},
		Rows: func(s *core.Snapshot) [][]any {
			rows := make([][]any, 0, len(s.Enriched))
			for _, rec := range s.Enriched {
				ev := rec.Event
				row := []any{
					productCode(ev),
					ev.GenericName,
					core.StatusText(ev.Status),
					ev.InitialPostingDate,
					ev.PostingDate,
					ev.CompanyName,
					ev.DosageForm,
				}
				rows = append(rows, append(row, registryColumns(rec.Registry)...))
			}
			return rows
		},
	})
}

// registryColumns returns the joined registry values, all NULL when unmatched.
func registryColumns(r *core.RegistryRecord) []any {
	if r == nil {
		return []any{
			pgtype.Text{}, pgtype.Text{}, pgtype.Text{},
			pgtype.Text{}, pgtype.Text{}, pgtype.Text{},
		}
	}
	return []any{
		pgtype.Text{String: r.PackageCode, Valid: true},
		r.GenericName,
		r.BrandName,
		r.Route,
		r.ProductType,
		r.PackagingDescription,
	}
}
