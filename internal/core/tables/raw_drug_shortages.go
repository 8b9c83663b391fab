package tables

import (
	"github.com/JonMunkholm/shortages/internal/core"
	"github.com/jackc/pgx/v5/pgtype"
)

func init() {
	registerRawDrugShortages()
}

func registerRawDrugShortages() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   RawDrugShortages,
			Label: "Shortage events",
			Order: 20,
			Columns: []string{
				"product_ndc",
				"raw_product_ndc",
				"generic_name",
				"status",
				"initial_posting_date",
				"posting_date",
				"company_name",
				"dosage_form",
				"source_line",
			},
			NaturalKey: []string{"product_ndc", "initial_posting_date", "company_name"},
		},
		Requires: []core.DatasetKind{core.DatasetShortage},
		Rows: func(s *core.Snapshot) [][]any {
			rows := make([][]any, 0, len(s.Events))
			for _, ev := range s.Events {
				rows = append(rows, []any{
					productCode(ev),
					ev.RawProductCode,
					ev.GenericName,
					core.StatusText(ev.Status),
					ev.InitialPostingDate,
					ev.PostingDate,
					ev.CompanyName,
					ev.DosageForm,
					int32(ev.Line),
				})
			}
			return rows
		},
	})
}

// productCode returns the join key as nullable text.
func productCode(ev core.ShortageEvent) pgtype.Text {
	if !ev.Joinable() {
		return pgtype.Text{}
	}
	return pgtype.Text{String: ev.ProductCode, Valid: true}
}
