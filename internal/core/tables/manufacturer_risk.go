package tables

import "github.com/JonMunkholm/shortages/internal/core"

func init() {
	registerManufacturerRisk()
}

func registerManufacturerRisk() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   ManufacturerRisk,
			Label: "Current manufacturer risk",
			Order: 40,
			Columns: []string{
				"company_name",
				"current_affected_packages",
				"current_affected_products",
			},
			NaturalKey: []string{"company_name"},
		},
		Requires: []core.DatasetKind{core.DatasetShortage},
		Rows: func(s *core.Snapshot) [][]any {
			rows := make([][]any, 0, len(s.Risk))
			for _, r := range s.Risk {
				rows = append(rows, []any{
					r.CompanyName,
					int32(r.CurrentAffectedPackages),
					int32(r.CurrentAffectedProducts),
				})
			}
			return rows
		},
	})
}
