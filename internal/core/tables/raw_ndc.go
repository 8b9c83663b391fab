package tables

import "github.com/JonMunkholm/shortages/internal/core"

func init() {
	registerRawNDC()
}

func registerRawNDC() {
	core.Register(core.TableDefinition{
		Info: core.TableInfo{
			Key:   RawNDC,
			Label: "Drug registry",
			Order: 10,
			Columns: []string{
				"package_ndc",
				"product_ndc",
				"raw_product_ndc",
				"generic_name",
				"brand_name",
				"route",
				"product_type",
				"package_description",
			},
			NaturalKey: []string{"package_ndc"},
		},
		Requires: []core.DatasetKind{core.DatasetRegistry},
		Rows: func(s *core.Snapshot) [][]any {
			rows := make([][]any, 0, len(s.Registry))
			for _, r := range s.Registry {
				rows = append(rows, []any{
					r.PackageCode,
					r.ProductCode,
					r.RawProductCode,
					r.GenericName,
					r.BrandName,
					r.Route,
					r.ProductType,
					r.PackagingDescription,
				})
			}
			return rows
		},
	})
}
