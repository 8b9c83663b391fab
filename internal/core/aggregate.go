package core

import "sort"

// ManufacturerRiskFrom counts current shortages per company from an enriched
// set. Events without a company name cannot be attributed and are left out.
// Rows are ordered by affected packages descending, then company name.
func ManufacturerRiskFrom(records []EnrichedShortageRecord) []ManufacturerRisk {
	type acc struct {
		packages int
		products map[string]struct{}
	}

	byCompany := make(map[string]*acc)
	for _, rec := range records {
		if !rec.Event.Status.IsCurrent() || !rec.Event.CompanyName.Valid {
			continue
		}
		name := rec.Event.CompanyName.String
		a, ok := byCompany[name]
		if !ok {
			a = &acc{products: make(map[string]struct{})}
			byCompany[name] = a
		}
		a.packages++
		if rec.Event.Joinable() {
			a.products[rec.Event.ProductCode] = struct{}{}
		}
	}

	result := make([]ManufacturerRisk, 0, len(byCompany))
	for name, a := range byCompany {
		result = append(result, ManufacturerRisk{
			CompanyName:             name,
			CurrentAffectedPackages: a.packages,
			CurrentAffectedProducts: len(a.products),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CurrentAffectedPackages != result[j].CurrentAffectedPackages {
			return result[i].CurrentAffectedPackages > result[j].CurrentAffectedPackages
		}
		return result[i].CompanyName < result[j].CompanyName
	})

	return result
}
