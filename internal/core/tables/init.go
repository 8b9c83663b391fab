// Package tables registers all destination table definitions with the core registry.
// Import this package to ensure all tables are registered.
package tables

// Each table file uses init() to register its table.

// Table names form the contract read by the query service.
const (
	RawNDC           = "raw_ndc"
	RawDrugShortages = "raw_drug_shortages"
	ShortagesWithNDC = "shortages_with_ndc"
	ManufacturerRisk = "current_manufacturer_risk"
)
