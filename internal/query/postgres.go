// Package query serves the read-only aggregate views over the loaded tables.
//
// Results are cached explicitly in Service; nothing below it caches.
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the read surface of a pgx pool, connection or transaction.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Overview summarizes the enriched table.
type Overview struct {
	TotalShortages        int64 `json:"total_shortages" db:"total_shortages"`
	AffectedManufacturers int64 `json:"affected_manufacturers" db:"affected_manufacturers"`
	AffectedProducts      int64 `json:"affected_products" db:"affected_products"`
	CurrentShortages      int64 `json:"current_shortages" db:"current_shortages"`
}

// ManufacturerRisk is one row of current_manufacturer_risk.
type ManufacturerRisk struct {
	CompanyName             string `json:"company_name" db:"company_name"`
	CurrentAffectedPackages int32  `json:"current_affected_packages" db:"current_affected_packages"`
	CurrentAffectedProducts int32  `json:"current_affected_products" db:"current_affected_products"`
}

// CategoryCount counts current shortages per category.
type CategoryCount struct {
	Category      string `json:"category" db:"category"`
	ShortageCount int64  `json:"shortage_count" db:"shortage_count"`
}

// ProductTypeCount counts current shortages per registry product type.
type ProductTypeCount struct {
	ProductType   string `json:"product_type" db:"product_type"`
	ShortageCount int64  `json:"shortage_count" db:"shortage_count"`
	Manufacturers int64  `json:"manufacturers" db:"manufacturers"`
}

// ShortageDetail is one current shortage with its registry context.
type ShortageDetail struct {
	Manufacturer       *string `json:"manufacturer" db:"manufacturer"`
	DrugName           *string `json:"drug_name" db:"drug_name"`
	BrandName          *string `json:"brand_name" db:"brand_name"`
	DosageForm         *string `json:"dosage_form" db:"dosage_form"`
	PackageDescription *string `json:"package_description" db:"package_description"`
	ProductType        *string `json:"product_type" db:"product_type"`
	DaysActive         *int32  `json:"days_active" db:"days_active"`
}

// Source runs the aggregate queries.
type Source interface {
	Overview(ctx context.Context) (Overview, error)
	Manufacturers(ctx context.Context, limit int) ([]ManufacturerRisk, error)
	BrandVsGeneric(ctx context.Context) ([]CategoryCount, error)
	Routes(ctx context.Context, limit int) ([]CategoryCount, error)
	ProductTypes(ctx context.Context) ([]ProductTypeCount, error)
	LongestShortages(ctx context.Context, limit int) ([]ShortageDetail, error)
}

const overviewSQL = `
SELECT
    count(*)                                      AS total_shortages,
    count(DISTINCT company_name)                  AS affected_manufacturers,
    count(DISTINCT product_ndc)                   AS affected_products,
    count(*) FILTER (WHERE status = 'Current')    AS current_shortages
FROM shortages_with_ndc`

const manufacturersSQL = `
SELECT company_name, current_affected_packages, current_affected_products
FROM current_manufacturer_risk
ORDER BY current_affected_packages DESC, company_name
LIMIT $1`

const brandVsGenericSQL = `
SELECT
    CASE
        WHEN brand_name IS NOT NULL AND brand_name <> '' THEN 'Branded Drug'
        ELSE 'Generic/Unbranded'
    END      AS category,
    count(*) AS shortage_count
FROM shortages_with_ndc
WHERE status = 'Current'
GROUP BY 1
ORDER BY shortage_count DESC, category`

const routesSQL = `
SELECT
    CASE
        WHEN upper(route) LIKE '%ORAL%' THEN 'Oral'
        WHEN upper(route) LIKE '%INTRAVENOUS%' OR upper(route) LIKE '%IV%' THEN 'Intravenous'
        WHEN upper(route) LIKE '%INJECTION%' THEN 'Injection'
        WHEN upper(route) LIKE '%TOPICAL%' THEN 'Topical'
        WHEN upper(route) LIKE '%INHALATION%' THEN 'Inhalation'
        ELSE 'Other'
    END      AS category,
    count(*) AS shortage_count
FROM shortages_with_ndc
WHERE status = 'Current' AND route IS NOT NULL
GROUP BY 1
ORDER BY shortage_count DESC, category
LIMIT $1`

const productTypesSQL = `
SELECT
    product_type,
    count(*)                     AS shortage_count,
    count(DISTINCT company_name) AS manufacturers
FROM shortages_with_ndc
WHERE status = 'Current' AND product_type IS NOT NULL
GROUP BY product_type
ORDER BY shortage_count DESC, product_type`

const longestSQL = `
SELECT
    company_name          AS manufacturer,
    shortage_generic_name AS drug_name,
    brand_name,
    shortage_dosage_form  AS dosage_form,
    package_description,
    product_type,
    CASE WHEN posting_date <= $2::date THEN $2::date - posting_date END AS days_active
FROM shortages_with_ndc
WHERE status = 'Current' AND product_ndc IS NOT NULL
ORDER BY days_active DESC NULLS LAST, company_name, drug_name
LIMIT $1`

// Postgres runs the aggregate queries against PostgreSQL.
type Postgres struct {
	db  DBTX
	now func() time.Time
}

// Option configures a Postgres source.
type Option func(*Postgres)

// WithClock sets the clock that supplies today's date for days_active.
func WithClock(now func() time.Time) Option {
	return func(p *Postgres) {
		p.now = now
	}
}

// NewPostgres creates a query source over db.
func NewPostgres(db DBTX, opts ...Option) *Postgres {
	p := &Postgres{db: db, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// today is the UTC calendar date days_active is measured against.
func (p *Postgres) today() pgtype.Date {
	y, m, d := p.now().UTC().Date()
	return pgtype.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func (p *Postgres) Overview(ctx context.Context) (Overview, error) {
	rows, err := p.db.Query(ctx, overviewSQL)
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}
	ov, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Overview])
	if err != nil {
		return Overview{}, fmt.Errorf("overview: %w", err)
	}
	return ov, nil
}

func (p *Postgres) Manufacturers(ctx context.Context, limit int) ([]ManufacturerRisk, error) {
	return collect[ManufacturerRisk](ctx, p.db, "manufacturers", manufacturersSQL, limit)
}

func (p *Postgres) BrandVsGeneric(ctx context.Context) ([]CategoryCount, error) {
	return collect[CategoryCount](ctx, p.db, "brand vs generic", brandVsGenericSQL)
}

func (p *Postgres) Routes(ctx context.Context, limit int) ([]CategoryCount, error) {
	return collect[CategoryCount](ctx, p.db, "routes", routesSQL, limit)
}

func (p *Postgres) ProductTypes(ctx context.Context) ([]ProductTypeCount, error) {
	return collect[ProductTypeCount](ctx, p.db, "product types", productTypesSQL)
}

func (p *Postgres) LongestShortages(ctx context.Context, limit int) ([]ShortageDetail, error) {
	return collect[ShortageDetail](ctx, p.db, "longest shortages", longestSQL, limit, p.today())
}

func collect[T any](ctx context.Context, db DBTX, name, sql string, args ...any) ([]T, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	result, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return result, nil
}
