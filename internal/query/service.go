package query

import (
	"context"
	"fmt"
)

// Default and maximum result limits.
const (
	DefaultManufacturerLimit = 15
	DefaultRouteLimit        = 10
	DefaultLongestLimit      = 50
	MaxLimit                 = 500
)

// Service answers dashboard queries through the cache.
type Service struct {
	src   Source
	cache *Cache
}

// NewService creates a service over src.
func NewService(src Source, cache *Cache) *Service {
	return &Service{src: src, cache: cache}
}

// Refresh drops every cached result so the next query reads the store.
func (s *Service) Refresh() {
	s.cache.Invalidate()
}

// ClampLimit bounds a requested limit to [1, MaxLimit], using def for
// non-positive values.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	return cached(ctx, s.cache, "overview", "overview", s.src.Overview)
}

func (s *Service) Manufacturers(ctx context.Context, limit int) ([]ManufacturerRisk, error) {
	limit = ClampLimit(limit, DefaultManufacturerLimit)
	return cached(ctx, s.cache, "manufacturers", fmt.Sprintf("manufacturers:%d", limit),
		func(ctx context.Context) ([]ManufacturerRisk, error) {
			return s.src.Manufacturers(ctx, limit)
		})
}

func (s *Service) BrandVsGeneric(ctx context.Context) ([]CategoryCount, error) {
	return cached(ctx, s.cache, "brand_vs_generic", "brand_vs_generic", s.src.BrandVsGeneric)
}

func (s *Service) Routes(ctx context.Context, limit int) ([]CategoryCount, error) {
	limit = ClampLimit(limit, DefaultRouteLimit)
	return cached(ctx, s.cache, "routes", fmt.Sprintf("routes:%d", limit),
		func(ctx context.Context) ([]CategoryCount, error) {
			return s.src.Routes(ctx, limit)
		})
}

func (s *Service) ProductTypes(ctx context.Context) ([]ProductTypeCount, error) {
	return cached(ctx, s.cache, "product_types", "product_types", s.src.ProductTypes)
}

func (s *Service) LongestShortages(ctx context.Context, limit int) ([]ShortageDetail, error) {
	limit = ClampLimit(limit, DefaultLongestLimit)
	return cached(ctx, s.cache, "longest_shortages", fmt.Sprintf("longest_shortages:%d", limit),
		func(ctx context.Context) ([]ShortageDetail, error) {
			return s.src.LongestShortages(ctx, limit)
		})
}
