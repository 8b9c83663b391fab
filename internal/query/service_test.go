package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/shortages/internal/metrics"
)

type fakeSource struct {
	calls  map[string]int
	limits map[string]int
	fail   error
}

func newFakeSource() *fakeSource {
	return &fakeSource{calls: make(map[string]int), limits: make(map[string]int)}
}

func (f *fakeSource) Overview(ctx context.Context) (Overview, error) {
	f.calls["overview"]++
	if f.fail != nil {
		return Overview{}, f.fail
	}
	return Overview{TotalShortages: 3, CurrentShortages: 2}, nil
}

func (f *fakeSource) Manufacturers(ctx context.Context, limit int) ([]ManufacturerRisk, error) {
	f.calls["manufacturers"]++
	f.limits["manufacturers"] = limit
	return []ManufacturerRisk{{CompanyName: "Acme", CurrentAffectedPackages: 2, CurrentAffectedProducts: 1}}, nil
}

func (f *fakeSource) BrandVsGeneric(ctx context.Context) ([]CategoryCount, error) {
	f.calls["brand_vs_generic"]++
	return []CategoryCount{{Category: "Branded Drug", ShortageCount: 1}}, nil
}

func (f *fakeSource) Routes(ctx context.Context, limit int) ([]CategoryCount, error) {
	f.calls["routes"]++
	f.limits["routes"] = limit
	return nil, nil
}

func (f *fakeSource) ProductTypes(ctx context.Context) ([]ProductTypeCount, error) {
	f.calls["product_types"]++
	return nil, nil
}

func (f *fakeSource) LongestShortages(ctx context.Context, limit int) ([]ShortageDetail, error) {
	f.calls["longest_shortages"]++
	f.limits["longest_shortages"] = limit
	return nil, nil
}

func TestService_CachesUntilRefresh(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	m := metrics.New()
	svc := NewService(src, NewCache(time.Minute, time.Minute, m))

	for i := 0; i < 3; i++ {
		ov, err := svc.Overview(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), ov.TotalShortages)
	}
	assert.Equal(t, 1, src.calls["overview"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("overview", "hit")))

	svc.Refresh()
	_, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls["overview"])
}

func TestService_KeysIncludeLimit(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	svc := NewService(src, NewCache(time.Minute, time.Minute, nil))

	_, err := svc.Manufacturers(ctx, 5)
	require.NoError(t, err)
	_, err = svc.Manufacturers(ctx, 5)
	require.NoError(t, err)
	_, err = svc.Manufacturers(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, src.calls["manufacturers"])
	assert.Equal(t, 10, src.limits["manufacturers"])
}

func TestService_DefaultLimits(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	svc := NewService(src, NewCache(time.Minute, time.Minute, nil))

	_, _ = svc.Manufacturers(ctx, 0)
	_, _ = svc.Routes(ctx, -1)
	_, _ = svc.LongestShortages(ctx, 100000)

	assert.Equal(t, DefaultManufacturerLimit, src.limits["manufacturers"])
	assert.Equal(t, DefaultRouteLimit, src.limits["routes"])
	assert.Equal(t, MaxLimit, src.limits["longest_shortages"])
}

func TestService_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	src.fail = errors.New("connection refused")
	svc := NewService(src, NewCache(time.Minute, time.Minute, nil))

	_, err := svc.Overview(ctx)
	require.Error(t, err)

	src.fail = nil
	_, err = svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls["overview"])
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	src := newFakeSource()
	svc := NewService(src, NewCache(20*time.Millisecond, time.Minute, nil))

	_, _ = svc.BrandVsGeneric(ctx)
	time.Sleep(40 * time.Millisecond)
	_, _ = svc.BrandVsGeneric(ctx)

	assert.Equal(t, 2, src.calls["brand_vs_generic"])
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 15, ClampLimit(0, 15))
	assert.Equal(t, 7, ClampLimit(7, 15))
	assert.Equal(t, MaxLimit, ClampLimit(MaxLimit+1, 15))
}
