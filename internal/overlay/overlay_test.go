package overlay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/posts"
)

// fakeService answers point lookups from a table of responses keyed by "level:lat,lng".
type fakeService struct {
	mu      sync.Mutex
	bodies  map[string]string
	calls   map[string]int
	total   int32
	release chan struct{}
}

func newFakeService() *fakeService {
	return &fakeService{bodies: map[string]string{}, calls: map[string]int{}}
}

func pointKey(level district.Level, lat, lng float64) string {
	return fmt.Sprintf("%s:%.4f,%.4f", level, lat, lng)
}

func (f *fakeService) DistrictByPoint(ctx context.Context, lat, lng float64, level district.Level) ([]byte, error) {
	atomic.AddInt32(&f.total, 1)
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := pointKey(level, lat, lng)
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[key]++
	body, ok := f.bodies[key]
	if !ok {
		return nil, errors.New("upstream error")
	}
	return []byte(body), nil
}

func (f *fakeService) DistrictByCode(context.Context, string) ([]byte, error) {
	return nil, errors.New("not used")
}

func districtBody(code, name string) string {
	return fmt.Sprintf(`{"type": "FeatureCollection", "features": [{"type": "Feature",
		"geometry": {"type": "Polygon", "coordinates": [[[126, 37], [127, 37], [127, 38], [126, 37]]]},
		"properties": {"sig_cd": %q, "full_nm": %q}}]}`, code, name)
}

func provinceBody(code, name string) string {
	return fmt.Sprintf(`{"response": {"result": {"featureCollection": {"type": "FeatureCollection", "features": [{"type": "Feature",
		"geometry": {"type": "Polygon", "coordinates": [[[126, 37], [128, 37], [128, 38], [126, 37]]]},
		"properties": {"ctprvn_cd": %q, "ctp_kor_nm": %q}}]}}}}`, code, name)
}

var seoulStats = []posts.LocationStat{
	{DistrictCode: "11110", FullName: "서울특별시 종로구", PostCount: 3, Latitude: 37.57, Longitude: 126.98},
	{DistrictCode: "11140", FullName: "서울특별시 중구", PostCount: 1, Latitude: 37.56, Longitude: 126.99},
	{DistrictCode: "26110", FullName: "부산광역시 중구", PostCount: 2, Latitude: 35.10, Longitude: 129.03},
	{DistrictCode: "99999", FullName: "어딘가 무명구", PostCount: 1},
}

func seed(f *fakeService) {
	f.bodies[pointKey(district.LevelSigungu, 37.57, 126.98)] = districtBody("11110", "서울특별시 종로구")
	f.bodies[pointKey(district.LevelSigungu, 37.56, 126.99)] = districtBody("11140", "서울특별시 중구")
	f.bodies[pointKey(district.LevelSigungu, 35.10, 129.03)] = districtBody("26110", "부산광역시 중구")
	f.bodies[pointKey(district.LevelSido, 37.57, 126.98)] = provinceBody("11", "서울특별시")
	f.bodies[pointKey(district.LevelSido, 35.10, 129.03)] = provinceBody("26", "부산광역시")
}

func codes(l Layer) []string {
	out := make([]string, 0, len(l.Boundaries))
	for _, b := range l.Boundaries {
		if l.Level == district.LevelSido {
			out = append(out, b.FullName)
		} else {
			out = append(out, b.Code)
		}
	}
	return out
}

func TestLevelForZoom(t *testing.T) {
	assert.Equal(t, district.LevelSido, LevelForZoom(10.9))
	assert.Equal(t, district.LevelSigungu, LevelForZoom(11))
	assert.Equal(t, district.LevelSigungu, LevelForZoom(15))
}

func TestUpdateDistrictLevel(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	cache := district.NewBoundaryCache()
	o := New(svc, cache)

	layer, err := o.Update(context.Background(), seoulStats, 12)
	require.NoError(t, err)
	assert.Equal(t, district.LevelSigungu, layer.Level)
	assert.Equal(t, []string{"11110", "11140", "26110"}, codes(layer))
	assert.Empty(t, layer.Missing)

	districts, _ := cache.Len()
	assert.Equal(t, 3, districts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&svc.total))
}

func TestUpdateProvinceLevel(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	cache := district.NewBoundaryCache()
	o := New(svc, cache)

	layer, err := o.Update(context.Background(), seoulStats, 8)
	require.NoError(t, err)
	assert.Equal(t, district.LevelSido, layer.Level)
	// One fetch per province, at the centroid of its first district.
	assert.Equal(t, []string{"부산광역시", "서울특별시"}, codes(layer))
	assert.Equal(t, 1, svc.calls[pointKey(district.LevelSido, 37.57, 126.98)])

	b, ok := cache.Province("서울특별시")
	require.True(t, ok)
	assert.Equal(t, "11", b.Code)
}

func TestUpdateReusesLayerWhenUnchanged(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	o := New(svc, nil)

	first, err := o.Update(context.Background(), seoulStats, 12)
	require.NoError(t, err)
	second, err := o.Update(context.Background(), seoulStats, 14)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(3), atomic.LoadInt32(&svc.total))

	// Switching level fetches provinces; switching back is served from the cache.
	_, err = o.Update(context.Background(), seoulStats, 9)
	require.NoError(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&svc.total))
	_, err = o.Update(context.Background(), seoulStats, 12)
	require.NoError(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&svc.total))
}

func TestUpdateSkipsFailedKeys(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	delete(svc.bodies, pointKey(district.LevelSigungu, 37.56, 126.99))
	o := New(svc, nil)

	layer, err := o.Update(context.Background(), seoulStats, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"11110", "26110"}, codes(layer))
	assert.Equal(t, []string{"11140"}, layer.Missing)

	// The failed key is retried on the next update.
	svc.bodies[pointKey(district.LevelSigungu, 37.56, 126.99)] = districtBody("11140", "서울특별시 중구")
	layer, err = o.Update(context.Background(), seoulStats, 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"11110", "11140", "26110"}, codes(layer))
	assert.Equal(t, 1, svc.calls[pointKey(district.LevelSigungu, 37.57, 126.98)])
}

func TestUpdateSuperseded(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	svc.release = make(chan struct{})
	o := New(svc, nil)

	done := make(chan error, 1)
	go func() {
		_, err := o.Update(context.Background(), seoulStats[:1], 12)
		done <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&svc.total) == 1 }, time.Second, time.Millisecond)

	go func() {
		for {
			select {
			case svc.release <- struct{}{}:
			case <-time.After(time.Second):
				return
			}
		}
	}()
	layer, err := o.Update(context.Background(), seoulStats[2:3], 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"26110"}, codes(layer))

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, []string{"26110"}, codes(o.Current()))
}

func TestUpdateCancelled(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	svc.release = make(chan struct{})
	o := New(svc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Update(ctx, seoulStats, 12)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, o.Current().Boundaries)
}

func TestMismatchedCentroidIsNotCached(t *testing.T) {
	svc := newFakeService()
	svc.bodies[pointKey(district.LevelSigungu, 37.57, 126.98)] = districtBody("11140", "서울특별시 중구")
	cache := district.NewBoundaryCache()
	o := New(svc, cache)

	layer, err := o.Update(context.Background(), seoulStats[:1], 12)
	require.NoError(t, err)
	assert.Equal(t, []string{"11140"}, codes(layer))
	_, ok := cache.District("11110")
	assert.False(t, ok)
}

func TestEmptyResponseIsNotCached(t *testing.T) {
	svc := newFakeService()
	svc.bodies[pointKey(district.LevelSigungu, 37.57, 126.98)] = `{"type": "FeatureCollection", "features": []}`
	cache := district.NewBoundaryCache()
	o := New(svc, cache)

	layer, err := o.Update(context.Background(), seoulStats[:1], 12)
	require.NoError(t, err)
	assert.Empty(t, layer.Boundaries)
	assert.Equal(t, []string{"11110"}, layer.Missing)
	_, ok := cache.District("11110")
	assert.False(t, ok)
}

func TestCancelledCallerDoesNotFailSharedFetch(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	svc.release = make(chan struct{})
	o := New(svc, nil)
	tg := target{key: "11110", lat: 37.57, lng: 126.98}

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := o.boundary(ctx, district.LevelSigungu, tg)
		first <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(&svc.total) == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	type result struct {
		b   *district.Boundary
		err error
	}
	second := make(chan result, 1)
	go func() {
		b, err := o.boundary(context.Background(), district.LevelSigungu, tg)
		second <- result{b, err}
	}()
	svc.release <- struct{}{}

	r := <-second
	require.NoError(t, r.err)
	assert.Equal(t, "11110", r.b.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&svc.total))
}

func TestSetWarmFillsBothLevels(t *testing.T) {
	svc := newFakeService()
	seed(svc)
	cache := district.NewBoundaryCache()
	s := NewSet(svc, cache, WithConcurrency(2))

	require.NoError(t, s.Warm(context.Background(), seoulStats))
	districts, provinces := cache.Len()
	assert.Equal(t, 3, districts)
	assert.Equal(t, 2, provinces)

	layer, err := s.Update(context.Background(), seoulStats, 8)
	require.NoError(t, err)
	assert.Equal(t, district.LevelSido, layer.Level)
	assert.Equal(t, int32(5), atomic.LoadInt32(&svc.total))
}
