package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
	"github.com/i474232898/treemap/internal/overlay"
	"github.com/i474232898/treemap/internal/posts"
	"github.com/i474232898/treemap/internal/store"
)

const jongno = `{"response": {"status": "OK", "result": {"featureCollection": {"type": "FeatureCollection", "features": [{"type": "Feature",
	"geometry": {"type": "Polygon", "coordinates": [[[126.9, 37.5], [127.0, 37.5], [127.0, 37.6], [126.9, 37.5]]]},
	"properties": {"sig_cd": "11110", "sig_eng_nm": "Jongno-gu", "sig_kor_nm": "종로구", "full_nm": "서울특별시 종로구"}}]}}}}`

type stubGeocoder struct {
	body  string
	err   error
	level district.Level
	code  string
}

func (s *stubGeocoder) DistrictByPoint(_ context.Context, _, _ float64, level district.Level) ([]byte, error) {
	s.level = level
	return []byte(s.body), s.err
}

func (s *stubGeocoder) DistrictByCode(_ context.Context, code string) ([]byte, error) {
	s.code = code
	return []byte(s.body), s.err
}

func newApp(geo *stubGeocoder) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	postsSvc := posts.NewService(store.NewMemoryStore(0), geo, time.Minute)
	RegisterRoutes(app, geo, postsSvc, overlay.NewSet(geo, nil))
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func TestDistrictByPointReturnsFeatureCollection(t *testing.T) {
	geo := &stubGeocoder{body: jongno}
	app := newApp(geo)

	resp, body := do(t, app, http.MethodGet, "/api/v1/district-by-point?lat=37.57&lng=126.98", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "FeatureCollection", body["type"])
	assert.Equal(t, district.LevelSigungu, geo.level)

	resp, _ = do(t, app, http.MethodGet, "/api/sigungu/by-point?lat=37.57&lng=126.98&level=sido", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, district.LevelSido, geo.level)
}

func TestDistrictByPointValidation(t *testing.T) {
	app := newApp(&stubGeocoder{body: jongno})

	for _, target := range []string{
		"/api/v1/district-by-point",
		"/api/v1/district-by-point?lat=37.5",
		"/api/v1/district-by-point?lat=abc&lng=127",
		"/api/v1/district-by-point?lat=95&lng=127",
		"/api/v1/district-by-point?lat=37.5&lng=127&level=dong",
	} {
		resp, body := do(t, app, http.MethodGet, target, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, target)
		assert.Equal(t, true, body["error"], target)
	}
}

func TestDistrictByPointUnrecognizedShape(t *testing.T) {
	app := newApp(&stubGeocoder{body: `{"response": {"status": "OK", "page": {}}}`})

	resp, body := do(t, app, http.MethodGet, "/api/v1/district-by-point?lat=37.57&lng=126.98", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, []any{"response"}, body["rawShape"])
}

func TestDistrictByPointUpstreamErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
	}{
		"upstream":    {&geocoding.UpstreamError{Status: 502, Message: "INVALID_KEY"}, http.StatusBadGateway},
		"not found":   {geocoding.ErrNotFound, http.StatusNotFound},
		"missing key": {geocoding.ErrMissingKey, http.StatusInternalServerError},
		"timeout":     {&geocoding.UpstreamError{Err: context.DeadlineExceeded}, http.StatusGatewayTimeout},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			app := newApp(&stubGeocoder{err: tc.err})
			resp, _ := do(t, app, http.MethodGet, "/api/v1/district-by-point?lat=37.57&lng=126.98", "")
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}

func TestDistrictByCode(t *testing.T) {
	geo := &stubGeocoder{body: jongno}
	app := newApp(geo)

	resp, _ := do(t, app, http.MethodGet, "/api/v1/district-by-code", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := do(t, app, http.MethodGet, "/api/sigungu?sig_cd=11110", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "11110", geo.code)
	assert.Equal(t, "FeatureCollection", body["type"])
}

func TestCreateAndListPosts(t *testing.T) {
	app := newApp(&stubGeocoder{body: jongno})

	resp, body := do(t, app, http.MethodPost, "/api/v1/posts", `{"content": "first tree", "latitude": 37.57, "longitude": 126.98}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "11110", body["sig_cd"])
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)

	resp, body = do(t, app, http.MethodGet, "/api/v1/posts/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "first tree", body["content"])

	resp, _ = do(t, app, http.MethodGet, "/api/v1/posts/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/posts?sig_cd=11110", nil)
	listResp, err := app.Test(req, -1)
	require.NoError(t, err)
	var list []posts.Post
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/posts?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreatePostErrors(t *testing.T) {
	resp, _ := do(t, newApp(&stubGeocoder{body: jongno}), http.MethodPost, "/api/v1/posts", `{"content": "", "latitude": 37.57, "longitude": 126.98}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, newApp(&stubGeocoder{body: jongno}), http.MethodPost, "/api/v1/posts", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, newApp(&stubGeocoder{err: &geocoding.UpstreamError{Status: 503}}), http.MethodPost, "/api/v1/posts", `{"content": "hi", "latitude": 37.57, "longitude": 126.98}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	noCode := `{"type": "FeatureCollection", "features": [{"type": "Feature", "geometry": null, "properties": {}}]}`
	resp, _ = do(t, newApp(&stubGeocoder{body: noCode}), http.MethodPost, "/api/v1/posts", `{"content": "hi", "latitude": 37.57, "longitude": 126.98}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStatsMarkersAndBoundaries(t *testing.T) {
	app := newApp(&stubGeocoder{body: jongno})
	for i := 0; i < 2; i++ {
		resp, _ := do(t, app, http.MethodPost, "/api/v1/posts", `{"content": "tree", "latitude": 37.55, "longitude": 126.95}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	var stats []posts.LocationStat
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].PostCount)
	assert.Equal(t, posts.TreeSize(2), stats[0].TreeSize)

	resp, body := do(t, app, http.MethodGet, "/api/v1/markers?zoom=11", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "district", body["level"])
	assert.Len(t, body["markers"], 1)

	resp, body = do(t, app, http.MethodGet, "/api/v1/markers?zoom=15", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["markers"], 2)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/markers", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = do(t, app, http.MethodGet, "/api/v1/boundaries?zoom=12", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sigungu", body["level"])
	assert.Len(t, body["boundaries"], 1)

	resp, _ = do(t, app, http.MethodGet, "/api/v1/boundaries?zoom=30", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
