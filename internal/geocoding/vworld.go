package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/metrics"
)

// DefaultVWorldURL is the VWorld 2D data API endpoint.
const DefaultVWorldURL = "https://api.vworld.kr/req/data"

// VWorld datasets.
const (
	datasetSigungu = "LT_C_ADSIGG_INFO"
	datasetSido    = "LT_C_ADSIDO_INFO"
)

// VWorld implements Service against the VWorld boundary API.
type VWorld struct {
	apiKey  string
	domain  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *logrus.Entry
}

// VWorldOption customizes a VWorld client.
type VWorldOption func(*VWorld)

// WithVWorldBaseURL overrides the API endpoint.
func WithVWorldBaseURL(u string) VWorldOption {
	return func(p *VWorld) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithVWorldBackoff overrides the retry policy.
func WithVWorldBackoff(b BackoffConfig) VWorldOption {
	return func(p *VWorld) { p.httpCfg.Backoff = b }
}

// WithVWorldLogger sets the logger.
func WithVWorldLogger(l *logrus.Entry) VWorldOption {
	return func(p *VWorld) { p.log = l }
}

// NewVWorld creates a VWorld client. domain is sent along with the key because VWorld
// validates keys against the registered domain.
func NewVWorld(client *http.Client, apiKey, domain string, opts ...VWorldOption) *VWorld {
	p := &VWorld{
		apiKey:  apiKey,
		domain:  domain,
		baseURL: DefaultVWorldURL,
		httpCfg: HTTPClientConfig{
			Client: client,
			Backoff: BackoffConfig{
				MaxRetries:      2,
				InitialInterval: 300 * time.Millisecond,
				MaxInterval:     2 * time.Second,
			},
		},
		circuit: newCircuitBreaker("vworld"),
		log:     logrus.WithField("component", "vworld"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.domain == "" {
		p.log.Warn("VWORLD_DOMAIN is not set; requests may fail key validation")
	}
	return p
}

// DistrictByPoint fetches the boundary containing the point.
func (p *VWorld) DistrictByPoint(ctx context.Context, lat, lng float64, level district.Level) ([]byte, error) {
	if err := validatePoint(lat, lng, level); err != nil {
		return nil, err
	}
	dataset := datasetSigungu
	if level == district.LevelSido {
		dataset = datasetSido
	}

	values := url.Values{}
	values.Set("geomFilter", fmt.Sprintf("POINT(%s %s)", formatCoord(lng), formatCoord(lat)))
	values.Set("size", "1")
	values.Set("page", "1")
	values.Set("crs", "EPSG:4326")
	return p.get(ctx, dataset, values)
}

// DistrictByCode fetches a district boundary by its sig_cd.
func (p *VWorld) DistrictByCode(ctx context.Context, code string) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: sig_cd is required", ErrInvalidRequest)
	}
	values := url.Values{}
	values.Set("attrFilter", "sig_cd:=:"+code)
	return p.get(ctx, datasetSigungu, values)
}

func (p *VWorld) get(ctx context.Context, dataset string, values url.Values) ([]byte, error) {
	if p.apiKey == "" {
		return nil, ErrMissingKey
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values.Set("service", "data")
		values.Set("request", "GetFeature")
		values.Set("version", "2.0")
		values.Set("data", dataset)
		values.Set("key", p.apiKey)
		values.Set("format", "json")
		values.Set("geometry", "true")
		values.Set("attribute", "true")
		if p.domain != "" {
			values.Set("domain", p.domain)
		}
		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	t0 := time.Now()
	body, err := fetch(ctx, p.httpCfg, p.circuit, buildRequest)
	metrics.UpstreamDurationMs.WithLabelValues(dataset).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(dataset, "error").Inc()
		p.log.WithError(err).WithField("dataset", dataset).Error("vworld request failed")
		return nil, err
	}

	if err := checkEnvelope(body); err != nil {
		metrics.UpstreamRequestsTotal.WithLabelValues(dataset, "rejected").Inc()
		p.log.WithError(err).WithField("dataset", dataset).Warn("vworld rejected request")
		return nil, err
	}

	metrics.UpstreamRequestsTotal.WithLabelValues(dataset, "ok").Inc()
	p.log.WithFields(logrus.Fields{"dataset": dataset, "bytes": len(body)}).Debug("vworld response")
	return body, nil
}

// checkEnvelope inspects VWorld's response.status. VWorld reports errors with HTTP 200.
func checkEnvelope(body []byte) error {
	var env struct {
		Response struct {
			Status string          `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		// Not an envelope; leave shape checks to the normalizer.
		return nil
	}

	switch env.Response.Status {
	case "NOT_FOUND":
		return ErrNotFound
	case "ERROR":
		return &UpstreamError{Status: http.StatusBadGateway, Message: envelopeMessage(env.Response.Error)}
	}
	return nil
}

func envelopeMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "VWorld API error"
	}
	var detail struct {
		Code string `json:"code"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil && (detail.Text != "" || detail.Code != "") {
		if detail.Code == "" {
			return detail.Text
		}
		return detail.Code + ": " + detail.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	return "VWorld API error"
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
