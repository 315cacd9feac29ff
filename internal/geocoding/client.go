package geocoding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/treemap/internal/district"
)

// Client implements Service against the treemap proxy API.
type Client struct {
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

// NewClient creates a proxy client. The zero BackoffConfig disables retries, which is what
// the live-location tracker wants: the next location update retries on its own.
func NewClient(baseURL string, client *http.Client, backoff BackoffConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpCfg: HTTPClientConfig{Client: client, Backoff: backoff},
		circuit: newCircuitBreaker("treemap-proxy"),
	}
}

// DistrictByPoint calls GET /api/v1/district-by-point.
func (c *Client) DistrictByPoint(ctx context.Context, lat, lng float64, level district.Level) ([]byte, error) {
	if err := validatePoint(lat, lng, level); err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("lat", formatCoord(lat))
	values.Set("lng", formatCoord(lng))
	values.Set("level", string(level))
	return c.get(ctx, "/api/v1/district-by-point", values)
}

// DistrictByCode calls GET /api/v1/district-by-code.
func (c *Client) DistrictByCode(ctx context.Context, code string) ([]byte, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}
	values := url.Values{}
	values.Set("code", code)
	return c.get(ctx, "/api/v1/district-by-code", values)
}

func (c *Client) get(ctx context.Context, path string, values url.Values) ([]byte, error) {
	return fetch(ctx, c.httpCfg, c.circuit, func(ctx context.Context) (*http.Request, error) {
		u := fmt.Sprintf("%s%s?%s", c.baseURL, path, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	})
}
