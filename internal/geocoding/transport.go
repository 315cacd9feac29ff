package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client  *http.Client
	Backoff BackoffConfig
}

// maxBody caps how much of a response body is read.
const maxBody = 8 << 20

var (
	errCircuitOpen   = errors.New("circuit breaker open")
	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid backoff configuration")
)

type httpResult struct {
	status int
	body   []byte
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
}

// fetch executes the request with retries, exponential backoff and a circuit breaker,
// and returns the body of a 2xx response. Non-2xx responses become *UpstreamError.
// Only 429 and 5xx responses and transport errors are retried.
func fetch(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func(ctx context.Context) (*http.Request, error),
) ([]byte, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Backoff.MaxRetries < 0 || (cfg.Backoff.MaxRetries > 0 && cfg.Backoff.InitialInterval <= 0) {
		return nil, errInvalidConfig
	}

	var attempt int

	for {
		if ctx.Err() != nil {
			return nil, &UpstreamError{Err: ctx.Err()}
		}

		req, err := buildRequest(ctx)
		if err != nil {
			return nil, err
		}

		result, err := cb.Execute(func() (interface{}, error) {
			resp, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, &UpstreamError{Err: execErr}
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBody))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return nil, &UpstreamError{Status: resp.StatusCode, Message: errorMessage(body)}
			}
			if readErr != nil {
				return nil, &UpstreamError{Status: resp.StatusCode, Err: readErr}
			}
			// Other statuses are answers about the query, not upstream health; they do not
			// count against the breaker.
			return &httpResult{status: resp.StatusCode, body: body}, nil
		})

		if err == nil {
			res, ok := result.(*httpResult)
			if !ok {
				return nil, fmt.Errorf("unexpected result type from circuit breaker")
			}
			if res.status < 200 || res.status >= 300 {
				return nil, &UpstreamError{Status: res.status, Message: errorMessage(res.body)}
			}
			return res.body, nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &UpstreamError{Err: fmt.Errorf("%w: %v", errCircuitOpen, err)}
		}

		if !retryable(err) || attempt >= cfg.Backoff.MaxRetries {
			return nil, err
		}

		delay := cfg.Backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if delay > cfg.Backoff.MaxInterval && cfg.Backoff.MaxInterval > 0 {
			delay = cfg.Backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &UpstreamError{Err: ctx.Err()}
		case <-timer.C:
		}

		attempt++
	}
}

func retryable(err error) bool {
	var ue *UpstreamError
	if !errors.As(err, &ue) {
		return false
	}
	if ue.Status == 0 {
		return !errors.Is(ue.Err, context.Canceled) && !errors.Is(ue.Err, context.DeadlineExceeded)
	}
	return ue.Status == http.StatusTooManyRequests || ue.Status >= 500
}

// errorMessage pulls a message out of an {"error": ...} body, if there is one.
func errorMessage(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if s, ok := payload.Error.(string); ok && s != "" {
		if payload.Message != "" {
			return s + ": " + payload.Message
		}
		return s
	}
	return payload.Message
}
