package geocoding

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/treemap/internal/district"
)

// Service resolves administrative boundaries. Responses are returned as raw JSON; callers
// normalize them with district.Normalize since the shape varies between backends.
type Service interface {
	DistrictByPoint(ctx context.Context, lat, lng float64, level district.Level) ([]byte, error)
	DistrictByCode(ctx context.Context, code string) ([]byte, error)
}

var (
	// ErrUpstreamUnavailable covers transport failures and non-2xx responses.
	ErrUpstreamUnavailable = errors.New("geocoding service unavailable")
	// ErrNotFound is returned when the upstream has no boundary for the query.
	ErrNotFound = errors.New("no boundary found")
	// ErrInvalidRequest is returned for queries that are rejected before any network call.
	ErrInvalidRequest = errors.New("invalid geocoding request")
	// ErrMissingKey is returned when the upstream API key is not configured.
	ErrMissingKey = errors.New("boundary API key is not configured")
)

// UpstreamError describes a failed call to a geocoding backend.
type UpstreamError struct {
	// Status is the HTTP status code; 0 when no response was received.
	Status  int
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", ErrUpstreamUnavailable, e.Message, e.Status)
	case e.Status != 0:
		return fmt.Sprintf("%s: request failed (status %d)", ErrUpstreamUnavailable, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", ErrUpstreamUnavailable, e.Err)
	default:
		return ErrUpstreamUnavailable.Error()
	}
}

func (e *UpstreamError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrUpstreamUnavailable, e.Err}
	}
	return []error{ErrUpstreamUnavailable}
}

func validatePoint(lat, lng float64, level district.Level) error {
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return fmt.Errorf("%w: coordinate out of range (%f, %f)", ErrInvalidRequest, lat, lng)
	}
	if !level.Valid() {
		return fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, level)
	}
	return nil
}
