package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/i474232898/treemap/internal/district"
	"github.com/i474232898/treemap/internal/geocoding"
)

// Status is the phase of the district lookup.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ErrorKind classifies a failed lookup.
type ErrorKind string

const (
	KindUpstream          ErrorKind = "upstream"
	KindNotFound          ErrorKind = "not_found"
	KindTimeout           ErrorKind = "timeout"
	KindUnrecognizedShape ErrorKind = "unrecognized_shape"
	KindMissingCode       ErrorKind = "missing_code"
)

// State is a snapshot of the tracker.
//
// In StatusSuccess, Boundary is the current district. In StatusLoading and StatusError it is
// the last successful district, if any, so callers can keep showing it.
type State struct {
	Status   Status             `json:"status"`
	Boundary *district.Boundary `json:"boundary,omitempty"`
	Kind     ErrorKind          `json:"kind,omitempty"`
	Message  string             `json:"message,omitempty"`
}

// DistrictCode returns the code of the carried boundary, or "".
func (s State) DistrictCode() string {
	if s.Boundary == nil {
		return ""
	}
	return s.Boundary.Code
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, district.ErrUnrecognizedShape):
		return KindUnrecognizedShape
	case errors.Is(err, district.ErrMissingDistrictCode):
		return KindMissingCode
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, geocoding.ErrNotFound):
		return KindNotFound
	default:
		return KindUpstream
	}
}
