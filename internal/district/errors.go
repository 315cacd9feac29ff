package district

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnrecognizedShape is returned when no FeatureCollection could be located in a response.
	ErrUnrecognizedShape = errors.New("GeoJSON FeatureCollection not found in response")
	// ErrMissingDistrictCode is returned when a FeatureCollection carries no district code.
	ErrMissingDistrictCode = errors.New("sig_cd not found in GeoJSON properties")
)

// ShapeError describes a response whose shape was not recognized.
// Shape lists the top-level keys of the response, or its JSON kind when it is not an object.
type ShapeError struct {
	Shape []string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s (shape: %s)", ErrUnrecognizedShape.Error(), strings.Join(e.Shape, ","))
}

func (e *ShapeError) Unwrap() error { return ErrUnrecognizedShape }
