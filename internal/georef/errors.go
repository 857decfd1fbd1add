package georef

import "errors"

// Error kinds reported by the georeferencing engine. Callers match them with
// errors.Is; every returned error wraps exactly one of these.
var (
	// ErrValidation reports malformed transform or matrix shapes, or a
	// non-finite or non-positive scale.
	ErrValidation = errors.New("validation error")

	// ErrInsufficientData reports fewer than MinCorrespondences point pairs.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrDegenerateGeometry reports a correspondence set without enough
	// spread to determine scale or rotation.
	ErrDegenerateGeometry = errors.New("degenerate geometry")

	// ErrMissingField reports a point cloud without x, y and z fields.
	ErrMissingField = errors.New("missing field")
)
