package groundtruth

import "errors"

var (
	// ErrMissingColumns is returned when id or target is absent.
	ErrMissingColumns = errors.New("required columns missing")
	// ErrNotIntegral is returned when a target is not an integer class.
	ErrNotIntegral = errors.New("target is not an integer class")
)
