package submission

import "errors"

var (
	// ErrMissingColumns is returned when id or prediction is absent.
	ErrMissingColumns = errors.New("required columns missing")
	// ErrNotNumeric is returned when a prediction cannot be read as a number.
	ErrNotNumeric = errors.New("prediction is not numeric")
	// ErrUnknownPolicy is returned for an unsupported duplicate policy.
	ErrUnknownPolicy = errors.New("unknown duplicate policy")
)
