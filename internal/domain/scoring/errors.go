package scoring

import "errors"

var (
	// ErrEmptyInput is returned when there is nothing to score.
	ErrEmptyInput = errors.New("no predictions to score")
	// ErrLengthMismatch is returned when labels and predictions differ in length.
	ErrLengthMismatch = errors.New("labels and predictions differ in length")
	// ErrNonFinite is returned for NaN or infinite predictions.
	ErrNonFinite = errors.New("prediction is not a finite number")
	// ErrUnknownAverage is returned for an unsupported F1 average.
	ErrUnknownAverage = errors.New("unknown f1 average")
)
