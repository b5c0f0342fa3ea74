package blobstore

import "errors"

var (
	// ErrUnknownBackend is returned for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown blob backend")
	// ErrInvalidRepo is returned for a repository not in owner/name form.
	ErrInvalidRepo = errors.New("invalid repository")
	// ErrNotAFile is returned when a key resolves to a directory.
	ErrNotAFile = errors.New("not a file")
	// ErrUnexpectedStatus wraps non-success HTTP responses.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMissingVersion is returned when a write response carries no version.
	ErrMissingVersion = errors.New("store returned no version")
	// ErrCorruptEnvelope is returned when a stored record cannot be decoded.
	ErrCorruptEnvelope = errors.New("corrupt blob envelope")
)
