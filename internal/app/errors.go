package service

import "errors"

// Sentinel errors of the service lifecycle.
var (
	ErrNotStarted = errors.New("service not started")
	ErrNoStore    = errors.New("service has no blob store")
)
