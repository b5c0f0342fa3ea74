package repository

import "errors"

// Sentinel errors of the history log.
var (
	ErrNilStore      = errors.New("history log needs a blob store")
	ErrCorruptLog    = errors.New("history log cannot be decoded")
	ErrAnonymousUser = errors.New("record has no user")
)
