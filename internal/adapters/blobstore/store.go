// Package blobstore defines the versioned blob store used as the shared
// backend for the ground truth and the history log, and its backends.
//
// A blob is an opaque byte string with a version token. Writers pass the
// token they read as a compare-and-swap precondition; an empty token means
// "create, and fail if it already exists".
package blobstore

import (
	"context"
	"errors"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

// Blob is the content of a key together with its current version token.
type Blob struct {
	Data    []byte
	Version string
}

// Store reads and conditionally replaces named blobs.
type Store interface {
	// Get returns the current blob. A missing key yields evalerr.ErrNotFound.
	Get(ctx context.Context, key string) (Blob, error)

	// Put replaces the blob when its current version equals expected, or
	// creates it when expected is empty and the key does not exist. A failed
	// precondition yields evalerr.ErrVersionConflict. On success the new
	// version token is returned. Puts are all-or-nothing.
	Put(ctx context.Context, key string, data []byte, expected string) (string, error)
}

// Backend names accepted by configuration.
const (
	BackendMemory = "memory"
	BackendGitHub = "github"
	BackendGCS    = "gcs"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// Closer is implemented by backends holding local resources.
type Closer interface {
	Close() error
}

// Close releases s if it holds resources.
func Close(s Store) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}

// Seed writes data under key unless the key already exists. It reports
// whether a write happened.
func Seed(ctx context.Context, s Store, key string, data []byte) (bool, error) {
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, evalerr.ErrNotFound):
		return false, err
	}
	if _, err := s.Put(ctx, key, data, ""); err != nil {
		if errors.Is(err, evalerr.ErrVersionConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
