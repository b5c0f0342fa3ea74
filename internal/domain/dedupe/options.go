package dedupe

import (
	"time"

	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the InMemoryDeduper.
type Option func(*inMemoryDeduper)

// WithMaxSize sets the maximum number of keys kept per session.
// If maxSize > 0 the oldest key is evicted when full.
// If maxSize <= 0 the set is unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

// SessionsOption applies a configuration option to Sessions.
type SessionsOption func(*Sessions)

// WithIdleTTL sets how long an untouched session keeps its dedup state.
func WithIdleTTL(ttl time.Duration) SessionsOption {
	return func(s *Sessions) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithSessionMaxSize sets the per-session key capacity.
func WithSessionMaxSize(n int) SessionsOption {
	return func(s *Sessions) {
		s.maxSize = n
	}
}

// WithSessionsLogger sets the logger.
func WithSessionsLogger(l logger.Logger) SessionsOption {
	return func(s *Sessions) {
		if l != nil {
			s.log = l
		}
	}
}
