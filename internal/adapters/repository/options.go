package repository

import (
	"time"

	"github.com/okian/evalboard/internal/retry"
	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the BlobLog.
type Option func(*BlobLog)

// WithKey sets the blob key of the history.
func WithKey(key string) Option {
	return func(l *BlobLog) {
		if key != "" {
			l.key = key
		}
	}
}

// WithMaxAttempts sets the commit attempt budget of one append.
func WithMaxAttempts(n int) Option {
	return func(l *BlobLog) {
		if n > 0 {
			l.maxAttempts = n
		}
	}
}

// WithBackoff sets the delay bounds between commit attempts.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(l *BlobLog) {
		if base > 0 {
			l.baseDelay = base
		}
		if maxDelay > 0 {
			l.maxDelay = maxDelay
		}
	}
}

// WithCacheTTL sets how long a snapshot is reused. Zero disables the cache.
func WithCacheTTL(ttl time.Duration) Option {
	return func(l *BlobLog) {
		if ttl >= 0 {
			l.cacheTTL = ttl
		}
	}
}

// WithClock sets the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *BlobLog) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *BlobLog) {
		if log != nil {
			l.log = log
		}
	}
}

const (
	defaultKey      = "history.csv"
	defaultCacheTTL = 30 * time.Second
)

func defaults(l *BlobLog) {
	l.key = defaultKey
	l.maxAttempts = retry.DefaultMaxAttempts
	l.baseDelay = retry.DefaultBaseDelay
	l.maxDelay = retry.DefaultMaxDelay
	l.cacheTTL = defaultCacheTTL
	l.now = time.Now
	l.log = logger.GetOrNop().Named("repository")
}
