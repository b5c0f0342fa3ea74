package service

import (
	"strings"
	"time"

	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/submission"
	"github.com/okian/evalboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDefaultMode sets the mode recorded when a submission names none.
func WithDefaultMode(mode string) Option {
	return func(s *Service) {
		s.defaultMode = strings.TrimSpace(mode)
	}
}

// WithDuplicatePolicy sets how repeated prediction ids are resolved.
func WithDuplicatePolicy(p submission.Policy) Option {
	return func(s *Service) {
		if p == submission.KeepFirst || p == submission.KeepLast {
			s.policy = p
		}
	}
}

// WithPredictionAliases sets accepted synonyms of the prediction column.
func WithPredictionAliases(aliases ...string) Option {
	return func(s *Service) {
		s.predictionAliases = aliases
	}
}

// WithThreshold sets the probability cut-off.
func WithThreshold(t float64) Option {
	return func(s *Service) {
		if t > 0 && t < 1 {
			s.threshold = t
		}
	}
}

// WithAverage sets the F1 average.
func WithAverage(a scoring.Average) Option {
	return func(s *Service) {
		if a == scoring.Macro || a == scoring.Weighted {
			s.average = a
		}
	}
}

// WithGroundTruth sets the blob key and cache lifetime of the label table.
func WithGroundTruth(key string, ttl time.Duration) Option {
	return func(s *Service) {
		if key != "" {
			s.groundTruthKey = key
		}
		if ttl > 0 {
			s.groundTruthTTL = ttl
		}
	}
}

// WithLabelAliases sets accepted synonyms of the target column.
func WithLabelAliases(aliases ...string) Option {
	return func(s *Service) {
		s.labelAliases = aliases
	}
}

// WithHistory sets the blob key and read cache lifetime of the history.
// A zero ttl disables the read cache.
func WithHistory(key string, ttl time.Duration) Option {
	return func(s *Service) {
		if key != "" {
			s.historyKey = key
		}
		if ttl >= 0 {
			s.historyCacheTTL = ttl
		}
	}
}

// WithAppendRetry sets the commit attempt budget and backoff bounds.
func WithAppendRetry(maxAttempts int, base, maxDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.appendMaxAttempts = maxAttempts
		}
		if base > 0 {
			s.backoffBase = base
		}
		if maxDelay > 0 {
			s.backoffMax = maxDelay
		}
	}
}

// WithSessions sets the idle lifetime and key capacity of upload sessions.
func WithSessions(ttl time.Duration, maxKeys int) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
		if maxKeys > 0 {
			s.sessionMaxKeys = maxKeys
		}
	}
}

// WithClock sets the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
