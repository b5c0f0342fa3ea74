package blobstore

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/evalboard/pkg/logger"
)

// Settings selects and configures a backend.
type Settings struct {
	Backend string

	GitHubAPIURL string
	GitHubRepo   string
	GitHubBranch string
	GitHubToken  string
	GitHubPath   string

	GCSBucket          string
	GCSCredentialsFile string

	BadgerPath string
	SQLitePath string

	Timeout        time.Duration
	RateLimitRPS   float64
	RateLimitBurst int
}

// Open builds the configured backend and wraps it with the timeout, rate
// limit and instrumentation decorators.
func Open(ctx context.Context, s Settings, log logger.Logger) (Store, error) {
	var (
		base Store
		err  error
	)
	switch s.Backend {
	case BackendMemory, "":
		base = NewMemory()
		s.Backend = BackendMemory
	case BackendGitHub:
		base, err = NewGitHub(s.GitHubRepo,
			WithGitHubAPIURL(s.GitHubAPIURL),
			WithGitHubBranch(s.GitHubBranch),
			WithGitHubToken(s.GitHubToken),
			WithGitHubPath(s.GitHubPath),
		)
	case BackendGCS:
		base, err = NewGCS(ctx, s.GCSBucket, s.GCSCredentialsFile)
	case BackendBadger:
		base, err = NewBadger(s.BadgerPath, log)
	case BackendSQLite:
		base, err = NewSQLite(ctx, s.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, s.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", s.Backend, err)
	}

	store := WithTimeout(base, s.Timeout)
	if s.RateLimitRPS > 0 {
		burst := s.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		store = WithRateLimit(store, rate.NewLimiter(rate.Limit(s.RateLimitRPS), burst))
	}
	return Instrument(store, s.Backend), nil
}
