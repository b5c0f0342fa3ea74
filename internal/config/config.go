// Package config defines service configuration structures and loading hooks.
//
// Keys are flat snake_case names shared by the YAML file and the
// EVALBOARD_ environment variables.
package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/submission"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// BlobBackend selects the versioned blob store.
	BlobBackend string `koanf:"blob_backend"`

	GitHubAPIURL string `koanf:"github_api_url"`
	GitHubRepo   string `koanf:"github_repo"`
	GitHubBranch string `koanf:"github_branch"`
	GitHubToken  string `koanf:"github_token"`
	GitHubPath   string `koanf:"github_path"`

	GCSBucket          string `koanf:"gcs_bucket"`
	GCSCredentialsFile string `koanf:"gcs_credentials_file"`

	BadgerPath string `koanf:"badger_path"`
	SQLitePath string `koanf:"sqlite_path"`

	// BlobTimeoutMS bounds every blob store call.
	BlobTimeoutMS int `koanf:"blob_timeout_ms"`
	// BlobRateLimitRPS throttles blob store calls; zero disables it.
	BlobRateLimitRPS   float64 `koanf:"blob_rate_limit_rps"`
	BlobRateLimitBurst int     `koanf:"blob_rate_limit_burst"`

	GroundTruthKey        string   `koanf:"ground_truth_key"`
	GroundTruthFile       string   `koanf:"ground_truth_file"`
	GroundTruthTTLSeconds int      `koanf:"ground_truth_ttl_seconds"`
	LabelAliases          []string `koanf:"label_aliases"`

	HistoryKey             string `koanf:"history_key"`
	HistoryCacheTTLSeconds int    `koanf:"history_cache_ttl_seconds"`

	PredictionAliases []string `koanf:"prediction_aliases"`
	DuplicatePolicy   string   `koanf:"duplicate_policy"`
	Threshold         float64  `koanf:"threshold"`
	F1Average         string   `koanf:"f1_average"`
	DefaultMode       string   `koanf:"default_mode"`

	AppendMaxAttempts   int `koanf:"append_max_attempts"`
	AppendBackoffBaseMS int `koanf:"append_backoff_base_ms"`
	AppendBackoffMaxMS  int `koanf:"append_backoff_max_ms"`

	SessionTTLMinutes int `koanf:"session_ttl_minutes"`
	SessionMaxKeys    int `koanf:"session_max_keys"`

	// MaxUploadBytes caps POST /submissions bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
	// MaxLeaderboardLimit caps GET /leaderboard?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		BlobBackend:            blobstore.BackendMemory,
		GitHubAPIURL:           "https://api.github.com",
		GitHubBranch:           "main",
		GitHubPath:             "data",
		BlobTimeoutMS:          10_000,
		BlobRateLimitBurst:     1,
		GroundTruthKey:         "ground_truth.csv",
		GroundTruthTTLSeconds:  300,
		LabelAliases:           []string{"label"},
		HistoryKey:             "history.csv",
		HistoryCacheTTLSeconds: 30,
		PredictionAliases:      []string{"prediccion", "predicción"},
		DuplicatePolicy:        string(submission.KeepLast),
		Threshold:              scoring.DefaultThreshold,
		F1Average:              string(scoring.Macro),
		AppendMaxAttempts:      5,
		AppendBackoffBaseMS:    100,
		AppendBackoffMaxMS:     2000,
		SessionTTLMinutes:      120,
		SessionMaxKeys:         1024,
		MaxUploadBytes:         10 << 20,
		MaxLeaderboardLimit:    100,
	}
}

var backends = []string{
	blobstore.BackendMemory,
	blobstore.BackendGitHub,
	blobstore.BackendGCS,
	blobstore.BackendBadger,
	blobstore.BackendSQLite,
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return invalid("addr must not be empty")
	case !slices.Contains(backends, c.BlobBackend):
		return invalid("blob_backend %q is not one of %s", c.BlobBackend, strings.Join(backends, ", "))
	case c.BlobBackend == blobstore.BackendGitHub && c.GitHubRepo == "":
		return invalid("github_repo is required for the github backend")
	case c.BlobBackend == blobstore.BackendGCS && c.GCSBucket == "":
		return invalid("gcs_bucket is required for the gcs backend")
	case c.BlobBackend == blobstore.BackendSQLite && c.SQLitePath == "":
		return invalid("sqlite_path is required for the sqlite backend")
	case c.Threshold <= 0 || c.Threshold >= 1:
		return invalid("threshold must be within (0,1), got %v", c.Threshold)
	case c.AppendMaxAttempts < 1:
		return invalid("append_max_attempts must be at least 1")
	case c.AppendBackoffBaseMS <= 0 || c.AppendBackoffMaxMS < c.AppendBackoffBaseMS:
		return invalid("append backoff must satisfy 0 < base <= max")
	case c.MaxLeaderboardLimit < 1:
		return invalid("max_leaderboard_limit must be at least 1")
	case c.MaxUploadBytes < 1:
		return invalid("max_upload_bytes must be at least 1")
	}
	if _, err := submission.ParsePolicy(c.DuplicatePolicy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := scoring.ParseAverage(c.F1Average); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Policy returns the validated duplicate policy.
func (c *Config) Policy() submission.Policy {
	p, _ := submission.ParsePolicy(c.DuplicatePolicy)
	return p
}

// Average returns the validated F1 average.
func (c *Config) Average() scoring.Average {
	a, _ := scoring.ParseAverage(c.F1Average)
	return a
}

// BlobSettings returns the blob store section.
func (c *Config) BlobSettings() blobstore.Settings {
	return blobstore.Settings{
		Backend:            c.BlobBackend,
		GitHubAPIURL:       c.GitHubAPIURL,
		GitHubRepo:         c.GitHubRepo,
		GitHubBranch:       c.GitHubBranch,
		GitHubToken:        c.GitHubToken,
		GitHubPath:         c.GitHubPath,
		GCSBucket:          c.GCSBucket,
		GCSCredentialsFile: c.GCSCredentialsFile,
		BadgerPath:         c.BadgerPath,
		SQLitePath:         c.SQLitePath,
		Timeout:            ms(c.BlobTimeoutMS),
		RateLimitRPS:       c.BlobRateLimitRPS,
		RateLimitBurst:     c.BlobRateLimitBurst,
	}
}

// GroundTruthTTL is the label cache lifetime.
func (c *Config) GroundTruthTTL() time.Duration {
	return time.Duration(c.GroundTruthTTLSeconds) * time.Second
}

// HistoryCacheTTL is the history read cache lifetime.
func (c *Config) HistoryCacheTTL() time.Duration {
	return time.Duration(c.HistoryCacheTTLSeconds) * time.Second
}

// AppendBackoff returns the base and maximum delay between commit attempts.
func (c *Config) AppendBackoff() (base, maxDelay time.Duration) {
	return ms(c.AppendBackoffBaseMS), ms(c.AppendBackoffMaxMS)
}

// SessionTTL is how long an idle upload session is remembered.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
