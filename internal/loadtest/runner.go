package loadtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/evalboard/pkg/logger"
)

// Defaults applied by Run when a field is zero.
const (
	DefaultUsers              = 20
	DefaultSubmissionsPerUser = 5
	DefaultRows               = 100
	DefaultWorkers            = 8
	DefaultTimeout            = 30 * time.Second
	// DefaultBoardLimit matches the service's default leaderboard cap.
	DefaultBoardLimit = 100
)

// ErrInvalidConfig reports an unusable run configuration.
var ErrInvalidConfig = errors.New("invalid load test config")

func (c *Config) normalize() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	if c.RepeatRatio < 0 || c.RepeatRatio > 1 {
		return fmt.Errorf("%w: repeat ratio must be within [0,1]", ErrInvalidConfig)
	}
	if c.Users <= 0 {
		c.Users = DefaultUsers
	}
	if c.SubmissionsPerUser <= 0 {
		c.SubmissionsPerUser = DefaultSubmissionsPerUser
	}
	if c.Rows <= 0 {
		c.Rows = DefaultRows
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Run executes a complete load test: concurrent uploads from many users,
// then a check that no acknowledged record was lost and that the
// leaderboard agrees with the history.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	stats := &Stats{StartTime: time.Now()}
	runID := uuid.NewString()[:8]
	log := logger.Get()

	log.Info(ctx, "starting evalboard load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("runID", runID),
		logger.Int("users", cfg.Users),
		logger.Int("workers", cfg.Workers),
		logger.Duration("timeout", cfg.Timeout))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	uploads := generateUploads(ctx, cfg, runID, stats)
	committed, err := submitUploads(ctx, cfg, client, uploads, stats)
	if err != nil {
		return nil, fmt.Errorf("upload submission failed: %w", err)
	}

	history, err := client.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("history retrieval failed: %w", err)
	}
	if err := verifyHistory(ctx, runID, history, committed, stats); err != nil {
		return stats, err
	}

	board, err := client.Leaderboard(ctx, "", DefaultBoardLimit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := verifyLeaderboard(ctx, runID, board, history, stats); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return stats, nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(stats *Stats) {
	var uploadsPerSecond float64
	if stats.Duration > 0 {
		uploadsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("recorded", stats.Recorded),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("rejected", stats.Rejected),
		logger.Int("failed", stats.Failed),
		logger.Int("historyRows", stats.HistoryRows),
		logger.Int("leaderboardEntries", stats.BoardSize),
		logger.Duration("duration", stats.Duration),
		logger.Float64("uploadsPerSecond", uploadsPerSecond))
}
