package service

import (
	"github.com/okian/evalboard/internal/config"
	"github.com/okian/evalboard/pkg/logger"
)

// ConfigOptions maps a loaded configuration onto service options.
func ConfigOptions(cfg *config.Config, log logger.Logger) []Option {
	base, maxDelay := cfg.AppendBackoff()
	return []Option{
		WithLogger(log),
		WithDefaultMode(cfg.DefaultMode),
		WithDuplicatePolicy(cfg.Policy()),
		WithPredictionAliases(cfg.PredictionAliases...),
		WithThreshold(cfg.Threshold),
		WithAverage(cfg.Average()),
		WithGroundTruth(cfg.GroundTruthKey, cfg.GroundTruthTTL()),
		WithLabelAliases(cfg.LabelAliases...),
		WithHistory(cfg.HistoryKey, cfg.HistoryCacheTTL()),
		WithAppendRetry(cfg.AppendMaxAttempts, base, maxDelay),
		WithSessions(cfg.SessionTTL(), cfg.SessionMaxKeys),
	}
}
