// Package service wires the evaluation pipeline and the shared history into
// the use cases served by the HTTP API and the CLI.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/adapters/repository"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/evaluation"
	"github.com/okian/evalboard/internal/domain/groundtruth"
	"github.com/okian/evalboard/internal/domain/leaderboard"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/scoring"
	"github.com/okian/evalboard/internal/domain/submission"
	"github.com/okian/evalboard/internal/domain/types"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Service implements the API dependencies for the evaluator.
type Service struct {
	mu sync.RWMutex

	store blobstore.Store

	// Components, built by Start.
	labels    *groundtruth.Loader
	evaluator *evaluation.Evaluator
	history   *repository.BlobLog
	sessions  *dedupe.Sessions

	// Configuration
	defaultMode       string
	policy            submission.Policy
	predictionAliases []string
	threshold         float64
	average           scoring.Average
	groundTruthKey    string
	groundTruthTTL    time.Duration
	labelAliases      []string
	historyKey        string
	historyCacheTTL   time.Duration
	appendMaxAttempts int
	backoffBase       time.Duration
	backoffMax        time.Duration
	sessionTTL        time.Duration
	sessionMaxKeys    int
	now               func() time.Time

	started bool
	logger  logger.Logger
}

// New constructs a Service on store with default configuration.
func New(store blobstore.Store, opts ...Option) *Service {
	s := &Service{
		store:             store,
		policy:            submission.KeepLast,
		threshold:         scoring.DefaultThreshold,
		average:           scoring.Macro,
		groundTruthKey:    "ground_truth.csv",
		groundTruthTTL:    300 * time.Second,
		historyKey:        "history.csv",
		historyCacheTTL:   30 * time.Second,
		appendMaxAttempts: 5,
		backoffBase:       100 * time.Millisecond,
		backoffMax:        2 * time.Second,
		sessionTTL:        2 * time.Hour,
		sessionMaxKeys:    1024,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.store == nil {
		return ErrNoStore
	}
	if s.logger == nil {
		s.logger = logger.GetOrNop().Named("service")
	}

	s.logger.Info(ctx, "starting evaluation service...")

	s.labels = groundtruth.New(s.store,
		groundtruth.WithKey(s.groundTruthKey),
		groundtruth.WithTTL(s.groundTruthTTL),
		groundtruth.WithAliases(s.labelAliases...),
		groundtruth.WithLogger(s.logger.Named("groundtruth")),
	)
	s.evaluator = evaluation.NewEvaluator(
		submission.New(
			submission.WithPolicy(s.policy),
			submission.WithAliases(s.predictionAliases...),
			submission.WithLogger(s.logger.Named("submission")),
		),
		scoring.New(
			scoring.WithThreshold(s.threshold),
			scoring.WithAverage(s.average),
		),
		evaluation.WithLogger(s.logger.Named("evaluation")),
	)
	history, err := repository.NewBlobLog(s.store,
		repository.WithKey(s.historyKey),
		repository.WithMaxAttempts(s.appendMaxAttempts),
		repository.WithBackoff(s.backoffBase, s.backoffMax),
		repository.WithCacheTTL(s.historyCacheTTL),
		repository.WithClock(s.now),
		repository.WithLogger(s.logger.Named("repository")),
	)
	if err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	s.history = history
	s.sessions = dedupe.NewSessions(
		dedupe.WithIdleTTL(s.sessionTTL),
		dedupe.WithSessionMaxSize(s.sessionMaxKeys),
		dedupe.WithSessionsLogger(s.logger.Named("sessions")),
	)

	s.started = true
	s.logger.Info(ctx, "evaluation service started",
		logger.String("groundTruthKey", s.groundTruthKey),
		logger.String("historyKey", s.historyKey),
		logger.String("policy", string(s.policy)),
		logger.String("average", string(s.average)),
		logger.Int("appendMaxAttempts", s.appendMaxAttempts),
	)
	return nil
}

// Stop releases the blob store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(context.Background(), "stopping evaluation service...")
	if err := blobstore.Close(s.store); err != nil {
		s.logger.Error(context.Background(), "failed to close blob store", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "evaluation service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Submit scores req and appends one history record per mode. Input and
// ground truth errors abort; append failures are reported per mode and
// never hide the score.
func (s *Service) Submit(ctx context.Context, req types.SubmitRequest) (types.SubmitResponse, error) {
	const op = "service.submit"

	if !s.running() {
		return types.SubmitResponse{}, ErrNotStarted
	}

	labels, err := s.labels.Load(ctx)
	if err != nil {
		metrics.RecordSubmission("ground_truth_unavailable")
		metrics.RecordErrorByComponent("groundtruth", evalerr.Code(err))
		s.logger.Error(ctx, "ground truth unavailable", logger.Error(err))
		return types.SubmitResponse{}, evalerr.WrapOp(op, err)
	}

	ev, err := s.evaluator.Evaluate(ctx, labels, req.Filename, req.Data)
	if err != nil {
		metrics.RecordSubmission("rejected")
		return types.SubmitResponse{}, evalerr.WrapOp(op, err)
	}

	resp := types.SubmitResponse{Evaluation: ev, Warnings: append([]string(nil), ev.Warnings...)}

	user := strings.TrimSpace(req.UserID)
	if user == "" {
		metrics.RecordSubmission("anonymous")
		resp.Warnings = append(resp.Warnings, "no user name given; the score was not recorded in the leaderboard")
		return resp, nil
	}

	var session dedupe.Deduper
	if req.SessionID != "" {
		session = s.sessions.For(req.SessionID)
	}

	at := s.now().UTC()
	for _, mode := range NormalizeModes(req.Modes, s.defaultMode) {
		rec := model.ResultRecord{
			Timestamp:       at,
			UserID:          user,
			FileFingerprint: ev.Fingerprint,
			NIDs:            ev.NIDs,
			Score:           ev.Score,
			Mode:            mode,
		}
		out := types.ModeOutcome{Mode: mode}
		res, err := s.history.Append(ctx, session, rec)
		out.Attempts = res.Attempts
		out.Duplicate = res.Duplicate
		switch {
		case err != nil:
			out.Code = evalerr.Code(err)
			out.Error = err.Error()
			metrics.RecordErrorByComponent("repository", out.Code)
			resp.Warnings = append(resp.Warnings, fmt.Sprintf("result not recorded in leaderboard for mode %q", mode))
		case res.Duplicate:
			// already in the history from this session
		default:
			out.Recorded = true
			resp.Recorded = true
		}
		resp.Records = append(resp.Records, out)
	}

	switch {
	case allDuplicate(resp.Records):
		metrics.RecordSubmission("duplicate")
	case !resp.Recorded:
		metrics.RecordSubmission("not_recorded")
	case len(resp.Records) > 1 && !allRecorded(resp.Records):
		metrics.RecordSubmission("partial")
	default:
		metrics.RecordSubmission("recorded")
	}
	return resp, nil
}

func allDuplicate(outs []types.ModeOutcome) bool {
	for _, o := range outs {
		if !o.Duplicate {
			return false
		}
	}
	return len(outs) > 0
}

func allRecorded(outs []types.ModeOutcome) bool {
	for _, o := range outs {
		if !o.Recorded {
			return false
		}
	}
	return true
}

// NormalizeModes trims modes, drops empty ones and repeats that differ only
// by case. No mode left means the default mode.
func NormalizeModes(modes []string, def string) []string {
	seen := make(map[string]struct{}, len(modes))
	var out []string
	for _, m := range modes {
		m = strings.TrimSpace(m)
		k := strings.ToLower(m)
		if m == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, m)
	}
	if len(out) == 0 {
		return []string{strings.TrimSpace(def)}
	}
	return out
}

// Leaderboard returns the ranked view of the history under mode. A limit of
// zero or less returns every entry.
func (s *Service) Leaderboard(ctx context.Context, mode string, limit int) ([]types.Entry, error) {
	recs, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	entries := leaderboard.Project(recs, mode)
	metrics.UpdateLeaderboardSize(len(entries))
	return leaderboard.Top(entries, limit), nil
}

// History returns the raw history, oldest first.
func (s *Service) History(ctx context.Context) ([]model.ResultRecord, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	recs, err := s.history.Snapshot(ctx)
	if err != nil {
		return nil, evalerr.WrapOp("service.history", err)
	}
	return recs, nil
}

// Modes lists the modes present in the history.
func (s *Service) Modes(ctx context.Context) ([]string, error) {
	recs, err := s.History(ctx)
	if err != nil {
		return nil, err
	}
	return leaderboard.Modes(recs), nil
}

// ReloadGroundTruth drops the cached label table.
func (s *Service) ReloadGroundTruth() {
	if s.running() {
		s.labels.Clear()
	}
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":           s.started,
		"defaultMode":       s.defaultMode,
		"duplicatePolicy":   string(s.policy),
		"average":           string(s.average),
		"threshold":         s.threshold,
		"groundTruthKey":    s.groundTruthKey,
		"historyKey":        s.historyKey,
		"appendMaxAttempts": s.appendMaxAttempts,
	}
	if s.started {
		stats["activeSessions"] = s.sessions.Len()
	}
	return stats
}
