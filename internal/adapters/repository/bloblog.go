package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/history"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/retry"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

const snapshotKey = "snapshot"

// BlobLog is a Log stored as one CSV blob. Concurrent writers, in this
// process or others, coordinate only through the blob version: every commit
// is a compare-and-swap against the version that was read, retried on
// conflict.
type BlobLog struct {
	store blobstore.Store
	key   string

	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	cacheTTL time.Duration
	cache    *cache.Cache
	group    singleflight.Group
	// mu guards epoch, the invalidation count. A load caches what it read
	// only if no invalidation happened since it started.
	mu    sync.Mutex
	epoch uint64

	now func() time.Time
	log logger.Logger
}

var _ Log = (*BlobLog)(nil)

// NewBlobLog creates a history log on store.
func NewBlobLog(store blobstore.Store, opts ...Option) (*BlobLog, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	l := &BlobLog{store: store}
	defaults(l)
	for _, opt := range opts {
		opt(l)
	}
	if l.maxDelay < l.baseDelay {
		l.maxDelay = l.baseDelay
	}
	if l.cacheTTL > 0 {
		l.cache = cache.New(l.cacheTTL, 2*l.cacheTTL)
	}
	return l, nil
}

// Key returns the blob key of the history.
func (l *BlobLog) Key() string { return l.key }

// Append implements Log. The dedup key is claimed in session before the
// first attempt and released if the append fails, so a retried UI action
// racing the original cannot write twice.
func (l *BlobLog) Append(ctx context.Context, session dedupe.Deduper, rec model.ResultRecord) (AppendResult, error) {
	const op = "repository.append"

	if strings.TrimSpace(rec.UserID) == "" {
		return AppendResult{}, evalerr.Wrap(op, evalerr.ErrValidation, ErrAnonymousUser)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = l.now()
	}
	rec.Timestamp = rec.Timestamp.UTC()

	key := rec.Key().String()
	if session != nil && session.SeenAndRecord(ctx, key) {
		metrics.RecordDedupeSkip()
		metrics.RecordAppendOutcome("duplicate")
		l.log.Debug(ctx, "record already logged in this session",
			logger.String("user", rec.UserID),
			logger.String("mode", rec.Mode),
			logger.String("fingerprint", rec.FileFingerprint))
		return AppendResult{Duplicate: true}, nil
	}

	start := time.Now()
	var version string
	attempts, err := retry.Do(ctx, retry.Policy{
		MaxAttempts: l.maxAttempts,
		Backoff:     retry.Exponential(l.baseDelay, l.maxDelay),
		OnRetry: func(attempt int, err error, delay time.Duration) {
			l.log.Info(ctx, "history commit failed, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.String("reason", evalerr.Code(err)))
		},
	}, func(ctx context.Context, _ int) error {
		v, err := l.commit(ctx, rec)
		if errors.Is(err, evalerr.ErrVersionConflict) {
			metrics.RecordAppendConflict()
		}
		version = v
		return err
	})
	metrics.RecordAppendAttempts(attempts)
	metrics.RecordAppendLatency(float64(time.Since(start).Microseconds()) / 1000)

	if err != nil {
		if session != nil {
			session.Unrecord(ctx, key)
		}
		metrics.RecordAppendOutcome(evalerr.Code(err))
		l.log.Error(ctx, "history append failed",
			logger.String("user", rec.UserID),
			logger.String("mode", rec.Mode),
			logger.Int("attempts", attempts),
			logger.Error(err))
		return AppendResult{Attempts: attempts}, evalerr.WrapOp(op, err)
	}

	l.Invalidate()
	metrics.RecordAppendOutcome("ok")
	l.log.Info(ctx, "result recorded",
		logger.String("user", rec.UserID),
		logger.String("mode", rec.Mode),
		logger.Float64("score", rec.Score),
		logger.Int("attempts", attempts),
		logger.String("version", version))
	return AppendResult{Attempts: attempts, Version: version}, nil
}

// commit is one read-modify-write cycle.
func (l *BlobLog) commit(ctx context.Context, rec model.ResultRecord) (string, error) {
	const op = "repository.commit"

	cur, err := l.read(ctx)
	if err != nil {
		return "", err
	}
	t, err := history.Decode(cur.Data)
	if err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrSchema, fmt.Errorf("%w: %w", ErrCorruptLog, err))
	}
	history.Append(&t, rec)
	data, err := history.Encode(t)
	if err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrSchema, err)
	}
	return l.store.Put(ctx, l.key, data, cur.Version)
}

// read returns the current blob; a missing log is an empty one.
func (l *BlobLog) read(ctx context.Context) (blobstore.Blob, error) {
	b, err := l.store.Get(ctx, l.key)
	if errors.Is(err, evalerr.ErrNotFound) {
		return blobstore.Blob{}, nil
	}
	return b, err
}

// Snapshot implements Log.
func (l *BlobLog) Snapshot(ctx context.Context) ([]model.ResultRecord, error) {
	const op = "repository.snapshot"

	if l.cache != nil {
		if v, ok := l.cache.Get(snapshotKey); ok {
			metrics.RecordCacheHit("history")
			return slices.Clone(v.([]model.ResultRecord)), nil
		}
		metrics.RecordCacheMiss("history")
	}

	v, err, _ := l.group.Do(snapshotKey, func() (any, error) {
		return l.load(ctx)
	})
	if err != nil {
		return nil, evalerr.WrapOp(op, err)
	}
	return slices.Clone(v.([]model.ResultRecord)), nil
}

func (l *BlobLog) load(ctx context.Context) ([]model.ResultRecord, error) {
	l.mu.Lock()
	epoch := l.epoch
	l.mu.Unlock()

	b, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	t, err := history.Decode(b.Data)
	if err != nil {
		return nil, evalerr.Wrap("repository.load", evalerr.ErrSchema, fmt.Errorf("%w: %w", ErrCorruptLog, err))
	}
	recs, skipped := history.Records(t)
	if skipped > 0 {
		l.log.Warn(ctx, "unreadable history rows skipped",
			logger.String("key", l.key),
			logger.Int("skipped", skipped))
	}
	metrics.UpdateHistoryRecords(len(recs))
	if l.cache != nil {
		l.mu.Lock()
		if l.epoch == epoch {
			l.cache.SetDefault(snapshotKey, recs)
		}
		l.mu.Unlock()
	}
	return recs, nil
}

// Invalidate implements Log.
func (l *BlobLog) Invalidate() {
	l.mu.Lock()
	l.epoch++
	if l.cache != nil {
		l.cache.Delete(snapshotKey)
	}
	l.mu.Unlock()
	l.group.Forget(snapshotKey)
}
