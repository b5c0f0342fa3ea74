// Package groundtruth loads the reference label table from the blob store
// and keeps it in a process-wide cache with a bounded lifetime.
package groundtruth

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/okian/evalboard/internal/adapters/blobstore"
	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/table"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Column names after normalization.
const (
	ColumnID     = "id"
	ColumnTarget = "target"
)

const (
	defaultKey = "ground_truth.csv"
	defaultTTL = 300 * time.Second
	cacheKey   = "labels"
)

var defaultAliases = []string{"label"}

// Option applies a configuration option to the Loader.
type Option func(*Loader)

// WithKey sets the blob key of the label table.
func WithKey(key string) Option {
	return func(l *Loader) {
		if key != "" {
			l.key = key
		}
	}
}

// WithTTL sets how long a loaded table is reused.
func WithTTL(ttl time.Duration) Option {
	return func(l *Loader) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithAliases replaces the accepted synonyms of the target column.
func WithAliases(aliases ...string) Option {
	return func(l *Loader) {
		if len(aliases) > 0 {
			l.aliases = append([]string(nil), aliases...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// Loader fetches, validates and caches the label table.
type Loader struct {
	store   blobstore.Store
	key     string
	ttl     time.Duration
	aliases []string
	log     logger.Logger

	cache *cache.Cache
	group singleflight.Group
}

// New creates a loader reading from store.
func New(store blobstore.Store, opts ...Option) *Loader {
	l := &Loader{
		store:   store,
		key:     defaultKey,
		ttl:     defaultTTL,
		aliases: defaultAliases,
		log:     logger.GetOrNop().Named("groundtruth"),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cache = cache.New(l.ttl, 2*l.ttl)
	return l
}

// Key returns the blob key the loader reads.
func (l *Loader) Key() string { return l.key }

// Load returns the label table, from cache when fresh. Concurrent misses
// share one fetch.
func (l *Loader) Load(ctx context.Context) (model.LabelTable, error) {
	if v, ok := l.cache.Get(cacheKey); ok {
		metrics.RecordCacheHit("ground_truth")
		return v.(model.LabelTable), nil
	}
	metrics.RecordCacheMiss("ground_truth")

	v, err, _ := l.group.Do(cacheKey, func() (any, error) {
		if v, ok := l.cache.Get(cacheKey); ok {
			return v, nil
		}
		t, err := l.fetch(ctx)
		if err != nil {
			return nil, err
		}
		l.cache.SetDefault(cacheKey, t)
		return t, nil
	})
	if err != nil {
		metrics.RecordGroundTruthLoad(evalerr.Code(err))
		return model.LabelTable{}, err
	}
	metrics.RecordGroundTruthLoad("ok")
	return v.(model.LabelTable), nil
}

// Clear drops the cached table so the next Load refetches.
func (l *Loader) Clear() {
	l.cache.Flush()
}

func (l *Loader) fetch(ctx context.Context) (model.LabelTable, error) {
	const op = "groundtruth.load"

	b, err := l.store.Get(ctx, l.key)
	if err != nil {
		return model.LabelTable{}, evalerr.WrapOp(op, err)
	}
	raw, err := table.ParseBytes(b.Data)
	if err != nil {
		return model.LabelTable{}, evalerr.Wrap(op, evalerr.ErrSchema, err)
	}
	t, err := Parse(raw, l.aliases...)
	if err != nil {
		return model.LabelTable{}, evalerr.WrapOp(op, err)
	}

	if t.Duplicates > 0 {
		l.log.Warn(ctx, "duplicate ground truth ids dropped, keeping first",
			logger.String("key", l.key),
			logger.Int("duplicates", t.Duplicates))
		metrics.RecordDuplicatesDropped("ground_truth", t.Duplicates)
	}
	metrics.UpdateGroundTruthRows(t.Len())
	l.log.Info(ctx, "ground truth loaded",
		logger.String("key", l.key),
		logger.String("version", b.Version),
		logger.Int("rows", t.Len()))
	return t, nil
}

// Parse validates a decoded label table. The target column may use any of
// aliases. Rows with an empty id are dropped; repeated ids keep the first row.
func Parse(raw table.Table, aliases ...string) (model.LabelTable, error) {
	if len(aliases) == 0 {
		aliases = defaultAliases
	}
	raw.Header = append([]string(nil), raw.Header...)
	raw.Rename(ColumnTarget, aliases...)

	idCol, targetCol := raw.Index(ColumnID), raw.Index(ColumnTarget)
	if idCol < 0 || targetCol < 0 {
		return model.LabelTable{}, evalerr.Wrap("groundtruth.parse", evalerr.ErrSchema,
			fmt.Errorf("%w: need %q and %q (or %s), got %s",
				ErrMissingColumns, ColumnID, ColumnTarget, strings.Join(aliases, ", "), strings.Join(raw.Header, ", ")))
	}

	var out model.LabelTable
	seen := make(map[string]struct{}, len(raw.Rows))
	for r := range raw.Rows {
		id := model.NormalizeID(raw.Get(r, idCol))
		if table.IsNull(id) {
			out.DroppedNullIDs++
			continue
		}
		target, err := parseTarget(raw.Get(r, targetCol))
		if err != nil {
			return model.LabelTable{}, evalerr.Wrap("groundtruth.parse", evalerr.ErrValidation,
				fmt.Errorf("line %d: %w", r+2, err))
		}
		if _, dup := seen[id]; dup {
			out.Duplicates++
			continue
		}
		seen[id] = struct{}{}
		out.Rows = append(out.Rows, model.LabelRow{ID: id, Target: target})
	}
	return out, nil
}

func parseTarget(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNotIntegral, s)
	}
	return int(f), nil
}
