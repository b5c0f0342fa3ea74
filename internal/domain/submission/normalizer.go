// Package submission validates an uploaded prediction table and reshapes it
// into unique (id, prediction) rows.
package submission

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/table"
	"github.com/okian/evalboard/pkg/logger"
	"github.com/okian/evalboard/pkg/metrics"
)

// Column names after normalization.
const (
	ColumnID         = "id"
	ColumnPrediction = "prediction"
)

// Policy decides which row survives when an id repeats.
type Policy string

// Duplicate policies.
const (
	KeepLast  Policy = "keep_last"
	KeepFirst Policy = "keep_first"
)

// ParsePolicy validates a configured policy name. Empty means KeepLast.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case KeepLast, "":
		return KeepLast, nil
	case KeepFirst:
		return KeepFirst, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

var defaultAliases = []string{"prediccion", "predicción"}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithPolicy sets the duplicate-id policy.
func WithPolicy(p Policy) Option {
	return func(n *Normalizer) {
		if p == KeepFirst || p == KeepLast {
			n.policy = p
		}
	}
}

// WithAliases replaces the accepted synonyms of the prediction column.
func WithAliases(aliases ...string) Option {
	return func(n *Normalizer) {
		if len(aliases) > 0 {
			n.aliases = append([]string(nil), aliases...)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// Normalizer turns a raw submission table into a PredictionTable.
type Normalizer struct {
	policy  Policy
	aliases []string
	log     logger.Logger
}

// New creates a normalizer with configuration options.
func New(opts ...Option) *Normalizer {
	n := &Normalizer{
		policy:  KeepLast,
		aliases: defaultAliases,
		log:     logger.GetOrNop().Named("submission"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Policy returns the duplicate policy in effect.
func (n *Normalizer) Policy() Policy { return n.policy }

// Normalize validates t and returns unique predictions in first-seen order.
// Optional columns are ignored.
func (n *Normalizer) Normalize(ctx context.Context, t table.Table) (model.PredictionTable, error) {
	const op = "submission.normalize"

	var out model.PredictionTable
	t.Header = append([]string(nil), t.Header...)
	if !t.Has(ColumnPrediction) {
		for _, a := range n.aliases {
			if t.Has(a) {
				t.Rename(ColumnPrediction, a)
				out.RenamedFrom = a
				break
			}
		}
	}
	idCol, predCol := t.Index(ColumnID), t.Index(ColumnPrediction)
	if idCol < 0 || predCol < 0 {
		return out, evalerr.Wrap(op, evalerr.ErrSchema, fmt.Errorf("%w: need %q and %q (or %s), got %s",
			ErrMissingColumns, ColumnID, ColumnPrediction, strings.Join(n.aliases, ", "), strings.Join(t.Header, ", ")))
	}

	index := make(map[string]int, len(t.Rows))
	for r := range t.Rows {
		id := model.NormalizeID(t.Get(r, idCol))
		if table.IsNull(id) {
			out.DroppedNullIDs++
			continue
		}
		cell := t.Get(r, predCol)
		if table.IsNull(cell) {
			out.DroppedNullPredictions++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			// Header is line 1.
			return model.PredictionTable{}, evalerr.Wrap(op, evalerr.ErrValidation,
				fmt.Errorf("%w: line %d has %q", ErrNotNumeric, r+2, cell))
		}

		if at, dup := index[id]; dup {
			out.Duplicates++
			if n.policy == KeepLast {
				out.Rows[at].Prediction = v
			}
			continue
		}
		index[id] = len(out.Rows)
		out.Rows = append(out.Rows, model.PredictionRow{ID: id, Prediction: v})
	}

	if out.Duplicates > 0 {
		n.log.Warn(ctx, "duplicate prediction ids resolved",
			logger.Int("duplicates", out.Duplicates),
			logger.String("policy", string(n.policy)))
		metrics.RecordDuplicatesDropped("predictions", out.Duplicates)
	}
	return out, nil
}
