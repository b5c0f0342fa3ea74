// Package leaderboard derives the ranked best-per-user view from the raw
// history. It holds no state; the view is recomputed on every read.
package leaderboard

import (
	"slices"
	"strings"
	"time"

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/table"
	"github.com/okian/evalboard/internal/domain/types"
)

type group struct {
	key    string
	best   model.ResultRecord
	latest time.Time
	count  int
}

// Project ranks users by their best record. Only records whose mode equals
// filter (case-insensitively, after trimming) count; an empty filter keeps
// everything. Records without a user are ignored. Users are grouped by
// their trimmed, case-folded name; each group keeps the record with the
// highest score, the newest one on a tie. Groups are ordered the same way,
// then by name.
func Project(history []model.ResultRecord, filter string) []types.Entry {
	filter = strings.TrimSpace(filter)

	groups := make(map[string]*group)
	for _, r := range history {
		if filter != "" && !strings.EqualFold(strings.TrimSpace(r.Mode), filter) {
			continue
		}
		key := table.FoldName(r.UserID)
		if key == "" {
			continue
		}
		g, ok := groups[key]
		if !ok {
			groups[key] = &group{key: key, best: r, latest: r.Timestamp, count: 1}
			continue
		}
		g.count++
		if r.Timestamp.After(g.latest) {
			g.latest = r.Timestamp
		}
		if better(r, g.best) {
			g.best = r
		}
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	slices.SortFunc(ordered, func(a, b *group) int {
		switch {
		case better(a.best, b.best):
			return -1
		case better(b.best, a.best):
			return 1
		default:
			return strings.Compare(a.key, b.key)
		}
	})

	out := make([]types.Entry, len(ordered))
	for i, g := range ordered {
		out[i] = types.Entry{
			Rank:           i + 1,
			Name:           strings.TrimSpace(g.best.UserID),
			Score:          g.best.Score,
			NIDs:           g.best.NIDs,
			LastSubmission: g.latest,
			BestAt:         g.best.Timestamp,
			Mode:           g.best.Mode,
			Submissions:    g.count,
		}
	}
	return out
}

// better orders records by score, then recency.
func better(a, b model.ResultRecord) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Timestamp.After(b.Timestamp)
}

// Top returns at most n entries; n <= 0 returns all.
func Top(entries []types.Entry, n int) []types.Entry {
	if n <= 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}

// Modes lists the distinct non-empty modes in history, in first-seen order
// of their case-folded form.
func Modes(history []model.ResultRecord) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range history {
		m := strings.TrimSpace(r.Mode)
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
	return out
}
