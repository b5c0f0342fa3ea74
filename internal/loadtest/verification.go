package loadtest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/okian/evalboard/pkg/logger"
)

// Verification errors.
var (
	ErrLostWrites   = errors.New("history does not hold every committed record")
	ErrBoardInvalid = errors.New("leaderboard is inconsistent with the history")
)

// verifyHistory checks that the history holds exactly the records the
// service acknowledged for this run's users.
func verifyHistory(ctx context.Context, runID string, history []Record, committed map[string]int, stats *Stats) error {
	prefix := "lt-" + runID + "-"
	seen := make(map[string]int)
	for _, r := range history {
		if strings.HasPrefix(r.UserID, prefix) {
			seen[r.UserID]++
			stats.HistoryRows++
		}
	}

	var problems []string
	for user, want := range committed {
		if got := seen[user]; got != want {
			problems = append(problems, fmt.Sprintf("%s: %d acknowledged, %d in history", user, want, got))
		}
	}
	for user, got := range seen {
		if _, ok := committed[user]; !ok {
			problems = append(problems, fmt.Sprintf("%s: %d unexpected rows", user, got))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrLostWrites, strings.Join(problems, "; "))
	}
	logger.Get().Info(ctx, "history verified", logger.Int("rows", stats.HistoryRows))
	return nil
}

// verifyLeaderboard checks ordering, ranks, and that every listed user of
// this run carries its best history score and submission count.
func verifyLeaderboard(ctx context.Context, runID string, board []Entry, history []Record, stats *Stats) error {
	stats.BoardSize = len(board)

	best := make(map[string]float64)
	count := make(map[string]int)
	for _, r := range history {
		key := strings.ToLower(strings.TrimSpace(r.UserID))
		if key == "" {
			continue
		}
		if n, ok := best[key]; !ok || r.Score > n {
			best[key] = r.Score
		}
		count[key]++
	}

	prefix := "lt-" + runID + "-"
	for i, e := range board {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrBoardInvalid, i, e.Rank)
		}
		if i > 0 && e.Score > board[i-1].Score {
			return fmt.Errorf("%w: entry %d outranks entry %d", ErrBoardInvalid, i, i-1)
		}
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		key := strings.ToLower(e.Name)
		if e.Score != best[key] {
			return fmt.Errorf("%w: %s shows %.4f, best in history is %.4f", ErrBoardInvalid, e.Name, e.Score, best[key])
		}
		if e.Submissions != count[key] {
			return fmt.Errorf("%w: %s shows %d submissions, history has %d", ErrBoardInvalid, e.Name, e.Submissions, count[key])
		}
	}
	logger.Get().Info(ctx, "leaderboard verified", logger.Int("entries", len(board)))
	return nil
}
