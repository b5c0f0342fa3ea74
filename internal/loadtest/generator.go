package loadtest

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/evalboard/pkg/logger"
)

// generateUploads builds SubmissionsPerUser files for each user. Users are
// prefixed with runID so several runs can share one history.
func generateUploads(ctx context.Context, cfg *Config, runID string, stats *Stats) []Upload {
	logger.Get().Info(ctx, "generating uploads",
		logger.Int("users", cfg.Users),
		logger.Int("perUser", cfg.SubmissionsPerUser),
		logger.Int("rows", cfg.Rows))

	uploads := make([]Upload, 0, cfg.Users*cfg.SubmissionsPerUser)
	for u := range cfg.Users {
		user := fmt.Sprintf("lt-%s-%03d", runID, u)
		session := uuid.NewString()
		var previous []byte
		for i := range cfg.SubmissionsPerUser {
			up := Upload{User: user, Session: session, File: fmt.Sprintf("%s-%d.csv", user, i)}
			if previous != nil && rand.Float64() < cfg.RepeatRatio {
				up.Data, up.Repeat = previous, true
			} else {
				up.Data = predictionFile(cfg.Rows)
			}
			previous = up.Data
			uploads = append(uploads, up)
		}
	}
	// interleave users so commits contend on the shared history
	rand.Shuffle(len(uploads), func(i, j int) { uploads[i], uploads[j] = uploads[j], uploads[i] })

	stats.Generated = len(uploads)
	return uploads
}

// predictionFile returns a CSV with random binary predictions for ids
// 1..rows, mixing hard labels and probabilities.
func predictionFile(rows int) []byte {
	var b strings.Builder
	b.WriteString("id,prediction\n")
	probabilities := rand.IntN(2) == 0
	for id := 1; id <= rows; id++ {
		if probabilities {
			fmt.Fprintf(&b, "%d,%.3f\n", id, rand.Float64())
		} else {
			fmt.Fprintf(&b, "%d,%d\n", id, rand.IntN(2))
		}
	}
	return []byte(b.String())
}
