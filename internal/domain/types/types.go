// Package types contains common types used across the application
package types

import "time"

// Entry represents a leaderboard entry
type Entry struct {
	Rank           int       `json:"rank"`
	Name           string    `json:"name"`
	Score          float64   `json:"score"`
	NIDs           int       `json:"n_ids"`
	LastSubmission time.Time `json:"last_submission"`
	BestAt         time.Time `json:"best_at"`
	Mode           string    `json:"mode"`
	Submissions    int       `json:"submissions"`
}
