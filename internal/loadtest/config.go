package loadtest

import (
	"time"

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/types"
)

// Config holds configuration for a load test run.
type Config struct {
	BaseURL            string        // Base URL of the service
	Users              int           // Distinct users submitting
	SubmissionsPerUser int           // Uploads per user
	Rows               int           // Prediction rows per file, ids 1..Rows
	RepeatRatio        float64       // Share of uploads that resend an earlier file in the same session
	Modes              []string      // Modes each upload is recorded under
	Workers            int           // Concurrent uploaders
	RPS                float64       // Upload rate limit; zero means unlimited
	Timeout            time.Duration // HTTP request timeout
	Verbose            bool          // Log every upload
}

// Upload is one generated prediction file.
type Upload struct {
	User    string
	Session string
	File    string
	Data    []byte
	Repeat  bool
}

// Entry mirrors a leaderboard row.
type Entry = types.Entry

// Record mirrors a history row.
type Record = model.ResultRecord

// submitResponse is the subset of the submission reply the run checks.
type submitResponse struct {
	Evaluation struct {
		Score float64 `json:"score"`
	} `json:"evaluation"`
	Records  []types.ModeOutcome `json:"records"`
	Recorded bool                `json:"recorded"`
}

// Stats holds run statistics.
type Stats struct {
	Generated   int
	Submitted   int
	Recorded    int // mode records committed to the history
	Duplicates  int // mode records skipped by session dedup
	Rejected    int // uploads refused with a 4xx
	Failed      int // transport errors, 5xx, or mode records that failed to commit
	HistoryRows int
	BoardSize   int
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
}
