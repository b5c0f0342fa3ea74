package types

import "github.com/okian/evalboard/internal/domain/evaluation"

// SubmitRequest is one uploaded prediction file.
type SubmitRequest struct {
	SessionID string
	UserID    string
	Modes     []string
	Filename  string
	Data      []byte
}

// ModeOutcome reports the history append made for one mode. A session
// duplicate is neither recorded nor an error.
type ModeOutcome struct {
	Mode      string `json:"mode"`
	Recorded  bool   `json:"recorded"`
	Duplicate bool   `json:"duplicate"`
	Attempts  int    `json:"attempts"`
	Code      string `json:"code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SubmitResponse is the evaluation plus what was recorded. The evaluation
// is present even when no mode could be recorded.
type SubmitResponse struct {
	Evaluation evaluation.Evaluation `json:"evaluation"`
	Records    []ModeOutcome         `json:"records"`
	Recorded   bool                  `json:"recorded"`
	Warnings   []string              `json:"warnings,omitempty"`
}
