// Package model contains domain models passed between layers.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
)

// maxExactInt is the largest magnitude a float64 holds without losing
// integer precision.
const maxExactInt = 1 << 53

// LabelRow is one ground-truth row.
type LabelRow struct {
	ID     string
	Target int
}

// LabelTable is the loaded ground truth. IDs are unique.
type LabelTable struct {
	Rows           []LabelRow
	Duplicates     int // rows dropped because their ID was already seen
	DroppedNullIDs int
}

// Len returns the number of labels.
func (t LabelTable) Len() int { return len(t.Rows) }

// PredictionRow is one submitted prediction. Prediction may be a class
// label, a probability or an arbitrary score.
type PredictionRow struct {
	ID         string
	Prediction float64
}

// PredictionTable is a normalized submission. IDs are unique.
type PredictionTable struct {
	Rows                   []PredictionRow
	Duplicates             int
	DroppedNullIDs         int
	DroppedNullPredictions int
	// RenamedFrom is the alias the prediction column was read from, if any.
	RenamedFrom string
}

// Len returns the number of predictions.
func (t PredictionTable) Len() int { return len(t.Rows) }

// ResultRecord is one row of the history log.
type ResultRecord struct {
	Timestamp       time.Time `json:"timestamp_utc"`
	UserID          string    `json:"user_id"`
	FileFingerprint string    `json:"file_fingerprint"`
	NIDs            int       `json:"n_ids"`
	Score           float64   `json:"score"`
	Mode            string    `json:"mode"`
}

// DedupKey identifies the same logical result within a session.
type DedupKey struct {
	Fingerprint string
	Score       float64
	NIDs        int
	Mode        string
}

// Key returns the record's dedup identity. Mode compares case-insensitively.
func (r ResultRecord) Key() DedupKey {
	return DedupKey{
		Fingerprint: r.FileFingerprint,
		Score:       r.Score,
		NIDs:        r.NIDs,
		Mode:        strings.ToLower(strings.TrimSpace(r.Mode)),
	}
}

// String renders the key for use in a string-keyed set.
func (k DedupKey) String() string {
	return k.Fingerprint + "|" +
		strconv.FormatFloat(k.Score, 'f', -1, 64) + "|" +
		strconv.Itoa(k.NIDs) + "|" +
		k.Mode
}

// NormalizeID trims an identifier and rewrites integral numbers to their
// integer text, so "7", "7.0" and " 7 " all join.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	if f != math.Trunc(f) || math.Abs(f) > maxExactInt {
		return s
	}
	return strconv.FormatInt(int64(f), 10)
}

// Fingerprint returns the hex SHA-256 of a raw upload.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ScorePercent converts an F1 in [0,1] to the stored percent form, rounded
// to four decimals.
func ScorePercent(f1 float64) float64 {
	return math.Round(f1*100*1e4) / 1e4
}
