// Package history encodes the shared result log as a CSV table.
package history

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/evalboard/internal/domain/model"
	"github.com/okian/evalboard/internal/domain/table"
)

// Canonical columns, in file order.
const (
	ColTimestamp   = "timestamp_utc"
	ColUserID      = "user_id"
	ColFingerprint = "file_fingerprint"
	ColNIDs        = "n_ids"
	ColScore       = "score"
	ColMode        = "mode"
)

// Columns lists the canonical columns of a new log.
var Columns = []string{ColTimestamp, ColUserID, ColFingerprint, ColNIDs, ColScore, ColMode}

// TimestampLayout is how timestamps are written.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

var timestampLayouts = []string{
	TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Decode reads a stored log. Empty input yields an empty log. Missing
// canonical columns are added with empty values; unknown columns are kept.
func Decode(data []byte) (table.Table, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return table.New(Columns...), nil
	}
	t, err := table.ParseBytes(data)
	if err != nil {
		return table.Table{}, fmt.Errorf("decode history: %w", err)
	}
	t.Ensure(Columns...)
	return t, nil
}

// Encode writes the log back.
func Encode(t table.Table) ([]byte, error) {
	return t.Encode()
}

// Append adds rec as a new row of t.
func Append(t *table.Table, rec model.ResultRecord) {
	t.Ensure(Columns...)
	t.Append(map[string]string{
		ColTimestamp:   FormatTimestamp(rec.Timestamp),
		ColUserID:      rec.UserID,
		ColFingerprint: rec.FileFingerprint,
		ColNIDs:        strconv.Itoa(rec.NIDs),
		ColScore:       strconv.FormatFloat(rec.Score, 'f', -1, 64),
		ColMode:        rec.Mode,
	})
}

// Records converts the rows of t into records, oldest first. Rows whose
// timestamp, n_ids or score cannot be read are skipped and counted.
func Records(t table.Table) (recs []model.ResultRecord, skipped int) {
	ts, user, fp := t.Index(ColTimestamp), t.Index(ColUserID), t.Index(ColFingerprint)
	nids, score, mode := t.Index(ColNIDs), t.Index(ColScore), t.Index(ColMode)

	recs = make([]model.ResultRecord, 0, len(t.Rows))
	for r := range t.Rows {
		at, err := ParseTimestamp(t.Get(r, ts))
		if err != nil {
			skipped++
			continue
		}
		s, err := strconv.ParseFloat(strings.TrimSpace(t.Get(r, score)), 64)
		if err != nil {
			skipped++
			continue
		}
		n := 0
		if raw := strings.TrimSpace(t.Get(r, nids)); raw != "" {
			f, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				skipped++
				continue
			}
			n = int(f)
		}
		recs = append(recs, model.ResultRecord{
			Timestamp:       at,
			UserID:          t.Get(r, user),
			FileFingerprint: t.Get(r, fp),
			NIDs:            n,
			Score:           s,
			Mode:            t.Get(r, mode),
		})
	}
	return recs, skipped
}

// FormatTimestamp renders ts in UTC with microseconds.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts the layouts the log has been written with.
// Timestamps without a zone are UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, firstErr)
}
