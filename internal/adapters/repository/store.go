// Package repository keeps the shared result history as an append-only log
// on top of a versioned blob store.
package repository

import (
	"context"

	"github.com/okian/evalboard/internal/domain/dedupe"
	"github.com/okian/evalboard/internal/domain/model"
)

// AppendResult describes how an append ended.
type AppendResult struct {
	// Duplicate is set when the session already recorded the same key and
	// nothing was written.
	Duplicate bool
	// Attempts is the number of commit attempts made.
	Attempts int
	// Version is the blob version produced by the successful commit.
	Version string
}

// Log is the shared history. Append is the only way to change it.
type Log interface {
	// Append adds rec unless session already recorded its dedup key. A nil
	// session disables deduplication. The row is either fully committed or
	// not written at all.
	Append(ctx context.Context, session dedupe.Deduper, rec model.ResultRecord) (AppendResult, error)

	// Snapshot returns every readable record, oldest first. The result may
	// lag other writers by the read cache TTL but always includes local
	// appends.
	Snapshot(ctx context.Context) ([]model.ResultRecord, error)

	// Invalidate drops the read cache.
	Invalidate()
}
