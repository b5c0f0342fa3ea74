package blobstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/okian/evalboard/internal/domain/evalerr"
)

type memEntry struct {
	data []byte
	rev  uint64
}

// Memory is a process-local Store. Versions are revision numbers that
// increase on every write.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]memEntry
	rev   uint64
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]memEntry)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (Blob, error) {
	const op = "blobstore.memory.get"
	if err := ctx.Err(); err != nil {
		return Blob{}, evalerr.Wrap(op, evalerr.ErrTransient, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.blobs[key]
	if !ok {
		return Blob{}, evalerr.New(op, evalerr.ErrNotFound)
	}
	return Blob{Data: append([]byte(nil), e.data...), Version: version(e.rev)}, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	const op = "blobstore.memory.put"
	if err := ctx.Err(); err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrTransient, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cur, exists := m.blobs[key]
	switch {
	case expected == "" && exists:
		return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "%s already exists", key)
	case expected != "" && (!exists || version(cur.rev) != expected):
		return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "%s is not at version %s", key, expected)
	}

	m.rev++
	m.blobs[key] = memEntry{data: append([]byte(nil), data...), rev: m.rev}
	return version(m.rev), nil
}

func version(rev uint64) string {
	return strconv.FormatUint(rev, 10)
}
