package blobstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"

	"github.com/okian/evalboard/internal/domain/evalerr"
	"github.com/okian/evalboard/pkg/logger"
)

const (
	badgerKeyPrefix = "blob/"
	revisionBytes   = 8
)

// Badger stores blobs in an embedded BadgerDB. Each value is an envelope of
// an 8-byte big-endian revision followed by the blob bytes.
type Badger struct {
	db *badger.DB
}

// NewBadger opens a database at path. An empty path opens an in-memory
// database.
func NewBadger(path string, log logger.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	if log != nil {
		opts = opts.WithLogger(&badgerLogger{log: log.Named("badger")})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Badger{db: db}, nil
}

// Get implements Store.
func (b *Badger) Get(ctx context.Context, key string) (Blob, error) {
	const op = "blobstore.badger.get"
	if err := ctx.Err(); err != nil {
		return Blob{}, evalerr.Wrap(op, evalerr.ErrTransient, err)
	}

	var out Blob
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rev, data, err := openEnvelope(val)
			if err != nil {
				return err
			}
			out = Blob{Data: append([]byte(nil), data...), Version: strconv.FormatUint(rev, 10)}
			return nil
		})
	})
	if err != nil {
		return Blob{}, evalerr.WrapOp(op, badgerError(err))
	}
	return out, nil
}

// Put implements Store.
func (b *Badger) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	const op = "blobstore.badger.put"
	if err := ctx.Err(); err != nil {
		return "", evalerr.Wrap(op, evalerr.ErrTransient, err)
	}

	var next uint64
	err := b.db.Update(func(txn *badger.Txn) error {
		k := []byte(badgerKeyPrefix + key)
		var cur uint64
		item, err := txn.Get(k)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if expected != "" {
				return evalerr.Newf(op, evalerr.ErrVersionConflict, "%s does not exist", key)
			}
		case err != nil:
			return err
		default:
			if expected == "" {
				return evalerr.Newf(op, evalerr.ErrVersionConflict, "%s already exists", key)
			}
			if err := item.Value(func(val []byte) error {
				rev, _, err := openEnvelope(val)
				cur = rev
				return err
			}); err != nil {
				return err
			}
			if strconv.FormatUint(cur, 10) != expected {
				return evalerr.Newf(op, evalerr.ErrVersionConflict, "%s is not at version %s", key, expected)
			}
		}
		next = cur + 1
		return txn.Set(k, sealEnvelope(next, data))
	})
	if err != nil {
		return "", evalerr.WrapOp(op, badgerError(err))
	}
	return strconv.FormatUint(next, 10), nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func sealEnvelope(rev uint64, data []byte) []byte {
	out := make([]byte, revisionBytes+len(data))
	binary.BigEndian.PutUint64(out, rev)
	copy(out[revisionBytes:], data)
	return out
}

func openEnvelope(val []byte) (uint64, []byte, error) {
	if len(val) < revisionBytes {
		return 0, nil, ErrCorruptEnvelope
	}
	return binary.BigEndian.Uint64(val), val[revisionBytes:], nil
}

func badgerError(err error) error {
	switch {
	case evalerr.KindOf(err) != nil:
		return err
	case errors.Is(err, badger.ErrKeyNotFound):
		return evalerr.Wrap("badger", evalerr.ErrNotFound, err)
	case errors.Is(err, badger.ErrConflict):
		return evalerr.Wrap("badger", evalerr.ErrVersionConflict, err)
	default:
		return err
	}
}

// badgerLogger adapts logger.Logger to badger.Logger.
type badgerLogger struct {
	log logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.log.Error(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.log.Warn(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, args...))
}

var _ Store = (*Badger)(nil)
