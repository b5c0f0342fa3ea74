package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/evalboard/internal/domain/evalerr"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS blobs (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	version    INTEGER NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SQLite stores blobs as rows of a single table and uses the version column
// as an optimistic lock.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database file at path and applies the
// schema. ":memory:" opens a private in-memory database.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (Blob, error) {
	const op = "blobstore.sqlite.get"

	var (
		data []byte
		ver  int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT data, version FROM blobs WHERE key = ?`, key).Scan(&data, &ver)
	if errors.Is(err, sql.ErrNoRows) {
		return Blob{}, evalerr.New(op, evalerr.ErrNotFound)
	}
	if err != nil {
		return Blob{}, evalerr.WrapOp(op, sqliteError(err))
	}
	return Blob{Data: data, Version: strconv.FormatInt(ver, 10)}, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key string, data []byte, expected string) (string, error) {
	const op = "blobstore.sqlite.put"

	if expected == "" {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO blobs (key, data, version) VALUES (?, ?, 1) ON CONFLICT(key) DO NOTHING`, key, data)
		if err != nil {
			return "", evalerr.WrapOp(op, sqliteError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "%s already exists", key)
		}
		return "1", nil
	}

	cur, err := strconv.ParseInt(expected, 10, 64)
	if err != nil {
		return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "malformed version %q", expected)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE blobs SET data = ?, version = version + 1,
		        updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		  WHERE key = ? AND version = ?`, data, key, cur)
	if err != nil {
		return "", evalerr.WrapOp(op, sqliteError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", evalerr.Newf(op, evalerr.ErrVersionConflict, "%s is not at version %s", key, expected)
	}
	return strconv.FormatInt(cur+1, 10), nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqliteError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return evalerr.Wrap("sqlite", evalerr.ErrTransient, err)
	}
	// SQLITE_BUSY and SQLITE_LOCKED surface as text from the driver.
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy") {
		return evalerr.Wrap("sqlite", evalerr.ErrTransient, err)
	}
	return err
}

var _ Store = (*SQLite)(nil)
