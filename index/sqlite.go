package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// SQLiteLog is a Log over an embedded SQLite database. Records are only
// ever inserted; the autoincrement sequence preserves append order.
type SQLiteLog struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	ready bool
}

var _ Log = (*SQLiteLog)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	seq    INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	ts     TEXT NOT NULL,
	status TEXT NOT NULL,
	body   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
`

// OpenSQLite returns the SQLite index at path. WAL mode and a busy timeout
// let concurrent runctl processes append safely. The database file is
// created by the first Append; scanning a missing database yields nothing.
func OpenSQLite(_ context.Context, path string) (*SQLiteLog, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	return &SQLiteLog{db: db, path: path}, nil
}

// ensureSchema creates the parent directory and table on first use.
func (l *SQLiteLog) ensureSchema(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ready {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("index: init schema: %w", err)
	}
	l.ready = true
	return nil
}

// Path returns the database file.
func (l *SQLiteLog) Path() string { return l.path }

// Append inserts rec as one row.
func (l *SQLiteLog) Append(ctx context.Context, rec Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("index: encode %s: %w", rec.RunID, err)
	}
	if err := l.ensureSchema(ctx); err != nil {
		return err
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO records (run_id, ts, status, body) VALUES (?, ?, ?, ?)`,
		rec.RunID, rec.Timestamp.UTC().Format(time.RFC3339Nano), string(rec.Status), string(body))
	if err != nil {
		return fmt.Errorf("index: append %s: %w", rec.RunID, err)
	}
	return nil
}

// Scan yields rows in insertion order.
func (l *SQLiteLog) Scan(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		if _, err := os.Stat(l.path); errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err := l.ensureSchema(ctx); err != nil {
			yield(Record{}, err)
			return
		}
		rows, err := l.db.QueryContext(ctx, `SELECT seq, body FROM records ORDER BY seq`)
		if err != nil {
			yield(Record{}, fmt.Errorf("index: scan: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				seq  int64
				body string
			)
			if err := rows.Scan(&seq, &body); err != nil {
				yield(Record{}, fmt.Errorf("index: scan: %w", err))
				return
			}
			rec, err := decode([]byte(body))
			if err != nil {
				err = fmt.Errorf("%w: row %d: %w", ErrMalformed, seq, err)
			}
			if !yield(rec, err) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Record{}, fmt.Errorf("index: scan: %w", err))
		}
	}
}

// Close closes the database.
func (l *SQLiteLog) Close() error { return l.db.Close() }
