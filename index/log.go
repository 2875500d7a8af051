package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

// Log is an append-only store of index records.
//
// Append writes exactly one record atomically. Scan yields every record in
// append order; an entry that cannot be decoded is yielded as an error
// matching ErrMalformed and the scan continues. Any other error ends the
// scan.
type Log interface {
	Append(ctx context.Context, rec Record) error
	Scan(ctx context.Context) iter.Seq2[Record, error]
	Close() error
}

// maxRecordLine bounds one JSONL record.
const maxRecordLine = 16 << 20

// FileLog is a Log over a JSON lines file. Each Append is a single write to
// a file opened with O_APPEND, so concurrent writers in separate processes
// never interleave within a line. The file and its directory are created by
// the first Append; reading never creates them.
type FileLog struct {
	path string

	mu sync.Mutex
	f  *os.File
}

var _ Log = (*FileLog)(nil)

// OpenFile returns the JSONL index at path. Nothing is created until the
// first Append.
func OpenFile(path string) (*FileLog, error) {
	if info, err := os.Stat(path); err == nil && !info.Mode().IsRegular() {
		return nil, fmt.Errorf("index: %s is not a regular file", path)
	}
	return &FileLog{path: path}, nil
}

func (l *FileLog) appendHandle() (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f != nil {
		return l.f, nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return nil, fmt.Errorf("index: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", l.path, err)
	}
	l.f = f
	return f, nil
}

// Path returns the file backing the log.
func (l *FileLog) Path() string { return l.path }

// Append writes rec as one JSON line.
func (l *FileLog) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("index: encode %s: %w", rec.RunID, err)
	}
	line = append(line, '\n')
	f, err := l.appendHandle()
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("index: append %s: %w", rec.RunID, err)
	}
	return nil
}

// Scan reads the file from the start. A missing file is an empty log.
func (l *FileLog) Scan(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		f, err := os.Open(l.path)
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		if err != nil {
			yield(Record{}, fmt.Errorf("index: %w", err))
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRecordLine)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			if err := ctx.Err(); err != nil {
				yield(Record{}, err)
				return
			}
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			rec, err := decode(line)
			if err != nil {
				err = fmt.Errorf("%w: %s:%d: %w", ErrMalformed, filepath.Base(l.path), lineNo, err)
			}
			if !yield(rec, err) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Record{}, fmt.Errorf("index: read %s: %w", l.path, err))
		}
	}
}

// Close closes the append handle, if one was opened.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// decode parses one record. A record without a run id or status is
// malformed.
func decode(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, err
	}
	if rec.RunID == "" || rec.Status == "" {
		return Record{}, errors.New("missing run_id or status")
	}
	return rec, nil
}
