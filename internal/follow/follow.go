// Package follow reads a growing file until its writer is known to be done.
package follow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultPoll bounds how long Read waits without a write notification
// before checking the file and the done condition again.
const DefaultPoll = 500 * time.Millisecond

// Reader is an io.Reader over a file that is still being appended to. At
// end of file it blocks until the file grows, done reports true, or the
// context ends. Once done reports true the remaining bytes are drained and
// Read returns io.EOF.
type Reader struct {
	ctx      context.Context
	f        *os.File
	watcher  *fsnotify.Watcher
	done     func() bool
	poll     time.Duration
	finished bool
}

// Option configures a Reader.
type Option func(*Reader)

// WithPoll sets the fallback poll interval. Non-positive values are ignored.
func WithPoll(d time.Duration) Option {
	return func(r *Reader) {
		if d > 0 {
			r.poll = d
		}
	}
}

// Open starts following path. done is consulted each time the reader
// reaches end of file.
func Open(ctx context.Context, path string, done func() bool, opts ...Option) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("follow: watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		f.Close()
		return nil, fmt.Errorf("follow: watch %s: %w", path, err)
	}
	r := &Reader{ctx: ctx, f: f, watcher: w, done: done, poll: DefaultPoll}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for {
		n, err := r.f.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if r.finished {
			return 0, io.EOF
		}
		if r.done() {
			// One more read picks up bytes written before done flipped.
			r.finished = true
			continue
		}
		if err := r.wait(); err != nil {
			return 0, err
		}
	}
}

// wait blocks until the file changes, the poll interval passes, or the
// context ends.
func (r *Reader) wait() error {
	t := time.NewTimer(r.poll)
	defer t.Stop()
	select {
	case <-r.ctx.Done():
		return r.ctx.Err()
	case _, ok := <-r.watcher.Events:
		if !ok {
			r.finished = true
		}
	case err, ok := <-r.watcher.Errors:
		if ok && err != nil {
			return fmt.Errorf("follow: %w", err)
		}
	case <-t.C:
	}
	return nil
}

// Close stops watching and closes the file.
func (r *Reader) Close() error {
	return errors.Join(r.watcher.Close(), r.f.Close())
}
