package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/dmora/runctl"
)

// ParseError reports a line the backend parser rejected. Iteration continues
// past it.
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("cli: parse: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// Is makes ParseError match runctl.ErrProtocol.
func (e *ParseError) Is(target error) bool { return target == runctl.ErrProtocol }

// ErrLineTooLong reports a line longer than the parse limit. Such a line is
// not parsed, but it does not end the sequence.
var ErrLineTooLong = errors.New("cli: line exceeds parse limit")

// Lines yields each line of r without its trailing newline. maxLine caps the
// parsed line length in bytes (<= 0 uses the 1 MB default). An over-long line
// is yielded as an error matching ErrLineTooLong and iteration continues; any
// other read error is yielded once and ends the sequence.
func Lines(r io.Reader, maxLine int) iter.Seq2[string, error] {
	if maxLine <= 0 {
		maxLine = defaultScannerBuffer
	}
	return func(yield func(string, error) bool) {
		br := bufio.NewReader(r)
		for {
			line, n, err := readLine(br, maxLine, nil)
			switch {
			case err == io.EOF:
				return
			case errors.Is(err, ErrLineTooLong):
				if !yield("", fmt.Errorf("%w: %d bytes", ErrLineTooLong, n)) {
					return
				}
				continue
			case err != nil:
				yield("", err)
				return
			}
			if !yield(string(line), nil) {
				return
			}
		}
	}
}

// readLine reads one line from br and returns it without its line ending,
// along with its raw length n. A line longer than maxLine is never held in
// memory: its bytes go to spill (if non-nil) as they are read, a missing
// final newline is added, and the error is ErrLineTooLong. The error is
// io.EOF only when no bytes remain.
func readLine(br *bufio.Reader, maxLine int, spill io.Writer) (line []byte, n int, err error) {
	var buf []byte
	long := false
	for {
		chunk, rerr := br.ReadSlice('\n')
		n += len(chunk)
		size := len(buf) + len(chunk)
		if bytes.HasSuffix(chunk, []byte("\n")) {
			size--
		}
		if !long && size > maxLine {
			long = true
			if err := spillTo(spill, buf); err != nil {
				return nil, n, err
			}
			buf = nil
		}
		if long {
			if err := spillTo(spill, chunk); err != nil {
				return nil, n, err
			}
		} else {
			buf = append(buf, chunk...)
		}

		switch {
		case rerr == bufio.ErrBufferFull:
			continue
		case rerr == io.EOF && n == 0:
			return nil, 0, io.EOF
		case rerr != nil && rerr != io.EOF:
			return nil, n, fmt.Errorf("cli: read: %w", rerr)
		}
		if long {
			if !bytes.HasSuffix(chunk, []byte("\n")) {
				if err := spillTo(spill, []byte("\n")); err != nil {
					return nil, n, err
				}
			}
			return nil, n, ErrLineTooLong
		}
		buf = bytes.TrimSuffix(buf, []byte("\n"))
		return bytes.TrimSuffix(buf, []byte("\r")), n, nil
	}
}

func spillTo(w io.Writer, p []byte) error {
	if w == nil || len(p) == 0 {
		return nil
	}
	if _, err := w.Write(p); err != nil {
		return fmt.Errorf("cli: capture output: %w", err)
	}
	return nil
}

// Stream yields the events parsed from r. Lines the parser skips are not
// yielded. Lines the parser rejects, and over-long lines, are yielded as a
// *ParseError and iteration continues; a read error is yielded once and ends
// the sequence.
func Stream(r io.Reader, p Parser, maxLine int) iter.Seq2[runctl.Event, error] {
	return func(yield func(runctl.Event, error) bool) {
		for line, err := range Lines(r, maxLine) {
			if errors.Is(err, ErrLineTooLong) {
				if !yield(runctl.Event{}, &ParseError{Err: err}) {
					return
				}
				continue
			}
			if err != nil {
				yield(runctl.Event{}, err)
				return
			}
			ev, err := parseLine(p, line)
			if errors.Is(err, ErrSkipLine) {
				continue
			}
			if !yield(ev, err) {
				return
			}
		}
	}
}

// parseLine runs the parser, recovering from panics and stamping a
// timestamp on events that carry none.
func parseLine(p Parser, line string) (ev runctl.Event, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev, err = runctl.Event{}, &ParseError{Line: line, Err: fmt.Errorf("parser panic: %v", r)}
		}
	}()
	ev, err = p.ParseLine(line)
	if errors.Is(err, ErrSkipLine) {
		return runctl.Event{}, err
	}
	if err != nil {
		return runctl.Event{}, &ParseError{Line: line, Err: err}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev, nil
}
