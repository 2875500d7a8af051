//go:build !windows

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmora/runctl"
)

// Engine launches executor subprocesses, one per Execute call.
// An Engine is safe for concurrent use.
type Engine struct {
	opts EngineOptions
}

// NewEngine creates a subprocess engine.
// Use EngineOption functions to customize the scanner buffer and grace period.
func NewEngine(opts ...EngineOption) *Engine {
	return &Engine{opts: resolveEngineOptions(opts...)}
}

// Request is a fully resolved subprocess launch.
type Request struct {
	// Binary is looked up on PATH unless it contains a separator.
	Binary string
	Args   []string

	// Dir is the subprocess working directory. Must be absolute.
	Dir string

	// Env is the subprocess environment. Nil inherits the parent environment.
	Env []string

	// Stdin is written to the subprocess standard input, which is then closed.
	Stdin string
}

// Result summarizes one finished subprocess.
type Result struct {
	// PID of the subprocess, or 0 if it never started.
	PID int

	// Handle is the first correlation handle seen in the event stream.
	Handle string

	// Answer is the last non-empty result content, or the last text event
	// when no result carried content.
	Answer string

	// Terminal reports whether at least one result event was parsed.
	Terminal bool

	// Lines counts non-blank stdout lines captured.
	Lines int

	// Events counts parsed events; ParseErrors counts rejected lines.
	Events      int
	ParseErrors int

	// ExitCode is the subprocess exit status (-1 when killed by a signal).
	ExitCode int

	// Usage sums the token usage reported on result events.
	Usage *runctl.Usage

	lastText string
}

// Execute launches req, writes req.Stdin to the subprocess, and copies every
// non-blank stdout line to out as it arrives (one Write per line, newline
// terminated). Stderr is copied to errOut. A nil writer discards.
//
// The returned error classifies the outcome:
//   - nil: exit 0 and at least one result event
//   - [runctl.ErrUnavailable]: the subprocess could not be started
//   - *[runctl.ExitError] (matches [runctl.ErrSubprocessFailure]): non-zero
//     exit, signal, or context cancellation
//   - [runctl.ErrProtocol]: exit 0 without a result event, or stdout could
//     not be read or captured
//
// The Result is populated as far as the run progressed in every case.
func (e *Engine) Execute(ctx context.Context, p Parser, req Request, out, errOut io.Writer) (Result, error) {
	log := e.opts.Logger

	if !filepath.IsAbs(req.Dir) {
		return Result{}, fmt.Errorf("%w: working directory must be absolute, got %q", runctl.ErrUnavailable, req.Dir)
	}
	if info, err := os.Stat(req.Dir); err != nil {
		return Result{}, fmt.Errorf("%w: working directory: %w", runctl.ErrUnavailable, err)
	} else if !info.IsDir() {
		return Result{}, fmt.Errorf("%w: working directory is not a directory: %s", runctl.ErrUnavailable, req.Dir)
	}

	resolved, err := exec.LookPath(req.Binary)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", runctl.ErrUnavailable, req.Binary, err)
	}

	cmd, stdin, stdout, err := e.spawnCmd(ctx, resolved, req, errOut)
	if err != nil {
		return Result{}, fmt.Errorf("%w: start %s: %w", runctl.ErrUnavailable, req.Binary, err)
	}

	res := Result{PID: cmd.Process.Pid}
	log.Debug("subprocess started",
		zap.Int("pid", res.PID),
		zap.String("binary", resolved),
		zap.Strings("args", req.Args))

	var g errgroup.Group
	g.Go(func() error {
		if err := writeStdin(stdin, req.Stdin); err != nil {
			log.Warn("stdin write failed", zap.Int("pid", res.PID), zap.Error(err))
		}
		return nil
	})
	g.Go(func() error {
		if err := e.pump(stdout, p, out, &res); err != nil {
			_ = signalProcess(cmd.Process, os.Kill)
			return err
		}
		return nil
	})
	pumpErr := g.Wait()
	waitErr := cmd.Wait()

	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if res.Answer == "" {
		res.Answer = res.lastText
	}

	log.Debug("subprocess exited",
		zap.Int("pid", res.PID),
		zap.Int("exit_code", res.ExitCode),
		zap.Int("lines", res.Lines),
		zap.Bool("terminal", res.Terminal))

	switch {
	case pumpErr != nil:
		return res, fmt.Errorf("%w: %w", runctl.ErrProtocol, pumpErr)
	case waitErr != nil:
		return res, classifyWaitError(ctx, waitErr)
	case !res.Terminal:
		return res, fmt.Errorf("%w: no terminal event in %d output lines (%d unparseable)",
			runctl.ErrProtocol, res.Lines, res.ParseErrors)
	}
	return res, nil
}

// spawnCmd builds, configures, and starts an exec.Cmd.
// Context cancellation sends SIGTERM; the grace period later escalates to SIGKILL.
func (e *Engine) spawnCmd(ctx context.Context, binary string, req Request, errOut io.Writer) (*exec.Cmd, io.WriteCloser, io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, binary, req.Args...)
	cmd.Dir = req.Dir
	cmd.Env = req.Env
	cmd.Stderr = errOut
	cmd.Cancel = func() error { return signalProcess(cmd.Process, syscall.SIGTERM) }
	cmd.WaitDelay = e.opts.GracePeriod

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}
	return cmd, stdin, stdout, nil
}

// pump reads stdout line by line, captures each raw line, and folds parsed
// events into res. Lines longer than the scanner buffer are captured whole
// and counted as parse errors.
func (e *Engine) pump(stdout io.Reader, p Parser, out io.Writer, res *Result) error {
	br := bufio.NewReader(stdout)
	for {
		raw, n, err := readLine(br, e.opts.ScannerBuffer, out)
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, ErrLineTooLong):
			res.Lines++
			res.ParseErrors++
			e.opts.Logger.Warn("output line exceeds parse limit, captured unparsed",
				zap.Int("pid", res.PID), zap.Int("bytes", n))
			continue
		case err != nil:
			return err
		}
		line := string(raw)
		if strings.TrimSpace(line) == "" {
			continue
		}
		res.Lines++
		if out != nil {
			if _, err := io.WriteString(out, line+"\n"); err != nil {
				return fmt.Errorf("cli: capture output: %w", err)
			}
		}

		ev, err := parseLine(p, line)
		if errors.Is(err, ErrSkipLine) {
			continue
		}
		if err != nil {
			res.ParseErrors++
			e.opts.Logger.Debug("unparseable output line", zap.Int("pid", res.PID), zap.Error(err))
			continue
		}
		res.observe(ev)
	}
}

// observe folds one event into the result. The first handle wins.
func (r *Result) observe(ev runctl.Event) {
	r.Events++
	if r.Handle == "" && ev.Handle != "" {
		r.Handle = ev.Handle
	}
	switch ev.Type {
	case runctl.EventText:
		if ev.Content != "" {
			r.lastText = ev.Content
		}
	case runctl.EventResult:
		r.Terminal = true
		if ev.Content != "" {
			r.Answer = ev.Content
		}
		r.Usage = r.Usage.Add(ev.Usage)
	}
}

// writeStdin writes the prompt and closes the pipe. A subprocess that exits
// without reading its input is not an error.
func writeStdin(stdin io.WriteCloser, data string) error {
	_, werr := io.WriteString(stdin, data)
	cerr := stdin.Close()
	for _, err := range []error{werr, cerr} {
		if err != nil && !errors.Is(err, syscall.EPIPE) && !errors.Is(err, os.ErrClosed) {
			return err
		}
	}
	return nil
}

// classifyWaitError maps cmd.Wait errors to *runctl.ExitError. A process
// that exits cleanly after a cancellation signal still counts as killed.
func classifyWaitError(ctx context.Context, err error) error {
	if wrapped := wrapExitError(err); wrapped != nil {
		var exitErr *runctl.ExitError
		if errors.As(wrapped, &exitErr) {
			return wrapped
		}
	}
	if ctx.Err() != nil {
		return &runctl.ExitError{Code: -1, Err: err}
	}
	return fmt.Errorf("%w: wait: %w", runctl.ErrProtocol, err)
}

// wrapExitError converts a non-zero *exec.ExitError to *runctl.ExitError.
// nil → nil, non-ExitError → passthrough, code 0 → nil (clean exit).
// Preserves the error chain via ExitError.Unwrap.
func wrapExitError(err error) error {
	if err == nil {
		return nil
	}
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return err
	}
	code := ee.ExitCode()
	if code == 0 {
		return nil
	}
	return &runctl.ExitError{Code: code, Err: err}
}

// signalProcess sends sig to a process, returning nil if the process
// has already exited (os.ErrProcessDone).
func signalProcess(proc *os.Process, sig os.Signal) error {
	if proc == nil {
		return nil
	}
	err := proc.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
