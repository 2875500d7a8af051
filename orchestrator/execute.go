//go:build !windows

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/internal/errfmt"
	"github.com/dmora/runctl/workspace"
)

// turn is one executor invocation, ready to record and launch.
type turn struct {
	// record is the running record; the terminal record derives from it.
	record index.Record
	dir    workspace.RunDir
	parser cli.Parser
	binary string
	args   []string
	stdin  string
}

// startRecord returns a running record for a turn starting at start.
func (o *Orchestrator) startRecord(runID string, rd workspace.RunDir, start time.Time) index.Record {
	return index.Record{
		EventID:   uuid.NewString(),
		RunID:     runID,
		Timestamp: start,
		Status:    runctl.StatusRunning,
		Root:      o.layout.Root,
		RunDir:    rd.Path,
		Turn:      1,
		EnginePID: o.pid,
		Host:      o.host,
		StartedAt: start,
	}
}

// run appends the running record, executes the turn, and appends the
// terminal record. Once the running record is written, a terminal record
// follows on every path that returns.
func (o *Orchestrator) run(ctx context.Context, t turn) (Outcome, error) {
	log := o.logger.With(
		zap.String("run_id", t.record.RunID),
		zap.String("family", string(t.record.Family)),
		zap.String("model", t.record.Model),
		zap.Int("turn", t.record.Turn))

	if err := o.index.Append(ctx, t.record); err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: record start of %s: %w", t.record.RunID, err)
	}
	log.Info("run started", zap.String("run_dir", t.dir.Path))

	res, execErr := o.execute(ctx, t)

	final := t.record.Finalize(statusOf(execErr), o.now())
	if res.Handle != "" {
		final.Handle = res.Handle
	}
	if res.PID != 0 {
		code := res.ExitCode
		if c, ok := runctl.ExitCode(execErr); ok {
			code = c
		}
		final.ExitCode = &code
	}
	if execErr != nil {
		final.Error = errfmt.Truncate(execErr.Error())
	}
	final.SetAnswer(res.Answer)
	final.Usage = res.Usage

	// The terminal record is written even when ctx was cancelled.
	if err := o.index.Append(context.WithoutCancel(ctx), final); err != nil {
		log.Error("terminal record lost", zap.Error(err))
		return Outcome{Record: final, Err: execErr}, fmt.Errorf("orchestrator: record end of %s: %w", final.RunID, err)
	}

	fields := []zap.Field{
		zap.String("status", string(final.Status)),
		zap.Duration("duration", final.Duration()),
		zap.Int("lines", res.Lines),
	}
	if final.ExitCode != nil {
		fields = append(fields, zap.Int("exit_code", *final.ExitCode))
	}
	if execErr != nil {
		log.Warn("run did not complete", append(fields, zap.Error(execErr))...)
	} else {
		log.Info("run completed", fields...)
	}
	return Outcome{Record: final, Err: execErr}, nil
}

// execute opens the capture files and runs the subprocess in the workspace
// root. Capture files are opened for append so in-place turns extend them.
func (o *Orchestrator) execute(ctx context.Context, t turn) (cli.Result, error) {
	out, err := t.dir.OpenAppend(t.dir.Output())
	if err != nil {
		return cli.Result{}, fmt.Errorf("%w: %w", runctl.ErrUnavailable, err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			o.logger.Warn("close output capture", zap.String("run_id", t.record.RunID), zap.Error(err))
		}
	}()
	errOut, err := t.dir.OpenAppend(t.dir.Stderr())
	if err != nil {
		return cli.Result{}, fmt.Errorf("%w: %w", runctl.ErrUnavailable, err)
	}
	defer errOut.Close()

	return o.engine.Execute(ctx, t.parser, cli.Request{
		Binary: t.binary,
		Args:   t.args,
		Dir:    o.layout.Root,
		Stdin:  t.stdin,
	}, out, errOut)
}

// statusOf maps an execution error to the terminal status.
func statusOf(err error) runctl.Status {
	switch {
	case err == nil:
		return runctl.StatusCompleted
	case errors.Is(err, runctl.ErrSubprocessFailure):
		return runctl.StatusFailed
	default:
		return runctl.StatusError
	}
}
