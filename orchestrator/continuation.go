//go:build !windows

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/prompt"
	"github.com/dmora/runctl/workspace"
)

// Continue extends the run ref with a follow-up prompt.
//
// A threaded-resumable run is resumed in place: the same run id and
// directory, output.jsonl appended, the prompt written to input-<turn>.md,
// and records carrying continues=<run id> and mode in-place. Any other
// family takes the fork path: a new run seeded with the prior handle.
func (o *Orchestrator) Continue(ctx context.Context, ref, text string) (Outcome, error) {
	prior, base, err := o.prepareContinuation(ctx, ref, text)
	if err != nil {
		return Outcome{}, err
	}
	if base.Family.CanResume() {
		return o.resume(ctx, prior, base, text)
	}
	return o.fork(ctx, prior, base, text)
}

// Fork starts a new run branched from the handle of run ref. Families that
// cannot fork fail with runctl.ErrUnsupportedOperation before anything is
// created.
func (o *Orchestrator) Fork(ctx context.Context, ref, text string) (Outcome, error) {
	prior, base, err := o.prepareContinuation(ctx, ref, text)
	if err != nil {
		return Outcome{}, err
	}
	return o.fork(ctx, prior, base, text)
}

// Retry replays the exact input.md of run ref as a new run. No handle is
// reused; the new run's records carry retries=<run id>.
func (o *Orchestrator) Retry(ctx context.Context, ref string) (Outcome, error) {
	prior, err := o.resolve(ctx, ref)
	if err != nil {
		return Outcome{}, err
	}
	first := prior.First()
	src := o.runDir(first)
	data, err := os.ReadFile(src.Input())
	if errors.Is(err, fs.ErrNotExist) {
		return Outcome{}, fmt.Errorf("%w: run %s has no %s", runctl.ErrNotFound, prior.ID, workspace.InputFile)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("orchestrator: read input of %s: %w", prior.ID, err)
	}

	family := first.Family
	if !family.Valid() {
		if family, err = runctl.Route(first.Model); err != nil {
			return Outcome{}, err
		}
	}
	backend, err := o.backend(family)
	if err != nil {
		return Outcome{}, err
	}
	binary, args := backend.SpawnArgs(cli.Invocation{Model: first.Model, Options: first.Options})

	start := o.now()
	runID := workspace.NewRunID(start, o.pid)
	rd, err := o.layout.CreateRun(runID)
	if err != nil {
		return Outcome{}, err
	}
	if err := rd.WriteNew(rd.Input(), data); err != nil {
		return Outcome{}, err
	}

	rec := o.inherit(o.startRecord(runID, rd, start), first)
	rec.Family = family
	rec.Skills = first.Skills
	rec.Retries = prior.ID

	return o.run(ctx, turn{
		record: rec,
		dir:    rd,
		parser: backend,
		binary: binary,
		args:   args,
		stdin:  string(data),
	})
}

// prepareContinuation validates a continuation request and returns the
// prior run with its latest terminal record.
func (o *Orchestrator) prepareContinuation(ctx context.Context, ref, text string) (*index.Run, index.Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, index.Record{}, fmt.Errorf("%w: prompt is required", runctl.ErrUsage)
	}
	prior, err := o.resolve(ctx, ref)
	if err != nil {
		return nil, index.Record{}, err
	}
	if !prior.HasFinal {
		return nil, index.Record{}, fmt.Errorf("%w: run %s has not finished", runctl.ErrNotFound, prior.ID)
	}
	return prior, prior.Final, nil
}

// resume runs the next turn of a threaded run in place.
func (o *Orchestrator) resume(ctx context.Context, prior *index.Run, base index.Record, text string) (Outcome, error) {
	handle := prior.Handle()
	if handle == "" {
		return Outcome{}, fmt.Errorf("%w: %s", runctl.ErrNoHandle, prior.ID)
	}
	backend, err := o.backend(base.Family)
	if err != nil {
		return Outcome{}, err
	}
	resumer, ok := backend.(cli.Resumer)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s executor cannot resume", runctl.ErrUnsupportedOperation, base.Family)
	}
	binary, args, err := resumer.ResumeArgs(cli.Invocation{Model: base.Model, Handle: handle, Options: base.Options})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %w", runctl.ErrNoHandle, prior.ID, err)
	}

	rd := o.runDir(base)
	next := max(prior.Turns(), 1) + 1
	start := o.now()
	composed := o.composeFollowUp(prior.ID, rd, base, text)
	if err := rd.WriteNew(rd.TurnInput(next), []byte(composed)); err != nil {
		return Outcome{}, err
	}

	rec := o.inherit(o.startRecord(prior.ID, rd, start), base)
	rec.Skills = base.Skills
	rec.Turn = next
	rec.Handle = handle
	rec.SeedHandle = base.SeedHandle
	rec.Continues = prior.ID
	rec.Mode = runctl.ModeInPlace

	return o.run(ctx, turn{
		record: rec,
		dir:    rd,
		parser: backend,
		binary: binary,
		args:   args,
		stdin:  composed,
	})
}

// fork starts a new run seeded with the prior run's handle.
func (o *Orchestrator) fork(ctx context.Context, prior *index.Run, base index.Record, text string) (Outcome, error) {
	if !base.Family.CanFork() {
		return Outcome{}, fmt.Errorf("%w: %s runs cannot be forked; continue resumes them in place",
			runctl.ErrUnsupportedOperation, base.Family)
	}
	handle := prior.Handle()
	if handle == "" {
		return Outcome{}, fmt.Errorf("%w: %s", runctl.ErrNoHandle, prior.ID)
	}
	backend, err := o.backend(base.Family)
	if err != nil {
		return Outcome{}, err
	}
	forker, ok := backend.(cli.Forker)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s executor cannot fork", runctl.ErrUnsupportedOperation, base.Family)
	}
	binary, args, err := forker.ForkArgs(cli.Invocation{Model: base.Model, Handle: handle, Options: base.Options})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %s: %w", runctl.ErrNoHandle, prior.ID, err)
	}

	start := o.now()
	runID := workspace.NewRunID(start, o.pid)
	rd, err := o.layout.CreateRun(runID)
	if err != nil {
		return Outcome{}, err
	}
	composed := o.composeFollowUp(runID, rd, base, text)
	if err := rd.WriteNew(rd.Input(), []byte(composed)); err != nil {
		return Outcome{}, err
	}

	rec := o.inherit(o.startRecord(runID, rd, start), base)
	rec.SeedHandle = handle
	rec.Continues = prior.ID
	rec.Mode = runctl.ModeFork

	return o.run(ctx, turn{
		record: rec,
		dir:    rd,
		parser: backend,
		binary: binary,
		args:   args,
		stdin:  composed,
	})
}

// composeFollowUp renders a continuation prompt: no fragments, the follow-up
// as the task, and the report directive of the target run directory.
func (o *Orchestrator) composeFollowUp(runID string, rd workspace.RunDir, base index.Record, text string) string {
	detail, err := prompt.ParseDetail(base.Detail)
	if err != nil {
		detail = prompt.DetailStandard
	}
	return prompt.Compose(prompt.Params{
		Prompt:     text,
		ReportPath: rd.Report(),
		Detail:     detail,
		Vars:       o.builtinVars(runID, rd, nil),
	})
}

// inherit copies the launch parameters of from onto rec.
func (o *Orchestrator) inherit(rec, from index.Record) index.Record {
	rec.Model = from.Model
	rec.Family = from.Family
	rec.Session = from.Session
	rec.Labels = from.Labels
	rec.Options = from.Options
	rec.Detail = from.Detail
	return rec
}

func (o *Orchestrator) resolve(ctx context.Context, ref string) (*index.Run, error) {
	snap, err := o.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: load index: %w", err)
	}
	return snap.Resolve(ref)
}

// runDir returns the directory recorded for rec, falling back to the
// layout when the record predates the run_dir field.
func (o *Orchestrator) runDir(rec index.Record) workspace.RunDir {
	if rec.RunDir != "" {
		return workspace.RunDir{Path: rec.RunDir}
	}
	return o.layout.Run(rec.RunID)
}
