//go:build !windows

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/policy"
	"github.com/dmora/runctl/prompt"
	"github.com/dmora/runctl/workspace"
)

// LaunchRequest describes a fresh run.
type LaunchRequest struct {
	Model string `yaml:"model"`

	// Skills are fragment ids, rendered in order. Duplicates are dropped.
	Skills []string `yaml:"skills"`

	Prompt     string            `yaml:"prompt"`
	References []string          `yaml:"refs"`
	Vars       map[string]string `yaml:"vars"`
	Labels     map[string]string `yaml:"labels"`
	Session    string            `yaml:"session"`
	Detail     prompt.Detail     `yaml:"detail"`

	// Options are backend options ("codex.sandbox", ...).
	Options map[string]string `yaml:"options"`
}

// Launch starts a new run and blocks until its executor exits.
//
// A non-nil error means the run was rejected (usage, unrecognized model,
// missing fragment) or the index could not be written. A run that
// executed but did not complete is reported through Outcome.Err with a
// nil error.
func (o *Orchestrator) Launch(ctx context.Context, req LaunchRequest) (Outcome, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Outcome{}, fmt.Errorf("%w: model is required", runctl.ErrUsage)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return Outcome{}, fmt.Errorf("%w: prompt is required", runctl.ErrUsage)
	}
	detail, err := prompt.ParseDetail(string(req.Detail))
	if err != nil {
		return Outcome{}, err
	}
	family, err := runctl.Route(req.Model)
	if err != nil {
		return Outcome{}, err
	}
	skills, err := o.skills(ctx, req, family)
	if err != nil {
		return Outcome{}, err
	}
	frags, err := o.fragments.LoadAll(skills)
	if err != nil {
		return Outcome{}, err
	}
	backend, err := o.backend(family)
	if err != nil {
		return Outcome{}, err
	}
	binary, args := backend.SpawnArgs(cli.Invocation{Model: req.Model, Options: req.Options})

	start := o.now()
	runID := workspace.NewRunID(start, o.pid)
	rd, err := o.layout.CreateRun(runID)
	if err != nil {
		return Outcome{}, err
	}
	text := prompt.Compose(prompt.Params{
		Fragments:  frags,
		Prompt:     req.Prompt,
		References: req.References,
		ReportPath: rd.Report(),
		Detail:     detail,
		Vars:       o.builtinVars(runID, rd, req.Vars),
	})
	if keys := prompt.Unresolved(text); len(keys) > 0 {
		o.logger.Warn("unbound template variables", zap.String("run_id", runID), zap.Strings("keys", keys))
	}
	if err := rd.WriteNew(rd.Input(), []byte(text)); err != nil {
		return Outcome{}, err
	}

	rec := o.startRecord(runID, rd, start)
	rec.Model = req.Model
	rec.Family = family
	rec.Skills = skills
	rec.Session = req.Session
	rec.Labels = req.Labels
	rec.Options = req.Options
	rec.Detail = string(detail)

	return o.run(ctx, turn{
		record: rec,
		dir:    rd,
		parser: backend,
		binary: binary,
		args:   args,
		stdin:  text,
	})
}

// LaunchAll launches reqs concurrently, at most limit at a time (limit <= 0
// means unbounded). Runs are independent: one rejected or failed run does
// not stop the others. Outcomes are returned in request order; the error
// joins every rejection, annotated with the request position.
func (o *Orchestrator) LaunchAll(ctx context.Context, reqs []LaunchRequest, limit int) ([]Outcome, error) {
	outcomes := make([]Outcome, len(reqs))
	errs := make([]error, len(reqs))

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, req := range reqs {
		g.Go(func() error {
			outcomes[i], errs[i] = o.Launch(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	var joined []error
	for i, err := range errs {
		if err != nil {
			joined = append(joined, fmt.Errorf("run %d (%s): %w", i, reqs[i].Model, err))
		}
	}
	return outcomes, errors.Join(joined...)
}

// skills returns the fragment set for req: the caller's list, or the
// policy's default when the caller named none.
func (o *Orchestrator) skills(ctx context.Context, req LaunchRequest, family runctl.Family) ([]string, error) {
	ids := req.Skills
	if len(ids) == 0 && o.policy != nil {
		var err error
		ids, err = o.policy.DefaultSkills(ctx, policy.Input{
			Model:   req.Model,
			Family:  string(family),
			Session: req.Session,
			Labels:  req.Labels,
		})
		if err != nil {
			return nil, fmt.Errorf("orchestrator: skill policy: %w", err)
		}
	}
	return dedupe(ids), nil
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
