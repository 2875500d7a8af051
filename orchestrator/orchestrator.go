//go:build !windows

// Package orchestrator drives the run lifecycle: it composes the prompt,
// routes the model to a backend family, allocates the run directory,
// records the run in the index, executes the subprocess, and finalizes the
// record. Continue, Fork and Retry re-enter the same lifecycle from a prior
// run.
//
// Every run the orchestrator starts gets exactly one running record
// followed by exactly one terminal record per turn, even when the
// executor cannot be launched. Validation failures return before any
// directory or record is created.
//
// # Platform Support
//
// The orchestrator runs executors through [cli.Engine] and, like it, is not
// available on Windows. The index, workspace and prompt packages build on
// every platform.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/engine/cli/claude"
	"github.com/dmora/runctl/engine/cli/codex"
	"github.com/dmora/runctl/engine/cli/opencode"
	"github.com/dmora/runctl/fragment"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/policy"
	"github.com/dmora/runctl/workspace"
)

// BackendFactory returns a fresh backend. Backends capture per-run parser
// state, so every run gets its own instance.
type BackendFactory func() cli.Backend

// Binaries overrides executor binary paths. Empty fields keep the backend
// default.
type Binaries struct {
	Codex    string
	Claude   string
	OpenCode string
}

// DefaultBackends maps each family to its executor backend.
func DefaultBackends(b Binaries) map[runctl.Family]BackendFactory {
	return map[runctl.Family]BackendFactory{
		runctl.FamilyThreaded: func() cli.Backend {
			return codex.New(codex.WithBinary(b.Codex))
		},
		runctl.FamilySession: func() cli.Backend {
			return claude.New(claude.WithBinary(b.Claude))
		},
		runctl.FamilyLightweight: func() cli.Backend {
			return opencode.New(opencode.WithBinary(b.OpenCode))
		},
	}
}

// Orchestrator runs agent runs within one workspace. It is safe for
// concurrent use.
type Orchestrator struct {
	layout    workspace.Layout
	index     index.Log
	engine    *cli.Engine
	fragments *fragment.Loader
	policy    policy.SkillPolicy
	backends  map[runctl.Family]BackendFactory
	now       func() time.Time
	pid       int
	host      string
	logger    *zap.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEngine sets the subprocess engine.
func WithEngine(e *cli.Engine) Option {
	return func(o *Orchestrator) {
		if e != nil {
			o.engine = e
		}
	}
}

// WithFragments sets the fragment loader.
func WithFragments(l *fragment.Loader) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.fragments = l
		}
	}
}

// WithPolicy sets the policy consulted when a launch names no fragments.
func WithPolicy(p policy.SkillPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithBackend overrides the backend used for family.
func WithBackend(family runctl.Family, f BackendFactory) Option {
	return func(o *Orchestrator) {
		if f != nil {
			o.backends[family] = f
		}
	}
}

// WithBinaries points every default backend at the given binaries.
func WithBinaries(b Binaries) Option {
	return func(o *Orchestrator) {
		for family, f := range DefaultBackends(b) {
			o.backends[family] = f
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an orchestrator over layout that records runs in log.
// Fragments default to <root>/.runctl/skills.
func New(layout workspace.Layout, log index.Log, opts ...Option) *Orchestrator {
	host, _ := os.Hostname()
	o := &Orchestrator{
		layout:    layout,
		index:     log,
		engine:    cli.NewEngine(),
		fragments: fragment.NewLoader(filepath.Join(layout.Root, ".runctl", "skills")),
		backends:  DefaultBackends(Binaries{}),
		now:       time.Now,
		pid:       os.Getpid(),
		host:      host,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Layout returns the workspace layout.
func (o *Orchestrator) Layout() workspace.Layout { return o.layout }

// Snapshot loads the current state of the index.
func (o *Orchestrator) Snapshot(ctx context.Context) (*index.Snapshot, error) {
	return index.Load(ctx, o.index)
}

// Outcome is the result of one executed turn.
type Outcome struct {
	// Record is the terminal index record of the turn.
	Record index.Record

	// Err classifies a turn that did not complete: it matches
	// runctl.ErrSubprocessFailure for failed runs, and ErrUnavailable or
	// ErrProtocol for errored runs. Nil when the turn completed.
	Err error
}

// RunID returns the id of the run.
func (o Outcome) RunID() string { return o.Record.RunID }

// Status returns the terminal status of the turn.
func (o Outcome) Status() runctl.Status { return o.Record.Status }

func (o *Orchestrator) backend(family runctl.Family) (cli.Backend, error) {
	f, ok := o.backends[family]
	if !ok {
		return nil, fmt.Errorf("%w: no executor for family %s", runctl.ErrUnavailable, family)
	}
	return f(), nil
}

// builtinVars returns the template variables every prompt can use, with
// caller bindings taking precedence.
func (o *Orchestrator) builtinVars(runID string, rd workspace.RunDir, caller map[string]string) map[string]string {
	vars := map[string]string{
		"RUN_ID":      runID,
		"RUN_DIR":     rd.Path,
		"REPORT_PATH": rd.Report(),
		"ROOT":        o.layout.Root,
	}
	for k, v := range caller {
		vars[k] = v
	}
	return vars
}
