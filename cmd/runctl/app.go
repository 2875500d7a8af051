//go:build !windows

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/config"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/fragment"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/internal/logging"
	"github.com/dmora/runctl/orchestrator"
	"github.com/dmora/runctl/policy"
	"github.com/dmora/runctl/workspace"
)

// app holds the state shared by every command of one invocation.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Persistent flags.
	cwd        string
	configPath string
	verbose    bool
	logFormat  string

	// Set by setup.
	started   bool
	cfg       *config.Config
	layout    workspace.Layout
	logger    *zap.Logger
	index     index.Log
	fragments *fragment.Loader
	orc       *orchestrator.Orchestrator
}

// setup resolves the workspace root, loads the configuration, and wires
// the orchestrator.
func (a *app) setup(ctx context.Context) error {
	a.started = true

	layout, err := workspace.Resolve(a.cwd)
	if err != nil {
		return err
	}
	a.layout = layout

	path := a.configPath
	if path == "" {
		path = layout.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	a.cfg = cfg

	level, format := cfg.Log.Level, cfg.Log.Format
	if a.verbose {
		level = "debug"
	}
	if a.logFormat != "" {
		format = a.logFormat
	}
	if a.logger, err = logging.New(level, format, a.stderr); err != nil {
		return err
	}

	a.index, err = index.Open(ctx, cfg.Index.Backend, layout.IndexPath(), layout.SQLitePath())
	if err != nil {
		return err
	}

	grace, _ := cfg.GetGracePeriod()
	engine := cli.NewEngine(
		cli.WithLogger(a.logger),
		cli.WithScannerBuffer(cfg.ScannerBuffer),
		cli.WithGracePeriod(grace))

	a.fragments = fragment.NewLoader(cfg.SkillsPaths(layout.Root)...)
	opts := []orchestrator.Option{
		orchestrator.WithEngine(engine),
		orchestrator.WithBinaries(orchestrator.Binaries{
			Codex:    cfg.Binaries.Codex,
			Claude:   cfg.Binaries.Claude,
			OpenCode: cfg.Binaries.OpenCode,
		}),
		orchestrator.WithFragments(a.fragments),
		orchestrator.WithLogger(a.logger),
	}
	if p := cfg.PolicyPath(layout.Root); p != "" {
		pol, err := policy.LoadRegoPolicy(ctx, p)
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithPolicy(pol))
	} else if len(cfg.DefaultSkills) > 0 {
		opts = append(opts, orchestrator.WithPolicy(policy.Static(cfg.DefaultSkills)))
	}
	a.orc = orchestrator.New(layout, a.index, opts...)

	a.logger.Debug("workspace ready",
		zap.String("root", layout.Root),
		zap.String("config", path),
		zap.String("index", cfg.Index.Backend))
	return nil
}

func (a *app) close() {
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			a.logger.Warn("close index", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

// snapshot loads the index and warns about entries it had to skip.
func (a *app) snapshot(ctx context.Context) (*index.Snapshot, error) {
	snap, err := a.orc.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap.Malformed > 0 {
		fmt.Fprintf(a.stderr, "runctl: warning: skipped %d malformed index entries\n", snap.Malformed)
	}
	return snap, nil
}

func (a *app) resolve(ctx context.Context, ref string) (*index.Snapshot, *index.Run, error) {
	snap, err := a.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	run, err := snap.Resolve(ref)
	return snap, run, err
}

// Process exit codes.
const (
	exitOK       = 0
	exitRun      = 1
	exitUsage    = 2
	exitRejected = 3
	exitInternal = 4
)

// errIncomplete marks runs that executed but did not complete.
var errIncomplete = errors.New("did not complete")

// statusError reports a run that executed but did not complete.
type statusError struct {
	runID  string
	status runctl.Status
	err    error
}

func (e *statusError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("run %s %s: %v", e.runID, e.status, e.err)
	}
	return fmt.Sprintf("run %s %s", e.runID, e.status)
}

func (e *statusError) Unwrap() error { return e.err }

func (e *statusError) Is(target error) bool { return target == errIncomplete }

// exitCode maps err to the process exit code. Errors raised before setup
// ran come from argument parsing.
func exitCode(err error, started bool) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errIncomplete):
		return exitRun
	case errors.Is(err, runctl.ErrUsage):
		return exitUsage
	case errors.Is(err, runctl.ErrUnrecognizedModel),
		errors.Is(err, runctl.ErrNotFound),
		errors.Is(err, runctl.ErrUnsupportedOperation),
		errors.Is(err, runctl.ErrNoHandle):
		return exitRejected
	case !started:
		return exitUsage
	default:
		return exitInternal
	}
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	cmd, err := root.ExecuteContextC(ctx)
	a.close()

	code := exitCode(err, a.started)
	if err != nil {
		fmt.Fprintf(stderr, "runctl: %v\n", err)
		if code == exitUsage && cmd != nil {
			fmt.Fprint(stderr, cmd.UsageString())
		}
	}
	return code
}

// usageArgs wraps a cobra argument validator so its errors are usage errors.
func usageArgs(v cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := v(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", runctl.ErrUsage, err)
		}
		return nil
	}
}
