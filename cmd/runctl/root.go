//go:build !windows

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmora/runctl"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "runctl",
		Short: "Launch and track coding-agent runs",
		Long: `runctl launches coding-agent executors (codex, claude, opencode) as
durable runs. Each run gets a directory under runs/agent-runs/ holding its
prompt, captured output and report, and an entry in the append-only index
at index/runs.jsonl. Runs can be listed, inspected, continued, forked and
retried by id or by @latest / @latest-failed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", runctl.ErrUsage, err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cwd, "cwd", "", "workspace root (default: current directory)")
	pf.StringVar(&a.configPath, "config", "", "config file (default: <root>/.runctl.yaml)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: console or json")

	root.AddCommand(
		newRunCmd(a),
		newContinueCmd(a),
		newForkCmd(a),
		newRetryCmd(a),
		newBatchCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newStatsCmd(a),
		newTailCmd(a),
		newReportCmd(a),
		newSkillsCmd(a),
		newServeCmd(a),
	)
	return root
}
