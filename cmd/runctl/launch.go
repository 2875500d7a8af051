//go:build !windows

package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/orchestrator"
	"github.com/dmora/runctl/prompt"
)

type runFlags struct {
	model      string
	skills     []string
	prompt     string
	promptFile string
	refs       []string
	vars       []string
	labels     []string
	session    string
	detail     string
	opts       []string
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run -m MODEL (-p PROMPT | --prompt-file FILE) [flags]",
		Short: "Launch a new run",
		Example: `  runctl run -m gpt-5.3-codex -s review -p "Review {{TARGET}}" --var TARGET=pkg/
  runctl run -m claude-sonnet-4 --prompt-file task.md -r docs/design.md --session s1`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := f.request(a)
			if err != nil {
				return err
			}
			out, err := a.orc.Launch(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "model identifier (required)")
	fl.StringArrayVarP(&f.skills, "skill", "s", nil, "skill fragment id, repeatable, rendered in order")
	fl.StringVarP(&f.prompt, "prompt", "p", "", "task prompt")
	fl.StringVar(&f.promptFile, "prompt-file", "", "read the task prompt from FILE (- for stdin)")
	fl.StringArrayVarP(&f.refs, "ref", "r", nil, "reference file path, repeatable")
	fl.StringArrayVar(&f.vars, "var", nil, "template variable KEY=VALUE, repeatable")
	fl.StringArrayVar(&f.labels, "label", nil, "index label KEY=VALUE, repeatable")
	fl.StringVar(&f.session, "session", "", "session identifier")
	fl.StringVar(&f.detail, "detail", "", "report detail: brief, standard or detailed")
	fl.StringArrayVar(&f.opts, "opt", nil, "backend option KEY=VALUE, repeatable (e.g. codex.sandbox=read-only)")
	return cmd
}

// request validates the flags and builds the launch request.
func (f *runFlags) request(a *app) (orchestrator.LaunchRequest, error) {
	if f.model == "" {
		return orchestrator.LaunchRequest{}, fmt.Errorf("%w: --model is required", runctl.ErrUsage)
	}
	if f.prompt != "" && f.promptFile != "" {
		return orchestrator.LaunchRequest{}, fmt.Errorf("%w: --prompt and --prompt-file are mutually exclusive", runctl.ErrUsage)
	}
	text := f.prompt
	if f.promptFile != "" {
		var err error
		if text, err = readPromptFile(a.stdin, f.promptFile); err != nil {
			return orchestrator.LaunchRequest{}, err
		}
	}
	if text == "" {
		return orchestrator.LaunchRequest{}, fmt.Errorf("%w: --prompt or --prompt-file is required", runctl.ErrUsage)
	}

	vars, err := runctl.ParseKeyValues(f.vars)
	if err != nil {
		return orchestrator.LaunchRequest{}, fmt.Errorf("--var: %w", err)
	}
	labels, err := runctl.ParseKeyValues(f.labels)
	if err != nil {
		return orchestrator.LaunchRequest{}, fmt.Errorf("--label: %w", err)
	}
	opts, err := runctl.ParseKeyValues(f.opts)
	if err != nil {
		return orchestrator.LaunchRequest{}, fmt.Errorf("--opt: %w", err)
	}

	detail := f.detail
	if detail == "" {
		detail = a.cfg.Detail
	}
	return orchestrator.LaunchRequest{
		Model:      f.model,
		Skills:     f.skills,
		Prompt:     text,
		References: f.refs,
		Vars:       vars,
		Labels:     labels,
		Session:    f.session,
		Detail:     prompt.Detail(detail),
		Options:    opts,
	}, nil
}

func readPromptFile(stdin io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: prompt file %s does not exist", runctl.ErrUsage, path)
	}
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return string(data), nil
}

func newContinueCmd(a *app) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "continue RUN_REF -p PROMPT",
		Short: "Continue a run with a follow-up prompt",
		Long: `Continue a finished run. Threaded-resumable runs (codex) resume in place:
same run id, output appended, prompt written to input-<turn>.md. Other
families fork a new run seeded with the prior session.`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.orc.Continue(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
	cmd.Flags().StringVarP(&text, "prompt", "p", "", "follow-up prompt (required)")
	return cmd
}

func newForkCmd(a *app) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "fork RUN_REF -p PROMPT",
		Short: "Fork a new run from a session-based run",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.orc.Fork(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
	cmd.Flags().StringVarP(&text, "prompt", "p", "", "follow-up prompt (required)")
	return cmd
}

func newRetryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "retry RUN_REF",
		Short: "Re-run the exact input of a prior run as a new run",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := a.orc.Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.finish(out)
		},
	}
}

// finish prints the run id and answer of out and reports a run that did
// not complete.
func (a *app) finish(out orchestrator.Outcome) error {
	fmt.Fprintln(a.stdout, out.RunID())
	if out.Record.Answer != "" {
		fmt.Fprintln(a.stdout, out.Record.Answer)
	}
	if out.Status() != runctl.StatusCompleted {
		return &statusError{runID: out.RunID(), status: out.Status(), err: out.Err}
	}
	return nil
}

// batchFile is the document read by runctl batch.
type batchFile struct {
	Concurrency int                          `yaml:"concurrency"`
	Runs        []orchestrator.LaunchRequest `yaml:"runs"`
}

func newBatchCmd(a *app) *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "batch FILE",
		Short: "Launch the runs listed in a YAML file concurrently",
		Example: `  # runs.yaml
  concurrency: 2
  runs:
    - model: gpt-5.3-codex
      skills: [review]
      prompt: Review pkg/a
    - model: claude-sonnet-4
      prompt: Review pkg/b
      session: s1`,
		Args: usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			bf, err := readBatch(args[0])
			if err != nil {
				return err
			}
			limit := a.cfg.Batch.Concurrency
			if bf.Concurrency > 0 {
				limit = bf.Concurrency
			}
			if concurrency > 0 {
				limit = concurrency
			}
			for i := range bf.Runs {
				if bf.Runs[i].Detail == "" {
					bf.Runs[i].Detail = prompt.Detail(a.cfg.Detail)
				}
			}

			outcomes, launchErr := a.orc.LaunchAll(cmd.Context(), bf.Runs, limit)
			var incomplete int
			for i, out := range outcomes {
				if out.RunID() == "" {
					continue
				}
				fmt.Fprintf(a.stdout, "%s\t%s\n", out.RunID(), out.Status())
				if out.Status() != runctl.StatusCompleted {
					incomplete++
					if out.Err != nil {
						fmt.Fprintf(a.stderr, "runctl: run %d (%s): %v\n", i, out.RunID(), out.Err)
					}
				}
			}
			if launchErr != nil {
				return launchErr
			}
			if incomplete > 0 {
				return fmt.Errorf("%w: %d of %d runs", errIncomplete, incomplete, len(outcomes))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum concurrent runs (overrides file and config)")
	return cmd
}

func readBatch(path string) (batchFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return batchFile{}, fmt.Errorf("%w: batch file %s does not exist", runctl.ErrUsage, path)
	}
	if err != nil {
		return batchFile{}, fmt.Errorf("read batch file: %w", err)
	}
	var bf batchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return batchFile{}, fmt.Errorf("%w: batch file %s: %w", runctl.ErrUsage, path, err)
	}
	if len(bf.Runs) == 0 {
		return batchFile{}, fmt.Errorf("%w: batch file %s lists no runs", runctl.ErrUsage, path)
	}
	if bf.Concurrency < 0 {
		return batchFile{}, fmt.Errorf("%w: batch file %s: concurrency must not be negative", runctl.ErrUsage, path)
	}
	return bf, nil
}
