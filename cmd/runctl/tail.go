//go:build !windows

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/filter"
	"github.com/dmora/runctl/internal/follow"
	"github.com/dmora/runctl/workspace"
)

func newTailCmd(a *app) *cobra.Command {
	var (
		followFlag bool
		types      string
		all        bool
	)
	cmd := &cobra.Command{
		Use:   "tail RUN_REF",
		Short: "Print the parsed events of a run's output",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var selected []runctl.EventType
			if types != "" {
				var err error
				if selected, err = filter.ParseTypes(types); err != nil {
					return err
				}
			}
			ctx := cmd.Context()
			_, run, err := a.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			sum := run.Summary()
			path := workspace.RunDir{Path: sum.RunDir}.Output()

			var r io.ReadCloser
			if followFlag {
				id := run.ID
				done := func() bool {
					snap, err := a.orc.Snapshot(ctx)
					if err != nil {
						return true
					}
					cur, ok := snap.Show(id)
					return !ok || !cur.Pending || cur.Stale
				}
				r, err = follow.Open(ctx, path, done)
			} else {
				r, err = os.Open(path)
			}
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: run %s has no captured output", runctl.ErrNotFound, run.ID)
			}
			if err != nil {
				return err
			}
			defer r.Close()

			seq, err := a.orc.Events(r, sum.Family)
			if err != nil {
				return err
			}
			switch {
			case len(selected) > 0:
				seq = filter.Filter(seq, selected...)
			case !all:
				seq = filter.Visible(seq)
			}
			for ev, err := range seq {
				var pe *cli.ParseError
				if errors.As(err, &pe) {
					fmt.Fprintf(a.stderr, "runctl: skipped line: %v\n", pe.Err)
					continue
				}
				if err != nil {
					return err
				}
				printEvent(a.stdout, ev)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&followFlag, "follow", "f", false, "keep reading until the run finishes")
	cmd.Flags().StringVar(&types, "type", "", "comma-separated event types to print (init,text,thinking,tool_result,error,system,result)")
	cmd.Flags().BoolVar(&all, "all", false, "include system events")
	return cmd
}

// printEvent writes ev as one line: the type, then its content.
func printEvent(w io.Writer, ev runctl.Event) {
	content := ev.Content
	switch {
	case ev.Tool != nil:
		content = ev.Tool.Name
	case ev.Type == runctl.EventInit && ev.Handle != "":
		content = ev.Handle
	case ev.Type == runctl.EventError && ev.ErrorCode != "":
		content = ev.ErrorCode + ": " + content
	}
	if ev.Usage != nil {
		content = strings.TrimSpace(fmt.Sprintf("%s [in=%d out=%d]", content, ev.Usage.InputTokens, ev.Usage.OutputTokens))
	}
	fmt.Fprintf(w, "%-11s %s\n", ev.Type, strings.ReplaceAll(content, "\n", "\n            "))
}
