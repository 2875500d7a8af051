//go:build !windows

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/workspace"
)

const reportWrap = 100

func newReportCmd(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "report RUN_REF",
		Short: "Render the report a run wrote",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, run, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			path := snap.ReportPath(run)
			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: run %s wrote no %s", runctl.ErrNotFound, run.ID, workspace.ReportFile)
			}
			if err != nil {
				return err
			}
			if raw {
				_, err = a.stdout.Write(data)
				return err
			}

			renderer, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(reportWrap),
			)
			if err != nil {
				return fmt.Errorf("report renderer: %w", err)
			}
			out, err := renderer.Render(string(data))
			if err != nil {
				return fmt.Errorf("render %s: %w", path, err)
			}
			fmt.Fprint(a.stdout, out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the Markdown source")
	return cmd
}
