//go:build !windows

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/index"
	"github.com/dmora/runctl/internal/httpapi"
	"github.com/dmora/runctl/workspace"
)

func newListCmd(a *app) *cobra.Command {
	var (
		failed  bool
		session string
		family  string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs in start order",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := index.Filter{Session: session, Failed: failed}
			if family != "" {
				fam, err := runctl.ParseFamily(family)
				if err != nil {
					return err
				}
				f.Family = fam
			}
			snap, err := a.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			sums := index.Summaries(snap.List(f))
			if asJSON {
				return writeJSON(a.stdout, sums)
			}
			if len(sums) == 0 {
				fmt.Fprintln(a.stdout, "no runs")
				return nil
			}
			rows := make([][]string, 0, len(sums))
			for _, s := range sums {
				rows = append(rows, []string{
					s.RunID,
					statusLabel(s),
					s.Model,
					string(s.Family),
					orDash(s.Session),
					strconv.Itoa(s.Turns),
					formatTime(s.StartedAt),
					formatDuration(s.DurationMS),
				})
			}
			renderTable(a.stdout, []string{"RUN ID", "STATUS", "MODEL", "FAMILY", "SESSION", "TURNS", "STARTED", "DURATION"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "only failed or errored runs")
	cmd.Flags().StringVar(&session, "session", "", "only runs of this session")
	cmd.Flags().StringVar(&family, "family", "", "only runs of this backend family")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show RUN_REF",
		Short: "Show a run and its records",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, run, err := a.resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s := run.Summary()
			artifacts := workspace.RunDir{Path: s.RunDir}.Artifacts()
			report := snap.ReportPath(run)
			if asJSON {
				return writeJSON(a.stdout, httpapi.RunDetail{Summary: s, Records: run.Records, Artifacts: artifacts, ReportPath: report})
			}

			w := a.stdout
			fmt.Fprintf(w, "run:      %s\n", s.RunID)
			fmt.Fprintf(w, "status:   %s\n", statusLabel(s))
			fmt.Fprintf(w, "model:    %s (%s)\n", s.Model, s.Family)
			fmt.Fprintf(w, "session:  %s\n", orDash(s.Session))
			fmt.Fprintf(w, "skills:   %s\n", orDash(strings.Join(s.Skills, ", ")))
			fmt.Fprintf(w, "handle:   %s\n", orDash(s.Handle))
			fmt.Fprintf(w, "turns:    %d\n", s.Turns)
			if s.Continues != "" {
				fmt.Fprintf(w, "continues: %s (%s)\n", s.Continues, s.Mode)
			}
			if s.Retries != "" {
				fmt.Fprintf(w, "retries:  %s\n", s.Retries)
			}
			fmt.Fprintf(w, "started:  %s\n", formatTime(s.StartedAt))
			fmt.Fprintf(w, "duration: %s\n", formatDuration(s.DurationMS))
			if s.ExitCode != nil {
				fmt.Fprintf(w, "exit:     %d\n", *s.ExitCode)
			}
			if s.Error != "" {
				fmt.Fprintf(w, "error:    %s\n", s.Error)
			}
			fmt.Fprintf(w, "dir:      %s\n", s.RunDir)
			if report != (workspace.RunDir{Path: s.RunDir}).Report() {
				fmt.Fprintf(w, "report:   %s (retry of %s)\n", report, s.Retries)
			}
			for _, art := range artifacts {
				state := "missing"
				if art.Exists {
					state = fmt.Sprintf("%d bytes", art.Size)
				}
				fmt.Fprintf(w, "  %-13s %s\n", art.Name, state)
			}
			if s.Answer != "" {
				fmt.Fprintf(w, "\n%s\n", s.Answer)
			}

			rows := make([][]string, 0, len(run.Records))
			for _, rec := range run.Records {
				rows = append(rows, []string{
					rec.Timestamp.Local().Format("15:04:05.000"),
					string(rec.Status),
					strconv.Itoa(rec.Turn),
					orDash(string(rec.Mode)),
					orDash(rec.Handle),
				})
			}
			fmt.Fprintln(w)
			renderTable(w, []string{"TIME", "STATUS", "TURN", "MODE", "HANDLE"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		session string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate runs per session",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := a.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			stats := snap.Stats(session)
			if asJSON {
				return writeJSON(a.stdout, stats)
			}
			if len(stats) == 0 {
				fmt.Fprintln(a.stdout, "no runs")
				return nil
			}
			rows := make([][]string, 0, len(stats))
			for _, st := range stats {
				rows = append(rows, []string{
					orDash(st.Session),
					strconv.Itoa(st.Runs),
					strconv.Itoa(st.ByStatus[runctl.StatusCompleted]),
					strconv.Itoa(st.ByStatus[runctl.StatusFailed]),
					strconv.Itoa(st.ByStatus[runctl.StatusError]),
					strconv.Itoa(st.ByStatus[runctl.StatusRunning]),
					strconv.Itoa(st.Dangling),
					strconv.Itoa(st.Stale),
					formatDuration(st.MeanDuration.Milliseconds()),
				})
			}
			renderTable(a.stdout, []string{"SESSION", "RUNS", "COMPLETED", "FAILED", "ERROR", "RUNNING", "DANGLING", "STALE", "MEAN"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "only this session")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newSkillsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "skills",
		Short: "List resolvable skill fragments",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			frags, err := a.fragments.List()
			if err != nil {
				return err
			}
			if len(frags) == 0 {
				fmt.Fprintf(a.stdout, "no skills in %s\n", strings.Join(a.fragments.Dirs(), ", "))
				return nil
			}
			rows := make([][]string, 0, len(frags))
			for _, f := range frags {
				rows = append(rows, []string{f.ID, orDash(f.Meta.Description), f.Path})
			}
			renderTable(a.stdout, []string{"ID", "DESCRIPTION", "PATH"}, rows)
			return nil
		},
	}
}
