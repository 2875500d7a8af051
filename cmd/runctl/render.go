//go:build !windows

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/index"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)

	statusColors = map[runctl.Status]lipgloss.Color{
		runctl.StatusCompleted: lipgloss.Color("2"),
		runctl.StatusFailed:    lipgloss.Color("1"),
		runctl.StatusError:     lipgloss.Color("1"),
		runctl.StatusRunning:   lipgloss.Color("3"),
	}
)

// renderTable writes rows under headers as a bordered table.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.Render())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// statusLabel renders the status of a run, flagging dangling records.
func statusLabel(s index.Summary) string {
	label := string(s.Status)
	switch {
	case s.Stale:
		label += " (stale)"
	case s.Pending && s.Status != runctl.StatusRunning:
		label += " (continuing)"
	}
	if c, ok := statusColors[s.Status]; ok {
		return lipgloss.NewStyle().Foreground(c).Render(label)
	}
	return label
}

func formatDuration(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
