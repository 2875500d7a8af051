package index

import (
	"time"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/workspace"
)

// Summary is the flattened view of a run printed by list and show and
// served by the HTTP API.
type Summary struct {
	RunID      string        `json:"run_id"`
	Status     runctl.Status `json:"status"`
	Model      string        `json:"model"`
	Family     runctl.Family `json:"backend_family"`
	Session    string        `json:"session,omitempty"`
	Skills     []string      `json:"skills,omitempty"`
	Turns      int           `json:"turns"`
	Handle     string        `json:"correlation_handle,omitempty"`
	Continues  string        `json:"continues,omitempty"`
	Retries    string        `json:"retries,omitempty"`
	Mode       runctl.Mode   `json:"continuation_mode,omitempty"`
	Pending    bool          `json:"pending,omitempty"`
	Stale      bool          `json:"stale,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Answer     string        `json:"answer,omitempty"`
	RunDir     string        `json:"run_dir"`
}

// Summary flattens r. Lineage fields come from the first record; outcome
// fields from the latest terminal record.
func (r *Run) Summary() Summary {
	first, last := r.First(), r.Last()
	s := Summary{
		RunID:     r.ID,
		Status:    r.Status,
		Model:     first.Model,
		Family:    first.Family,
		Session:   first.Session,
		Skills:    first.Skills,
		Turns:     r.Turns(),
		Handle:    r.Handle(),
		Continues: first.Continues,
		Retries:   first.Retries,
		Mode:      first.Mode,
		Pending:   r.Pending,
		Stale:     r.Stale,
		StartedAt: first.StartedAt,
		UpdatedAt: last.Timestamp,
		RunDir:    first.RunDir,
	}
	if s.StartedAt.IsZero() {
		s.StartedAt, _ = workspace.RunTime(r.ID)
	}
	if r.HasFinal {
		s.DurationMS = r.Final.DurationMS
		s.ExitCode = r.Final.ExitCode
		s.Error = r.Final.Error
		s.Answer = r.Final.Answer
	}
	return s
}

// Summaries flattens runs.
func Summaries(runs []*Run) []Summary {
	out := make([]Summary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Summary())
	}
	return out
}
