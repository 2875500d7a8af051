// Package index is the append-only run index.
//
// Every run lifecycle transition appends one self-contained [Record]. No
// record is ever rewritten; readers reduce the log into a [Snapshot]. The
// storage medium is a [Log]: [FileLog] (JSON lines) or [SQLiteLog].
package index

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/internal/errfmt"
)

// ErrMalformed marks an index entry that could not be decoded. Scans yield
// it and continue.
var ErrMalformed = errors.New("index: malformed record")

// MaxAnswer caps the answer text stored on a record, in bytes.
const MaxAnswer = 4096

// Record is one line of the run index.
type Record struct {
	EventID   string        `json:"event_id"`
	RunID     string        `json:"run_id"`
	Timestamp time.Time     `json:"ts"`
	Status    runctl.Status `json:"status"`

	Model   string            `json:"model"`
	Family  runctl.Family     `json:"backend_family"`
	Skills  []string          `json:"skills,omitempty"`
	Session string            `json:"session,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Options map[string]string `json:"options,omitempty"`
	Root    string            `json:"root"`
	RunDir  string            `json:"run_dir"`
	Turn    int               `json:"turn"`
	Detail  string            `json:"detail,omitempty"`

	Handle     string      `json:"correlation_handle,omitempty"`
	SeedHandle string      `json:"seed_handle,omitempty"`
	Continues  string      `json:"continues,omitempty"`
	Retries    string      `json:"retries,omitempty"`
	Mode       runctl.Mode `json:"continuation_mode,omitempty"`

	EnginePID int    `json:"engine_pid"`
	Host      string `json:"host,omitempty"`

	StartedAt  time.Time     `json:"started_at"`
	DurationMS int64         `json:"duration_ms,omitempty"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	Error      string        `json:"error,omitempty"`
	Answer     string        `json:"answer,omitempty"`
	Usage      *runctl.Usage `json:"usage,omitempty"`
}

// Terminal reports whether r is a terminal record.
func (r Record) Terminal() bool { return r.Status.Terminal() }

// Duration is the recorded wall time of the turn.
func (r Record) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// Finalize derives the terminal record of r's turn. r is the running record;
// the copy gets a fresh event id, timestamp and duration.
func (r Record) Finalize(status runctl.Status, at time.Time) Record {
	out := r
	out.EventID = uuid.NewString()
	out.Timestamp = at
	out.Status = status
	out.DurationMS = at.Sub(r.StartedAt).Milliseconds()
	return out
}

// SetAnswer stores answer truncated to MaxAnswer bytes on a UTF-8 boundary.
func (r *Record) SetAnswer(answer string) {
	r.Answer = errfmt.TruncateTo(answer, MaxAnswer)
}
