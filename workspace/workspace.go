// Package workspace resolves the working session root and owns its on-disk
// layout:
//
//	<root>/runs/agent-runs/<run_id>/input.md
//	<root>/runs/agent-runs/<run_id>/output.jsonl
//	<root>/runs/agent-runs/<run_id>/report.md
//	<root>/index/runs.jsonl
//
// Every path is derived from the resolved root, never from the process
// working directory.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmora/runctl"
)

// Artifact file names inside a run directory.
const (
	InputFile  = "input.md"
	OutputFile = "output.jsonl"
	ReportFile = "report.md"
	StderrFile = "stderr.log"
)

// ConfigFile is the per-root configuration file name.
const ConfigFile = ".runctl.yaml"

// Layout is the resolved on-disk layout of one working session root.
type Layout struct {
	Root string
}

// Resolve returns the layout rooted at dir. An empty dir uses the process
// working directory. The root is made absolute, cleaned, and must be an
// existing directory.
func Resolve(dir string) (Layout, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Layout{}, fmt.Errorf("workspace: working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Layout{}, fmt.Errorf("%w: workspace root %s: %w", runctl.ErrUsage, abs, err)
	}
	if !info.IsDir() {
		return Layout{}, fmt.Errorf("%w: workspace root %s is not a directory", runctl.ErrUsage, abs)
	}
	return Layout{Root: abs}, nil
}

// RunsDir is the parent of every run directory.
func (l Layout) RunsDir() string { return filepath.Join(l.Root, "runs", "agent-runs") }

// IndexDir holds the run index.
func (l Layout) IndexDir() string { return filepath.Join(l.Root, "index") }

// IndexPath is the JSONL run index.
func (l Layout) IndexPath() string { return filepath.Join(l.IndexDir(), "runs.jsonl") }

// SQLitePath is the embedded-store run index.
func (l Layout) SQLitePath() string { return filepath.Join(l.IndexDir(), "runs.db") }

// ConfigPath is the default configuration file.
func (l Layout) ConfigPath() string { return filepath.Join(l.Root, ConfigFile) }

// Run returns the directory of runID without touching the filesystem.
func (l Layout) Run(runID string) RunDir {
	return RunDir{Path: filepath.Join(l.RunsDir(), runID)}
}

// CreateRun creates the directory for runID. It fails if the directory
// already exists, so two runs can never share one.
func (l Layout) CreateRun(runID string) (RunDir, error) {
	if !ValidRunID(runID) {
		return RunDir{}, fmt.Errorf("workspace: invalid run id %q", runID)
	}
	if err := os.MkdirAll(l.RunsDir(), 0o755); err != nil {
		return RunDir{}, fmt.Errorf("workspace: %w", err)
	}
	rd := l.Run(runID)
	if err := os.Mkdir(rd.Path, 0o755); err != nil {
		return RunDir{}, fmt.Errorf("workspace: create run dir: %w", err)
	}
	return rd, nil
}

// RunDir is one run's artifact directory.
type RunDir struct {
	Path string
}

func (d RunDir) Input() string  { return filepath.Join(d.Path, InputFile) }
func (d RunDir) Output() string { return filepath.Join(d.Path, OutputFile) }
func (d RunDir) Report() string { return filepath.Join(d.Path, ReportFile) }
func (d RunDir) Stderr() string { return filepath.Join(d.Path, StderrFile) }

// TurnInput is the prompt file of an in-place continuation turn. Turn 1 is
// the original input.md.
func (d RunDir) TurnInput(turn int) string {
	if turn <= 1 {
		return d.Input()
	}
	return filepath.Join(d.Path, "input-"+strconv.Itoa(turn)+".md")
}

// WriteNew creates path with data, failing if it already exists.
func (d RunDir) WriteNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("workspace: write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// OpenAppend opens path for appending, creating it if needed.
func (d RunDir) OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}
	return f, nil
}

// Artifact describes one file of a run directory.
type Artifact struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
	Size   int64  `json:"size,omitempty"`
}

// Artifacts reports the standard files of the run directory.
func (d RunDir) Artifacts() []Artifact {
	names := []string{InputFile, OutputFile, ReportFile, StderrFile}
	out := make([]Artifact, 0, len(names))
	for _, name := range names {
		a := Artifact{Name: name, Path: filepath.Join(d.Path, name)}
		if info, err := os.Stat(a.Path); err == nil {
			a.Exists = true
			a.Size = info.Size()
		} else if !errors.Is(err, fs.ErrNotExist) {
			a.Exists = true
		}
		out = append(out, a)
	}
	return out
}

// runIDLayout is the UTC timestamp prefix of a run id. Fixed width, so
// lexical order is start order.
const runIDLayout = "20060102T150405.000000000Z"

// NewRunID returns "<utc timestamp>-<pid>-<8 hex>".
func NewRunID(t time.Time, pid int) string {
	return t.UTC().Format(runIDLayout) + "-" + strconv.Itoa(pid) + "-" + uuid.NewString()[:8]
}

// ValidRunID reports whether id is safe to use as a directory name.
func ValidRunID(id string) bool {
	if id == "" || id == "." || id == ".." || len(id) > 128 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// RunTime parses the start time encoded in a run id.
func RunTime(id string) (time.Time, bool) {
	if len(id) < len(runIDLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(runIDLayout, id[:len(runIDLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
