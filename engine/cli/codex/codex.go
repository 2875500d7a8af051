package codex

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/internal/jsonutil"
)

// Invocation option keys specific to the Codex backend.
// Namespaced with "codex." to prevent collision across backends.
const (
	// OptionSandbox sets the --sandbox flag for codex exec.
	// Values should be Sandbox constants. Not available on exec resume.
	OptionSandbox = "codex.sandbox"

	// OptionEphemeral enables --ephemeral mode (no session persistence).
	// Any non-empty value adds the flag.
	OptionEphemeral = "codex.ephemeral"

	// OptionProfile sets the -p <profile> flag. Not available on exec resume.
	OptionProfile = "codex.profile"

	// OptionOutputSchema sets the --output-schema <file> flag.
	// Not available on exec resume.
	OptionOutputSchema = "codex.output_schema"

	// OptionSkipGitCheck adds --skip-git-repo-check.
	// Any non-empty value adds the flag.
	OptionSkipGitCheck = "codex.skip_git_check"

	// OptionFullAuto adds --full-auto. Any non-empty value adds the flag.
	OptionFullAuto = "codex.full_auto"

	// OptionEffort sets model_reasoning_effort: low, medium, high, xhigh.
	OptionEffort = "codex.effort"
)

// Sandbox controls the sandbox policy via --sandbox.
type Sandbox string

const (
	SandboxReadOnly       Sandbox = "read-only"
	SandboxWorkspaceWrite Sandbox = "workspace-write"
	SandboxFullAccess     Sandbox = "danger-full-access"
)

// validSandbox reports whether s is a recognized sandbox value.
func validSandbox(s Sandbox) bool {
	switch s {
	case SandboxReadOnly, SandboxWorkspaceWrite, SandboxFullAccess:
		return true
	}
	return false
}

var validEffort = map[string]bool{"low": true, "medium": true, "high": true, "xhigh": true}

// CLI subcommand and flag constants (goconst).
const (
	subcmdExec   = "exec"
	subcmdResume = "resume"
	flagJSON     = "--json"
	stdinPrompt  = "-"
)

const defaultBinary = "codex"

// noThreadSentinel is stored in threadID when the first thread.started has
// an empty ID. It distinguishes "init emitted, no handle" from "nothing
// happened yet" and prevents duplicate init events.
var noThreadSentinel = "\x00"

// Backend is the Codex CLI backend.
//
// One Backend instance per run. The thread ID is auto-captured from the
// first thread.started event via atomic write-once.
type Backend struct {
	binary   string
	threadID atomic.Pointer[string] // write-once from thread.started
}

// Compile-time interface satisfaction checks.
var (
	_ cli.Backend = (*Backend)(nil)
	_ cli.Spawner = (*Backend)(nil)
	_ cli.Parser  = (*Backend)(nil)
	_ cli.Resumer = (*Backend)(nil)
)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the Codex CLI binary path.
// Empty values are ignored; the default is "codex".
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// New creates a Codex CLI backend with the given options.
func New(opts ...Option) *Backend {
	b := &Backend{binary: defaultBinary}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SpawnArgs builds the command line for a fresh thread.
// Invalid option values are silently skipped per the Spawner contract.
func (b *Backend) SpawnArgs(inv cli.Invocation) (string, []string) {
	args := []string{subcmdExec, flagJSON}
	args = appendExecOnlyArgs(args, inv.Options)
	args = appendCommonArgs(args, inv)
	// POSIX -- separator; "-" reads the prompt from stdin.
	args = append(args, "--", stdinPrompt)
	return b.binary, args
}

// ResumeArgs builds the command line to continue thread inv.Handle in place.
// Returns an error if the handle is empty or contains null bytes.
func (b *Backend) ResumeArgs(inv cli.Invocation) (string, []string, error) {
	if inv.Handle == "" {
		return "", nil, errors.New("codex: resume requires a thread ID")
	}
	if jsonutil.ContainsNull(inv.Handle) {
		return "", nil, errors.New("codex: thread ID contains null bytes")
	}
	args := []string{subcmdExec, subcmdResume, flagJSON}
	args = appendCommonArgs(args, inv)
	// POSIX -- separator prevents the thread ID from being parsed as a flag.
	args = append(args, "--", inv.Handle, stdinPrompt)
	return b.binary, args, nil
}

// ThreadID returns the auto-captured thread ID, or empty string if not yet
// captured.
func (b *Backend) ThreadID() string {
	if p := b.threadID.Load(); p != nil && *p != noThreadSentinel {
		return *p
	}
	return ""
}

// appendCommonArgs appends flags available on both exec and exec resume.
func appendCommonArgs(args []string, inv cli.Invocation) []string {
	if m := inv.Model; m != "" && safeValue(m) {
		args = append(args, "-m", m)
	}
	opts := inv.Options
	if opts[OptionEphemeral] != "" {
		args = append(args, "--ephemeral")
	}
	if opts[OptionSkipGitCheck] != "" {
		args = append(args, "--skip-git-repo-check")
	}
	if opts[OptionFullAuto] != "" {
		args = append(args, "--full-auto")
	}
	if e := opts[OptionEffort]; validEffort[e] {
		args = append(args, "-c", "model_reasoning_effort="+e)
	}
	return args
}

// appendExecOnlyArgs appends flags only available on a fresh exec.
func appendExecOnlyArgs(args []string, opts map[string]string) []string {
	if p := opts[OptionProfile]; p != "" && safeValue(p) {
		args = append(args, "-p", p)
	}
	if s := opts[OptionOutputSchema]; s != "" && safeValue(s) {
		args = append(args, "--output-schema", s)
	}
	if s := Sandbox(opts[OptionSandbox]); validSandbox(s) {
		args = append(args, "--sandbox", string(s))
	}
	return args
}

// safeValue rejects flag values that contain null bytes or could be parsed
// as flags.
func safeValue(v string) bool {
	return !jsonutil.ContainsNull(v) && !strings.HasPrefix(v, "-")
}
