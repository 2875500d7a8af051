package claude

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/internal/jsonutil"
)

// Invocation option keys specific to the Claude backend.
const (
	// OptionSystemPrompt sets the --system-prompt flag.
	OptionSystemPrompt = "claude.system_prompt"

	// OptionPermissionMode sets the --permission-mode flag.
	// Values should be PermissionMode constants.
	OptionPermissionMode = "claude.permission_mode"

	// OptionMaxTurns sets the --max-turns flag. Must be a positive integer.
	OptionMaxTurns = "claude.max_turns"
)

// PermissionMode controls Claude Code's permission behavior.
type PermissionMode string

const (
	// PermissionDefault uses Claude Code's default permission handling.
	// The --permission-mode flag is omitted when this mode is active.
	PermissionDefault PermissionMode = "default"

	// PermissionAcceptEdits auto-accepts file edit operations.
	PermissionAcceptEdits PermissionMode = "acceptEdits"

	// PermissionBypassAll bypasses all permission prompts.
	// Maps to CLI flag value "bypassPermissions".
	PermissionBypassAll PermissionMode = "bypassAll"

	// PermissionPlan restricts Claude to plan-only mode.
	PermissionPlan PermissionMode = "plan"
)

// validSessionID matches Claude session identifiers.
var validSessionID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,127}$`)

const defaultBinary = "claude"

// Backend is the Claude Code CLI backend. It is stateless and may be
// shared between runs.
type Backend struct {
	binary string
}

// Compile-time interface satisfaction checks.
var (
	_ cli.Backend = (*Backend)(nil)
	_ cli.Spawner = (*Backend)(nil)
	_ cli.Parser  = (*Backend)(nil)
	_ cli.Forker  = (*Backend)(nil)
)

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithBinary overrides the Claude CLI binary path.
// Empty values are ignored; the default is "claude".
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// New creates a Claude Code CLI backend with the given options.
func New(opts ...Option) *Backend {
	b := &Backend{binary: defaultBinary}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SpawnArgs builds the command line for a fresh session.
// Invalid option values are silently skipped per the Spawner contract.
func (b *Backend) SpawnArgs(inv cli.Invocation) (string, []string) {
	return b.binary, appendInvocationArgs(baseArgs(), inv)
}

// ForkArgs builds the command line for a new session seeded from
// inv.Handle. Unlike SpawnArgs, ForkArgs validates strictly because it has
// an error return.
func (b *Backend) ForkArgs(inv cli.Invocation) (string, []string, error) {
	if inv.Handle == "" {
		return "", nil, errors.New("claude: fork requires a session ID")
	}
	if !validSessionID.MatchString(inv.Handle) {
		return "", nil, fmt.Errorf("claude: invalid session ID %q", inv.Handle)
	}
	perm := PermissionMode(inv.Options[OptionPermissionMode])
	if perm != "" && perm != PermissionDefault {
		if _, err := mapPermission(perm); err != nil {
			return "", nil, err
		}
	}

	args := appendInvocationArgs(baseArgs(), inv)
	args = append(args, "--resume", inv.Handle, "--fork-session")
	return b.binary, args, nil
}

// baseArgs returns the common CLI flags for all command modes.
func baseArgs() []string {
	return []string{
		"-p",
		"--verbose",
		"--output-format", "stream-json",
	}
}

// appendInvocationArgs appends model, system-prompt, permission-mode, and
// max-turns flags. Invalid or null-byte-containing values are silently
// skipped.
func appendInvocationArgs(args []string, inv cli.Invocation) []string {
	if m := inv.Model; m != "" && !jsonutil.ContainsNull(m) && m[0] != '-' {
		args = append(args, "--model", m)
	}

	if sp := inv.Options[OptionSystemPrompt]; sp != "" && !jsonutil.ContainsNull(sp) {
		args = append(args, "--system-prompt", sp)
	}

	perm := PermissionMode(inv.Options[OptionPermissionMode])
	if perm != "" && perm != PermissionDefault {
		if mapped, err := mapPermission(perm); err == nil {
			args = append(args, "--permission-mode", mapped)
		}
	}

	if n, ok, err := runctl.ParsePositiveIntOption(inv.Options, OptionMaxTurns); ok && err == nil {
		args = append(args, "--max-turns", strconv.Itoa(n))
	}

	return args
}

// mapPermission maps a PermissionMode to its Claude CLI flag value.
// Returns an error for unknown modes; the error message includes valid values.
func mapPermission(perm PermissionMode) (string, error) {
	switch perm {
	case PermissionDefault:
		return "default", nil
	case PermissionAcceptEdits:
		return "acceptEdits", nil
	case PermissionBypassAll:
		return "bypassPermissions", nil
	case PermissionPlan:
		return "plan", nil
	default:
		return "", fmt.Errorf("claude: unknown permission mode %q; valid: default, acceptEdits, bypassAll, plan", perm)
	}
}
