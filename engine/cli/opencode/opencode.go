package opencode

import (
	"errors"
	"fmt"
	"regexp"
	"sync/atomic"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/internal/jsonutil"
)

// Invocation option keys specific to the OpenCode backend.
// Namespaced with "opencode." to prevent collision across backends.
const (
	// OptionVariant sets the --variant flag. Values should be Variant constants.
	OptionVariant = "opencode.variant"

	// OptionAgent sets the --agent flag.
	OptionAgent = "opencode.agent"

	// OptionTitle sets the --title flag for session naming.
	// Values exceeding maxTitleLen bytes are silently skipped.
	OptionTitle = "opencode.title"

	// OptionThinking adds --thinking when set to a true value (true, on, 1, yes).
	OptionThinking = "opencode.thinking"
)

// maxTitleLen is the maximum byte length for session titles.
const maxTitleLen = 512

// Variant controls provider-specific reasoning effort level via --variant.
type Variant string

const (
	VariantHigh    Variant = "high"
	VariantMax     Variant = "max"
	VariantMinimal Variant = "minimal"
	VariantLow     Variant = "low"
)

func validVariant(v Variant) bool {
	switch v {
	case VariantHigh, VariantMax, VariantMinimal, VariantLow:
		return true
	}
	return false
}

// validSessionID matches observed OpenCode session IDs: "ses_" + 20-40 alphanumeric chars.
var validSessionID = regexp.MustCompile(`^ses_[a-zA-Z0-9]{20,40}$`)

const defaultBinary = "opencode"

// Backend is the OpenCode CLI backend.
//
// One Backend instance per run. The session ID is auto-captured from the
// first step_start event via atomic write-once.
type Backend struct {
	binary    string
	sessionID atomic.Pointer[string] // write-once from first step_start
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

// WithBinary overrides the OpenCode CLI binary path.
// Empty values are ignored; the default is "opencode".
func WithBinary(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.binary = path
		}
	}
}

// New creates an OpenCode CLI backend with the given options.
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
	return b.binary, appendCommonArgs(baseArgs(), inv)
}

// ForkArgs builds the command line for a new session forked from
// inv.Handle. Returns an error if the handle is not a valid session ID.
func (b *Backend) ForkArgs(inv cli.Invocation) (string, []string, error) {
	if inv.Handle == "" {
		return "", nil, errors.New("opencode: fork requires a session ID")
	}
	if err := validateSessionID(inv.Handle); err != nil {
		return "", nil, err
	}
	args := appendCommonArgs(baseArgs(), inv)
	args = append(args, "--session", inv.Handle, "--fork")
	return b.binary, args, nil
}

// SessionID returns the auto-captured session ID, or empty string if not yet captured.
func (b *Backend) SessionID() string {
	if p := b.sessionID.Load(); p != nil {
		return *p
	}
	return ""
}

// baseArgs returns the common CLI flags for all command modes.
func baseArgs() []string {
	return []string{"run", "--format", "json"}
}

// appendCommonArgs appends model, agent, title, thinking, and variant flags.
func appendCommonArgs(args []string, inv cli.Invocation) []string {
	if m := inv.Model; m != "" && !jsonutil.ContainsNull(m) && m[0] != '-' {
		args = append(args, "--model", m)
	}
	opts := inv.Options
	if a := opts[OptionAgent]; a != "" && !jsonutil.ContainsNull(a) && a[0] != '-' {
		args = append(args, "--agent", a)
	}
	if t := opts[OptionTitle]; t != "" && !jsonutil.ContainsNull(t) && len(t) <= maxTitleLen {
		args = append(args, "--title", t)
	}
	if on, _, err := runctl.ParseBoolOption(opts, OptionThinking); on && err == nil {
		args = append(args, "--thinking")
	}
	if v := Variant(opts[OptionVariant]); validVariant(v) {
		args = append(args, "--variant", string(v))
	}
	return args
}

// validateSessionID reports whether id matches the expected OpenCode session ID format.
func validateSessionID(id string) error {
	if !validSessionID.MatchString(id) {
		return fmt.Errorf("opencode: invalid session ID format: %q", id)
	}
	return nil
}
