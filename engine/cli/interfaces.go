package cli

import (
	"errors"

	"github.com/dmora/runctl"
)

// ErrSkipLine is returned by [Parser.ParseLine] for lines that carry no
// event (blank lines, lifecycle no-ops). The line is still captured raw.
var ErrSkipLine = errors.New("cli: skip line")

// Invocation describes one executor launch.
type Invocation struct {
	// Model is the model identifier passed to the executor.
	Model string

	// Handle is the prior correlation handle. Used only by ResumeArgs and
	// ForkArgs.
	Handle string

	// Options are backend-specific key/value options. Keys are namespaced
	// by backend ("codex.sandbox", "claude.max_turns"). Unknown keys are
	// ignored.
	Options map[string]string
}

// Spawner builds the command line for a fresh run.
//
// SpawnArgs must not fail: invalid option values are silently skipped.
// The prompt is always delivered on stdin, never as an argument.
type Spawner interface {
	SpawnArgs(inv Invocation) (binary string, args []string)
}

// Parser converts one line of executor stdout into an event.
// Returns ErrSkipLine for lines that carry no event.
type Parser interface {
	ParseLine(line string) (runctl.Event, error)
}

// Backend is the minimum contract every executor backend implements.
type Backend interface {
	Spawner
	Parser
}

// Resumer is implemented by backends that can extend an existing thread in
// place. inv.Handle carries the thread identifier.
type Resumer interface {
	ResumeArgs(inv Invocation) (binary string, args []string, err error)
}

// Forker is implemented by backends that can start a new run seeded from a
// prior session. inv.Handle carries the prior session identifier.
type Forker interface {
	ForkArgs(inv Invocation) (binary string, args []string, err error)
}
