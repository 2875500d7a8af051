package runctl

import "fmt"

// Family identifies the protocol class of a backend executor.
//
// The set is closed: every model identifier accepted by [Route] maps to
// exactly one of the constants below.
type Family string

const (
	// FamilyThreaded starts a thread and later resumes it by thread id.
	// Branching a new thread from an old one is not supported.
	FamilyThreaded Family = "threaded-resumable"

	// FamilySession returns a session id per invocation and can start a
	// fresh run seeded from a prior session. It has no resume-in-place
	// primitive: every invocation is a new process launch.
	FamilySession Family = "session-conversational"

	// FamilyLightweight is a provider-qualified executor treated as
	// FamilySession for continuation purposes.
	FamilyLightweight Family = "lightweight-session"
)

// Families returns every backend family in a stable order.
func Families() []Family {
	return []Family{FamilyThreaded, FamilySession, FamilyLightweight}
}

// Valid reports whether f is a known family.
func (f Family) Valid() bool {
	switch f {
	case FamilyThreaded, FamilySession, FamilyLightweight:
		return true
	}
	return false
}

// CanResume reports whether the family extends an existing thread in place.
func (f Family) CanResume() bool {
	return f == FamilyThreaded
}

// CanFork reports whether the family can start a new run seeded from a
// prior correlation handle.
func (f Family) CanFork() bool {
	return f == FamilySession || f == FamilyLightweight
}

// ParseFamily converts s into a Family.
func ParseFamily(s string) (Family, error) {
	f := Family(s)
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown backend family %q: valid: %s, %s, %s",
			ErrUsage, s, FamilyThreaded, FamilySession, FamilyLightweight)
	}
	return f, nil
}

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning is recorded before the subprocess is launched.
	StatusRunning Status = "running"

	// StatusCompleted means the subprocess exited cleanly and produced at
	// least one terminal answer event.
	StatusCompleted Status = "completed"

	// StatusFailed means the subprocess exited with a non-zero status or
	// was terminated by a signal.
	StatusFailed Status = "failed"

	// StatusError means the subprocess could not be launched or its output
	// never yielded a terminal event.
	StatusError Status = "error"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusError:
		return true
	}
	return false
}

// Mode describes how a continuation run relates to its source run.
type Mode string

const (
	// ModeInPlace extends the same run directory and thread.
	ModeInPlace Mode = "in-place"

	// ModeFork starts a new run directory seeded with the prior handle.
	ModeFork Mode = "fork"
)
