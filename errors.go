package runctl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors. Callers match them with errors.Is; the concrete errors
// returned by runctl packages wrap them with context.
var (
	// ErrUsage indicates missing or invalid arguments. Nothing was created.
	ErrUsage = errors.New("runctl: usage error")

	// ErrUnrecognizedModel indicates the model router could not classify a
	// model identifier. See [UnrecognizedModelError].
	ErrUnrecognizedModel = errors.New("runctl: unrecognized model")

	// ErrNotFound indicates a fragment, run reference, or artifact does
	// not resolve.
	ErrNotFound = errors.New("runctl: not found")

	// ErrUnsupportedOperation indicates the backend family cannot perform
	// the requested operation (e.g. fork on a threaded-resumable run).
	// Always returned before any subprocess is launched.
	ErrUnsupportedOperation = errors.New("runctl: unsupported operation")

	// ErrNoHandle indicates the referenced run has no correlation handle,
	// so it cannot be continued or forked.
	ErrNoHandle = errors.New("runctl: run has no correlation handle")

	// ErrSubprocessFailure indicates the executor exited with a non-zero
	// status. Recorded as a failed run, never raised as a crash.
	ErrSubprocessFailure = errors.New("runctl: subprocess failed")

	// ErrProtocol indicates the executor's output never yielded a
	// recognizable terminal event.
	ErrProtocol = errors.New("runctl: protocol error")

	// ErrUnavailable indicates the executor cannot be launched
	// (binary not found, pipe setup failed).
	ErrUnavailable = errors.New("runctl: executor unavailable")
)

// UnrecognizedModelError is returned by [Route] for identifiers matching
// none of the supported patterns.
type UnrecognizedModelError struct {
	Model    string
	Patterns map[Family][]string
}

func (e *UnrecognizedModelError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "runctl: unrecognized model %q: supported:", e.Model)
	for i, f := range Families() {
		if i > 0 {
			b.WriteString(";")
		}
		fmt.Fprintf(&b, " %s (%s)", f, strings.Join(e.Patterns[f], ", "))
	}
	return b.String()
}

// Is makes UnrecognizedModelError match ErrUnrecognizedModel.
func (e *UnrecognizedModelError) Is(target error) bool {
	return target == ErrUnrecognizedModel
}

// ExitError represents a subprocess that exited with a non-zero status.
// Wraps the underlying error to preserve the error chain. Consumers can
// errors.As to *exec.ExitError for OS-level detail (signal info, etc.).
//
// Code semantics: positive = exit status, negative (-1) = signal-killed.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "runctl: exit status " + strconv.Itoa(e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Is makes ExitError match ErrSubprocessFailure.
func (e *ExitError) Is(target error) bool {
	return target == ErrSubprocessFailure
}

// ExitCode extracts the exit code from an error chain containing *ExitError.
// Returns (0, false) if the error does not contain an ExitError.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
