// Package cli runs command-line agent executors as one-shot subprocesses.
//
// A Backend implements [Spawner] and [Parser] to define how an executor is
// launched and how each line of its stdout becomes a [runctl.Event].
// Continuation capabilities ([Resumer], [Forker]) are discovered via type
// assertion at runtime: a backend that lacks one cannot perform that kind of
// continuation.
//
// [Engine.Execute] launches one subprocess, delivers the prompt on stdin,
// tees every raw stdout line into the caller's writer as it arrives, parses
// events as they stream, and reports the correlation handle, final answer and
// exit status. Cancelling the context sends SIGTERM, followed by SIGKILL after
// the grace period.
//
// [Lines] and [Stream] expose the same line splitting and parsing as lazy
// sequences for reading previously captured output.
//
// # Platform Support
//
// The [Engine] uses Unix signals (SIGTERM, SIGKILL) for subprocess
// termination and is not available on Windows. The interface types and
// [Stream] are available on all platforms.
package cli
