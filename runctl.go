// Package runctl provides the shared vocabulary for launching and tracking
// durable agent runs.
//
// A run is one subprocess invocation of a command-line AI executor together
// with its persisted artifacts (run directory) and its lifecycle records in
// an append-only run index. runctl abstracts over three structurally
// different executor protocols behind one run/continue/retry/fork contract.
//
// # Core Types
//
//   - [Family]: closed set of backend protocol classes
//   - [Route]: maps a model identifier to its [Family]
//   - [Status]: run lifecycle state (running, completed, failed, error)
//   - [Mode]: continuation mode (in-place or fork)
//   - [Event]: typed event parsed from a backend's output stream
//
// # Packages
//
// The root package defines the vocabulary only. Prompt composition lives in
// fragment and prompt, subprocess execution in engine/cli and its backend
// subpackages, durable records in index, and the run lifecycle with
// continuation, fork and retry in orchestrator.
//
// # Quick Start
//
//	family, err := runctl.Route("gpt-5.3-codex")
//	if err != nil { log.Fatal(err) }
//	fmt.Println(family) // threaded-resumable
package runctl
