// Package codex provides the threaded-resumable backend: the Codex CLI.
//
// The backend implements cli.Spawner, cli.Parser, and cli.Resumer. It does
// NOT implement cli.Forker: a Codex thread can be resumed in place but not
// branched.
//
// # Command lines
//
//	codex exec --json [exec-only] [common] -- -
//	codex exec resume --json [common] -- <thread_id> -
//
// The trailing "-" makes Codex read the prompt from stdin.
//
// # Supported options
//
//   - Invocation.Model → -m <model>
//   - OptionSandbox → --sandbox (exec only, not resume)
//   - OptionProfile → -p <profile> (exec only)
//   - OptionOutputSchema → --output-schema <file> (exec only)
//   - OptionEphemeral → --ephemeral
//   - OptionSkipGitCheck → --skip-git-repo-check
//   - OptionFullAuto → --full-auto
//   - OptionEffort → -c model_reasoning_effort=<level>
//
// # Event types
//
// Codex exec emits JSONL events with a top-level "type" field:
// thread.started, turn.started, item.started, item.completed,
// turn.completed, turn.failed, error.
//
// The first thread.started carries the correlation handle (thread_id).
// turn.completed is the terminal event; the answer is the last
// agent_message item.
package codex
