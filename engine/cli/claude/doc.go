// Package claude provides the session-conversational backend: the Claude
// Code CLI.
//
// The [Backend] type implements [cli.Spawner], [cli.Parser], and
// [cli.Forker]. Claude has no resume-in-place primitive for runctl's
// purposes: every continuation is a new process that forks the prior
// session with --resume <id> --fork-session.
//
// # Command lines
//
//	claude -p --verbose --output-format stream-json [flags]
//	claude -p --verbose --output-format stream-json [flags] --resume <id> --fork-session
//
// The prompt is read from stdin.
//
// # Event Types
//
// The Claude backend produces these [runctl.EventType] values:
//
//   - [runctl.EventInit]: session start (from "system/init" or "init" events)
//   - [runctl.EventSystem]: system status and stream lifecycle events
//   - [runctl.EventText]: assistant text, may include a [runctl.ToolCall]
//   - [runctl.EventToolResult]: completed tool execution (from "tool" events)
//   - [runctl.EventResult]: turn completion; carries the session_id handle
//   - [runctl.EventError]: error events
//
// The correlation handle is taken from the top-level result event only.
//
// # Options
//
//   - [OptionSystemPrompt]: sets --system-prompt
//   - [OptionPermissionMode]: sets --permission-mode (use [PermissionMode] values)
//   - [OptionMaxTurns]: sets --max-turns
package claude
