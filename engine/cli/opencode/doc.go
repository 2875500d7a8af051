// Package opencode provides the lightweight-session backend: the OpenCode
// CLI, addressed with provider-qualified model identifiers
// ("anthropic/claude-sonnet-4", "openai/gpt-5").
//
// The backend implements cli.Spawner, cli.Parser, and cli.Forker.
// Continuations fork the prior session:
//
//	opencode run --format json [flags]
//	opencode run --format json [flags] --session <id> --fork
//
// The prompt is read from stdin.
//
// # Event types
//
// OpenCode emits nd-JSON events: step_start, text, tool_use, step_finish,
// reasoning, error. The first step_start carries the session ID used as the
// correlation handle. step_finish is the terminal event; the answer is the
// last text event.
//
// # Options
//
//   - OptionVariant → --variant
//   - OptionAgent → --agent
//   - OptionTitle → --title
//   - OptionThinking → --thinking
package opencode
