package opencode

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/internal/errfmt"
	"github.com/dmora/runctl/internal/jsonutil"
)

// eventParser parses a raw JSON event into a runctl.Event.
type eventParser func(raw map[string]any, ev *runctl.Event)

// eventParsers dispatches OpenCode event types to their parser functions.
// Adding a new event type = one map entry + one function.
// step_start is handled inline because it needs Backend state (sessionID).
var eventParsers = map[string]eventParser{
	"text":        parseText,
	"tool_use":    parseToolUse,
	"step_finish": parseStepFinish,
	"reasoning":   parseReasoning,
	"error":       parseError,
}

// ParseLine parses a single nd-JSON output line from OpenCode into an event.
// Returns cli.ErrSkipLine for blank or whitespace-only lines.
//
// OpenCode emits 6 event types: step_start, text, tool_use, step_finish,
// reasoning, error. All events include a top-level "timestamp" field
// (millisecond Unix epoch) and "sessionID".
func (b *Backend) ParseLine(line string) (runctl.Event, error) {
	if strings.TrimSpace(line) == "" {
		return runctl.Event{}, cli.ErrSkipLine
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return runctl.Event{}, fmt.Errorf("opencode: invalid JSON: %w", err)
	}

	typeStr := jsonutil.GetString(raw, "type")
	if typeStr == "" {
		return runctl.Event{}, fmt.Errorf("opencode: missing or empty type field")
	}

	var ev runctl.Event
	ev.Raw = json.RawMessage(line)
	ev.Timestamp = parseTimestamp(raw)

	// step_start handled inline: needs Backend state for sessionID capture.
	if typeStr == "step_start" {
		b.parseStepStart(raw, &ev)
		return ev, nil
	}

	if parser, ok := eventParsers[typeStr]; ok {
		parser(raw, &ev)
		return ev, nil
	}

	// Unknown event type → system event (graceful, not error).
	ev.Type = runctl.EventSystem
	ev.Content = typeStr
	return ev, nil
}

// parseStepStart handles step_start events with session ID write-once logic.
// First step_start with a valid session ID → init event carrying the handle.
// A first step_start with an invalid ID still yields an init event, without
// a handle; a later valid ID is captured then. Subsequent → system event.
func (b *Backend) parseStepStart(raw map[string]any, ev *runctl.Event) {
	sid := jsonutil.GetString(raw, "sessionID")

	if sid != "" && validateSessionID(sid) == nil {
		if b.sessionID.CompareAndSwap(nil, &sid) {
			ev.Type = runctl.EventInit
			ev.Handle = sid
			return
		}
	}

	if b.sessionID.Load() == nil {
		ev.Type = runctl.EventInit
		return
	}

	ev.Type = runctl.EventSystem
	ev.Content = "step_start"
	if sid != "" {
		ev.Content = "step_start: " + errfmt.SanitizeCode(sid)
	}
}

// parseText handles "text" events: complete text blocks from the assistant.
func parseText(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventText
	if part := jsonutil.GetMap(raw, "part"); part != nil {
		ev.Content = jsonutil.GetString(part, "text")
	}
}

// parseToolUse handles "tool_use" events: always post-completion with both
// input and output. Mapped to a tool_result event with both Input and Output
// populated on the ToolCall.
func parseToolUse(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventToolResult
	part := jsonutil.GetMap(raw, "part")
	if part == nil {
		ev.Tool = &runctl.ToolCall{}
		return
	}

	tool := &runctl.ToolCall{
		Name: jsonutil.GetString(part, "tool"),
	}

	tool.Input = marshalField(jsonutil.GetMap(part, "state"), "input")
	tool.Output = marshalField(jsonutil.GetMap(part, "state"), "output")
	ev.Tool = tool
}

// parseStepFinish handles "step_finish" events: turn completion with usage.
func parseStepFinish(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventResult
	ev.Usage = parseTokens(raw)
}

// parseReasoning handles "reasoning" events: thinking content from --thinking.
func parseReasoning(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventThinking
	if part := jsonutil.GetMap(raw, "part"); part != nil {
		ev.Content = jsonutil.GetString(part, "text")
	}
}

// parseError handles "error" events.
func parseError(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventError
	errObj := jsonutil.GetMap(raw, "error")
	if errObj == nil {
		ev.Content = "unknown error"
		return
	}

	code := jsonutil.GetString(errObj, "name")
	message := ""
	if data := jsonutil.GetMap(errObj, "data"); data != nil {
		message = jsonutil.GetString(data, "message")
	}
	// Fallback: error.message directly if data.message is empty.
	if message == "" {
		message = jsonutil.GetString(errObj, "message")
	}
	ev.ErrorCode = errfmt.SanitizeCode(code)
	ev.Content = errfmt.Format(code, message)
}

// parseTimestamp extracts a millisecond Unix timestamp from the "timestamp" field.
// Returns time.Now() if the field is missing or invalid.
func parseTimestamp(raw map[string]any) time.Time {
	ts := jsonutil.GetFloat(raw, "timestamp")
	if ts > 0 {
		return time.UnixMilli(int64(ts))
	}
	return time.Now()
}

// parseTokens extracts token usage from a step_finish event.
// Path: raw.part.tokens.{input, output}
// Returns nil if no tokens map is present.
func parseTokens(raw map[string]any) *runctl.Usage {
	part := jsonutil.GetMap(raw, "part")
	if part == nil {
		return nil
	}
	tokens := jsonutil.GetMap(part, "tokens")
	if tokens == nil {
		return nil
	}

	input := jsonutil.GetInt(tokens, "input")
	output := jsonutil.GetInt(tokens, "output")
	if input == 0 && output == 0 {
		return nil
	}
	return &runctl.Usage{
		InputTokens:  input,
		OutputTokens: output,
	}
}

// marshalField marshals m[key] to json.RawMessage if present, else returns nil.
// On marshal failure, returns a diagnostic JSON string rather than nil to
// avoid silent data loss.
func marshalField(m map[string]any, key string) json.RawMessage {
	if m == nil {
		return nil
	}
	v, ok := m[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`"[marshal error: %v]"`, err))
	}
	return data
}
