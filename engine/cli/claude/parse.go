package claude

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
	"github.com/dmora/runctl/internal/errfmt"
	"github.com/dmora/runctl/internal/jsonutil"
)

// eventParser parses a raw JSON event into a runctl.Event.
type eventParser func(raw map[string]any, ev *runctl.Event)

// eventParsers dispatches Claude stream-json event types.
var eventParsers = map[string]eventParser{
	"system":       parseSystemEvent,
	"init":         func(_ map[string]any, ev *runctl.Event) { ev.Type = runctl.EventInit },
	"assistant":    parseAssistantEvent,
	"tool":         parseToolEvent,
	"result":       parseResultEvent,
	"error":        parseErrorEvent,
	"stream_event": parseStreamEvent,
}

// ParseLine parses a single line of Claude's stream-json output into an event.
// Returns cli.ErrSkipLine for blank or whitespace-only lines.
func (b *Backend) ParseLine(line string) (runctl.Event, error) {
	if strings.TrimSpace(line) == "" {
		return runctl.Event{}, cli.ErrSkipLine
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return runctl.Event{}, fmt.Errorf("claude: invalid JSON: %w", err)
	}

	typeStr := jsonutil.GetString(raw, "type")
	if typeStr == "" {
		return runctl.Event{}, fmt.Errorf("claude: missing or empty type field")
	}

	ev := runctl.Event{Raw: json.RawMessage(line)}
	if parser, ok := eventParsers[typeStr]; ok {
		parser(raw, &ev)
		return ev, nil
	}

	// Unknown event type → system event (graceful).
	ev.Type = runctl.EventSystem
	ev.Content = errfmt.SanitizeCode(typeStr)
	return ev, nil
}

// parseSystemEvent handles "system" events, detecting the init subtype.
func parseSystemEvent(raw map[string]any, ev *runctl.Event) {
	if jsonutil.GetString(raw, "subtype") == "init" {
		ev.Type = runctl.EventInit
		return
	}
	ev.Type = runctl.EventSystem
	ev.Content = jsonutil.GetString(raw, "message")
}

// parseAssistantEvent handles "assistant" events with text and optional tool_use.
func parseAssistantEvent(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventText

	// Nested message.content array first (standard format).
	if message := jsonutil.GetMap(raw, "message"); message != nil {
		parseAssistantContent(message, ev)
	}

	// Fallbacks: flat "text", then flat "content".
	if ev.Content == "" {
		ev.Content = jsonutil.GetString(raw, "text")
	}
	if ev.Content == "" {
		ev.Content = jsonutil.GetString(raw, "content")
	}
}

// parseAssistantContent concatenates text blocks and captures tool_use
// blocks (last one wins).
func parseAssistantContent(message map[string]any, ev *runctl.Event) {
	blocks, ok := message["content"].([]any)
	if !ok {
		return
	}

	var b strings.Builder
	for _, block := range blocks {
		cm, ok := block.(map[string]any)
		if !ok {
			continue
		}
		b.WriteString(jsonutil.GetString(cm, "text"))
		if jsonutil.GetString(cm, "type") == "tool_use" {
			ev.Tool = extractToolCall(cm)
		}
	}
	ev.Content = b.String()
}

// extractToolCall builds a ToolCall from a content block map.
func extractToolCall(cm map[string]any) *runctl.ToolCall {
	tool := &runctl.ToolCall{Name: jsonutil.GetString(cm, "name")}
	if input, ok := cm["input"]; ok {
		if data, err := json.Marshal(input); err == nil {
			tool.Input = data
		}
	}
	return tool
}

// parseToolEvent handles "tool" events (completed tool execution results).
func parseToolEvent(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventToolResult
	tool := extractToolCall(raw)
	if output, ok := raw["output"]; ok {
		if data, err := json.Marshal(output); err == nil {
			tool.Output = data
		}
	}
	ev.Tool = tool
}

// parseResultEvent handles the top-level "result" event: the final answer,
// usage, and the session_id correlation handle.
func parseResultEvent(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventResult
	ev.Content = jsonutil.GetString(raw, "text")
	// "result" takes precedence over "text" when both are present.
	if result, ok := raw["result"].(string); ok {
		ev.Content = result
	}
	if sid := jsonutil.GetString(raw, "session_id"); validSessionID.MatchString(sid) {
		ev.Handle = sid
	}
	ev.Usage = extractTokenUsage(raw)
}

// parseErrorEvent handles "error" events.
func parseErrorEvent(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventError
	code := errfmt.SanitizeCode(jsonutil.GetString(raw, "code"))
	message := jsonutil.GetString(raw, "message")
	if message == "" {
		message = jsonutil.GetString(raw, "error")
	}
	ev.ErrorCode = code
	ev.Content = errfmt.Format(code, message)
}

// parseStreamEvent handles "stream_event" wrappers. Partial deltas are not
// part of the run record's event vocabulary; they surface as system events.
func parseStreamEvent(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventSystem
	inner := jsonutil.GetMap(raw, "event")
	if inner == nil {
		ev.Content = "stream_event: missing or invalid event field"
		return
	}
	ev.Content = "stream_event: " + errfmt.SanitizeCode(jsonutil.GetString(inner, "type"))
}

// extractTokenUsage extracts token counts from a source map.
// Returns nil if no meaningful usage data is present.
func extractTokenUsage(source map[string]any) *runctl.Usage {
	usage := jsonutil.GetMap(source, "usage")
	if usage == nil {
		return nil
	}
	u := &runctl.Usage{
		InputTokens:     jsonutil.GetInt(usage, "input_tokens"),
		OutputTokens:    jsonutil.GetInt(usage, "output_tokens"),
		CacheReadTokens: jsonutil.GetInt(usage, "cache_read_input_tokens"),
	}
	if u.InputTokens == 0 && u.OutputTokens == 0 && u.CacheReadTokens == 0 {
		return nil
	}
	return u
}
