package codex

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

// eventParsers dispatches Codex event types to their parser functions.
// thread.started is handled inline (needs Backend state for threadID CAS).
// turn.started and item.started produce no message (ErrSkipLine).
var eventParsers = map[string]eventParser{
	"item.completed": parseItemCompleted,
	"turn.completed": parseTurnCompleted,
	"turn.failed":    parseTurnFailed,
	"error":          parseTopLevelError,
}

// itemParser parses item content from an item.completed event.
type itemParser func(item map[string]any, ev *runctl.Event)

// itemParsers dispatches item types within item.completed events.
var itemParsers = map[string]itemParser{
	"agent_message":     parseAgentMessage,
	"reasoning":         parseReasoning,
	"command_execution": parseCommandExecution,
	"error":             parseItemError,
	"file_changes":      parseGenericTool("file_changes"),
	"web_search":        parseGenericTool("web_search"),
	"mcp_tool_call":     parseMCPToolCall,
}

// ParseLine parses a single JSONL output line from codex exec into an event.
// Returns cli.ErrSkipLine for blank lines and no-op events (turn.started, item.started).
func (b *Backend) ParseLine(line string) (runctl.Event, error) {
	if strings.TrimSpace(line) == "" {
		return runctl.Event{}, cli.ErrSkipLine
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return runctl.Event{}, fmt.Errorf("codex: invalid JSON: %w", err)
	}

	typeStr := jsonutil.GetString(raw, "type")
	if typeStr == "" {
		return runctl.Event{}, fmt.Errorf("codex: missing or empty type field")
	}

	var ev runctl.Event
	ev.Raw = json.RawMessage(line)
	ev.Timestamp = time.Now()

	// thread.started: inline (needs Backend state for atomic CAS).
	if typeStr == "thread.started" {
		b.parseThreadStarted(raw, &ev)
		return ev, nil
	}

	// No-op events.
	if typeStr == "turn.started" || typeStr == "item.started" {
		return runctl.Event{}, cli.ErrSkipLine
	}

	if parser, ok := eventParsers[typeStr]; ok {
		parser(raw, &ev)
		return ev, nil
	}

	// Unknown event type → system event (graceful).
	ev.Type = runctl.EventSystem
	ev.Content = typeStr
	return ev, nil
}

// parseThreadStarted handles thread.started with thread ID write-once logic.
// First thread.started with a non-empty ID → init event carrying the handle.
// First thread.started with an empty ID → init event without a handle.
// Subsequent → system event.
func (b *Backend) parseThreadStarted(raw map[string]any, ev *runctl.Event) {
	tid := jsonutil.GetString(raw, "thread_id")
	if jsonutil.ContainsNull(tid) {
		tid = ""
	}

	// CAS against nil (first event) or sentinel (empty ID came first).
	if tid != "" {
		if b.threadID.CompareAndSwap(nil, &tid) ||
			b.threadID.CompareAndSwap(&noThreadSentinel, &tid) {
			ev.Type = runctl.EventInit
			ev.Handle = tid
			return
		}
	}

	if b.threadID.CompareAndSwap(nil, &noThreadSentinel) {
		ev.Type = runctl.EventInit
		return
	}

	ev.Type = runctl.EventSystem
	ev.Content = "thread.started"
	if tid != "" {
		ev.Content = "thread.started: " + tid
	}
}

// parseItemCompleted delegates to inner itemParsers based on item.type.
func parseItemCompleted(raw map[string]any, ev *runctl.Event) {
	item := jsonutil.GetMap(raw, "item")
	if item == nil {
		ev.Type = runctl.EventSystem
		ev.Content = "item.completed: missing item"
		return
	}

	itemType := jsonutil.GetString(item, "type")
	if parser, ok := itemParsers[itemType]; ok {
		parser(item, ev)
		return
	}

	// Unknown item type → system message.
	ev.Type = runctl.EventSystem
	ev.Content = "item.completed/" + itemType
}

// parseAgentMessage handles item.completed/agent_message → text event.
func parseAgentMessage(item map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventText
	ev.Content = jsonutil.GetString(item, "text")
}

// parseReasoning handles item.completed/reasoning → thinking event.
func parseReasoning(item map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventThinking
	ev.Content = jsonutil.GetString(item, "text")
}

// parseCommandExecution handles item.completed/command_execution → tool_result event.
// Tool.Name = "command_execution", Tool.Input = command string, Tool.Output = full marshaled item.
func parseCommandExecution(item map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventToolResult
	ev.Tool = &runctl.ToolCall{
		Name:   "command_execution",
		Input:  marshalString(jsonutil.GetString(item, "command")),
		Output: marshalItem(item),
	}
}

// parseItemError handles item.completed/error → error event.
func parseItemError(item map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventError
	ev.ErrorCode = errfmt.SanitizeCode(jsonutil.GetString(item, "code"))
	message := jsonutil.GetString(item, "message")
	if message == "" {
		message = jsonutil.GetString(item, "text")
	}
	if message == "" {
		message = "unknown error"
	}
	ev.Content = errfmt.Truncate(message)
}

// parseGenericTool returns an itemParser that marshals the full item as Tool.Output.
func parseGenericTool(name string) itemParser {
	return func(item map[string]any, ev *runctl.Event) {
		ev.Type = runctl.EventToolResult
		ev.Tool = &runctl.ToolCall{
			Name:   name,
			Output: marshalItem(item),
		}
	}
}

// parseMCPToolCall handles item.completed/mcp_tool_call → tool_result event.
// Extracts tool name from item; marshals full item as Output.
func parseMCPToolCall(item map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventToolResult
	name := jsonutil.GetString(item, "name")
	if name == "" {
		name = jsonutil.GetString(item, "tool_name")
	}
	if name == "" {
		name = "mcp_tool_call"
	}
	ev.Tool = &runctl.ToolCall{
		Name:   name,
		Output: marshalItem(item),
	}
}

// parseTurnCompleted handles turn.completed → result event with usage.
func parseTurnCompleted(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventResult
	ev.Usage = parseUsage(raw)
}

// parseTurnFailed handles turn.failed → error event.
func parseTurnFailed(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventError
	errObj := jsonutil.GetMap(raw, "error")
	if errObj == nil {
		ev.Content = "turn failed"
		return
	}
	ev.ErrorCode = errfmt.SanitizeCode(jsonutil.GetString(errObj, "code"))
	message := jsonutil.GetString(errObj, "message")
	if message == "" {
		message = "turn failed"
	}
	ev.Content = errfmt.Truncate(message)
}

// parseTopLevelError handles top-level "error" events.
func parseTopLevelError(raw map[string]any, ev *runctl.Event) {
	ev.Type = runctl.EventError
	ev.ErrorCode = errfmt.SanitizeCode(jsonutil.GetString(raw, "code"))
	message := jsonutil.GetString(raw, "message")
	if message == "" {
		message = "unknown error"
	}
	ev.Content = errfmt.Truncate(message)
}

// parseUsage extracts token usage from turn.completed events.
// Path: raw.usage.{input_tokens, cached_input_tokens, output_tokens}
func parseUsage(raw map[string]any) *runctl.Usage {
	usage := jsonutil.GetMap(raw, "usage")
	if usage == nil {
		return nil
	}

	u := &runctl.Usage{
		InputTokens:     jsonutil.GetInt(usage, "input_tokens"),
		OutputTokens:    jsonutil.GetInt(usage, "output_tokens"),
		CacheReadTokens: jsonutil.GetInt(usage, "cached_input_tokens"),
	}
	if u.InputTokens == 0 && u.OutputTokens == 0 && u.CacheReadTokens == 0 {
		return nil
	}
	return u
}

// marshalString converts a string to json.RawMessage.
// On marshal failure, returns a diagnostic JSON string rather than nil
// to indicate that Tool.Input existed but couldn't be serialized.
func marshalString(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	data, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`"[marshal error: %v]"`, err))
	}
	return data
}

// marshalItem marshals a map to json.RawMessage for Tool.Output.
func marshalItem(item map[string]any) json.RawMessage {
	if item == nil {
		return nil
	}
	data, err := json.Marshal(item)
	if err != nil {
		return json.RawMessage(fmt.Sprintf(`"[marshal error: %v]"`, err))
	}
	return data
}
