package runctl

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event parsed from a backend's output.
type EventType string

const (
	// EventInit is the stream's opening event. For threaded-resumable and
	// lightweight-session backends it carries the correlation handle.
	EventInit EventType = "init"

	// EventText is assistant text output.
	EventText EventType = "text"

	// EventThinking is reasoning content.
	EventThinking EventType = "thinking"

	// EventToolResult reports a completed tool invocation.
	EventToolResult EventType = "tool_result"

	// EventError is an error reported by the agent or its runtime.
	EventError EventType = "error"

	// EventSystem covers lifecycle and unknown events.
	EventSystem EventType = "system"

	// EventResult is the terminal answer of a turn.
	EventResult EventType = "result"
)

// Event is a typed record parsed from one line of backend output.
type Event struct {
	// Type identifies the kind of event.
	Type EventType `json:"type"`

	// Content is the text content (for Text, Thinking, Error, System, Result).
	Content string `json:"content,omitempty"`

	// Handle is the backend correlation handle (thread id, session id)
	// when the event carries one.
	Handle string `json:"handle,omitempty"`

	// ErrorCode is a short machine-readable code on Error events.
	ErrorCode string `json:"error_code,omitempty"`

	// Tool contains tool invocation details (for ToolResult events).
	Tool *ToolCall `json:"tool,omitempty"`

	// Usage contains token usage data (typically on Result events).
	Usage *Usage `json:"usage,omitempty"`

	// Raw is the original unparsed JSON line.
	Raw json.RawMessage `json:"raw,omitempty"`

	// Timestamp is when the event was produced.
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether e is a terminal answer event.
func (e Event) Terminal() bool {
	return e.Type == EventResult
}

// ToolCall describes a tool invocation by the agent.
type ToolCall struct {
	// Name is the tool identifier.
	Name string `json:"name"`

	// Input is the tool's input parameters as raw JSON.
	Input json.RawMessage `json:"input,omitempty"`

	// Output is the tool's result as raw JSON.
	Output json.RawMessage `json:"output,omitempty"`
}

// Usage contains token usage data from the agent's model.
type Usage struct {
	InputTokens     int `json:"input_tokens"`
	OutputTokens    int `json:"output_tokens"`
	CacheReadTokens int `json:"cache_read_tokens,omitempty"`
}

// Add returns the sum of u and other. Nil operands count as zero.
func (u *Usage) Add(other *Usage) *Usage {
	if u == nil {
		return other
	}
	if other == nil {
		return u
	}
	return &Usage{
		InputTokens:     u.InputTokens + other.InputTokens,
		OutputTokens:    u.OutputTokens + other.OutputTokens,
		CacheReadTokens: u.CacheReadTokens + other.CacheReadTokens,
	}
}
