package claude

import (
	"errors"
	"testing"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/engine/cli"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantType    runctl.EventType
		wantContent string
		wantHandle  string
	}{
		{
			name:     "SystemInit",
			line:     `{"type":"system","subtype":"init","session_id":"` + testSessionID + `"}`,
			wantType: runctl.EventInit,
		},
		{
			name:        "SystemMessage",
			line:        `{"type":"system","message":"compacting"}`,
			wantType:    runctl.EventSystem,
			wantContent: "compacting",
		},
		{
			name:        "AssistantBlocks",
			line:        `{"type":"assistant","message":{"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}]}}`,
			wantType:    runctl.EventText,
			wantContent: "Hello world",
		},
		{
			name:        "AssistantFlatText",
			line:        `{"type":"assistant","text":"flat"}`,
			wantType:    runctl.EventText,
			wantContent: "flat",
		},
		{
			name:        "Result",
			line:        `{"type":"result","subtype":"success","result":"final answer","session_id":"` + testSessionID + `"}`,
			wantType:    runctl.EventResult,
			wantContent: "final answer",
			wantHandle:  testSessionID,
		},
		{
			name:        "ResultInvalidSessionID",
			line:        `{"type":"result","result":"x","session_id":"bad id"}`,
			wantType:    runctl.EventResult,
			wantContent: "x",
		},
		{
			name:        "ResultFlagLikeSessionID",
			line:        `{"type":"result","result":"x","session_id":"--dangerously-skip-permissions"}`,
			wantType:    runctl.EventResult,
			wantContent: "x",
		},
		{
			name:        "ErrorWithCode",
			line:        `{"type":"error","code":"overloaded","message":"try later"}`,
			wantType:    runctl.EventError,
			wantContent: "overloaded: try later",
		},
		{
			name:        "ErrorFallbackField",
			line:        `{"type":"error","error":"boom"}`,
			wantType:    runctl.EventError,
			wantContent: "boom",
		},
		{
			name:        "StreamEvent",
			line:        `{"type":"stream_event","event":{"type":"message_start"}}`,
			wantType:    runctl.EventSystem,
			wantContent: "stream_event: message_start",
		},
		{
			name:        "Unknown",
			line:        `{"type":"rate_limit"}`,
			wantType:    runctl.EventSystem,
			wantContent: "rate_limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := New().ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine: %v", err)
			}
			if ev.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ev.Type, tt.wantType)
			}
			if ev.Content != tt.wantContent {
				t.Errorf("Content = %q, want %q", ev.Content, tt.wantContent)
			}
			if ev.Handle != tt.wantHandle {
				t.Errorf("Handle = %q, want %q", ev.Handle, tt.wantHandle)
			}
		})
	}
}

// The handle comes from the result event only, never from system/init.
func TestParseLine_HandleOnlyOnResult(t *testing.T) {
	ev, _ := New().ParseLine(`{"type":"system","subtype":"init","session_id":"` + testSessionID + `"}`)
	if ev.Handle != "" {
		t.Errorf("init Handle = %q, want empty", ev.Handle)
	}
}

func TestParseLine_ToolUse(t *testing.T) {
	ev, err := New().ParseLine(`{"type":"assistant","message":{"content":[{"type":"tool_use","name":"Read","input":{"path":"a.go"}}]}}`)
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	if ev.Tool == nil || ev.Tool.Name != "Read" {
		t.Fatalf("Tool = %+v, want Read", ev.Tool)
	}
	if string(ev.Tool.Input) != `{"path":"a.go"}` {
		t.Errorf("Tool.Input = %s", ev.Tool.Input)
	}

	ev, _ = New().ParseLine(`{"type":"tool","name":"Bash","output":"ok"}`)
	if ev.Type != runctl.EventToolResult || ev.Tool == nil || string(ev.Tool.Output) != `"ok"` {
		t.Errorf("tool event = %+v", ev)
	}
}

func TestParseLine_Usage(t *testing.T) {
	ev, _ := New().ParseLine(`{"type":"result","result":"ok","usage":{"input_tokens":12,"output_tokens":3,"cache_read_input_tokens":4}}`)
	if ev.Usage == nil || ev.Usage.InputTokens != 12 || ev.Usage.OutputTokens != 3 || ev.Usage.CacheReadTokens != 4 {
		t.Errorf("Usage = %+v", ev.Usage)
	}
}

func TestParseLine_SkipAndErrors(t *testing.T) {
	if _, err := New().ParseLine("   "); !errors.Is(err, cli.ErrSkipLine) {
		t.Errorf("blank line error = %v, want ErrSkipLine", err)
	}
	for _, line := range []string{"{", `{"type":7}`, `{}`} {
		if _, err := New().ParseLine(line); err == nil || errors.Is(err, cli.ErrSkipLine) {
			t.Errorf("ParseLine(%q) error = %v, want parse error", line, err)
		}
	}
}
