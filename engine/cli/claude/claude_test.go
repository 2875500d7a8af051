package claude

import (
	"strings"
	"testing"

	"github.com/dmora/runctl/engine/cli"
)

// Test fixture constants shared across all test files in this package.
const (
	testModel     = "claude-sonnet-4-5-20250514"
	testSessionID = "0f3c9a1e-7a61-4a4e-9d55-1b2f3c4d5e6f"
	testBinary    = "/usr/local/bin/claude"
)

func TestNew(t *testing.T) {
	if b := New(); b.binary != defaultBinary {
		t.Errorf("binary = %q, want %q", b.binary, defaultBinary)
	}
	if b := New(WithBinary(testBinary)); b.binary != testBinary {
		t.Errorf("binary = %q, want %q", b.binary, testBinary)
	}
	if b := New(WithBinary("")); b.binary != defaultBinary {
		t.Errorf("empty WithBinary should keep default, got %q", b.binary)
	}
}

func TestSpawnArgs(t *testing.T) {
	tests := []struct {
		name string
		inv  cli.Invocation
		want []string
	}{
		{
			name: "Minimal",
			inv:  cli.Invocation{},
			want: []string{"-p", "--verbose", "--output-format", "stream-json"},
		},
		{
			name: "WithModel",
			inv:  cli.Invocation{Model: testModel},
			want: []string{"-p", "--verbose", "--output-format", "stream-json", "--model", testModel},
		},
		{
			name: "AllOptions",
			inv: cli.Invocation{Model: "opus", Options: map[string]string{
				OptionSystemPrompt:   "be terse",
				OptionPermissionMode: string(PermissionBypassAll),
				OptionMaxTurns:       "5",
			}},
			want: []string{
				"-p", "--verbose", "--output-format", "stream-json",
				"--model", "opus",
				"--system-prompt", "be terse",
				"--permission-mode", "bypassPermissions",
				"--max-turns", "5",
			},
		},
		{
			name: "InvalidOptionsSkipped",
			inv: cli.Invocation{Model: "-x", Options: map[string]string{
				OptionSystemPrompt:   "bad\x00prompt",
				OptionPermissionMode: "yolo",
				OptionMaxTurns:       "-1",
			}},
			want: []string{"-p", "--verbose", "--output-format", "stream-json"},
		},
		{
			name: "DefaultPermissionOmitted",
			inv:  cli.Invocation{Options: map[string]string{OptionPermissionMode: string(PermissionDefault)}},
			want: []string{"-p", "--verbose", "--output-format", "stream-json"},
		},
		{
			name: "HandleIgnored",
			inv:  cli.Invocation{Handle: testSessionID},
			want: []string{"-p", "--verbose", "--output-format", "stream-json"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binary, args := New().SpawnArgs(tt.inv)
			if binary != defaultBinary {
				t.Errorf("binary = %q", binary)
			}
			assertArgsEqual(t, args, tt.want)
		})
	}
}

func TestForkArgs(t *testing.T) {
	_, args, err := New().ForkArgs(cli.Invocation{Model: testModel, Handle: testSessionID})
	if err != nil {
		t.Fatalf("ForkArgs: %v", err)
	}
	want := []string{
		"-p", "--verbose", "--output-format", "stream-json",
		"--model", testModel,
		"--resume", testSessionID, "--fork-session",
	}
	assertArgsEqual(t, args, want)
}

func TestForkArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		inv  cli.Invocation
	}{
		{"NoHandle", cli.Invocation{}},
		{"InvalidHandle", cli.Invocation{Handle: "--dangerous"}},
		{"NullHandle", cli.Invocation{Handle: "abc\x00"}},
		{"BadPermission", cli.Invocation{Handle: testSessionID, Options: map[string]string{OptionPermissionMode: "yolo"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New().ForkArgs(tt.inv)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "claude:") {
				t.Errorf("error %q should be prefixed with backend name", err)
			}
		})
	}
}

func TestBackend_NotResumer(t *testing.T) {
	var b cli.Backend = New()
	if _, ok := b.(cli.Resumer); ok {
		t.Error("claude backend must not implement cli.Resumer")
	}
}

func assertArgsEqual(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "\x1f") != strings.Join(want, "\x1f") {
		t.Errorf("args mismatch\n  got:  %q\n  want: %q", got, want)
	}
}
