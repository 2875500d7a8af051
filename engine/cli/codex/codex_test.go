package codex

import (
	"strings"
	"testing"

	"github.com/dmora/runctl/engine/cli"
)

// --- Constructor ---

func TestNew_Default(t *testing.T) {
	b := New()
	if b.binary != defaultBinary {
		t.Errorf("binary = %q, want %q", b.binary, defaultBinary)
	}
}

func TestNew_WithBinary(t *testing.T) {
	b := New(WithBinary("/usr/local/bin/codex"))
	if b.binary != "/usr/local/bin/codex" {
		t.Errorf("binary = %q, want %q", b.binary, "/usr/local/bin/codex")
	}
	if b := New(WithBinary("")); b.binary != defaultBinary {
		t.Errorf("empty WithBinary should keep default, got %q", b.binary)
	}
}

// --- SpawnArgs ---

func TestSpawnArgs(t *testing.T) {
	tests := []struct {
		name string
		inv  cli.Invocation
		want []string
	}{
		{
			name: "Minimal",
			inv:  cli.Invocation{},
			want: []string{"exec", "--json", "--", "-"},
		},
		{
			name: "WithModel",
			inv:  cli.Invocation{Model: "gpt-5.3-codex"},
			want: []string{"exec", "--json", "-m", "gpt-5.3-codex", "--", "-"},
		},
		{
			name: "LeadingDashModelSkipped",
			inv:  cli.Invocation{Model: "-evil"},
			want: []string{"exec", "--json", "--", "-"},
		},
		{
			name: "ExecOnlyOptions",
			inv: cli.Invocation{Options: map[string]string{
				OptionProfile:      "work",
				OptionOutputSchema: "schema.json",
				OptionSandbox:      string(SandboxReadOnly),
			}},
			want: []string{"exec", "--json", "-p", "work", "--output-schema", "schema.json", "--sandbox", "read-only", "--", "-"},
		},
		{
			name: "InvalidSandboxSkipped",
			inv:  cli.Invocation{Options: map[string]string{OptionSandbox: "yolo"}},
			want: []string{"exec", "--json", "--", "-"},
		},
		{
			name: "CommonFlags",
			inv: cli.Invocation{Model: "o3", Options: map[string]string{
				OptionEphemeral:    "1",
				OptionSkipGitCheck: "1",
				OptionFullAuto:     "1",
				OptionEffort:       "high",
			}},
			want: []string{"exec", "--json", "-m", "o3", "--ephemeral", "--skip-git-repo-check", "--full-auto", "-c", "model_reasoning_effort=high", "--", "-"},
		},
		{
			name: "InvalidEffortSkipped",
			inv:  cli.Invocation{Options: map[string]string{OptionEffort: "extreme"}},
			want: []string{"exec", "--json", "--", "-"},
		},
		{
			name: "HandleIgnored",
			inv:  cli.Invocation{Handle: "thread-base"},
			want: []string{"exec", "--json", "--", "-"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binary, args := New().SpawnArgs(tt.inv)
			if binary != defaultBinary {
				t.Errorf("binary = %q, want %q", binary, defaultBinary)
			}
			assertArgsEqual(t, args, tt.want)
		})
	}
}

// --- ResumeArgs ---

func TestResumeArgs(t *testing.T) {
	inv := cli.Invocation{
		Model:  "gpt-5.3-codex",
		Handle: "thread-base",
		Options: map[string]string{
			OptionSandbox:      string(SandboxReadOnly), // exec only
			OptionProfile:      "work",                  // exec only
			OptionSkipGitCheck: "1",
		},
	}
	binary, args, err := New(WithBinary("/opt/codex")).ResumeArgs(inv)
	if err != nil {
		t.Fatalf("ResumeArgs: %v", err)
	}
	if binary != "/opt/codex" {
		t.Errorf("binary = %q", binary)
	}
	want := []string{"exec", "resume", "--json", "-m", "gpt-5.3-codex", "--skip-git-repo-check", "--", "thread-base", "-"}
	assertArgsEqual(t, args, want)
}

func TestResumeArgs_Errors(t *testing.T) {
	tests := []struct {
		name   string
		handle string
	}{
		{"Empty", ""},
		{"NullByte", "thread\x00evil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := New().ResumeArgs(cli.Invocation{Handle: tt.handle})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.HasPrefix(err.Error(), "codex:") {
				t.Errorf("error %q should be prefixed with backend name", err)
			}
		})
	}
}

func TestBackend_NotForker(t *testing.T) {
	var b cli.Backend = New()
	if _, ok := b.(cli.Forker); ok {
		t.Error("codex backend must not implement cli.Forker")
	}
}

func assertArgsEqual(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("args = %q (len %d), want %q (len %d)", got, len(got), want, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("args[%d] = %q, want %q\n  got:  %q\n  want: %q", i, got[i], want[i], got, want)
		}
	}
}
