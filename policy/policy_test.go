package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPolicy = `
package runctl

default default_skills = []

default_skills = ["review", "style"] {
	input.family == "threaded-resumable"
}

default_skills = ["docs"] {
	input.labels.kind == "docs"
}
`

func TestRegoPolicy_DefaultSkills(t *testing.T) {
	ctx := context.Background()
	p, err := NewRegoPolicy(ctx, "skills.rego", testPolicy)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want []string
	}{
		{"family rule keeps order", Input{Model: "gpt-5", Family: "threaded-resumable"}, []string{"review", "style"}},
		{"label rule", Input{Model: "claude-opus", Family: "session-conversational", Labels: map[string]string{"kind": "docs"}}, []string{"docs"}},
		{"default empty", Input{Model: "claude-opus", Family: "session-conversational"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.DefaultSkills(ctx, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegoPolicy_UndefinedRuleYieldsNothing(t *testing.T) {
	p, err := NewRegoPolicy(context.Background(), "empty.rego", "package runctl\n\nother = 1\n")
	require.NoError(t, err)
	got, err := p.DefaultSkills(context.Background(), Input{Model: "m"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRegoPolicy_WrongShape(t *testing.T) {
	ctx := context.Background()
	p, err := NewRegoPolicy(ctx, "bad.rego", "package runctl\n\ndefault_skills = \"review\"\n")
	require.NoError(t, err)
	_, err = p.DefaultSkills(ctx, Input{})
	require.Error(t, err)

	p, err = NewRegoPolicy(ctx, "bad.rego", "package runctl\n\ndefault_skills = [\"a\", 1]\n")
	require.NoError(t, err)
	_, err = p.DefaultSkills(ctx, Input{})
	require.Error(t, err)
}

func TestNewRegoPolicy_CompileError(t *testing.T) {
	_, err := NewRegoPolicy(context.Background(), "broken.rego", "package runctl\n\ndefault_skills = [\n")
	require.Error(t, err)
}

func TestLoadRegoPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.rego")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o644))
	p, err := LoadRegoPolicy(context.Background(), path)
	require.NoError(t, err)
	got, err := p.DefaultSkills(context.Background(), Input{Family: "threaded-resumable"})
	require.NoError(t, err)
	assert.Equal(t, []string{"review", "style"}, got)

	_, err = LoadRegoPolicy(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	require.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := Static{"a", "b"}
	got, err := s.DefaultSkills(context.Background(), Input{})
	require.NoError(t, err)
	got[0] = "mutated"
	assert.Equal(t, Static{"a", "b"}, s)
}
