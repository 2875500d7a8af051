// Package policy picks the default fragment set for a launch that names
// none.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/open-policy-agent/opa/rego"
)

// Input describes the launch being decided.
type Input struct {
	Model   string            `json:"model"`
	Family  string            `json:"family"`
	Session string            `json:"session,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// SkillPolicy returns the ordered fragment ids to use by default.
type SkillPolicy interface {
	DefaultSkills(ctx context.Context, in Input) ([]string, error)
}

// Query is the rule evaluated by RegoPolicy.
const Query = "data.runctl.default_skills"

// RegoPolicy evaluates an OPA Rego module. The module must live in package
// runctl and define default_skills as an array of strings. An undefined
// rule yields no skills.
type RegoPolicy struct {
	query rego.PreparedEvalQuery
}

var _ SkillPolicy = (*RegoPolicy)(nil)

// NewRegoPolicy compiles module source under the given file name.
func NewRegoPolicy(ctx context.Context, name, source string) (*RegoPolicy, error) {
	r := rego.New(
		rego.Query(Query),
		rego.Module(name, source),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare %s: %w", name, err)
	}
	return &RegoPolicy{query: query}, nil
}

// LoadRegoPolicy compiles the module at path.
func LoadRegoPolicy(ctx context.Context, path string) (*RegoPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return NewRegoPolicy(ctx, filepath.Base(path), string(data))
}

// DefaultSkills evaluates the policy for in.
func (p *RegoPolicy) DefaultSkills(ctx context.Context, in Input) ([]string, error) {
	input := map[string]any{
		"model":   in.Model,
		"family":  in.Family,
		"session": in.Session,
		"labels":  labelsInput(in.Labels),
	}
	results, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy: evaluate: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	val := results[0].Expressions[0].Value
	items, ok := val.([]any)
	if !ok {
		return nil, fmt.Errorf("policy: %s must be an array of strings, got %T", Query, val)
	}
	skills := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("policy: %s contains %T, want string", Query, item)
		}
		skills = append(skills, s)
	}
	return skills, nil
}

func labelsInput(labels map[string]string) map[string]any {
	out := make(map[string]any, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Static is a SkillPolicy that always returns the same fragments.
type Static []string

// DefaultSkills returns a copy of s.
func (s Static) DefaultSkills(context.Context, Input) ([]string, error) {
	return append([]string(nil), s...), nil
}
