package runctl

import (
	"strings"
)

// rule is one classification pattern of the model router.
type rule struct {
	family  Family
	pattern string
	match   func(model string) bool
}

// rules are evaluated in order. Slash-qualified identifiers are the most
// qualified form and are checked first, so "anthropic/claude-sonnet-4"
// routes to FamilyLightweight rather than FamilySession.
var rules = []rule{
	{FamilyLightweight, "<provider>/<model>", isSlashQualified},
	{FamilyThreaded, "gpt-*", hasPrefix("gpt-")},
	{FamilyThreaded, "o<digit>*", isOSeries},
	{FamilyThreaded, "codex*", hasPrefix("codex")},
	{FamilySession, "claude*", hasPrefix("claude")},
	{FamilySession, "opus*", hasPrefix("opus")},
	{FamilySession, "sonnet*", hasPrefix("sonnet")},
	{FamilySession, "haiku*", hasPrefix("haiku")},
}

// Route maps a model identifier to its backend family.
//
// Returns an *UnrecognizedModelError (matching [ErrUnrecognizedModel]) when
// the identifier matches none of the known patterns. The error message
// enumerates the supported patterns per family.
func Route(model string) (Family, error) {
	m := strings.ToLower(strings.TrimSpace(model))
	if m != "" && !strings.ContainsAny(m, " \t\r\n\x00") {
		for _, r := range rules {
			if r.match(m) {
				return r.family, nil
			}
		}
	}
	return "", &UnrecognizedModelError{Model: model, Patterns: Patterns()}
}

// Patterns returns the supported model patterns grouped by family, in
// [Families] order.
func Patterns() map[Family][]string {
	out := make(map[Family][]string, len(Families()))
	for _, r := range rules {
		out[r.family] = append(out[r.family], r.pattern)
	}
	return out
}

func hasPrefix(p string) func(string) bool {
	return func(m string) bool { return strings.HasPrefix(m, p) }
}

// isOSeries matches "o" followed by a digit (o1, o3-mini, o4-mini-high).
func isOSeries(m string) bool {
	return len(m) >= 2 && m[0] == 'o' && m[1] >= '0' && m[1] <= '9'
}

// isSlashQualified matches "<provider>/<model>" with both parts non-empty.
func isSlashQualified(m string) bool {
	provider, name, ok := strings.Cut(m, "/")
	return ok && provider != "" && name != "" && !strings.HasPrefix(provider, "-")
}
