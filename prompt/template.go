package prompt

import (
	"regexp"
)

// placeholder matches {{KEY}} where KEY is an identifier.
var placeholder = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)

// Substitute replaces every {{KEY}} in text whose KEY is present in vars.
// Placeholders without a binding are left as written. Substituted values
// are not scanned again, so a value containing "{{KEY}}" stays literal.
func Substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		if v, ok := vars[m[2:len(m)-2]]; ok {
			return v
		}
		return m
	})
}

// Unresolved returns the distinct placeholder keys left in text, in order
// of first appearance.
func Unresolved(text string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}
