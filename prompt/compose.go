// Package prompt composes the instruction text sent to an executor.
//
// Composition is a pure function of [Params]: identical inputs produce
// byte-identical output.
package prompt

import (
	"fmt"
	"strings"

	"github.com/dmora/runctl"
	"github.com/dmora/runctl/fragment"
)

// Detail selects how much the executor is asked to put in its report.
type Detail string

const (
	DetailBrief    Detail = "brief"
	DetailStandard Detail = "standard"
	DetailDetailed Detail = "detailed"
)

// guidance is the report instruction per detail level.
var guidance = map[Detail]string{
	DetailBrief: "Keep the report short: state the outcome in a few sentences " +
		"and list only blocking issues.",
	DetailStandard: "Summarize the outcome, the key findings with file references, " +
		"and any follow-up work you recommend.",
	DetailDetailed: "Write a thorough report. Cover the approach you took, every " +
		"finding with file and line references, the evidence behind each " +
		"conclusion, open risks, and concrete next steps.",
}

// ParseDetail converts s into a Detail. Empty selects DetailStandard.
func ParseDetail(s string) (Detail, error) {
	if s == "" {
		return DetailStandard, nil
	}
	d := Detail(s)
	if _, ok := guidance[d]; !ok {
		return "", fmt.Errorf("%w: unknown detail level %q: valid: %s, %s, %s",
			runctl.ErrUsage, s, DetailBrief, DetailStandard, DetailDetailed)
	}
	return d, nil
}

// Section headings.
const (
	headingSkills     = "# Skills"
	headingTask       = "# Task"
	headingReferences = "# Reference Files"
	headingReport     = "# Report"
)

// Params are the inputs to Compose.
type Params struct {
	// Fragments are rendered in order under their ids.
	Fragments []fragment.Fragment

	// Prompt is the caller's task text.
	Prompt string

	// References are file paths listed for the executor to read.
	References []string

	// ReportPath is where the executor must write its final report.
	// Empty omits the report section.
	ReportPath string

	// Detail selects the report guidance. Empty means DetailStandard.
	Detail Detail

	// Vars bind {{KEY}} placeholders anywhere in the composed text.
	Vars map[string]string
}

// Compose assembles the prompt: skills, task, reference files, then the
// report directive. Sections with no content are omitted. The assembled
// text is substituted once with p.Vars.
func Compose(p Params) string {
	var b strings.Builder

	if len(p.Fragments) > 0 {
		b.WriteString(headingSkills + "\n\n")
		for _, f := range p.Fragments {
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", f.ID, strings.TrimRight(f.Body, "\n"))
		}
	}

	b.WriteString(headingTask + "\n\n")
	b.WriteString(strings.TrimRight(p.Prompt, "\n"))
	b.WriteString("\n")

	if len(p.References) > 0 {
		b.WriteString("\n" + headingReferences + "\n\n")
		b.WriteString("Read these files before starting:\n\n")
		for _, ref := range p.References {
			fmt.Fprintf(&b, "- %s\n", ref)
		}
	}

	if p.ReportPath != "" {
		detail := p.Detail
		if _, ok := guidance[detail]; !ok {
			detail = DetailStandard
		}
		b.WriteString("\n" + headingReport + "\n\n")
		fmt.Fprintf(&b, "When you are done, write your final report as Markdown to:\n\n    %s\n\n", p.ReportPath)
		fmt.Fprintf(&b, "Detail level: %s. %s\n", detail, guidance[detail])
	}

	return Substitute(b.String(), p.Vars)
}
