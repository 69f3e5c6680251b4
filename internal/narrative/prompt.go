package narrative

import (
	"fmt"
	"strings"

	"github.com/cbc-interpretation-server/internal/domain"
)

const systemPrompt = "You are a hematology assistant writing for a clinician who reviews automated " +
	"complete blood count interpretations. Summarize the structured findings you are given in plain " +
	"prose. Do not introduce diagnoses, values or recommendations that are not in the findings. " +
	"Mention quality flags before abnormalities. Keep it under 200 words and do not use headings."

// buildPrompt renders the structured content of a finalized report. Only the report's
// own fields are used, so the narrative cannot see anything the engine did not produce.
func buildPrompt(report *domain.Report) string {
	var sb strings.Builder

	sb.WriteString("Summarize this complete blood count interpretation.\n\n")

	if report.PatientContext != nil {
		fmt.Fprintf(&sb, "Patient: age %d, sex %s\n", report.PatientContext.Age, report.PatientContext.Sex)
	} else {
		sb.WriteString("Patient: no context supplied, adult unisex reference ranges applied\n")
	}

	sb.WriteString("\nQuality flags:\n")
	if len(report.QualityFlags) == 0 {
		sb.WriteString("- none\n")
	}
	for _, f := range report.QualityFlags {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", f.Kind, f.Severity, f.Rationale)
	}

	sb.WriteString("\nAbnormal parameters:\n")
	if len(report.AbnormalityTags) == 0 {
		sb.WriteString("- none\n")
	}
	for _, tag := range report.AbnormalityTags {
		critical := ""
		if tag.Critical {
			critical = " [CRITICAL]"
		}
		fmt.Fprintf(&sb, "- %s: %g %s, %s %s (reference %g - %g)%s\n",
			tag.Parameter, tag.Value, tag.Unit, tag.Severity, tag.Direction, tag.Low, tag.High, critical)
	}

	sb.WriteString("\nDifferential candidates, most supported first:\n")
	if len(report.Differentials) == 0 {
		sb.WriteString("- none\n")
	}
	for i, c := range report.Differentials {
		fmt.Fprintf(&sb, "%d. %s (confidence %.2f, rules: %s", i+1, c.Diagnosis, c.Confidence, strings.Join(c.Rules, ", "))
		if patterns := distinctPatterns(c.Patterns); len(patterns) > 0 {
			fmt.Fprintf(&sb, "; pattern: %s", strings.Join(patterns, ", "))
		}
		sb.WriteString(")\n")
	}

	if report.Coverage.Reduced {
		fmt.Fprintf(&sb, "\nCoverage is reduced: %d of %d rules could not be evaluated for missing parameters.\n",
			len(report.Coverage.Skipped), report.Coverage.RulesTotal)
	}

	return sb.String()
}

// distinctPatterns drops empty and repeated labels, keeping first-seen order.
func distinctPatterns(patterns []string) []string {
	var out []string
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
