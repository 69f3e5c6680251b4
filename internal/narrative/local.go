package narrative

import (
	"context"
	"fmt"
	"strings"

	"github.com/cbc-interpretation-server/internal/domain"
)

// localHeader opens every narrative written without a language model.
const localHeader = "Local analysis (rule-based, no language model)"

// LocalGenerator writes a deterministic narrative from the report's own structured
// content. It needs no network and is used when the chat-completions endpoint is
// disabled or its circuit breaker is open.
type LocalGenerator struct{}

// NewLocalGenerator creates a local narrative generator.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{}
}

// GenerateNarrative implements domain.NarrativeGenerator.
func (g *LocalGenerator) GenerateNarrative(ctx context.Context, report *domain.Report) (string, error) {
	if !report.IsFinalized() {
		return "", ErrNotFinalized
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(localHeader)
	sb.WriteString("\n\n")

	if report.PatientContext != nil {
		fmt.Fprintf(&sb, "Patient: %d year old, sex %s.\n", report.PatientContext.Age, report.PatientContext.Sex)
	} else {
		sb.WriteString("Patient: no context supplied; adult unisex reference ranges were applied.\n")
	}

	if len(report.QualityFlags) > 0 {
		sb.WriteString("\nData quality:\n")
		for _, f := range report.QualityFlags {
			fmt.Fprintf(&sb, "- %s (%s): %s\n", f.Kind, f.Severity, f.Rationale)
		}
	}

	sb.WriteString("\nFindings:\n")
	if len(report.AbnormalityTags) == 0 {
		sb.WriteString("- every reported parameter lies within its reference interval\n")
	}
	for _, tag := range report.AbnormalityTags {
		fmt.Fprintf(&sb, "- %s %g %s is %s %s (reference %g - %g)", tag.Parameter, tag.Value, tag.Unit,
			tag.Severity, tag.Direction, tag.Low, tag.High)
		if tag.Critical {
			sb.WriteString(", CRITICAL")
		}
		sb.WriteString("\n")
	}

	if len(report.Differentials) > 0 {
		sb.WriteString("\nPatterns to consider, most supported first:\n")
		for i, c := range report.Differentials {
			fmt.Fprintf(&sb, "%d. %s (confidence %.2f)", i+1, c.Diagnosis, c.Confidence)
			if patterns := distinctPatterns(c.Patterns); len(patterns) > 0 {
				fmt.Fprintf(&sb, ": %s", strings.Join(patterns, "; "))
			}
			sb.WriteString("\n")
		}
	}

	if report.Coverage.Reduced {
		fmt.Fprintf(&sb, "\nCoverage is reduced: %d of %d rules could not be evaluated for missing parameters.\n",
			len(report.Coverage.Skipped), report.Coverage.RulesTotal)
	}

	sb.WriteString("\nThis is an automated screening summary. Discuss critical or abnormal values with the " +
		"treating physician and interpret them alongside symptoms and history.")
	return sb.String(), nil
}

var _ domain.NarrativeGenerator = (*LocalGenerator)(nil)
