package service

import (
	"fmt"
	"strings"

	"github.com/cbc-interpretation-server/internal/domain"
)

// AbnormalityClassifier compares normalized readings against reference intervals.
type AbnormalityClassifier struct {
	table    domain.ReferenceTable
	moderate float64
	severe   float64
}

// NewAbnormalityClassifier creates a classifier bound to an immutable reference table.
func NewAbnormalityClassifier(table domain.ReferenceTable, cfg domain.InterpretationConfig) *AbnormalityClassifier {
	return &AbnormalityClassifier{
		table:    table,
		moderate: cfg.ModerateThreshold,
		severe:   cfg.SevereThreshold,
	}
}

// Classify tags every reading outside its interval. Tags come out in canonical parameter
// order. A nil patient selects the adult unisex interval and raises MissingPatientContext.
func (c *AbnormalityClassifier) Classify(
	readings map[domain.Parameter]domain.NormalizedReading,
	patient *domain.PatientContext,
) (domain.ClassificationResult, error) {
	result := domain.ClassificationResult{
		Tags:  make([]domain.AbnormalityTag, 0),
		Flags: make([]domain.QualityFlag, 0),
	}

	sex, band := domain.SexUnspecified, domain.AgeBandAdult
	if patient == nil {
		result.DefaultContextApplied = true
		result.Flags = append(result.Flags, domain.QualityFlag{
			Kind:       domain.FlagMissingPatientContext,
			Severity:   domain.FlagSeverityInfo,
			Rationale:  "no patient age or sex supplied; adult unisex reference intervals applied",
			Parameters: []domain.Parameter{},
		})
	} else {
		sex, band = patient.Sex, domain.AgeBandFor(patient.Age)
		if !sex.IsValid() {
			sex = domain.SexUnspecified
		}
	}

	var substituted, critical []domain.Parameter
	for _, p := range domain.AllParameters() {
		reading, ok := readings[p]
		if !ok {
			continue
		}
		lookup, ok := c.table.Lookup(p, sex, band)
		if !ok {
			cfgErr := domain.NewConfigurationError("reference table", "no interval for %s", p)
			cfgErr.Parameters = []domain.Parameter{p}
			return result, cfgErr
		}
		if lookup.Substituted && patient != nil {
			substituted = append(substituted, p)
		}

		tag, abnormal := c.classifyReading(reading, lookup.Interval)
		if !abnormal {
			continue
		}
		if tag.Critical {
			critical = append(critical, p)
		}
		result.Tags = append(result.Tags, tag)
	}

	if len(substituted) > 0 {
		result.Flags = append(result.Flags, domain.QualityFlag{
			Kind:     domain.FlagDefaultRangeSubstituted,
			Severity: domain.FlagSeverityInfo,
			Rationale: fmt.Sprintf("no %s/%s interval for %s; adult unisex interval substituted",
				sex, band, joinParams(substituted)),
			Parameters: substituted,
		})
	}
	if len(critical) > 0 {
		result.Flags = append(result.Flags, domain.QualityFlag{
			Kind:       domain.FlagCriticalValue,
			Severity:   domain.FlagSeverityCritical,
			Rationale:  fmt.Sprintf("critical values for %s require immediate review", joinParams(critical)),
			Parameters: critical,
		})
	}

	return result, nil
}

// classifyReading returns the tag for a reading, or false when it lies within bounds.
func (c *AbnormalityClassifier) classifyReading(r domain.NormalizedReading, iv domain.ReferenceInterval) (domain.AbnormalityTag, bool) {
	if iv.Contains(r.Value) {
		return domain.AbnormalityTag{}, false
	}

	direction, distance := domain.DirectionLow, iv.Low-r.Value
	if r.Value > iv.High {
		direction, distance = domain.DirectionHigh, r.Value-iv.High
	}

	magnitude := round(distance/iv.HalfWidth(), 4)
	tag := domain.AbnormalityTag{
		Parameter: r.Parameter,
		Direction: direction,
		Severity:  c.severityFor(magnitude),
		Magnitude: magnitude,
		Value:     r.Value,
		Low:       iv.Low,
		High:      iv.High,
		Unit:      iv.Unit,
	}
	if iv.CriticalLow != nil && r.Value < *iv.CriticalLow {
		tag.Critical = true
	}
	if iv.CriticalHigh != nil && r.Value > *iv.CriticalHigh {
		tag.Critical = true
	}
	return tag, true
}

// severityFor maps a magnitude to a tier; a value on a boundary takes the lower tier.
func (c *AbnormalityClassifier) severityFor(m float64) domain.Severity {
	switch {
	case m <= c.moderate:
		return domain.SeverityMild
	case m <= c.severe:
		return domain.SeverityModerate
	default:
		return domain.SeveritySevere
	}
}

func joinParams(ps []domain.Parameter) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.String()
	}
	return strings.Join(names, ", ")
}
