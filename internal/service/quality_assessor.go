package service

import (
	"fmt"
	"math"

	"github.com/cbc-interpretation-server/internal/domain"
)

// QualityAssessor runs internal-consistency checks over a normalized reading set.
// Checks run in a fixed order and never block later stages.
type QualityAssessor struct {
	tolerance    float64
	mchcLow      float64
	mchcHigh     float64
	hctTolerance float64
	diffSlack    float64
}

// NewQualityAssessor creates an assessor from the engine configuration.
func NewQualityAssessor(cfg domain.InterpretationConfig) *QualityAssessor {
	return &QualityAssessor{
		tolerance:    cfg.RuleOfThreesTolerance,
		mchcLow:      cfg.MCHCPlausibleLow,
		mchcHigh:     cfg.MCHCPlausibleHigh,
		hctTolerance: cfg.HematocritTolerance,
		diffSlack:    cfg.DifferentialSumSlack,
	}
}

// Assess returns every quality flag raised by the readings. It is idempotent and
// independent of map iteration order.
func (q *QualityAssessor) Assess(readings map[domain.Parameter]domain.NormalizedReading) []domain.QualityFlag {
	flags := make([]domain.QualityFlag, 0)

	value := func(p domain.Parameter) (float64, bool) {
		r, ok := readings[p]
		return r.Value, ok
	}

	rbc, hasRBC := value(domain.RBC)
	hb, hasHb := value(domain.Hemoglobin)
	hct, hasHct := value(domain.Hematocrit)

	// Hemoglobin ~ 3 x RBC
	if hasRBC && hasHb && rbc > 0 {
		if dev := relativeDeviation(hb, 3*rbc); dev > q.tolerance {
			flags = append(flags, domain.QualityFlag{
				Kind:     domain.FlagRuleOfThreesViolation,
				Severity: domain.FlagSeverityWarning,
				Rationale: fmt.Sprintf("hemoglobin %.4g g/dL deviates %.1f%% from 3 x RBC (%.4g); tolerance %.1f%%",
					hb, dev*100, 3*rbc, q.tolerance*100),
				Parameters: []domain.Parameter{domain.RBC, domain.Hemoglobin},
			})
		}
	}

	// Hematocrit ~ 3 x Hemoglobin
	if hasHb && hasHct && hb > 0 {
		if dev := relativeDeviation(hct, 3*hb); dev > q.tolerance {
			flags = append(flags, domain.QualityFlag{
				Kind:     domain.FlagRuleOfThreesViolation,
				Severity: domain.FlagSeverityWarning,
				Rationale: fmt.Sprintf("hematocrit %.4g%% deviates %.1f%% from 3 x hemoglobin (%.4g); tolerance %.1f%%",
					hct, dev*100, 3*hb, q.tolerance*100),
				Parameters: []domain.Parameter{domain.Hemoglobin, domain.Hematocrit},
			})
		}
	}

	if mchc, ok := value(domain.MCHC); ok && (mchc < q.mchcLow || mchc > q.mchcHigh) {
		flags = append(flags, domain.QualityFlag{
			Kind:     domain.FlagImplausibleRelationship,
			Severity: domain.FlagSeverityWarning,
			Rationale: fmt.Sprintf("MCHC %.4g g/dL outside the physiologically plausible range %.4g-%.4g",
				mchc, q.mchcLow, q.mchcHigh),
			Parameters: []domain.Parameter{domain.MCHC},
		})
	}

	if mcv, ok := value(domain.MCV); ok && hasRBC && hasHct && hct > 0 {
		computed := rbc * mcv / 10
		if dev := relativeDeviation(computed, hct); dev > q.hctTolerance {
			flags = append(flags, domain.QualityFlag{
				Kind:     domain.FlagHematocritIndexMismatch,
				Severity: domain.FlagSeverityWarning,
				Rationale: fmt.Sprintf("computed hematocrit RBC x MCV / 10 = %.4g%% differs %.1f%% from reported %.4g%%",
					computed, dev*100, hct),
				Parameters: []domain.Parameter{domain.RBC, domain.Hematocrit, domain.MCV},
			})
		}
	}

	diffs := []domain.Parameter{domain.Neutrophils, domain.Lymphocytes, domain.Monocytes, domain.Eosinophils, domain.Basophils}
	sum, complete := 0.0, true
	for _, p := range diffs {
		v, ok := value(p)
		if !ok {
			complete = false
			break
		}
		sum += v
	}
	if complete && roundDeviation(math.Abs(sum-100)) > q.diffSlack {
		flags = append(flags, domain.QualityFlag{
			Kind:       domain.FlagDifferentialSumMismatch,
			Severity:   domain.FlagSeverityWarning,
			Rationale:  fmt.Sprintf("leukocyte differential sums to %.4g%%, expected 100%% +/- %.4g", sum, q.diffSlack),
			Parameters: diffs,
		})
	}

	return flags
}

// relativeDeviation is |actual - expected| / expected, rounded so that a deviation equal
// to a decimal tolerance compares equal.
func relativeDeviation(actual, expected float64) float64 {
	return roundDeviation(math.Abs(actual-expected) / expected)
}

func roundDeviation(v float64) float64 {
	return round(v, 9)
}
