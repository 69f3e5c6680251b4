package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
)

func readingSet(values map[domain.Parameter]float64) map[domain.Parameter]domain.NormalizedReading {
	out := make(map[domain.Parameter]domain.NormalizedReading, len(values))
	for p, v := range values {
		out[p] = domain.NormalizedReading{Parameter: p, Value: v, Unit: p.CanonicalUnit(), OriginalValue: v, OriginalUnit: p.CanonicalUnit()}
	}
	return out
}

func flagKinds(flags []domain.QualityFlag) []domain.FlagKind {
	kinds := make([]domain.FlagKind, len(flags))
	for i, f := range flags {
		kinds[i] = f.Kind
	}
	return kinds
}

func TestRuleOfThrees(t *testing.T) {
	q := NewQualityAssessor(domain.DefaultInterpretationConfig())

	tests := []struct {
		name     string
		values   map[domain.Parameter]float64
		expected []domain.FlagKind
	}{
		{
			name:     "consistent",
			values:   map[domain.Parameter]float64{domain.RBC: 4.67, domain.Hemoglobin: 14.0, domain.Hematocrit: 42},
			expected: []domain.FlagKind{},
		},
		{
			name:     "deviation exactly at tolerance passes",
			values:   map[domain.Parameter]float64{domain.RBC: 5.0, domain.Hemoglobin: 15.45},
			expected: []domain.FlagKind{},
		},
		{
			name:     "deviation just above tolerance",
			values:   map[domain.Parameter]float64{domain.RBC: 5.0, domain.Hemoglobin: 15.46},
			expected: []domain.FlagKind{domain.FlagRuleOfThreesViolation},
		},
		{
			name:     "hemoglobin far from three times RBC",
			values:   map[domain.Parameter]float64{domain.RBC: 4.5, domain.Hemoglobin: 9.0},
			expected: []domain.FlagKind{domain.FlagRuleOfThreesViolation},
		},
		{
			name:     "both relations broken",
			values:   map[domain.Parameter]float64{domain.RBC: 4.5, domain.Hemoglobin: 9.0, domain.Hematocrit: 40},
			expected: []domain.FlagKind{domain.FlagRuleOfThreesViolation, domain.FlagRuleOfThreesViolation},
		},
		{
			name:     "single parameter cannot be checked",
			values:   map[domain.Parameter]float64{domain.Hemoglobin: 9.0},
			expected: []domain.FlagKind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := q.Assess(readingSet(tt.values))
			assert.Equal(t, tt.expected, flagKinds(flags))
		})
	}
}

func TestSupplementaryQualityChecks(t *testing.T) {
	q := NewQualityAssessor(domain.DefaultInterpretationConfig())

	tests := []struct {
		name     string
		values   map[domain.Parameter]float64
		expected []domain.FlagKind
	}{
		{
			name:     "implausible MCHC",
			values:   map[domain.Parameter]float64{domain.MCHC: 41},
			expected: []domain.FlagKind{domain.FlagImplausibleRelationship},
		},
		{
			name:     "MCHC on plausibility bound",
			values:   map[domain.Parameter]float64{domain.MCHC: 38},
			expected: []domain.FlagKind{},
		},
		{
			name:     "hematocrit index mismatch",
			values:   map[domain.Parameter]float64{domain.RBC: 4.0, domain.MCV: 90, domain.Hematocrit: 45},
			expected: []domain.FlagKind{domain.FlagHematocritIndexMismatch},
		},
		{
			name: "differential sum off",
			values: map[domain.Parameter]float64{
				domain.Neutrophils: 60, domain.Lymphocytes: 30, domain.Monocytes: 5,
				domain.Eosinophils: 10, domain.Basophils: 1,
			},
			expected: []domain.FlagKind{domain.FlagDifferentialSumMismatch},
		},
		{
			name: "differential sum within slack",
			values: map[domain.Parameter]float64{
				domain.Neutrophils: 60, domain.Lymphocytes: 30, domain.Monocytes: 5,
				domain.Eosinophils: 3, domain.Basophils: 1,
			},
			expected: []domain.FlagKind{},
		},
		{
			name:     "incomplete differential is not summed",
			values:   map[domain.Parameter]float64{domain.Neutrophils: 90, domain.Lymphocytes: 30},
			expected: []domain.FlagKind{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, flagKinds(q.Assess(readingSet(tt.values))))
		})
	}
}

func TestAssessIsOrderIndependent(t *testing.T) {
	q := NewQualityAssessor(domain.DefaultInterpretationConfig())
	values := map[domain.Parameter]float64{
		domain.RBC: 4.5, domain.Hemoglobin: 9.0, domain.Hematocrit: 40, domain.MCV: 70, domain.MCHC: 41,
	}

	first := q.Assess(readingSet(values))
	require.NotEmpty(t, first)

	// maps are rebuilt each time, so insertion and iteration order vary between runs
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, q.Assess(readingSet(values)))
	}
}
