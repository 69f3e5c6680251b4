package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
)

func TestComposeCopiesAndOrders(t *testing.T) {
	c := NewReportComposer("test")
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	patient := &domain.PatientContext{Age: 30, Sex: domain.SexFemale}
	flags := []domain.QualityFlag{{Kind: domain.FlagCriticalValue, Parameters: []domain.Parameter{domain.WBC}}}
	tags := []domain.AbnormalityTag{
		tag(domain.Platelets, domain.DirectionHigh, domain.SeverityMild, 0.2),
		tag(domain.Hemoglobin, domain.DirectionLow, domain.SeverityMild, 0.5),
	}
	diffs := []domain.DifferentialCandidate{
		{Diagnosis: "b", Confidence: 0.4, Rules: []string{"r2"}},
		{Diagnosis: "a", Confidence: 0.6, Rules: []string{"r1"}},
	}

	report := c.Compose(ComposeInput{
		ID:      "r-1",
		Stage:   domain.StageFinalized,
		Patient: patient,
		Readings: readingSet(map[domain.Parameter]float64{
			domain.Platelets: 500, domain.Hemoglobin: 12, domain.RBC: 4.2,
		}),
		QualityFlags:  flags,
		Tags:          tags,
		Differentials: diffs,
	})

	require.Len(t, report.Readings, 3)
	assert.Equal(t, domain.RBC, report.Readings[0].Parameter)
	assert.Equal(t, domain.Platelets, report.Readings[2].Parameter)
	assert.Equal(t, domain.Hemoglobin, report.AbnormalityTags[0].Parameter)
	assert.Equal(t, "a", report.Differentials[0].Diagnosis)
	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, "test", report.EngineVersion)
	assert.NotNil(t, report.Coverage.Skipped)

	// mutating inputs must not leak into the report
	patient.Age = 99
	flags[0].Parameters[0] = domain.RBC
	tags[0].Magnitude = 42
	diffs[0].Rules[0] = "mutated"

	assert.Equal(t, 30, report.PatientContext.Age)
	assert.Equal(t, domain.WBC, report.QualityFlags[0].Parameters[0])
	assert.InDelta(t, 0.2, report.AbnormalityTags[1].Magnitude, 1e-9)
	assert.Equal(t, "r2", report.Differentials[1].Rules[0])
}
