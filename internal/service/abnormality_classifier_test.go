package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/reference"
)

func newTestClassifier(t *testing.T) (*AbnormalityClassifier, *reference.Table) {
	t.Helper()
	table, err := reference.LoadDefault()
	require.NoError(t, err)
	return NewAbnormalityClassifier(table, domain.DefaultInterpretationConfig()), table
}

func TestClassifyBoundsAreInclusive(t *testing.T) {
	c, table := newTestClassifier(t)

	for _, iv := range table.Intervals() {
		patient := &domain.PatientContext{Age: 30, Sex: iv.Sex}
		band := iv.AgeBands[0]
		switch band {
		case domain.AgeBandInfant:
			patient.Age = 0
		case domain.AgeBandChild:
			patient.Age = 6
		case domain.AgeBandAdolescent:
			patient.Age = 15
		case domain.AgeBandSenior:
			patient.Age = 70
		}

		for _, v := range []float64{iv.Low, iv.High} {
			res, err := c.Classify(readingSet(map[domain.Parameter]float64{iv.Parameter: v}), patient)
			require.NoError(t, err)
			assert.Empty(t, res.Tags, "%s %s/%s value %g on bound", iv.Parameter, iv.Sex, band, v)
		}

		below, err := c.Classify(readingSet(map[domain.Parameter]float64{iv.Parameter: iv.Low - 0.01}), patient)
		require.NoError(t, err)
		if iv.Low-0.01 >= 0 {
			require.Len(t, below.Tags, 1)
			assert.Equal(t, domain.DirectionLow, below.Tags[0].Direction)
		}

		above, err := c.Classify(readingSet(map[domain.Parameter]float64{iv.Parameter: iv.High + 0.01}), patient)
		require.NoError(t, err)
		require.Len(t, above.Tags, 1)
		assert.Equal(t, domain.DirectionHigh, above.Tags[0].Direction)
	}
}

func TestClassifySeverityTiers(t *testing.T) {
	c, _ := newTestClassifier(t)
	male := &domain.PatientContext{Age: 40, Sex: domain.SexMale}

	// adult male hemoglobin is 13.5-17.5, half-width 2
	tests := []struct {
		value     float64
		severity  domain.Severity
		magnitude float64
		direction domain.Direction
	}{
		{13.0, domain.SeverityMild, 0.25, domain.DirectionLow},
		{11.5, domain.SeverityMild, 1.0, domain.DirectionLow},
		{11.49, domain.SeverityModerate, 1.005, domain.DirectionLow},
		{9.5, domain.SeverityModerate, 2.0, domain.DirectionLow},
		{9.4, domain.SeveritySevere, 2.05, domain.DirectionLow},
		{19.5, domain.SeverityMild, 1.0, domain.DirectionHigh},
		{22.0, domain.SeveritySevere, 2.25, domain.DirectionHigh},
	}

	for _, tt := range tests {
		res, err := c.Classify(readingSet(map[domain.Parameter]float64{domain.Hemoglobin: tt.value}), male)
		require.NoError(t, err)
		require.Len(t, res.Tags, 1, "value %g", tt.value)
		tag := res.Tags[0]
		assert.Equal(t, tt.severity, tag.Severity, "value %g", tt.value)
		assert.InDelta(t, tt.magnitude, tag.Magnitude, 1e-9, "value %g", tt.value)
		assert.Equal(t, tt.direction, tag.Direction)
		assert.Equal(t, 13.5, tag.Low)
		assert.Equal(t, 17.5, tag.High)
		assert.Equal(t, "g/dL", tag.Unit)
	}
}

func TestClassifyContextFlags(t *testing.T) {
	c, _ := newTestClassifier(t)

	t.Run("missing context", func(t *testing.T) {
		res, err := c.Classify(readingSet(map[domain.Parameter]float64{domain.RBC: 4.7}), nil)
		require.NoError(t, err)
		assert.True(t, res.DefaultContextApplied)
		assert.Equal(t, []domain.FlagKind{domain.FlagMissingPatientContext}, flagKinds(res.Flags))
	})

	t.Run("unisex default is narrower than sex-specific", func(t *testing.T) {
		readings := readingSet(map[domain.Parameter]float64{domain.RBC: 4.2})
		res, err := c.Classify(readings, nil)
		require.NoError(t, err)
		require.Len(t, res.Tags, 1)

		res, err = c.Classify(readings, &domain.PatientContext{Age: 30, Sex: domain.SexFemale})
		require.NoError(t, err)
		assert.Empty(t, res.Tags)
		assert.False(t, res.DefaultContextApplied)
	})

	t.Run("default range substituted", func(t *testing.T) {
		res, err := c.Classify(
			readingSet(map[domain.Parameter]float64{domain.MCHC: 33, domain.Hemoglobin: 12}),
			&domain.PatientContext{Age: 6, Sex: domain.SexFemale},
		)
		require.NoError(t, err)
		require.Equal(t, []domain.FlagKind{domain.FlagDefaultRangeSubstituted}, flagKinds(res.Flags))
		assert.Equal(t, []domain.Parameter{domain.MCHC}, res.Flags[0].Parameters)
	})

	t.Run("critical value", func(t *testing.T) {
		res, err := c.Classify(
			readingSet(map[domain.Parameter]float64{domain.Hemoglobin: 6.5, domain.Platelets: 30}),
			&domain.PatientContext{Age: 50, Sex: domain.SexMale},
		)
		require.NoError(t, err)
		require.Len(t, res.Tags, 2)
		assert.True(t, res.Tags[0].Critical)
		assert.True(t, res.Tags[1].Critical)
		require.Equal(t, []domain.FlagKind{domain.FlagCriticalValue}, flagKinds(res.Flags))
		assert.Equal(t, domain.FlagSeverityCritical, res.Flags[0].Severity)
		assert.Equal(t, []domain.Parameter{domain.Hemoglobin, domain.Platelets}, res.Flags[0].Parameters)
	})
}

func TestClassifyIsDeterministic(t *testing.T) {
	c, _ := newTestClassifier(t)
	values := map[domain.Parameter]float64{
		domain.Reticulocytes: 4, domain.Hemoglobin: 10, domain.MCV: 70, domain.RDW: 16,
		domain.WBC: 15, domain.Platelets: 500, domain.RBC: 4.0, domain.Eosinophils: 9,
	}

	first, err := c.Classify(readingSet(values), nil)
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first.Tags)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := c.Classify(readingSet(values), nil)
		require.NoError(t, err)
		againJSON, err := json.Marshal(again.Tags)
		require.NoError(t, err)
		assert.Equal(t, string(firstJSON), string(againJSON))
	}

	for i := 1; i < len(first.Tags); i++ {
		assert.Less(t, first.Tags[i-1].Parameter.Order(), first.Tags[i].Parameter.Order())
	}
}
