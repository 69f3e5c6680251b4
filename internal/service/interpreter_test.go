package service

import (
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/reference"
	"github.com/cbc-interpretation-server/internal/rulebase"
)

func newTestInterpreter(t *testing.T) *Interpreter {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	table, err := reference.LoadDefault()
	require.NoError(t, err)
	rules, err := rulebase.LoadDefault()
	require.NoError(t, err)

	interp, err := NewInterpreter(logger, table, rules, domain.DefaultInterpretationConfig())
	require.NoError(t, err)
	return interp
}

func diagnoses(report *domain.Report) []string {
	out := make([]string, len(report.Differentials))
	for i, d := range report.Differentials {
		out[i] = d.Diagnosis
	}
	return out
}

func TestScenarioNormalAdultMale(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "Hemoglobin", Value: 14.0, Unit: "g/dL"},
			{Parameter: "Hematocrit", Value: 42, Unit: "%"},
			{Parameter: "RBC", Value: 4.67, Unit: "10^12/L"},
			{Parameter: "MCV", Value: 90, Unit: "fL"},
			{Parameter: "WBC", Value: 7.0, Unit: "10^9/L"},
			{Parameter: "Platelets", Value: 250, Unit: "10^9/L"},
		},
		Patient: &domain.PatientContext{Age: 35, Sex: domain.SexMale},
	})

	assert.Equal(t, domain.StageFinalized, report.Stage)
	assert.Empty(t, report.QualityFlags)
	assert.Empty(t, report.AbnormalityTags)
	assert.Empty(t, report.Differentials)
	assert.Nil(t, report.Failure)
	assert.False(t, report.DefaultContextApplied)
	assert.Len(t, report.Readings, 6)
	assert.NotEmpty(t, report.ID)
	assert.Equal(t, EngineVersion, report.EngineVersion)
}

func TestScenarioMicrocyticAnemia(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "Hemoglobin", Value: 10.0, Unit: "g/dL"},
			{Parameter: "Hematocrit", Value: 30, Unit: "%"},
			{Parameter: "RBC", Value: 4.0, Unit: "10^12/L"},
			{Parameter: "MCV", Value: 70, Unit: "fL"},
			{Parameter: "RDW", Value: 16, Unit: "%"},
		},
	})

	require.Equal(t, domain.StageFinalized, report.Stage)
	assert.True(t, report.DefaultContextApplied)
	assert.True(t, report.HasFlag(domain.FlagMissingPatientContext))

	expected := []struct {
		param domain.Parameter
		dir   domain.Direction
	}{
		{domain.RBC, domain.DirectionLow},
		{domain.Hemoglobin, domain.DirectionLow},
		{domain.Hematocrit, domain.DirectionLow},
		{domain.MCV, domain.DirectionLow},
		{domain.RDW, domain.DirectionHigh},
	}
	require.Len(t, report.AbnormalityTags, len(expected))
	for i, e := range expected {
		assert.Equal(t, e.param, report.AbnormalityTags[i].Parameter)
		assert.Equal(t, e.dir, report.AbnormalityTags[i].Direction)
	}

	names := diagnoses(report)
	require.Contains(t, names, "iron deficiency anemia")
	require.Contains(t, names, "thalassemia trait")
	ida, thal := -1, -1
	for i, n := range names {
		switch n {
		case "iron deficiency anemia":
			ida = i
		case "thalassemia trait":
			thal = i
		}
	}
	assert.Less(t, ida, thal)
	assert.Greater(t, report.Differentials[ida].Confidence, report.Differentials[thal].Confidence)
	assert.True(t, report.Coverage.Reduced)
}

func TestScenarioRuleOfThreesViolation(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "RBC", Value: 4.5, Unit: "10^12/L"},
			{Parameter: "Hemoglobin", Value: 9.0, Unit: "g/dL"},
		},
	})

	require.Equal(t, domain.StageFinalized, report.Stage)
	assert.True(t, report.HasFlag(domain.FlagRuleOfThreesViolation))
	require.Len(t, report.AbnormalityTags, 1)
	assert.Equal(t, domain.Hemoglobin, report.AbnormalityTags[0].Parameter)
	assert.Equal(t, domain.DirectionLow, report.AbnormalityTags[0].Direction)
}

func TestScenarioMissingHemoglobin(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "RBC", Value: 4.5, Unit: "10^12/L"},
			{Parameter: "MCV", Value: 90, Unit: "fL"},
		},
		Patient: &domain.PatientContext{Age: 40, Sex: domain.SexFemale},
	})

	assert.Equal(t, domain.StageError, report.Stage)
	require.NotNil(t, report.Failure)
	assert.Equal(t, domain.StageNormalizing, report.Failure.Stage)
	assert.Equal(t, domain.ErrCodeInput, report.Failure.Code)
	assert.Equal(t, []domain.Parameter{domain.Hemoglobin}, report.Failure.Parameters)
	assert.Contains(t, report.Failure.Message, "Hemoglobin")
	assert.Empty(t, report.AbnormalityTags)
	assert.Empty(t, report.Differentials)
}

func TestInterpretRangeViolationFails(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "Hemoglobin", Value: 14, Unit: "g/dL"},
			{Parameter: "WBC", Value: 5000, Unit: "10^9/L"},
			{Parameter: "MCV", Value: 90, Unit: "cubits"},
		},
	})

	assert.Equal(t, domain.StageError, report.Stage)
	require.NotNil(t, report.Failure)
	assert.Equal(t, domain.ErrCodeUnitConversion, report.Failure.Code)
	assert.Equal(t, []domain.Parameter{domain.MCV, domain.WBC}, report.Failure.Parameters)
}

func TestInterpretZeroRedCellCountFails(t *testing.T) {
	interp := newTestInterpreter(t)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "RBC", Value: 0, Unit: "10^12/L"},
			{Parameter: "Hemoglobin", Value: 14, Unit: "g/dL"},
		},
	})

	assert.Equal(t, domain.StageError, report.Stage)
	require.NotNil(t, report.Failure)
	assert.Equal(t, domain.StageNormalizing, report.Failure.Stage)
	assert.Equal(t, domain.ErrCodeRangeViolation, report.Failure.Code)
	assert.Equal(t, []domain.Parameter{domain.RBC}, report.Failure.Parameters)
}

func TestInterpretClassificationFailureKeepsEarlierResults(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	table, err := reference.NewTable("hb-only", []domain.ReferenceInterval{
		{Parameter: domain.Hemoglobin, Low: 12, High: 16, Unit: "g/dL", Sex: domain.SexUnspecified},
	})
	require.NoError(t, err)
	rules, err := rulebase.LoadDefault()
	require.NoError(t, err)

	interp, err := NewInterpreter(logger, table, rules, domain.DefaultInterpretationConfig())
	require.NoError(t, err)

	report := interp.Interpret(domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "RBC", Value: 4.0, Unit: "10^12/L"},
			{Parameter: "Hemoglobin", Value: 15, Unit: "g/dL"},
		},
	})

	assert.Equal(t, domain.StageError, report.Stage)
	require.NotNil(t, report.Failure)
	assert.Equal(t, domain.StageClassified, report.Failure.Stage)
	assert.Equal(t, domain.ErrCodeConfiguration, report.Failure.Code)
	assert.Equal(t, []domain.Parameter{domain.RBC}, report.Failure.Parameters)
	assert.Contains(t, report.Failure.Message, "RBC")

	assert.True(t, report.HasFlag(domain.FlagRuleOfThreesViolation))
	assert.Len(t, report.Readings, 2)
	assert.Empty(t, report.Differentials)
}

func TestInterpretIsDeterministic(t *testing.T) {
	interp := newTestInterpreter(t)
	req := domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "Hemoglobin", Value: 9.1, Unit: "g/dL"},
			{Parameter: "MCV", Value: 112, Unit: "fL"},
			{Parameter: "RDW", Value: 17.2, Unit: "%"},
			{Parameter: "WBC", Value: 3.1, Unit: "10^9/L"},
			{Parameter: "Platelets", Value: 120, Unit: "10^9/L"},
			{Parameter: "MPV", Value: 9, Unit: "fL"},
		},
		Patient: &domain.PatientContext{Age: 70, Sex: domain.SexFemale},
	}

	// id and timestamp differ per run by construction
	encode := func(r *domain.Report) string {
		b, err := json.Marshal(struct {
			Tags  []domain.AbnormalityTag
			Flags []domain.QualityFlag
			Diffs []domain.DifferentialCandidate
			Cover domain.Coverage
			Stage domain.Stage
		}{r.AbnormalityTags, r.QualityFlags, r.Differentials, r.Coverage, r.Stage})
		require.NoError(t, err)
		return string(b)
	}

	first := encode(interp.Interpret(req))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, encode(interp.Interpret(req)))
	}
}

func TestInterpretConcurrentUse(t *testing.T) {
	interp := newTestInterpreter(t)
	req := domain.InterpretationRequest{
		Readings: []domain.RawReading{
			{Parameter: "Hemoglobin", Value: 10.0, Unit: "g/dL"},
			{Parameter: "MCV", Value: 70, Unit: "fL"},
			{Parameter: "RDW", Value: 16, Unit: "%"},
		},
	}
	baseline := interp.Interpret(req)

	var wg sync.WaitGroup
	errs := make(chan string, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := interp.Interpret(req)
			if r.Stage != domain.StageFinalized || len(r.Differentials) != len(baseline.Differentials) {
				errs <- r.ID
			}
		}()
	}
	wg.Wait()
	close(errs)

	for id := range errs {
		t.Errorf("report %s diverged under concurrency", id)
	}
}

func TestNewInterpreterRejectsBadConfig(t *testing.T) {
	table, err := reference.LoadDefault()
	require.NoError(t, err)
	rules, err := rulebase.LoadDefault()
	require.NoError(t, err)

	cfg := domain.DefaultInterpretationConfig()
	cfg.MandatoryParameters = []string{"Ferritin"}
	_, err = NewInterpreter(logrus.New(), table, rules, cfg)
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	cfg = domain.DefaultInterpretationConfig()
	cfg.SevereThreshold = 0.5
	_, err = NewInterpreter(logrus.New(), table, rules, cfg)
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewInterpreter(logrus.New(), nil, rules, domain.DefaultInterpretationConfig())
	assert.Error(t, err)
}

func TestNewInterpreterFromConfig(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)

	interp, err := NewInterpreterFromConfig(logger, domain.DefaultInterpretationConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, interp.Table().Version())
	assert.Equal(t, 21, interp.Rules().Len())

	cfg := domain.DefaultInterpretationConfig()
	cfg.RulesFile = filepath.Join(t.TempDir(), "absent.yaml")
	_, err = NewInterpreterFromConfig(logger, cfg)
	assert.ErrorContains(t, err, "failed to load rule base")
}
