package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbc-interpretation-server/internal/domain"
)

const sampleReport = `CITY DIAGNOSTICS - COMPLETE BLOOD COUNT
Patient: J. Doe          Collected: 12/03/2024
Test                     Result    Unit        Reference
Hemoglobin (Hb)          10.2  L   g/dL        13.5 - 17.5
Total RBC Count          4.8       x 10^12/L   4.5 - 5.9
PCV                      33.1      %           41 - 53
MCV                      69        fL          80 - 100
MCH: 21.3 pg
MCHC = 30.8 g/dL
RDW-CV                   17.9 H    %           11.5 - 14.5
Total Leukocyte Count    7,400     /cumm       4000 - 11000
Neutrophils (%)          62
Platelet Count           2,50,000  /cumm
HbA1c                    5.6       %
`

func TestExtractSampleReport(t *testing.T) {
	readings, err := NewTextExtractor().Extract(context.Background(), sampleReport)
	require.NoError(t, err)

	got := make(map[domain.Parameter]domain.RawReading, len(readings))
	for _, r := range readings {
		got[r.Parameter] = r
	}

	expected := []domain.RawReading{
		{Parameter: domain.Hemoglobin, Value: 10.2, Unit: "g/dL"},
		{Parameter: domain.RBC, Value: 4.8, Unit: "x10^12/L"},
		{Parameter: domain.Hematocrit, Value: 33.1, Unit: "%"},
		{Parameter: domain.MCV, Value: 69, Unit: "fL"},
		{Parameter: domain.MCH, Value: 21.3, Unit: "pg"},
		{Parameter: domain.MCHC, Value: 30.8, Unit: "g/dL"},
		{Parameter: domain.RDW, Value: 17.9, Unit: "%"},
		{Parameter: domain.WBC, Value: 7400, Unit: "/cumm"},
		{Parameter: domain.Neutrophils, Value: 62, Unit: "%"},
	}
	for _, want := range expected {
		r, ok := got[want.Parameter]
		if assert.True(t, ok, "missing %s", want.Parameter) {
			assert.InDelta(t, want.Value, r.Value, 1e-9, want.Parameter.String())
			assert.Equal(t, want.Unit, r.Unit, want.Parameter.String())
		}
	}

	// Indian lakh grouping is not a recognised number format
	_, hasPlatelets := got[domain.Platelets]
	assert.False(t, hasPlatelets)
	assert.Len(t, readings, len(expected))
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line  string
		ok    bool
		param domain.Parameter
		value float64
		unit  string
	}{
		{"Hb 14,5 g/dL", true, domain.Hemoglobin, 14.5, "g/dL"},
		{"Haemoglobin: 145 g/L", true, domain.Hemoglobin, 145, "g/L"},
		{"Platelets 250,000 /uL", true, domain.Platelets, 250000, "/uL"},
		{"PLT 1,250.5 10^9/L", true, domain.Platelets, 1250.5, "10^9/L"},
		{"WBC 7.2 10^9/L", true, domain.WBC, 7.2, "10^9/L"},
		{"Hemoglobin 14.5 (13.5-17.5)", true, domain.Hemoglobin, 14.5, "g/dL"},
		{"Hemoglobin 14.5 13.5 - 17.5", true, domain.Hemoglobin, 14.5, "g/dL"},
		{"MPV 9.1fL", true, domain.MPV, 9.1, "fL"},
		{"Retic - 1.2 %", true, domain.Reticulocytes, 1.2, "%"},
		{"HbA1c 5.6 %", false, "", 0, ""},
		{"Collected: 12/03/2024", false, "", 0, ""},
		{"ESR 12 mm/hr", false, "", 0, ""},
		{"Neutrophils", false, "", 0, ""},
		{"", false, "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r, ok := parseLine(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.param, r.Parameter)
			assert.InDelta(t, tt.value, r.Value, 1e-9)
			assert.Equal(t, tt.unit, r.Unit)
		})
	}
}

func TestExtractKeepsDuplicates(t *testing.T) {
	readings, err := NewTextExtractor().Extract(context.Background(), "Hb 10 g/dL\nHemoglobin 11 g/dL\n")
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, domain.Hemoglobin, readings[0].Parameter)
	assert.Equal(t, domain.Hemoglobin, readings[1].Parameter)
}

func TestExtractNoReadings(t *testing.T) {
	_, err := NewTextExtractor().Extract(context.Background(), "nothing to see here\nTSH 2.1 mIU/L\n")
	assert.ErrorIs(t, err, ErrNoReadings)
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewTextExtractor().Extract(ctx, sampleReport)
	assert.ErrorIs(t, err, context.Canceled)
}
