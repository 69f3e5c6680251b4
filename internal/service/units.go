package service

import (
	"strings"

	"github.com/cbc-interpretation-server/internal/domain"
)

// Units are folded in two passes: characters first, then volume spellings.
var (
	unitCharFolder = strings.NewReplacer(
		"µ", "u", "μ", "u",
		"×", "x", "*", "",
		"⁰", "0", "¹", "1", "²", "2", "³", "3", "⁴", "4",
		"⁵", "5", "⁶", "6", "⁷", "7", "⁸", "8", "⁹", "9",
		"^", "", " ", "", "\t", "",
	)
	unitWordFolder = strings.NewReplacer(
		"/cumm", "/ul", "/cmm", "/ul", "/mm3", "/ul", "/microl", "/ul",
		"10e", "10",
	)
)

// conversions maps a folded unit to the factor that converts it to the canonical unit.
var conversions = map[domain.Parameter]map[string]float64{
	domain.RBC: {
		"1012/l": 1, "106/ul": 1, "m/ul": 1, "mil/ul": 1, "million/ul": 1, "millions/ul": 1,
		"/ul": 1e-6, "cells/ul": 1e-6,
	},
	domain.Hemoglobin: hemoglobinUnits,
	domain.MCHC:       hemoglobinUnits,
	domain.Hematocrit: {
		"%": 1, "l/l": 100,
	},
	domain.MCV: volumeUnits,
	domain.MPV: volumeUnits,
	domain.MCH: {
		"pg": 1, "fmol": 16.114,
	},
	domain.RDW: percentUnits,
	domain.WBC: {
		"109/l": 1, "103/ul": 1, "k/ul": 1, "thousand/ul": 1, "/nl": 1,
		"/ul": 0.001, "cells/ul": 0.001,
	},
	domain.Neutrophils: percentUnits,
	domain.Lymphocytes: percentUnits,
	domain.Monocytes:   percentUnits,
	domain.Eosinophils: percentUnits,
	domain.Basophils:   percentUnits,
	domain.Platelets: {
		"109/l": 1, "103/ul": 1, "k/ul": 1, "thousand/ul": 1,
		"/ul": 0.001, "cells/ul": 0.001,
		"lakh/ul": 100, "lakhs/ul": 100,
	},
	domain.Reticulocytes: percentUnits,
}

var (
	hemoglobinUnits = map[string]float64{"g/dl": 1, "gm/dl": 1, "g%": 1, "gm%": 1, "g/l": 0.1, "mmol/l": 1.611}
	volumeUnits     = map[string]float64{"fl": 1, "um3": 1}
	percentUnits    = map[string]float64{"%": 1}
)

// plausibilityCeilings are hard upper limits in canonical units; anything above is a
// transcription or unit error rather than a measurement.
var plausibilityCeilings = map[domain.Parameter]float64{
	domain.RBC:           15,
	domain.Hemoglobin:    25,
	domain.Hematocrit:    100,
	domain.MCV:           200,
	domain.MCH:           80,
	domain.MCHC:          60,
	domain.RDW:           60,
	domain.WBC:           1000,
	domain.Neutrophils:   100,
	domain.Lymphocytes:   100,
	domain.Monocytes:     100,
	domain.Eosinophils:   100,
	domain.Basophils:     100,
	domain.Platelets:     5000,
	domain.MPV:           30,
	domain.Reticulocytes: 100,
}

// nonZero parameters never measure exactly zero in a real sample; a zero is a missing
// value written as 0.
var nonZero = map[domain.Parameter]bool{
	domain.RBC:        true,
	domain.Hemoglobin: true,
	domain.Hematocrit: true,
	domain.MCV:        true,
	domain.MCH:        true,
	domain.MCHC:       true,
	domain.RDW:        true,
	domain.MPV:        true,
}

func foldUnit(unit string) string {
	u := unitCharFolder.Replace(strings.ToLower(strings.TrimSpace(unit)))
	u = unitWordFolder.Replace(u)
	return strings.TrimPrefix(u, "x")
}

// conversionFactor returns the factor from unit to param's canonical unit.
func conversionFactor(param domain.Parameter, unit string) (float64, bool) {
	table, ok := conversions[param]
	if !ok {
		return 0, false
	}
	key := foldUnit(unit)
	if key == foldUnit(param.CanonicalUnit()) {
		return 1, true
	}
	f, ok := table[key]
	return f, ok
}
