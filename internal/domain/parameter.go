package domain

import (
	"fmt"
	"strings"
)

// Parameter identifies one of the canonical CBC parameters.
type Parameter string

const (
	RBC           Parameter = "RBC"
	Hemoglobin    Parameter = "Hemoglobin"
	Hematocrit    Parameter = "Hematocrit"
	MCV           Parameter = "MCV"
	MCH           Parameter = "MCH"
	MCHC          Parameter = "MCHC"
	RDW           Parameter = "RDW"
	WBC           Parameter = "WBC"
	Neutrophils   Parameter = "Neutrophils"
	Lymphocytes   Parameter = "Lymphocytes"
	Monocytes     Parameter = "Monocytes"
	Eosinophils   Parameter = "Eosinophils"
	Basophils     Parameter = "Basophils"
	Platelets     Parameter = "Platelets"
	MPV           Parameter = "MPV"
	Reticulocytes Parameter = "Reticulocytes"
)

// canonicalOrder fixes the ordering of readings and tags in every report.
var canonicalOrder = []Parameter{
	RBC, Hemoglobin, Hematocrit, MCV, MCH, MCHC, RDW,
	WBC, Neutrophils, Lymphocytes, Monocytes, Eosinophils, Basophils,
	Platelets, MPV, Reticulocytes,
}

var parameterIndex = func() map[Parameter]int {
	idx := make(map[Parameter]int, len(canonicalOrder))
	for i, p := range canonicalOrder {
		idx[p] = i
	}
	return idx
}()

// parameterAliases maps normalized report labels to canonical parameters.
var parameterAliases = map[string]Parameter{
	"rbc": RBC, "redbloodcell": RBC, "redbloodcells": RBC, "redcellcount": RBC,
	"erythrocyte": RBC, "erythrocytes": RBC, "erythrocytecount": RBC, "totalrbc": RBC, "rbccount": RBC,

	"hemoglobin": Hemoglobin, "haemoglobin": Hemoglobin, "hb": Hemoglobin, "hgb": Hemoglobin,

	"hematocrit": Hematocrit, "haematocrit": Hematocrit, "hct": Hematocrit, "pcv": Hematocrit,
	"packedcellvolume": Hematocrit,

	"mcv": MCV, "meancorpuscularvolume": MCV, "meancellvolume": MCV,
	"mch": MCH, "meancorpuscularhemoglobin": MCH, "meancellhemoglobin": MCH,
	"mchc": MCHC, "meancorpuscularhemoglobinconcentration": MCHC, "meancellhemoglobinconcentration": MCHC,
	"rdw": RDW, "rdwcv": RDW, "redcelldistributionwidth": RDW,

	"wbc": WBC, "whitebloodcell": WBC, "whitebloodcells": WBC, "leucocyte": WBC, "leukocyte": WBC,
	"leucocytes": WBC, "leukocytes": WBC, "totalwbc": WBC, "tlc": WBC, "totalleukocytecount": WBC,
	"totalleucocytecount": WBC, "wbccount": WBC,

	"neutrophils": Neutrophils, "neutrophil": Neutrophils, "neut": Neutrophils, "segs": Neutrophils,
	"segmentedneutrophils": Neutrophils, "polymorphs": Neutrophils,
	"lymphocytes": Lymphocytes, "lymphocyte": Lymphocytes, "lymph": Lymphocytes, "lymphs": Lymphocytes,
	"monocytes": Monocytes, "monocyte": Monocytes, "mono": Monocytes, "monos": Monocytes,
	"eosinophils": Eosinophils, "eosinophil": Eosinophils, "eos": Eosinophils,
	"basophils": Basophils, "basophil": Basophils, "baso": Basophils,

	"platelets": Platelets, "platelet": Platelets, "plateletcount": Platelets, "plt": Platelets,
	"thrombocytes": Platelets, "thrombocytecount": Platelets,
	"mpv": MPV, "meanplateletvolume": MPV,

	"reticulocytes": Reticulocytes, "reticulocyte": Reticulocytes, "reticulocytecount": Reticulocytes,
	"retic": Reticulocytes, "retics": Reticulocytes,
}

var canonicalUnits = map[Parameter]string{
	RBC:           "10^12/L",
	Hemoglobin:    "g/dL",
	Hematocrit:    "%",
	MCV:           "fL",
	MCH:           "pg",
	MCHC:          "g/dL",
	RDW:           "%",
	WBC:           "10^9/L",
	Neutrophils:   "%",
	Lymphocytes:   "%",
	Monocytes:     "%",
	Eosinophils:   "%",
	Basophils:     "%",
	Platelets:     "10^9/L",
	MPV:           "fL",
	Reticulocytes: "%",
}

// CanonicalUnit is the unit every normalized value and reference interval is expressed in.
func (p Parameter) CanonicalUnit() string {
	return canonicalUnits[p]
}

// AllParameters returns the canonical parameter set in canonical order.
func AllParameters() []Parameter {
	out := make([]Parameter, len(canonicalOrder))
	copy(out, canonicalOrder)
	return out
}

// IsValid reports whether p belongs to the canonical set.
func (p Parameter) IsValid() bool {
	_, ok := parameterIndex[p]
	return ok
}

func (p Parameter) String() string {
	return string(p)
}

// Order is the position of p in the canonical ordering; unknown parameters sort last.
func (p Parameter) Order() int {
	if i, ok := parameterIndex[p]; ok {
		return i
	}
	return len(canonicalOrder)
}

// IsLeukocyteDifferential reports whether p is one of the five differential percentages.
func (p Parameter) IsLeukocyteDifferential() bool {
	switch p {
	case Neutrophils, Lymphocytes, Monocytes, Eosinophils, Basophils:
		return true
	default:
		return false
	}
}

// ParseParameter resolves a canonical identifier or a common laboratory alias.
func ParseParameter(value string) (Parameter, error) {
	if p := Parameter(value); p.IsValid() {
		return p, nil
	}
	if p, ok := parameterAliases[normalizeToken(value)]; ok {
		return p, nil
	}
	return "", fmt.Errorf("unknown parameter %q", value)
}

// SortParameters sorts ps in canonical order in place.
func SortParameters(ps []Parameter) {
	// insertion sort; the set has at most sixteen members
	for i := 1; i < len(ps); i++ {
		for j := i; j > 0 && ps[j].Order() < ps[j-1].Order(); j-- {
			ps[j], ps[j-1] = ps[j-1], ps[j]
		}
	}
}

func normalizeToken(value string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
