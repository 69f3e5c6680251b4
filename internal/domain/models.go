package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RawReading is a single parameter value as reported by the laboratory.
type RawReading struct {
	Parameter Parameter `json:"parameter"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
}

// NormalizedReading is a reading converted to the parameter's canonical unit.
type NormalizedReading struct {
	Parameter     Parameter `json:"parameter"`
	Value         float64   `json:"value"`
	Unit          string    `json:"unit"`
	OriginalValue float64   `json:"original_value"`
	OriginalUnit  string    `json:"original_unit"`
}

// PatientContext narrows reference interval selection. Age is in whole years.
type PatientContext struct {
	Age int `json:"age"`
	Sex Sex `json:"sex"`
}

// InterpretationRequest is the input of a single interpretation.
type InterpretationRequest struct {
	Readings []RawReading   `json:"readings"`
	Patient  *PatientContext `json:"patient,omitempty"`
}

// ReferenceInterval is an inclusive [Low, High] interval in the canonical unit.
type ReferenceInterval struct {
	Parameter    Parameter `json:"parameter"`
	Low          float64   `json:"low"`
	High         float64   `json:"high"`
	Unit         string    `json:"unit"`
	Sex          Sex       `json:"sex"`
	AgeBands     []AgeBand `json:"age_bands"`
	CriticalLow  *float64  `json:"critical_low,omitempty"`
	CriticalHigh *float64  `json:"critical_high,omitempty"`
}

// HalfWidth is half the interval width, the unit of abnormality magnitude.
func (r ReferenceInterval) HalfWidth() float64 {
	return (r.High - r.Low) / 2
}

// Contains reports whether v lies inside the interval, bounds included.
func (r ReferenceInterval) Contains(v float64) bool {
	return v >= r.Low && v <= r.High
}

// IntervalLookup is the result of a reference table lookup.
type IntervalLookup struct {
	Interval    ReferenceInterval `json:"interval"`
	Substituted bool              `json:"substituted"`
}

// QualityFlag is a non-fatal finding about the sample or the interpretation context.
type QualityFlag struct {
	Kind       FlagKind     `json:"kind"`
	Severity   FlagSeverity `json:"severity"`
	Rationale  string       `json:"rationale"`
	Parameters []Parameter  `json:"parameters"`
}

// AbnormalityTag records a reading outside its reference interval.
type AbnormalityTag struct {
	Parameter Parameter `json:"parameter"`
	Direction Direction `json:"direction"`
	Severity  Severity  `json:"severity"`
	Magnitude float64   `json:"magnitude"`
	Value     float64   `json:"value"`
	Low       float64   `json:"low"`
	High      float64   `json:"high"`
	Unit      string    `json:"unit"`
	Critical  bool      `json:"critical,omitempty"`
}

// ClassificationResult is the output of the abnormality classifier.
type ClassificationResult struct {
	Tags  []AbnormalityTag `json:"tags"`
	Flags []QualityFlag    `json:"flags"`
	// DefaultContextApplied is set when no patient context was supplied.
	DefaultContextApplied bool `json:"default_context_applied"`
}

// DifferentialCandidate is a ranked diagnostic hypothesis with its supporting evidence.
type DifferentialCandidate struct {
	Diagnosis  string           `json:"diagnosis"`
	Confidence float64          `json:"confidence"`
	Evidence   []AbnormalityTag `json:"evidence"`
	Rules      []string         `json:"rules"`
	Patterns   []string         `json:"patterns"` // morphological labels of Rules, same order
}

// SkippedRule is a rule that could not be evaluated because inputs were absent.
type SkippedRule struct {
	RuleID  string      `json:"rule_id"`
	Missing []Parameter `json:"missing"`
}

// Coverage summarizes how much of the rule base applied to the input.
type Coverage struct {
	RulesTotal     int           `json:"rules_total"`
	RulesEvaluated int           `json:"rules_evaluated"`
	RulesFired     int           `json:"rules_fired"`
	Skipped        []SkippedRule `json:"skipped"`
	Reduced        bool          `json:"reduced"`
}

// DifferentialResult is the output of the differential engine.
type DifferentialResult struct {
	Candidates []DifferentialCandidate `json:"candidates"`
	Coverage   Coverage                `json:"coverage"`
}

// Failure describes why a report ended in the Error stage.
type Failure struct {
	Stage      Stage       `json:"stage"`
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	Parameters []Parameter `json:"parameters,omitempty"`
}

// Report is the structured interpretation of one set of readings.
type Report struct {
	ID                    string                  `json:"id"`
	Stage                 Stage                   `json:"stage"`
	PatientContext        *PatientContext         `json:"patient_context,omitempty"`
	DefaultContextApplied bool                    `json:"default_context_applied"`
	Readings              []NormalizedReading     `json:"readings"`
	QualityFlags          []QualityFlag           `json:"quality_flags"`
	AbnormalityTags       []AbnormalityTag        `json:"abnormality_tags"`
	Differentials         []DifferentialCandidate `json:"differentials"`
	Coverage              Coverage                `json:"coverage"`
	Failure               *Failure                `json:"failure,omitempty"`
	GeneratedAt           time.Time               `json:"generated_at"`
	EngineVersion         string                  `json:"engine_version"`
}

// IsFinalized reports whether the report completed every stage.
func (r *Report) IsFinalized() bool {
	return r != nil && r.Stage == StageFinalized
}

// HasFlag reports whether a flag of the given kind was raised.
func (r *Report) HasFlag(kind FlagKind) bool {
	if r == nil {
		return false
	}
	for _, f := range r.QualityFlags {
		if f.Kind == kind {
			return true
		}
	}
	return false
}

// Fingerprint identifies the clinical content of a report. Two reports over the same
// readings and context share a fingerprint even though their IDs and timestamps differ.
func (r *Report) Fingerprint() string {
	if r == nil {
		return ""
	}
	content := struct {
		Stage         Stage                   `json:"stage"`
		Patient       *PatientContext         `json:"patient"`
		Readings      []NormalizedReading     `json:"readings"`
		Flags         []QualityFlag           `json:"flags"`
		Tags          []AbnormalityTag        `json:"tags"`
		Differentials []DifferentialCandidate `json:"differentials"`
		EngineVersion string                  `json:"engine_version"`
	}{r.Stage, r.PatientContext, r.Readings, r.QualityFlags, r.AbnormalityTags, r.Differentials, r.EngineVersion}

	// every field is a plain value, so marshalling cannot fail
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
