// Package domain contains the core entities of complete blood count (CBC) interpretation:
// parameter readings, reference intervals, quality flags, abnormality tags, differential
// candidates and the report that aggregates them.
package domain

import (
	"errors"
	"fmt"
)

// Sex is the biological sex used to select a reference interval.
type Sex string

const (
	SexMale        Sex = "male"
	SexFemale      Sex = "female"
	SexUnspecified Sex = "unspecified"
)

// AgeBand groups patient ages that share reference intervals.
type AgeBand string

const (
	AgeBandInfant     AgeBand = "infant"     // < 1 year
	AgeBandChild      AgeBand = "child"      // 1-12
	AgeBandAdolescent AgeBand = "adolescent" // 13-17
	AgeBandAdult      AgeBand = "adult"      // 18-64
	AgeBandSenior     AgeBand = "senior"     // 65+
)

// Direction is the side of the reference interval a value falls on.
type Direction string

const (
	DirectionLow  Direction = "low"
	DirectionHigh Direction = "high"
	// DirectionNormal is only used by rule predicates; tags are never normal.
	DirectionNormal Direction = "normal"
)

// Severity is the tier of an abnormality, ordered mild < moderate < severe.
type Severity string

const (
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// FlagKind identifies the quality check that produced a QualityFlag.
type FlagKind string

const (
	FlagRuleOfThreesViolation   FlagKind = "RuleOfThreesViolation"
	FlagImplausibleRelationship FlagKind = "ImplausibleRelationship"
	FlagHematocritIndexMismatch FlagKind = "HematocritIndexMismatch"
	FlagDifferentialSumMismatch FlagKind = "DifferentialSumMismatch"
	FlagMissingPatientContext   FlagKind = "MissingPatientContext"
	FlagDefaultRangeSubstituted FlagKind = "DefaultRangeSubstituted"
	FlagCriticalValue           FlagKind = "CriticalValue"
)

// FlagSeverity ranks quality flags for reviewers.
type FlagSeverity string

const (
	FlagSeverityInfo     FlagSeverity = "info"
	FlagSeverityWarning  FlagSeverity = "warning"
	FlagSeverityCritical FlagSeverity = "critical"
)

// Stage is a step of the report lifecycle.
type Stage string

const (
	StageDraft                Stage = "Draft"
	StageNormalizing          Stage = "Normalizing"
	StageQualityChecked       Stage = "QualityChecked"
	StageClassified           Stage = "Classified"
	StageDifferentialComputed Stage = "DifferentialComputed"
	StageFinalized            Stage = "Finalized"
	StageError                Stage = "Error"
)

var (
	ErrInvalidSex       = errors.New("invalid sex")
	ErrInvalidAgeBand   = errors.New("invalid age band")
	ErrInvalidDirection = errors.New("invalid direction")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidStage     = errors.New("invalid report stage")
)

// IsValid reports whether s is a known sex value.
func (s Sex) IsValid() bool {
	switch s {
	case SexMale, SexFemale, SexUnspecified:
		return true
	default:
		return false
	}
}

func (s Sex) String() string {
	return string(s)
}

// ParseSex accepts the common spellings found on lab requisitions.
func ParseSex(value string) (Sex, error) {
	switch normalizeToken(value) {
	case "male", "m", "man":
		return SexMale, nil
	case "female", "f", "woman":
		return SexFemale, nil
	case "", "unspecified", "unknown", "u", "other":
		return SexUnspecified, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSex, value)
	}
}

// IsValid reports whether b is a known age band.
func (b AgeBand) IsValid() bool {
	switch b {
	case AgeBandInfant, AgeBandChild, AgeBandAdolescent, AgeBandAdult, AgeBandSenior:
		return true
	default:
		return false
	}
}

func (b AgeBand) String() string {
	return string(b)
}

// AgeBandFor maps an age in whole years to its band.
func AgeBandFor(age int) AgeBand {
	switch {
	case age < 1:
		return AgeBandInfant
	case age <= 12:
		return AgeBandChild
	case age <= 17:
		return AgeBandAdolescent
	case age <= 64:
		return AgeBandAdult
	default:
		return AgeBandSenior
	}
}

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	switch d {
	case DirectionLow, DirectionHigh, DirectionNormal:
		return true
	default:
		return false
	}
}

func (d Direction) String() string {
	return string(d)
}

// IsValid reports whether s is a known severity tier.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityMild, SeverityModerate, SeveritySevere:
		return true
	default:
		return false
	}
}

func (s Severity) String() string {
	return string(s)
}

// Rank orders severities; unknown values rank below mild.
func (s Severity) Rank() int {
	switch s {
	case SeverityMild:
		return 1
	case SeverityModerate:
		return 2
	case SeveritySevere:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func (k FlagKind) String() string {
	return string(k)
}

func (s FlagSeverity) String() string {
	return string(s)
}

// IsValid reports whether s is a known lifecycle stage.
func (s Stage) IsValid() bool {
	switch s {
	case StageDraft, StageNormalizing, StageQualityChecked, StageClassified,
		StageDifferentialComputed, StageFinalized, StageError:
		return true
	default:
		return false
	}
}

func (s Stage) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageFinalized || s == StageError
}
