package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid stage transition")

var stageSuccessor = map[Stage]Stage{
	StageDraft:                StageNormalizing,
	StageNormalizing:          StageQualityChecked,
	StageQualityChecked:       StageClassified,
	StageClassified:           StageDifferentialComputed,
	StageDifferentialComputed: StageFinalized,
}

// Lifecycle enforces the forward-only stage order of a report.
// A Lifecycle belongs to one interpretation and is not safe for concurrent use.
type Lifecycle struct {
	stage   Stage
	history []Stage
}

// NewLifecycle returns a lifecycle positioned at Draft.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{stage: StageDraft, history: []Stage{StageDraft}}
}

// Stage returns the current stage.
func (l *Lifecycle) Stage() Stage {
	return l.stage
}

// History returns every stage visited, in order.
func (l *Lifecycle) History() []Stage {
	out := make([]Stage, len(l.history))
	copy(out, l.history)
	return out
}

// Advance moves to next, which must be the immediate successor of the current stage.
func (l *Lifecycle) Advance(next Stage) error {
	want, ok := stageSuccessor[l.stage]
	if !ok || want != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.stage, next)
	}
	l.stage = next
	l.history = append(l.history, next)
	return nil
}

// Fail moves to Error and returns the stage that failed.
func (l *Lifecycle) Fail() (Stage, error) {
	if l.stage.IsTerminal() {
		return l.stage, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.stage, StageError)
	}
	failed := l.stage
	l.stage = StageError
	l.history = append(l.history, StageError)
	return failed, nil
}
