// Package feedback stores reviewer verdicts on suggested differential diagnoses.
// Entries are keyed by report fingerprint and diagnosis and hold no readings or
// patient data.
package feedback

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cbc-interpretation-server/internal/domain"
)

// Verdict is the reviewer's judgement of a suggested diagnosis.
type Verdict string

const (
	VerdictAgree    Verdict = "agree"
	VerdictDisagree Verdict = "disagree"
)

// IsValid checks if the verdict is known.
func (v Verdict) IsValid() bool {
	return v == VerdictAgree || v == VerdictDisagree
}

// Feedback is one reviewer verdict on one differential candidate of one report.
type Feedback struct {
	ID                  int64     `json:"id,omitempty"`
	Fingerprint         string    `json:"fingerprint"`          // Report content fingerprint
	Diagnosis           string    `json:"diagnosis"`            // Candidate being judged
	SuggestedConfidence float64   `json:"suggested_confidence"` // Engine confidence at the time
	Verdict             Verdict   `json:"verdict"`
	Notes               string    `json:"notes,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// Validate checks the fields a store requires.
func (f *Feedback) Validate() error {
	if strings.TrimSpace(f.Fingerprint) == "" {
		return domain.NewValidationError("fingerprint", "fingerprint is required", f.Fingerprint)
	}
	if strings.TrimSpace(f.Diagnosis) == "" {
		return domain.NewValidationError("diagnosis", "diagnosis is required", f.Diagnosis)
	}
	if f.SuggestedConfidence < 0 || f.SuggestedConfidence > 1 {
		return domain.NewValidationError("suggested_confidence", "must be in [0, 1]", f.SuggestedConfidence)
	}
	if !f.Verdict.IsValid() {
		return domain.NewValidationError("verdict", "must be agree or disagree", f.Verdict)
	}
	return nil
}

// DiagnosisStats aggregates verdicts for one diagnosis.
type DiagnosisStats struct {
	Diagnosis string `json:"diagnosis"`
	Agreed    int64  `json:"agreed"`
	Disagreed int64  `json:"disagreed"`
}

// Store defines the interface for feedback storage operations.
type Store interface {
	// Save stores or updates a verdict. A verdict for the same fingerprint and
	// diagnosis replaces the earlier one.
	Save(ctx context.Context, feedback *Feedback) error

	// Get retrieves the verdict for a fingerprint and diagnosis, or nil if none exists.
	Get(ctx context.Context, fingerprint, diagnosis string) (*Feedback, error)

	// List returns feedback entries, newest first.
	List(ctx context.Context, limit, offset int) ([]*Feedback, error)

	// Count returns the total number of feedback entries.
	Count(ctx context.Context) (int64, error)

	// Stats returns verdict totals per diagnosis, ordered by diagnosis.
	Stats(ctx context.Context) ([]DiagnosisStats, error)

	// Delete removes a feedback entry by ID.
	Delete(ctx context.Context, id int64) error

	// ExportJSON exports all feedback to a JSON writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON imports feedback from a JSON reader, skipping entries that already exist.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// FeedbackExport represents the JSON export format.
type FeedbackExport struct {
	Version    string      `json:"version"`
	ExportedAt time.Time   `json:"exported_at"`
	Count      int         `json:"count"`
	Feedback   []*Feedback `json:"feedback"`
}
