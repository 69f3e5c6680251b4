package service

import (
	"sort"
	"time"

	"github.com/cbc-interpretation-server/internal/domain"
)

// ComposeInput carries the outputs of every completed stage.
type ComposeInput struct {
	ID                    string
	Stage                 domain.Stage
	Patient               *domain.PatientContext
	DefaultContextApplied bool
	Readings              map[domain.Parameter]domain.NormalizedReading
	QualityFlags          []domain.QualityFlag
	Tags                  []domain.AbnormalityTag
	Differentials         []domain.DifferentialCandidate
	Coverage              domain.Coverage
	Failure               *domain.Failure
}

// ReportComposer assembles reports. It derives nothing; it only copies and orders.
type ReportComposer struct {
	engineVersion string
	now           func() time.Time
}

// NewReportComposer creates a composer stamping reports with engineVersion.
func NewReportComposer(engineVersion string) *ReportComposer {
	return &ReportComposer{
		engineVersion: engineVersion,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Compose builds a report that shares no memory with its inputs.
func (c *ReportComposer) Compose(in ComposeInput) *domain.Report {
	report := &domain.Report{
		ID:                    in.ID,
		Stage:                 in.Stage,
		DefaultContextApplied: in.DefaultContextApplied,
		Readings:              make([]domain.NormalizedReading, 0, len(in.Readings)),
		QualityFlags:          make([]domain.QualityFlag, 0, len(in.QualityFlags)),
		AbnormalityTags:       sortTags(in.Tags),
		Differentials:         make([]domain.DifferentialCandidate, 0, len(in.Differentials)),
		Coverage:              copyCoverage(in.Coverage),
		GeneratedAt:           c.now(),
		EngineVersion:         c.engineVersion,
	}

	if in.Patient != nil {
		p := *in.Patient
		report.PatientContext = &p
	}

	for _, r := range in.Readings {
		report.Readings = append(report.Readings, r)
	}
	sort.Slice(report.Readings, func(i, j int) bool {
		return report.Readings[i].Parameter.Order() < report.Readings[j].Parameter.Order()
	})

	for _, f := range in.QualityFlags {
		f.Parameters = append([]domain.Parameter{}, f.Parameters...)
		report.QualityFlags = append(report.QualityFlags, f)
	}

	for _, d := range in.Differentials {
		d.Evidence = sortTags(d.Evidence)
		d.Rules = append([]string{}, d.Rules...)
		d.Patterns = append([]string{}, d.Patterns...)
		report.Differentials = append(report.Differentials, d)
	}
	SortCandidates(report.Differentials)

	if in.Failure != nil {
		f := *in.Failure
		f.Parameters = append([]domain.Parameter(nil), in.Failure.Parameters...)
		report.Failure = &f
	}

	return report
}

func copyCoverage(c domain.Coverage) domain.Coverage {
	out := c
	out.Skipped = make([]domain.SkippedRule, len(c.Skipped))
	for i, s := range c.Skipped {
		s.Missing = append([]domain.Parameter{}, s.Missing...)
		out.Skipped[i] = s
	}
	return out
}
