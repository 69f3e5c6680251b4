package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/rulebase"
)

// EngineVersion is stamped on every report.
const EngineVersion = "1.0.0"

// Interpreter drives a reading set through every stage of the report lifecycle.
// It holds only immutable collaborators and is safe for concurrent use.
type Interpreter struct {
	logger     *logrus.Logger
	table      domain.ReferenceTable
	rules      *rulebase.RuleBase
	normalizer *Normalizer
	assessor   *QualityAssessor
	classifier *AbnormalityClassifier
	engine     *DifferentialEngine
	composer   *ReportComposer
}

// NewInterpreter wires the pipeline around an already-built table and rule base.
func NewInterpreter(
	logger *logrus.Logger,
	table domain.ReferenceTable,
	rules *rulebase.RuleBase,
	cfg domain.InterpretationConfig,
) (*Interpreter, error) {
	if table == nil || rules == nil {
		return nil, domain.NewConfigurationError("interpreter", "reference table and rule base are required")
	}

	mandatory := make([]domain.Parameter, 0, len(cfg.MandatoryParameters))
	for _, name := range cfg.MandatoryParameters {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return nil, domain.NewConfigurationError("interpretation.mandatory_parameters", "%v", err)
		}
		mandatory = append(mandatory, p)
	}
	if cfg.ModerateThreshold <= 0 || cfg.SevereThreshold <= cfg.ModerateThreshold {
		return nil, domain.NewConfigurationError("interpretation",
			"severity thresholds must satisfy 0 < moderate < severe, got %g and %g",
			cfg.ModerateThreshold, cfg.SevereThreshold)
	}

	return &Interpreter{
		logger:     logger,
		table:      table,
		rules:      rules,
		normalizer: NewNormalizer(mandatory),
		assessor:   NewQualityAssessor(cfg),
		classifier: NewAbnormalityClassifier(table, cfg),
		engine:     NewDifferentialEngine(rules, cfg),
		composer:   NewReportComposer(EngineVersion),
	}, nil
}

// Table returns the reference table the interpreter classifies against.
func (i *Interpreter) Table() domain.ReferenceTable {
	return i.table
}

// Rules returns the rule base the interpreter evaluates.
func (i *Interpreter) Rules() *rulebase.RuleBase {
	return i.rules
}

// Interpret produces a report. Fatal problems do not return an error; they end the
// report in the Error stage with a Failure describing the cause.
func (i *Interpreter) Interpret(req domain.InterpretationRequest) *domain.Report {
	startTime := time.Now()
	lc := domain.NewLifecycle()
	in := ComposeInput{
		ID:      uuid.NewString(),
		Patient: req.Patient,
	}
	log := i.logger.WithField("report_id", in.ID)

	fail := func(err error) *domain.Report {
		failed, lcErr := lc.Fail()
		if lcErr != nil {
			err = fmt.Errorf("%w (lifecycle: %v)", err, lcErr)
		}
		in.Stage = domain.StageError
		in.Failure = failureFromError(failed, err)
		log.WithError(err).WithFields(logrus.Fields{
			"stage":      failed,
			"code":       in.Failure.Code,
			"parameters": in.Failure.Parameters,
		}).Warn("Interpretation failed")
		return i.composer.Compose(in)
	}
	advance := func(next domain.Stage) error {
		if err := lc.Advance(next); err != nil {
			return domain.NewConfigurationError("lifecycle", "%v", err)
		}
		log.WithField("stage", next).Debug("Report stage advanced")
		return nil
	}

	if err := advance(domain.StageNormalizing); err != nil {
		return fail(err)
	}
	readings, err := i.normalizer.NormalizeAll(req.Readings)
	if err != nil {
		return fail(err)
	}
	in.Readings = readings

	if err := advance(domain.StageQualityChecked); err != nil {
		return fail(err)
	}
	in.QualityFlags = i.assessor.Assess(readings)

	if err := advance(domain.StageClassified); err != nil {
		return fail(err)
	}
	classification, err := i.classifier.Classify(readings, req.Patient)
	if err != nil {
		return fail(err)
	}
	in.Tags = classification.Tags
	in.DefaultContextApplied = classification.DefaultContextApplied
	in.QualityFlags = append(in.QualityFlags, classification.Flags...)

	if err := advance(domain.StageDifferentialComputed); err != nil {
		return fail(err)
	}
	present := make(map[domain.Parameter]bool, len(readings))
	for p := range readings {
		present[p] = true
	}
	differential := i.engine.Evaluate(classification.Tags, present)
	in.Differentials = differential.Candidates
	in.Coverage = differential.Coverage

	if err := advance(domain.StageFinalized); err != nil {
		return fail(err)
	}
	in.Stage = domain.StageFinalized
	report := i.composer.Compose(in)

	log.WithFields(logrus.Fields{
		"readings":         len(report.Readings),
		"flags":            len(report.QualityFlags),
		"tags":             len(report.AbnormalityTags),
		"candidates":       len(report.Differentials),
		"coverage_reduced": report.Coverage.Reduced,
		"duration_ms":      time.Since(startTime).Milliseconds(),
	}).Info("Interpretation finalized")

	return report
}
