package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/reference"
	"github.com/cbc-interpretation-server/internal/rulebase"
)

// NewInterpreterFromConfig loads the reference table and rule base named by cfg, falling
// back to the embedded defaults, and builds an interpreter around them.
func NewInterpreterFromConfig(logger *logrus.Logger, cfg domain.InterpretationConfig) (*Interpreter, error) {
	var (
		table *reference.Table
		err   error
	)
	if cfg.ReferenceRangesFile != "" {
		table, err = reference.LoadFile(cfg.ReferenceRangesFile)
	} else {
		table, err = reference.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load reference ranges: %w", err)
	}

	var rules *rulebase.RuleBase
	if cfg.RulesFile != "" {
		rules, err = rulebase.LoadFile(cfg.RulesFile)
	} else {
		rules, err = rulebase.LoadDefault()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule base: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"reference_version": table.Version(),
		"rules_version":     rules.Version(),
		"rules":             rules.Len(),
	}).Info("Interpretation tables loaded")

	return NewInterpreter(logger, table, rules, cfg)
}
