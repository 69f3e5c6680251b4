// Package rulebase loads the ordered, declarative differential diagnosis rules.
package rulebase

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/cbc-interpretation-server/internal/domain"
)

//go:embed rules.yaml
var defaultRules []byte

// Predicate is a single condition over one parameter.
type Predicate struct {
	Parameter   domain.Parameter `json:"parameter" yaml:"parameter"`
	Direction   domain.Direction `json:"direction" yaml:"direction"`
	MinSeverity domain.Severity  `json:"min_severity,omitempty" yaml:"min_severity"`
}

// Candidate is a diagnosis a rule suggests, with its base confidence.
type Candidate struct {
	Diagnosis string  `json:"diagnosis" yaml:"diagnosis"`
	Base      float64 `json:"base" yaml:"base"`
}

// Rule fires when every predicate holds.
type Rule struct {
	ID         string      `json:"id" yaml:"id"`
	Pattern    string      `json:"pattern" yaml:"pattern"`
	Predicates []Predicate `json:"predicates" yaml:"predicates"`
	Candidates []Candidate `json:"candidates" yaml:"candidates"`
}

// Parameters lists the distinct parameters the rule reads, in declaration order.
func (r Rule) Parameters() []domain.Parameter {
	seen := make(map[domain.Parameter]bool, len(r.Predicates))
	var out []domain.Parameter
	for _, p := range r.Predicates {
		if !seen[p.Parameter] {
			seen[p.Parameter] = true
			out = append(out, p.Parameter)
		}
	}
	return out
}

// RuleBase is an immutable ordered rule list. It is safe for concurrent use.
type RuleBase struct {
	version string
	rules   []Rule
	byID    map[string]int
}

type rulesFile struct {
	Version string `yaml:"version"`
	Rules   []Rule `yaml:"rules"`
}

// New validates rules and builds a rule base preserving their order.
func New(version string, rules []Rule) (*RuleBase, error) {
	var result *multierror.Error

	rb := &RuleBase{
		version: version,
		byID:    make(map[string]int, len(rules)),
	}
	for i, r := range rules {
		if err := validateRule(r); err != nil {
			result = multierror.Append(result, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		if _, dup := rb.byID[r.ID]; dup {
			result = multierror.Append(result, domain.NewConfigurationError("rule base", "duplicate rule id %q", r.ID))
			continue
		}
		rb.byID[r.ID] = len(rb.rules)
		rb.rules = append(rb.rules, cloneRule(r))
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return rb, nil
}

func validateRule(r Rule) error {
	if r.ID == "" {
		return domain.NewConfigurationError("rule base", "rule without id")
	}
	if len(r.Predicates) == 0 {
		return domain.NewConfigurationError("rule base", "rule %q has no predicates", r.ID)
	}
	if len(r.Candidates) == 0 {
		return domain.NewConfigurationError("rule base", "rule %q has no candidates", r.ID)
	}

	abnormal := false
	for _, p := range r.Predicates {
		if !p.Parameter.IsValid() {
			return domain.NewConfigurationError("rule base", "rule %q: unknown parameter %q", r.ID, p.Parameter)
		}
		if !p.Direction.IsValid() {
			return domain.NewConfigurationError("rule base", "rule %q: invalid direction %q", r.ID, p.Direction)
		}
		if p.MinSeverity != "" {
			if !p.MinSeverity.IsValid() {
				return domain.NewConfigurationError("rule base", "rule %q: invalid severity %q", r.ID, p.MinSeverity)
			}
			if p.Direction == domain.DirectionNormal {
				return domain.NewConfigurationError("rule base", "rule %q: min_severity on a normal predicate", r.ID)
			}
		}
		if p.Direction != domain.DirectionNormal {
			abnormal = true
		}
	}
	// a rule of only normal predicates would fire without evidence
	if !abnormal {
		return domain.NewConfigurationError("rule base", "rule %q needs at least one low or high predicate", r.ID)
	}

	for _, c := range r.Candidates {
		if c.Diagnosis == "" {
			return domain.NewConfigurationError("rule base", "rule %q: candidate without diagnosis", r.ID)
		}
		if c.Base <= 0 || c.Base >= 1 {
			return domain.NewConfigurationError("rule base", "rule %q: base confidence %g outside (0, 1)", r.ID, c.Base)
		}
	}
	return nil
}

// LoadDefault parses the embedded rule base. Each call returns a fresh RuleBase.
func LoadDefault() (*RuleBase, error) {
	return Load(bytes.NewReader(defaultRules))
}

// LoadFile parses a rule base from a YAML file.
func LoadFile(path string) (*RuleBase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule base: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a rule base from YAML.
func Load(r io.Reader) (*RuleBase, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file rulesFile
	if err := dec.Decode(&file); err != nil {
		return nil, domain.NewConfigurationError("rule base", "failed to parse YAML: %v", err)
	}
	if len(file.Rules) == 0 {
		return nil, domain.NewConfigurationError("rule base", "no rules defined")
	}
	return New(file.Version, file.Rules)
}

// Rules returns a copy of the rules in declared order.
func (rb *RuleBase) Rules() []Rule {
	out := make([]Rule, len(rb.rules))
	for i, r := range rb.rules {
		out[i] = cloneRule(r)
	}
	return out
}

// Rule returns the rule with the given id.
func (rb *RuleBase) Rule(id string) (Rule, bool) {
	i, ok := rb.byID[id]
	if !ok {
		return Rule{}, false
	}
	return cloneRule(rb.rules[i]), true
}

// Len is the number of rules.
func (rb *RuleBase) Len() int {
	return len(rb.rules)
}

// Version identifies the rule base source.
func (rb *RuleBase) Version() string {
	return rb.version
}

func cloneRule(r Rule) Rule {
	out := r
	out.Predicates = append([]Predicate(nil), r.Predicates...)
	out.Candidates = append([]Candidate(nil), r.Candidates...)
	return out
}
