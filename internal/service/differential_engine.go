package service

import (
	"math"
	"sort"

	"github.com/cbc-interpretation-server/internal/domain"
	"github.com/cbc-interpretation-server/internal/rulebase"
)

// RuleOutcome is the result of evaluating one rule against a tag set.
type RuleOutcome struct {
	RuleID       string                  `json:"rule_id"`
	Skipped      bool                    `json:"skipped"`
	Missing      []domain.Parameter      `json:"missing,omitempty"`
	Fired        bool                    `json:"fired"`
	Support      []domain.AbnormalityTag `json:"support,omitempty"`
	MaxMagnitude float64                 `json:"max_magnitude"`
	Scores       map[string]float64      `json:"scores,omitempty"`
}

// DifferentialEngine ranks candidate diagnoses by evaluating the rule base in order.
type DifferentialEngine struct {
	rules         *rulebase.RuleBase
	weight        float64
	magnitudeCap  float64
	corroboration float64
}

// NewDifferentialEngine creates an engine over an immutable rule base.
func NewDifferentialEngine(rules *rulebase.RuleBase, cfg domain.InterpretationConfig) *DifferentialEngine {
	return &DifferentialEngine{
		rules:         rules,
		weight:        cfg.MagnitudeWeight,
		magnitudeCap:  cfg.MagnitudeCap,
		corroboration: cfg.CorroborationRate,
	}
}

// EvaluateRule evaluates a single rule. A rule whose predicates name an absent parameter
// is skipped rather than evaluated.
func (e *DifferentialEngine) EvaluateRule(
	rule rulebase.Rule,
	tags map[domain.Parameter]domain.AbnormalityTag,
	present map[domain.Parameter]bool,
) RuleOutcome {
	out := RuleOutcome{RuleID: rule.ID}

	for _, p := range rule.Parameters() {
		if !present[p] {
			out.Missing = append(out.Missing, p)
		}
	}
	if len(out.Missing) > 0 {
		out.Skipped = true
		return out
	}

	var support []domain.AbnormalityTag
	for _, pred := range rule.Predicates {
		tag, tagged := tags[pred.Parameter]
		switch pred.Direction {
		case domain.DirectionNormal:
			if tagged {
				return out
			}
		default:
			if !tagged || tag.Direction != pred.Direction {
				return out
			}
			if pred.MinSeverity != "" && !tag.Severity.AtLeast(pred.MinSeverity) {
				return out
			}
			support = append(support, tag)
		}
	}

	out.Fired = true
	out.Support = sortTags(dedupeTags(support))
	for _, t := range out.Support {
		out.MaxMagnitude = math.Max(out.MaxMagnitude, t.Magnitude)
	}
	out.Scores = make(map[string]float64, len(rule.Candidates))
	for _, c := range rule.Candidates {
		out.Scores[c.Diagnosis] = e.score(c.Base, out.MaxMagnitude)
	}
	return out
}

// score is base + (1 - base) * weight * min(m, cap) / cap.
func (e *DifferentialEngine) score(base, magnitude float64) float64 {
	if e.magnitudeCap <= 0 {
		return base
	}
	return base + (1-base)*e.weight*math.Min(magnitude, e.magnitudeCap)/e.magnitudeCap
}

type firing struct {
	order   int
	ruleID  string
	pattern string
	score   float64
	support []domain.AbnormalityTag
}

// Evaluate runs every rule in declared order and accumulates candidates per diagnosis.
// Candidates are sorted by confidence descending, then diagnosis ascending.
func (e *DifferentialEngine) Evaluate(tags []domain.AbnormalityTag, present map[domain.Parameter]bool) domain.DifferentialResult {
	byParam := make(map[domain.Parameter]domain.AbnormalityTag, len(tags))
	for _, t := range tags {
		byParam[t.Parameter] = t
	}

	rules := e.rules.Rules()
	coverage := domain.Coverage{
		RulesTotal: len(rules),
		Skipped:    make([]domain.SkippedRule, 0),
	}

	firings := make(map[string][]firing)
	var diagnoses []string

	for i, rule := range rules {
		outcome := e.EvaluateRule(rule, byParam, present)
		if outcome.Skipped {
			coverage.Skipped = append(coverage.Skipped, domain.SkippedRule{RuleID: rule.ID, Missing: outcome.Missing})
			continue
		}
		coverage.RulesEvaluated++
		if !outcome.Fired {
			continue
		}
		coverage.RulesFired++
		for _, c := range rule.Candidates {
			if _, ok := firings[c.Diagnosis]; !ok {
				diagnoses = append(diagnoses, c.Diagnosis)
			}
			firings[c.Diagnosis] = append(firings[c.Diagnosis], firing{
				order:   i,
				ruleID:  rule.ID,
				pattern: rule.Pattern,
				score:   outcome.Scores[c.Diagnosis],
				support: outcome.Support,
			})
		}
	}
	coverage.Reduced = len(coverage.Skipped) > 0

	candidates := make([]domain.DifferentialCandidate, 0, len(diagnoses))
	for _, d := range diagnoses {
		candidates = append(candidates, e.accumulate(d, firings[d]))
	}
	SortCandidates(candidates)

	return domain.DifferentialResult{Candidates: candidates, Coverage: coverage}
}

// accumulate starts from the best-scoring rule and adds a corroboration bonus for each
// other rule, in declared order, that contributes a tag not yet counted.
func (e *DifferentialEngine) accumulate(diagnosis string, fs []firing) domain.DifferentialCandidate {
	best := 0
	for i := 1; i < len(fs); i++ {
		if fs[i].score > fs[best].score {
			best = i
		}
	}

	confidence := fs[best].score
	counted := make(map[domain.Parameter]bool)
	var evidence []domain.AbnormalityTag
	for _, t := range fs[best].support {
		counted[t.Parameter] = true
		evidence = append(evidence, t)
	}

	for i, f := range fs {
		if i == best {
			continue
		}
		added := false
		for _, t := range f.support {
			if !counted[t.Parameter] {
				counted[t.Parameter] = true
				evidence = append(evidence, t)
				added = true
			}
		}
		if added {
			confidence += (1 - confidence) * e.corroboration
		}
	}

	ruleIDs := make([]string, len(fs))
	patterns := make([]string, len(fs))
	for i, f := range fs {
		ruleIDs[i] = f.ruleID
		patterns[i] = f.pattern
	}

	return domain.DifferentialCandidate{
		Diagnosis:  diagnosis,
		Confidence: round(math.Min(confidence, 1), 4),
		Evidence:   sortTags(evidence),
		Rules:      ruleIDs,
		Patterns:   patterns,
	}
}

// SortCandidates orders candidates by confidence descending, then diagnosis ascending.
func SortCandidates(cs []domain.DifferentialCandidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Confidence != cs[j].Confidence {
			return cs[i].Confidence > cs[j].Confidence
		}
		return cs[i].Diagnosis < cs[j].Diagnosis
	})
}

func sortTags(tags []domain.AbnormalityTag) []domain.AbnormalityTag {
	out := append([]domain.AbnormalityTag(nil), tags...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Parameter.Order() < out[j].Parameter.Order()
	})
	if out == nil {
		return []domain.AbnormalityTag{}
	}
	return out
}

func dedupeTags(tags []domain.AbnormalityTag) []domain.AbnormalityTag {
	seen := make(map[domain.Parameter]bool, len(tags))
	out := make([]domain.AbnormalityTag, 0, len(tags))
	for _, t := range tags {
		if !seen[t.Parameter] {
			seen[t.Parameter] = true
			out = append(out, t)
		}
	}
	return out
}
