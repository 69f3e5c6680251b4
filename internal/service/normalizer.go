package service

import (
	"errors"
	"math"

	"github.com/hashicorp/go-multierror"

	"github.com/cbc-interpretation-server/internal/domain"
)

// Normalizer converts raw readings to canonical units and rejects implausible values.
// It holds no mutable state.
type Normalizer struct {
	mandatory []domain.Parameter
}

// NewNormalizer creates a normalizer that requires the given parameters to be present.
func NewNormalizer(mandatory []domain.Parameter) *Normalizer {
	return &Normalizer{mandatory: append([]domain.Parameter(nil), mandatory...)}
}

// Normalize converts one reading. The parameter may be a canonical name or a laboratory alias.
func (n *Normalizer) Normalize(r domain.RawReading) (domain.NormalizedReading, error) {
	param, err := domain.ParseParameter(string(r.Parameter))
	if err != nil {
		return domain.NormalizedReading{}, &domain.InputError{Unknown: []string{string(r.Parameter)}}
	}

	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return domain.NormalizedReading{}, &domain.RangeViolationError{
			Parameter: param, Value: r.Value, Unit: r.Unit, Reason: "value is not a finite number",
		}
	}
	if r.Value < 0 {
		return domain.NormalizedReading{}, &domain.RangeViolationError{
			Parameter: param, Value: r.Value, Unit: r.Unit, Reason: "negative value",
		}
	}

	factor, ok := conversionFactor(param, r.Unit)
	if !ok {
		return domain.NormalizedReading{}, &domain.UnitConversionError{Parameter: param, Unit: r.Unit}
	}

	value := round(r.Value*factor, 6)
	if value == 0 && nonZero[param] {
		return domain.NormalizedReading{}, &domain.RangeViolationError{
			Parameter: param, Value: value, Unit: param.CanonicalUnit(), Reason: "zero value",
		}
	}
	if ceiling, ok := plausibilityCeilings[param]; ok && value > ceiling {
		return domain.NormalizedReading{}, &domain.RangeViolationError{
			Parameter: param, Value: value, Unit: param.CanonicalUnit(), Reason: "above physiological ceiling",
		}
	}

	return domain.NormalizedReading{
		Parameter:     param,
		Value:         value,
		Unit:          param.CanonicalUnit(),
		OriginalValue: r.Value,
		OriginalUnit:  r.Unit,
	}, nil
}

// NormalizeAll converts a reading set. Structural problems (unknown, duplicated or missing
// mandatory parameters) are collected into one InputError; every per-reading failure is
// aggregated alongside it.
func (n *Normalizer) NormalizeAll(readings []domain.RawReading) (map[domain.Parameter]domain.NormalizedReading, error) {
	var result *multierror.Error
	inputErr := &domain.InputError{}

	out := make(map[domain.Parameter]domain.NormalizedReading, len(readings))
	seen := make(map[domain.Parameter]int, len(readings))

	for _, r := range readings {
		param, err := domain.ParseParameter(string(r.Parameter))
		if err != nil {
			inputErr.Unknown = append(inputErr.Unknown, string(r.Parameter))
			continue
		}
		seen[param]++
		if seen[param] == 2 {
			inputErr.Duplicated = append(inputErr.Duplicated, param)
		}
		if seen[param] > 1 {
			continue
		}

		nr, err := n.Normalize(r)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		out[param] = nr
	}

	for _, p := range n.mandatory {
		if seen[p] == 0 {
			inputErr.Missing = append(inputErr.Missing, p)
		}
	}

	// a duplicated parameter is ambiguous, so drop its first value too
	for _, p := range inputErr.Duplicated {
		delete(out, p)
	}

	if !inputErr.Empty() {
		domain.SortParameters(inputErr.Missing)
		domain.SortParameters(inputErr.Duplicated)
		result = multierror.Append(&multierror.Error{Errors: []error{inputErr}}, errorsOf(result)...)
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

func errorsOf(m *multierror.Error) []error {
	if m == nil {
		return nil
	}
	return m.Errors
}

// failureFromError maps a normalization error to a report failure at the given stage.
// The code follows the most structural error present: input, then unit, then range.
func failureFromError(stage domain.Stage, err error) *domain.Failure {
	f := &domain.Failure{Stage: stage, Message: err.Error()}

	var errs []error
	var merr *multierror.Error
	if errors.As(err, &merr) {
		errs = merr.Errors
	} else {
		errs = []error{err}
	}

	priority := 0
	seen := make(map[domain.Parameter]bool)
	addParams := func(ps ...domain.Parameter) {
		for _, p := range ps {
			if !seen[p] {
				seen[p] = true
				f.Parameters = append(f.Parameters, p)
			}
		}
	}
	setCode := func(code string, rank int) {
		if rank > priority {
			priority = rank
			f.Code = code
		}
	}

	for _, e := range errs {
		var (
			inputErr *domain.InputError
			unitErr  *domain.UnitConversionError
			rangeErr *domain.RangeViolationError
			cfgErr   *domain.ConfigurationError
		)
		switch {
		case errors.As(e, &inputErr):
			setCode(domain.ErrCodeInput, 4)
			addParams(inputErr.Parameters()...)
		case errors.As(e, &unitErr):
			setCode(domain.ErrCodeUnitConversion, 3)
			addParams(unitErr.Parameter)
		case errors.As(e, &rangeErr):
			setCode(domain.ErrCodeRangeViolation, 2)
			addParams(rangeErr.Parameter)
		case errors.As(e, &cfgErr):
			setCode(domain.ErrCodeConfiguration, 1)
			addParams(cfgErr.Parameters...)
		}
	}
	if f.Code == "" {
		f.Code = domain.ErrCodeConfiguration
	}
	domain.SortParameters(f.Parameters)
	return f
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
