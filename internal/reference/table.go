// Package reference holds the immutable reference range table used to classify CBC readings.
package reference

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/cbc-interpretation-server/internal/domain"
)

// defaultBands is the coverage of an entry that lists no age bands.
var defaultBands = []domain.AgeBand{domain.AgeBandAdult, domain.AgeBandSenior}

type entryKey struct {
	param domain.Parameter
	sex   domain.Sex
	band  domain.AgeBand
}

// Table is an immutable set of reference intervals. It is safe for concurrent use.
type Table struct {
	version   string
	entries   map[entryKey]domain.ReferenceInterval
	intervals []domain.ReferenceInterval
}

// NewTable validates intervals and builds a table. Every parameter present must carry an
// unspecified-sex adult interval, which is used when nothing more specific matches.
func NewTable(version string, intervals []domain.ReferenceInterval) (*Table, error) {
	var result *multierror.Error

	t := &Table{
		version: version,
		entries: make(map[entryKey]domain.ReferenceInterval),
	}

	for i, iv := range intervals {
		if err := validateInterval(iv); err != nil {
			result = multierror.Append(result, fmt.Errorf("interval %d: %w", i, err))
			continue
		}

		bands := iv.AgeBands
		if len(bands) == 0 {
			bands = defaultBands
		}
		stored := cloneInterval(iv)
		stored.AgeBands = append([]domain.AgeBand(nil), bands...)

		for _, band := range bands {
			key := entryKey{param: iv.Parameter, sex: iv.Sex, band: band}
			if _, dup := t.entries[key]; dup {
				result = multierror.Append(result, domain.NewConfigurationError(
					"reference table", "duplicate interval for %s/%s/%s", iv.Parameter, iv.Sex, band))
				continue
			}
			t.entries[key] = stored
		}
		t.intervals = append(t.intervals, stored)
	}

	seen := make(map[domain.Parameter]bool)
	for _, iv := range t.intervals {
		seen[iv.Parameter] = true
	}
	for p := range seen {
		if _, ok := t.entries[entryKey{param: p, sex: domain.SexUnspecified, band: domain.AgeBandAdult}]; !ok {
			result = multierror.Append(result, domain.NewConfigurationError(
				"reference table", "%s has no unspecified-sex adult interval", p))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}

	sort.SliceStable(t.intervals, func(i, j int) bool {
		return t.intervals[i].Parameter.Order() < t.intervals[j].Parameter.Order()
	})
	return t, nil
}

func validateInterval(iv domain.ReferenceInterval) error {
	if !iv.Parameter.IsValid() {
		return domain.NewConfigurationError("reference table", "unknown parameter %q", iv.Parameter)
	}
	if !iv.Sex.IsValid() {
		return domain.NewConfigurationError("reference table", "%s: invalid sex %q", iv.Parameter, iv.Sex)
	}
	for _, b := range iv.AgeBands {
		if !b.IsValid() {
			return domain.NewConfigurationError("reference table", "%s: invalid age band %q", iv.Parameter, b)
		}
	}
	if iv.Unit != iv.Parameter.CanonicalUnit() {
		return domain.NewConfigurationError("reference table",
			"%s: unit %q is not the canonical unit %q", iv.Parameter, iv.Unit, iv.Parameter.CanonicalUnit())
	}
	if !(iv.Low < iv.High) || iv.Low < 0 {
		return domain.NewConfigurationError("reference table",
			"%s: interval [%g, %g] is empty or negative", iv.Parameter, iv.Low, iv.High)
	}
	if iv.CriticalLow != nil && *iv.CriticalLow > iv.Low {
		return domain.NewConfigurationError("reference table",
			"%s: critical low %g lies above the interval", iv.Parameter, *iv.CriticalLow)
	}
	if iv.CriticalHigh != nil && *iv.CriticalHigh < iv.High {
		return domain.NewConfigurationError("reference table",
			"%s: critical high %g lies below the interval", iv.Parameter, *iv.CriticalHigh)
	}
	return nil
}

// Lookup resolves the interval for a parameter. It prefers the sex-specific entry for the
// band, then the unisex entry for the band, then the adult unisex default (Substituted).
func (t *Table) Lookup(param domain.Parameter, sex domain.Sex, band domain.AgeBand) (domain.IntervalLookup, bool) {
	if sex != domain.SexUnspecified {
		if iv, ok := t.entries[entryKey{param: param, sex: sex, band: band}]; ok {
			return domain.IntervalLookup{Interval: cloneInterval(iv)}, true
		}
	}
	if iv, ok := t.entries[entryKey{param: param, sex: domain.SexUnspecified, band: band}]; ok {
		return domain.IntervalLookup{Interval: cloneInterval(iv)}, true
	}
	iv, ok := t.Default(param)
	if !ok {
		return domain.IntervalLookup{}, false
	}
	return domain.IntervalLookup{Interval: iv, Substituted: true}, true
}

// Default returns the adult unisex interval for param.
func (t *Table) Default(param domain.Parameter) (domain.ReferenceInterval, bool) {
	iv, ok := t.entries[entryKey{param: param, sex: domain.SexUnspecified, band: domain.AgeBandAdult}]
	if !ok {
		return domain.ReferenceInterval{}, false
	}
	return cloneInterval(iv), true
}

// Intervals lists every interval in canonical parameter order.
func (t *Table) Intervals() []domain.ReferenceInterval {
	out := make([]domain.ReferenceInterval, len(t.intervals))
	for i, iv := range t.intervals {
		out[i] = cloneInterval(iv)
	}
	return out
}

// Version identifies the table source.
func (t *Table) Version() string {
	return t.version
}

func cloneInterval(iv domain.ReferenceInterval) domain.ReferenceInterval {
	out := iv
	out.AgeBands = append([]domain.AgeBand(nil), iv.AgeBands...)
	if iv.CriticalLow != nil {
		v := *iv.CriticalLow
		out.CriticalLow = &v
	}
	if iv.CriticalHigh != nil {
		v := *iv.CriticalHigh
		out.CriticalHigh = &v
	}
	return out
}

var _ domain.ReferenceTable = (*Table)(nil)
