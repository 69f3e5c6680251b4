// Package extraction pulls raw CBC readings out of plain-text laboratory reports.
package extraction

import (
	"bufio"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/cbc-interpretation-server/internal/domain"
)

// ErrNoReadings is returned when no line of the text names a CBC parameter.
var ErrNoReadings = errors.New("no CBC readings found in text")

// readingLine matches "<label> [:|=|-] <value> [rest]". The value accepts thousands
// separators (250,000) and decimal commas (14,5) and must not run on into more digits.
var readingLine = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z .()%/\-]*?)\s*[:=]?\s*(\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:[.,]\d+)?)\s*([^\d,.].*)?$`)

// flagTokens are abnormal markers some analysers print between value and unit.
var flagTokens = map[string]bool{
	"l": true, "h": true, "ll": true, "hh": true, "low": true, "high": true, "*": true, "!": true,
}

// TextExtractor reads one reading per line. It only recognises labels that resolve to a
// canonical parameter; a reading printed without a unit is given the canonical unit.
type TextExtractor struct{}

// NewTextExtractor creates a line-based extractor.
func NewTextExtractor() *TextExtractor {
	return &TextExtractor{}
}

// Extract implements domain.ReadingExtractor.
func (e *TextExtractor) Extract(ctx context.Context, text string) ([]domain.RawReading, error) {
	var readings []domain.RawReading

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r, ok := parseLine(scanner.Text()); ok {
			readings = append(readings, r)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(readings) == 0 {
		return nil, ErrNoReadings
	}
	return readings, nil
}

func parseLine(line string) (domain.RawReading, bool) {
	m := readingLine.FindStringSubmatch(line)
	if m == nil {
		return domain.RawReading{}, false
	}

	param, ok := matchLabel(m[1])
	if !ok {
		return domain.RawReading{}, false
	}

	value, err := parseValue(m[2])
	if err != nil {
		return domain.RawReading{}, false
	}

	unit := unitFrom(m[3])
	if unit == "" {
		unit = param.CanonicalUnit()
	}
	return domain.RawReading{Parameter: param, Value: value, Unit: unit}, true
}

// matchLabel resolves the longest leading run of words that names a parameter, so that
// "Hemoglobin (Hb)" and "Platelet Count" both resolve while "HbA1c" does not.
func matchLabel(label string) (domain.Parameter, bool) {
	words := strings.Fields(strings.Trim(label, " :-="))
	for n := len(words); n > 0; n-- {
		if p, err := domain.ParseParameter(strings.Join(words[:n], " ")); err == nil {
			return p, true
		}
	}
	return "", false
}

func parseValue(s string) (float64, error) {
	// a comma followed by exactly three digits, or alongside a point, groups thousands
	if strings.Contains(s, ",") && (strings.Contains(s, ".") || len(s)-strings.LastIndex(s, ",") == 4) {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

// unitFrom picks the unit token from the text after the value, skipping flag markers
// and stopping at anything that looks like a reference range.
func unitFrom(rest string) string {
	tokens := strings.Fields(rest)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if flagTokens[strings.ToLower(tok)] {
			continue
		}
		if tok == "x" || tok == "X" || tok == "×" {
			if i+1 < len(tokens) {
				return tok + tokens[i+1]
			}
			return ""
		}
		if strings.HasPrefix(tok, "(") || strings.HasPrefix(tok, "[") || !looksLikeUnit(tok) {
			return ""
		}
		return tok
	}
	return ""
}

func looksLikeUnit(tok string) bool {
	for _, r := range tok {
		if r == '%' || r == '/' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == 'µ' || r == 'μ' {
			return true
		}
	}
	return false
}

var _ domain.ReadingExtractor = (*TextExtractor)(nil)
