package reference

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cbc-interpretation-server/internal/domain"
)

//go:embed ranges.yaml
var defaultRanges []byte

type rangesFile struct {
	Version    string           `yaml:"version"`
	Parameters []parameterEntry `yaml:"parameters"`
}

type parameterEntry struct {
	Parameter    string          `yaml:"parameter"`
	Unit         string          `yaml:"unit"`
	CriticalLow  *float64        `yaml:"critical_low"`
	CriticalHigh *float64        `yaml:"critical_high"`
	Entries      []intervalEntry `yaml:"entries"`
}

type intervalEntry struct {
	Sex      string   `yaml:"sex"`
	AgeBands []string `yaml:"age_bands"`
	Low      float64  `yaml:"low"`
	High     float64  `yaml:"high"`
}

// LoadDefault parses the embedded default table. Each call returns a fresh Table.
func LoadDefault() (*Table, error) {
	return Load(bytes.NewReader(defaultRanges))
}

// LoadFile parses a reference table from a YAML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference ranges: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a reference table from YAML.
func Load(r io.Reader) (*Table, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file rangesFile
	if err := dec.Decode(&file); err != nil {
		return nil, domain.NewConfigurationError("reference table", "failed to parse YAML: %v", err)
	}
	if len(file.Parameters) == 0 {
		return nil, domain.NewConfigurationError("reference table", "no parameters defined")
	}

	var intervals []domain.ReferenceInterval
	for _, pe := range file.Parameters {
		param := domain.Parameter(pe.Parameter)
		for _, e := range pe.Entries {
			sex := domain.Sex(e.Sex)
			if e.Sex == "" {
				sex = domain.SexUnspecified
			}
			bands := make([]domain.AgeBand, 0, len(e.AgeBands))
			for _, b := range e.AgeBands {
				bands = append(bands, domain.AgeBand(b))
			}
			intervals = append(intervals, domain.ReferenceInterval{
				Parameter:    param,
				Low:          e.Low,
				High:         e.High,
				Unit:         pe.Unit,
				Sex:          sex,
				AgeBands:     bands,
				CriticalLow:  pe.CriticalLow,
				CriticalHigh: pe.CriticalHigh,
			})
		}
	}

	return NewTable(file.Version, intervals)
}
