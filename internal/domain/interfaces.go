package domain

import (
	"context"
)

// ReferenceTable resolves reference intervals. Implementations are immutable after construction.
type ReferenceTable interface {
	Lookup(param Parameter, sex Sex, band AgeBand) (IntervalLookup, bool)
	Default(param Parameter) (ReferenceInterval, bool)
	Intervals() []ReferenceInterval
	Version() string
}

// NarrativeGenerator turns a finalized report into prose. It never feeds back into the report.
type NarrativeGenerator interface {
	GenerateNarrative(ctx context.Context, report *Report) (string, error)
}

// ReadingExtractor pulls raw readings out of a free-text laboratory report.
type ReadingExtractor interface {
	Extract(ctx context.Context, text string) ([]RawReading, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetInterpretationConfig() *InterpretationConfig
	Reload() error
	Validate() error
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
