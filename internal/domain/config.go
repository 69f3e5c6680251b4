package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Interpretation InterpretationConfig `mapstructure:"interpretation"`
	Narrative      NarrativeConfig      `mapstructure:"narrative"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Feedback       FeedbackConfig       `mapstructure:"feedback"`
	MCP            MCPConfig            `mapstructure:"mcp"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst      int           `mapstructure:"rate_burst"`
	TLSEnabled     bool          `mapstructure:"tls_enabled"`
	CertFile       string        `mapstructure:"cert_file"`
	KeyFile        string        `mapstructure:"key_file"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // "json", "text"
	Output   string `mapstructure:"output"` // "stdout", "stderr", "file"
	Filename string `mapstructure:"filename"`
}

// InterpretationConfig holds the tunable constants of the interpretation engine.
type InterpretationConfig struct {
	// ReferenceRangesFile and RulesFile override the embedded defaults when set.
	ReferenceRangesFile string `mapstructure:"reference_ranges_file"`
	RulesFile           string `mapstructure:"rules_file"`

	MandatoryParameters []string `mapstructure:"mandatory_parameters"`

	RuleOfThreesTolerance float64 `mapstructure:"rule_of_threes_tolerance"`
	MCHCPlausibleLow      float64 `mapstructure:"mchc_plausible_low"`
	MCHCPlausibleHigh     float64 `mapstructure:"mchc_plausible_high"`
	HematocritTolerance   float64 `mapstructure:"hematocrit_tolerance"`
	DifferentialSumSlack  float64 `mapstructure:"differential_sum_slack"`

	ModerateThreshold float64 `mapstructure:"moderate_threshold"`
	SevereThreshold   float64 `mapstructure:"severe_threshold"`

	MagnitudeWeight   float64 `mapstructure:"magnitude_weight"`
	MagnitudeCap      float64 `mapstructure:"magnitude_cap"`
	CorroborationRate float64 `mapstructure:"corroboration_rate"`
}

// DefaultInterpretationConfig returns the engine constants used when nothing is configured.
func DefaultInterpretationConfig() InterpretationConfig {
	return InterpretationConfig{
		MandatoryParameters:   []string{string(Hemoglobin)},
		RuleOfThreesTolerance: 0.03,
		MCHCPlausibleLow:      28,
		MCHCPlausibleHigh:     38,
		HematocritTolerance:   0.10,
		DifferentialSumSlack:  5,
		ModerateThreshold:     1,
		SevereThreshold:       2,
		MagnitudeWeight:       0.25,
		MagnitudeCap:          3,
		CorroborationRate:     0.10,
	}
}

// NarrativeConfig configures the optional chat-completions collaborator.
type NarrativeConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimit       float64       `mapstructure:"rate_limit"` // calls per second
	RateBurst       int           `mapstructure:"rate_burst"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
	BreakerHalfOpen uint32        `mapstructure:"breaker_half_open"`
	BreakerInterval time.Duration `mapstructure:"breaker_interval"`
}

// CacheConfig represents narrative cache configuration
type CacheConfig struct {
	Size        int           `mapstructure:"size"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	RedisURL    string        `mapstructure:"redis_url"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// FeedbackConfig configures the reviewer feedback store.
type FeedbackConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
}
