// Package config provides configuration management for the CBC interpretation server.
// This file contains the lightweight, environment-only configuration used by the
// stdio MCP server and the command-line tool.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cbc-interpretation-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no config file and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the feedback database and exports

	// Engine data overrides; empty means the embedded defaults
	ReferenceRangesFile string
	RulesFile           string

	// Narrative cache settings
	CacheMaxItems int
	CacheTTL      time.Duration

	// Narrative collaborator
	NarrativeEnabled bool
	NarrativeURL     string
	NarrativeModel   string
	NarrativeAPIKey  string

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".cbc-interpretation")

	return &LiteConfig{
		DataDir:        dataDir,
		CacheMaxItems:  256,
		CacheTTL:       24 * time.Hour,
		NarrativeURL:   "http://localhost:11434",
		NarrativeModel: "llama3.1",
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("CBC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	cfg.ReferenceRangesFile = os.Getenv("CBC_REFERENCE_RANGES_FILE")
	cfg.RulesFile = os.Getenv("CBC_RULES_FILE")

	if v := os.Getenv("CBC_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("CBC_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("CBC_NARRATIVE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NarrativeEnabled = b
		}
	}
	if v := os.Getenv("CBC_NARRATIVE_URL"); v != "" {
		cfg.NarrativeURL = v
	}
	if v := os.Getenv("CBC_NARRATIVE_MODEL"); v != "" {
		cfg.NarrativeModel = v
	}
	cfg.NarrativeAPIKey = os.Getenv("CBC_NARRATIVE_API_KEY")

	if v := os.Getenv("CBC_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CBC_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// Interpretation returns the engine configuration with this config's file overrides.
func (c *LiteConfig) Interpretation() domain.InterpretationConfig {
	ic := domain.DefaultInterpretationConfig()
	ic.ReferenceRangesFile = c.ReferenceRangesFile
	ic.RulesFile = c.RulesFile
	return ic
}

// Logging returns the logger configuration; the stdio transport owns stdout, so logs go to stderr.
func (c *LiteConfig) Logging() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat, Output: "stderr"}
}

// Narrative returns the narrative collaborator configuration.
func (c *LiteConfig) Narrative() domain.NarrativeConfig {
	return domain.NarrativeConfig{
		Enabled:         c.NarrativeEnabled,
		BaseURL:         c.NarrativeURL,
		APIKey:          c.NarrativeAPIKey,
		Model:           c.NarrativeModel,
		Temperature:     0.2,
		MaxTokens:       800,
		Timeout:         60 * time.Second,
		RateLimit:       1,
		RateBurst:       2,
		BreakerFailures: 5,
		BreakerTimeout:  60 * time.Second,
		BreakerHalfOpen: 1,
	}
}

// Cache returns the narrative cache configuration.
func (c *LiteConfig) Cache() domain.CacheConfig {
	return domain.CacheConfig{Size: c.CacheMaxItems, DefaultTTL: c.CacheTTL}
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}
