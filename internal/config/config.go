package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cbc-interpretation-server/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v          *viper.Viper
	configFile string
	config     *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file; an empty path searches
// the default locations.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{configFile: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/cbc-interpretation-server/")
	}

	// Set environment variable prefix and enable automatic env binding
	v.SetEnvPrefix("CBC_INTERP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read configuration file (optional - will use defaults and env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.configFile != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	// comma-separated env values arrive as a single element
	if len(config.Interpretation.MandatoryParameters) == 1 {
		config.Interpretation.MandatoryParameters = splitList(config.Interpretation.MandatoryParameters[0])
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)
	v.SetDefault("server.tls_enabled", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.filename", "")

	// Interpretation defaults
	d := domain.DefaultInterpretationConfig()
	v.SetDefault("interpretation.reference_ranges_file", "")
	v.SetDefault("interpretation.rules_file", "")
	v.SetDefault("interpretation.mandatory_parameters", d.MandatoryParameters)
	v.SetDefault("interpretation.rule_of_threes_tolerance", d.RuleOfThreesTolerance)
	v.SetDefault("interpretation.mchc_plausible_low", d.MCHCPlausibleLow)
	v.SetDefault("interpretation.mchc_plausible_high", d.MCHCPlausibleHigh)
	v.SetDefault("interpretation.hematocrit_tolerance", d.HematocritTolerance)
	v.SetDefault("interpretation.differential_sum_slack", d.DifferentialSumSlack)
	v.SetDefault("interpretation.moderate_threshold", d.ModerateThreshold)
	v.SetDefault("interpretation.severe_threshold", d.SevereThreshold)
	v.SetDefault("interpretation.magnitude_weight", d.MagnitudeWeight)
	v.SetDefault("interpretation.magnitude_cap", d.MagnitudeCap)
	v.SetDefault("interpretation.corroboration_rate", d.CorroborationRate)

	// Narrative defaults
	v.SetDefault("narrative.enabled", false)
	v.SetDefault("narrative.base_url", "http://localhost:11434")
	v.SetDefault("narrative.api_key", "")
	v.SetDefault("narrative.model", "llama3.1")
	v.SetDefault("narrative.temperature", 0.2)
	v.SetDefault("narrative.max_tokens", 800)
	v.SetDefault("narrative.timeout", "60s")
	v.SetDefault("narrative.rate_limit", 1)
	v.SetDefault("narrative.rate_burst", 2)
	v.SetDefault("narrative.breaker_failures", 5)
	v.SetDefault("narrative.breaker_timeout", "60s")
	v.SetDefault("narrative.breaker_half_open", 1)
	v.SetDefault("narrative.breaker_interval", "0s")

	// Cache defaults
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.default_ttl", "24h")
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.key_prefix", "cbc:narrative:")
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")

	// Feedback defaults
	v.SetDefault("feedback.enabled", true)
	v.SetDefault("feedback.path", "data/feedback.db")

	// MCP defaults
	v.SetDefault("mcp.server_name", "cbc-interpretation-server")
	v.SetDefault("mcp.server_version", "1.0.0")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// GetInterpretationConfig returns the interpretation engine configuration
func (m *Manager) GetInterpretationConfig() *domain.InterpretationConfig {
	return &m.config.Interpretation
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	// Validate server configuration
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return domain.NewValidationError("server.port", "port must be between 1 and 65535", config.Server.Port)
	}
	if config.Server.TLSEnabled && (config.Server.CertFile == "" || config.Server.KeyFile == "") {
		return domain.NewValidationError("server.tls_enabled", "cert_file and key_file are required with TLS", true)
	}
	if config.Server.RateLimit < 0 {
		return domain.NewValidationError("server.rate_limit", "must not be negative", config.Server.RateLimit)
	}

	// Validate logging configuration
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return domain.NewValidationError("logging.level", "invalid log level", config.Logging.Level)
	}
	if config.Logging.Output == "file" && config.Logging.Filename == "" {
		return domain.NewValidationError("logging.filename", "required when output is file", "")
	}

	if err := validateInterpretation(config.Interpretation); err != nil {
		return err
	}

	if config.Narrative.Enabled {
		if config.Narrative.BaseURL == "" {
			return domain.NewValidationError("narrative.base_url", "required when narrative is enabled", "")
		}
		if config.Narrative.Model == "" {
			return domain.NewValidationError("narrative.model", "required when narrative is enabled", "")
		}
		if config.Narrative.RateLimit <= 0 {
			return domain.NewValidationError("narrative.rate_limit", "must be positive", config.Narrative.RateLimit)
		}
	}

	if config.Cache.Size <= 0 {
		return domain.NewValidationError("cache.size", "must be positive", config.Cache.Size)
	}

	return nil
}

func validateInterpretation(c domain.InterpretationConfig) error {
	if c.RuleOfThreesTolerance <= 0 || c.RuleOfThreesTolerance >= 1 {
		return domain.NewValidationError("interpretation.rule_of_threes_tolerance", "must be in (0, 1)", c.RuleOfThreesTolerance)
	}
	if c.HematocritTolerance <= 0 || c.HematocritTolerance >= 1 {
		return domain.NewValidationError("interpretation.hematocrit_tolerance", "must be in (0, 1)", c.HematocritTolerance)
	}
	if c.MCHCPlausibleLow >= c.MCHCPlausibleHigh {
		return domain.NewValidationError("interpretation.mchc_plausible_low", "must be below mchc_plausible_high", c.MCHCPlausibleLow)
	}
	if c.ModerateThreshold <= 0 || c.SevereThreshold <= c.ModerateThreshold {
		return domain.NewValidationError("interpretation.severe_threshold", "must exceed moderate_threshold > 0", c.SevereThreshold)
	}
	if c.MagnitudeWeight < 0 || c.MagnitudeWeight > 1 {
		return domain.NewValidationError("interpretation.magnitude_weight", "must be in [0, 1]", c.MagnitudeWeight)
	}
	if c.MagnitudeCap <= 0 {
		return domain.NewValidationError("interpretation.magnitude_cap", "must be positive", c.MagnitudeCap)
	}
	if c.CorroborationRate < 0 || c.CorroborationRate > 1 {
		return domain.NewValidationError("interpretation.corroboration_rate", "must be in [0, 1]", c.CorroborationRate)
	}
	for _, name := range c.MandatoryParameters {
		if _, err := domain.ParseParameter(name); err != nil {
			return domain.NewValidationError("interpretation.mandatory_parameters", err.Error(), name)
		}
	}
	return nil
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var _ domain.ConfigManager = (*Manager)(nil)
