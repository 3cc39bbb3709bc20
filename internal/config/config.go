// ABOUTME: Configuration loading and parsing for sage-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sage-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Genie    GenieConfig    `yaml:"genie"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Limits   LimitsConfig   `yaml:"limits"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// GenieConfig holds the remote query service connection and timing
// configuration
type GenieConfig struct {
	Host    string `yaml:"host"`
	SpaceID string `yaml:"space_id"`
	Token   string `yaml:"token"`

	MaxRetries      int  `yaml:"max_retries"`
	SettleFollowUps bool `yaml:"settle_follow_ups"`

	CallTimeout    time.Duration `yaml:"-"`
	RetryBaseDelay time.Duration `yaml:"-"`
	PollInitial    time.Duration `yaml:"-"`
	PollMax        time.Duration `yaml:"-"`
	Deadline       time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CallTimeoutRaw    string `yaml:"call_timeout"`
	RetryBaseDelayRaw string `yaml:"retry_base_delay"`
	PollInitialRaw    string `yaml:"poll_initial"`
	PollMaxRaw        string `yaml:"poll_max"`
	DeadlineRaw       string `yaml:"deadline"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration. An empty JWTSecret
// disables token verification and trusts the forwarded identity headers.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LimitsConfig holds concurrency limits
type LimitsConfig struct {
	MaxConcurrent int64 `yaml:"max_concurrent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in the timing and limit values left unset.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":8080"
	}
	if c.Genie.MaxRetries == 0 {
		c.Genie.MaxRetries = 3
	}
	if c.Genie.CallTimeout == 0 {
		c.Genie.CallTimeout = 30 * time.Second
	}
	if c.Genie.RetryBaseDelay == 0 {
		c.Genie.RetryBaseDelay = time.Second
	}
	if c.Genie.PollInitial == 0 {
		c.Genie.PollInitial = time.Second
	}
	if c.Genie.PollMax == 0 {
		c.Genie.PollMax = 60 * time.Second
	}
	if c.Genie.Deadline == 0 {
		c.Genie.Deadline = 600 * time.Second
	}
	if c.Limits.MaxConcurrent == 0 {
		c.Limits.MaxConcurrent = 16
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Genie.Host == "" {
		return fmt.Errorf("genie.host is required")
	}
	if c.Genie.SpaceID == "" {
		return fmt.Errorf("genie.space_id is required")
	}
	if c.Genie.Token == "" {
		return fmt.Errorf("genie.token is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Genie.PollInitial > c.Genie.PollMax {
		return fmt.Errorf("genie.poll_initial must not exceed genie.poll_max")
	}
	if c.Genie.MaxRetries < 1 {
		return fmt.Errorf("genie.max_retries must be at least 1")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"call_timeout", cfg.Genie.CallTimeoutRaw, &cfg.Genie.CallTimeout},
		{"retry_base_delay", cfg.Genie.RetryBaseDelayRaw, &cfg.Genie.RetryBaseDelay},
		{"poll_initial", cfg.Genie.PollInitialRaw, &cfg.Genie.PollInitial},
		{"poll_max", cfg.Genie.PollMaxRaw, &cfg.Genie.PollMax},
		{"deadline", cfg.Genie.DeadlineRaw, &cfg.Genie.Deadline},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
