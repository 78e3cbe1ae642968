// ABOUTME: Configuration loading and parsing for fold-console
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete fold-console configuration
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway"`
	Database DatabaseConfig `yaml:"database"`
	Chat     ChatConfig     `yaml:"chat"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GatewayConfig holds the upstream gateway connection settings
type GatewayConfig struct {
	URL       string `yaml:"url"`
	Token     string `yaml:"token"`      // literal token (supports ${VAR} expansion)
	TokenFile string `yaml:"token_file"` // read at startup when token is empty
}

// DatabaseConfig holds the local transcript mirror location
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ChatConfig holds chat behavior settings
type ChatConfig struct {
	Sender string `yaml:"sender"`

	ReloadTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReloadTimeoutRaw string `yaml:"reload_timeout"`
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

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in values that are optional in the config file
func (c *Config) applyDefaults() {
	if c.Chat.Sender == "" {
		c.Chat.Sender = "console-user"
	}
	if c.Chat.ReloadTimeout == 0 {
		c.Chat.ReloadTimeout = 10 * time.Second
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
	if c.Gateway.URL == "" {
		return fmt.Errorf("gateway.url is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// ResolveToken returns the bearer token: the literal value if set, otherwise
// the trimmed contents of token_file, otherwise empty (unauthenticated).
func (c *Config) ResolveToken() (string, error) {
	if c.Gateway.Token != "" {
		return c.Gateway.Token, nil
	}
	if c.Gateway.TokenFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.Gateway.TokenFile)
	if err != nil {
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Chat.ReloadTimeoutRaw != "" {
		cfg.Chat.ReloadTimeout, err = time.ParseDuration(cfg.Chat.ReloadTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing reload_timeout %q: %w", cfg.Chat.ReloadTimeoutRaw, err)
		}
	}

	return nil
}
