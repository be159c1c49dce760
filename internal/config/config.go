// ABOUTME: Configuration loading and parsing for drover.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/droverlabs/drover/internal/protocol"
)

// Defaults for everything that can be left unconfigured. drover runs with no
// config file at all; Load layers file values over these.
const (
	DefaultNATSURL           = "nats://localhost:4222"
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultHistoryPath       = ":memory:"
)

// Config is the complete drover configuration, shared by both subcommands.
type Config struct {
	NATS    NATSConfig    `yaml:"nats"`
	Agent   AgentConfig   `yaml:"agent"`
	Clients ClientsConfig `yaml:"clients"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// NATSConfig holds bus connection configuration.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// AgentConfig holds client-side settings.
type AgentConfig struct {
	// ClientID overrides the derived username-hostname identity.
	ClientID string `yaml:"client_id"`

	HeartbeatInterval time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// ClientsConfig holds operator-side client tracking settings.
type ClientsConfig struct {
	// TTL evicts clients unseen for this long; zero means never evict.
	TTL time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// HistoryConfig holds the operator activity log settings.
type HistoryConfig struct {
	// Path is the SQLite database location; ":memory:" keeps history for the
	// life of the process only.
	Path string `yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           DefaultNATSURL,
			SubjectPrefix: protocol.DefaultSubjectPrefix,
		},
		Agent: AgentConfig{
			HeartbeatInterval: DefaultHeartbeatInterval,
		},
		History: HistoryConfig{
			Path: DefaultHistoryPath,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file and layers it over the defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that the configuration is runnable.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}
	if err := validateSubjectPrefix(c.NATS.SubjectPrefix); err != nil {
		return fmt.Errorf("nats.subject_prefix: %w", err)
	}
	if c.Agent.ClientID != "" && !protocol.ValidClientID(c.Agent.ClientID) {
		return fmt.Errorf("agent.client_id %q may only contain [A-Za-z0-9_-]", c.Agent.ClientID)
	}
	if c.Agent.HeartbeatInterval <= 0 {
		return fmt.Errorf("agent.heartbeat_interval must be positive")
	}
	if c.Clients.TTL < 0 {
		return fmt.Errorf("clients.ttl cannot be negative")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format)
	}

	return nil
}

// validateSubjectPrefix rejects prefixes that would produce malformed or
// wildcard subjects. Dots are allowed; a prefix may span several tokens.
func validateSubjectPrefix(prefix string) error {
	if prefix == "" {
		return fmt.Errorf("cannot be empty")
	}
	if strings.ContainsAny(prefix, " \t*>") {
		return fmt.Errorf("%q may not contain spaces or wildcards", prefix)
	}
	if strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") || strings.Contains(prefix, "..") {
		return fmt.Errorf("%q has an empty subject token", prefix)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.HeartbeatIntervalRaw != "" {
		cfg.Agent.HeartbeatInterval, err = time.ParseDuration(cfg.Agent.HeartbeatIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing heartbeat_interval %q: %w", cfg.Agent.HeartbeatIntervalRaw, err)
		}
	}

	if cfg.Clients.TTLRaw != "" {
		cfg.Clients.TTL, err = time.ParseDuration(cfg.Clients.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing clients.ttl %q: %w", cfg.Clients.TTLRaw, err)
		}
	}

	return nil
}
