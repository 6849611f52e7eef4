package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variable names
const (
	EnvConfigFile     = "WEBHOOK_CONFIG"
	EnvPort           = "WEBHOOK_PORT"
	EnvHost           = "WEBHOOK_HOST"
	EnvSecret         = "WEBHOOK_SIGNATURE_SECRET"
	EnvTolerance      = "WEBHOOK_TOLERANCE_SECONDS"
	EnvRejectFuture   = "WEBHOOK_REJECT_FUTURE"
	EnvMaxBodyBytes   = "WEBHOOK_MAX_BODY_BYTES"
	EnvRelayPolicy    = "WEBHOOK_RELAY_POLICY"
	EnvRelayQueueSize = "WEBHOOK_RELAY_QUEUE_SIZE"
	EnvLogLevel       = "WEBHOOK_LOG_LEVEL"
	EnvLogFormat      = "WEBHOOK_LOG_FORMAT"
)

// Defaults
const (
	DefaultHost             = "127.0.0.1"
	DefaultToleranceSeconds = 2
	DefaultMaxBodyBytes     = 1 << 20
	DefaultRelayPolicy      = "last"
	DefaultRelayQueueSize   = 64
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "console"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Signature SignatureConfig `yaml:"signature"`
	Receiver  ReceiverConfig  `yaml:"receiver"`
	Relay     RelayConfig     `yaml:"relay"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig is the listener serving both webhooks and the relay channel
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// SignatureConfig holds the shared secret and the freshness policy
type SignatureConfig struct {
	Secret           string `yaml:"secret"`
	ToleranceSeconds int    `yaml:"tolerance_seconds"`
	RejectFuture     bool   `yaml:"reject_future"`
}

// ReceiverConfig limits inbound webhook requests
type ReceiverConfig struct {
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RelayConfig selects how events reach subscribers
type RelayConfig struct {
	Policy    string `yaml:"policy"`     // "last" | "broadcast"
	QueueSize int    `yaml:"queue_size"` // pending events before dropping
}

// LogConfig configures zerolog
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" | "json"
}

// Addr returns the listen address in host:port form
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Default returns a configuration with every optional field set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
		},
		Signature: SignatureConfig{
			ToleranceSeconds: DefaultToleranceSeconds,
		},
		Receiver: ReceiverConfig{
			MaxBodyBytes: DefaultMaxBodyBytes,
		},
		Relay: RelayConfig{
			Policy:    DefaultRelayPolicy,
			QueueSize: DefaultRelayQueueSize,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// LoadFromEnv builds the configuration from environment variables.
// If WEBHOOK_CONFIG is set, that YAML file is read first and the
// environment overrides its values.
func LoadFromEnv() (*Config, error) {
	if path := os.Getenv(EnvConfigFile); path != "" {
		return Load(path)
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads configuration from the specified YAML file.
// Environment variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overrides fields with any environment variables that are set
func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvHost); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer: %q", ErrInvalidConfig, EnvPort, v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv(EnvSecret); v != "" {
		c.Signature.Secret = v
	}
	if v := os.Getenv(EnvTolerance); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer: %q", ErrInvalidConfig, EnvTolerance, v)
		}
		c.Signature.ToleranceSeconds = n
	}
	if v := os.Getenv(EnvRejectFuture); v != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be a boolean: %q", ErrInvalidConfig, EnvRejectFuture, v)
		}
		c.Signature.RejectFuture = b
	}
	if v := os.Getenv(EnvMaxBodyBytes); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer: %q", ErrInvalidConfig, EnvMaxBodyBytes, v)
		}
		c.Receiver.MaxBodyBytes = n
	}
	if v := os.Getenv(EnvRelayPolicy); v != "" {
		c.Relay.Policy = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvRelayQueueSize); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer: %q", ErrInvalidConfig, EnvRelayQueueSize, v)
		}
		c.Relay.QueueSize = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Log.Format = strings.ToLower(strings.TrimSpace(v))
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("%w: server.port is required (%s)", ErrInvalidConfig, EnvPort)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d is out of range", ErrInvalidConfig, c.Server.Port)
	}

	if strings.TrimSpace(c.Signature.Secret) == "" {
		return fmt.Errorf("%w: signature.secret is required (%s)", ErrInvalidConfig, EnvSecret)
	}
	if c.Signature.ToleranceSeconds < 0 {
		return fmt.Errorf("%w: signature.tolerance_seconds must not be negative", ErrInvalidConfig)
	}

	if c.Receiver.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: receiver.max_body_bytes must be positive", ErrInvalidConfig)
	}

	switch c.Relay.Policy {
	case "last", "broadcast":
	default:
		return fmt.Errorf("%w: relay.policy %q is not supported (supported: last, broadcast)", ErrInvalidConfig, c.Relay.Policy)
	}
	if c.Relay.QueueSize <= 0 {
		return fmt.Errorf("%w: relay.queue_size must be positive", ErrInvalidConfig)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q is not a valid level", ErrInvalidConfig, c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log.format %q is not supported (supported: console, json)", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}
