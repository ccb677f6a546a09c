package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultRelayURL is the hosted relay.
const DefaultRelayURL = "wss://serverwitch.dev"

// Config represents the serverwitch agent configuration
type Config struct {
	// Relay connection
	Relay RelayConfig `json:"relay" mapstructure:"relay"`

	// Host-side execution
	Executor ExecutorConfig `json:"executor" mapstructure:"executor"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// Audit trail of every action, empty disables it
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`

	// Data directory for logs and audit files
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// RelayConfig holds relay connection settings
type RelayConfig struct {
	URL               string        `json:"url" mapstructure:"url"`
	Strategy          string        `json:"strategy" mapstructure:"strategy"` // http, frame
	HandshakeTimeout  time.Duration `json:"handshake_timeout" mapstructure:"handshake_timeout"`
	KeepaliveInterval time.Duration `json:"keepalive_interval" mapstructure:"keepalive_interval"`
}

// ExecutorConfig holds settings for running approved actions
type ExecutorConfig struct {
	Shell          string        `json:"shell" mapstructure:"shell"` // exec, builtin
	ShellPath      string        `json:"shell_path" mapstructure:"shell_path"`
	ShellArgs      []string      `json:"shell_args" mapstructure:"shell_args"`
	WorkingDir     string        `json:"working_dir" mapstructure:"working_dir"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`                   // 0 = none
	MaxOutputBytes int64         `json:"max_output_bytes" mapstructure:"max_output_bytes"` // 0 = none
	MaxConcurrency int           `json:"max_concurrency" mapstructure:"max_concurrency"`
	AtomicWrites   bool          `json:"atomic_writes" mapstructure:"atomic_writes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// MetricsConfig holds the Prometheus listener settings
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // empty = disabled
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Relay: RelayConfig{
			URL:               DefaultRelayURL,
			Strategy:          "http",
			HandshakeTimeout:  15 * time.Second,
			KeepaliveInterval: 20 * time.Second,
		},
		Executor: ExecutorConfig{
			Shell:          "exec",
			ShellPath:      "/bin/bash",
			ShellArgs:      []string{"-c"},
			MaxConcurrency: 100,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	errs := NewValidator().ValidateConfig(c)
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Errorf("%d configuration errors: %w (and %d more)", len(errs), errs[0], len(errs)-1)
}
