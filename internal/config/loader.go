package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SERVERWITCH_RELAY_URL.
const EnvPrefix = "SERVERWITCH"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file, if present, and applies environment
// overrides on top of the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "serverwitch.log")
	}

	return cfg, nil
}

// Save writes cfg to the config file
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("relay", map[string]interface{}{
		"url":                cfg.Relay.URL,
		"strategy":           cfg.Relay.Strategy,
		"handshake_timeout":  cfg.Relay.HandshakeTimeout.String(),
		"keepalive_interval": cfg.Relay.KeepaliveInterval.String(),
	})
	v.Set("executor", map[string]interface{}{
		"shell":            cfg.Executor.Shell,
		"shell_path":       cfg.Executor.ShellPath,
		"shell_args":       cfg.Executor.ShellArgs,
		"working_dir":      cfg.Executor.WorkingDir,
		"timeout":          cfg.Executor.Timeout.String(),
		"max_output_bytes": cfg.Executor.MaxOutputBytes,
		"max_concurrency":  cfg.Executor.MaxConcurrency,
		"atomic_writes":    cfg.Executor.AtomicWrites,
	})
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("audit_file", cfg.AuditFile)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".serverwitch", "config.json"), nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("relay.url", cfg.Relay.URL)
	v.SetDefault("relay.strategy", cfg.Relay.Strategy)
	v.SetDefault("relay.handshake_timeout", cfg.Relay.HandshakeTimeout)
	v.SetDefault("relay.keepalive_interval", cfg.Relay.KeepaliveInterval)

	v.SetDefault("executor.shell", cfg.Executor.Shell)
	v.SetDefault("executor.shell_path", cfg.Executor.ShellPath)
	v.SetDefault("executor.shell_args", cfg.Executor.ShellArgs)
	v.SetDefault("executor.working_dir", cfg.Executor.WorkingDir)
	v.SetDefault("executor.timeout", cfg.Executor.Timeout)
	v.SetDefault("executor.max_output_bytes", cfg.Executor.MaxOutputBytes)
	v.SetDefault("executor.max_concurrency", cfg.Executor.MaxConcurrency)
	v.SetDefault("executor.atomic_writes", cfg.Executor.AtomicWrites)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.console", cfg.Logging.Console)
	v.SetDefault("logging.max_size", cfg.Logging.MaxSize)
	v.SetDefault("logging.max_age", cfg.Logging.MaxAge)
	v.SetDefault("logging.compress", cfg.Logging.Compress)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("audit_file", cfg.AuditFile)
	v.SetDefault("data_dir", cfg.DataDir)
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
