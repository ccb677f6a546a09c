package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRelayURL validates the relay base address
func (v *Validator) ValidateRelayURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("relay url cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay url: %w", err)
	}

	validSchemes := []string{"http", "https", "ws", "wss"}
	if !contains(validSchemes, u.Scheme) {
		return fmt.Errorf("invalid relay url scheme: %s (must be one of: %s)", u.Scheme, strings.Join(validSchemes, ", "))
	}
	if u.Host == "" {
		return fmt.Errorf("invalid relay url: missing host")
	}
	return nil
}

// ValidateStrategy validates the session negotiation strategy
func (v *Validator) ValidateStrategy(strategy string) error {
	if strategy == "" {
		return nil // Use default
	}

	validStrategies := []string{"http", "frame"}
	if contains(validStrategies, strategy) {
		return nil
	}
	return fmt.Errorf("invalid relay strategy: %s (must be one of: %s)", strategy, strings.Join(validStrategies, ", "))
}

// ValidateShell validates the command runner
func (v *Validator) ValidateShell(shell string) error {
	if shell == "" {
		return nil // Use default
	}

	validShells := []string{"exec", "builtin"}
	if contains(validShells, shell) {
		return nil
	}
	return fmt.Errorf("invalid executor shell: %s (must be one of: %s)", shell, strings.Join(validShells, ", "))
}

// ValidateDuration validates a non-negative duration setting
func (v *Validator) ValidateDuration(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%s must be >= 0, got %s", name, d)
	}
	return nil
}

// ValidateListenAddr validates a host:port listen address
func (v *Validator) ValidateListenAddr(addr string) error {
	if addr == "" {
		return nil // Disabled
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid metrics addr %q: %w", addr, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if contains(validLevels, level) {
		return nil
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateRelayURL(cfg.Relay.URL); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateStrategy(cfg.Relay.Strategy); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDuration("relay.handshake_timeout", cfg.Relay.HandshakeTimeout); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateDuration("relay.keepalive_interval", cfg.Relay.KeepaliveInterval); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateShell(cfg.Executor.Shell); err != nil {
		errors = append(errors, err)
	}
	if cfg.Executor.Shell != "builtin" && len(cfg.Executor.ShellArgs) == 0 && cfg.Executor.ShellPath != "" {
		errors = append(errors, fmt.Errorf("executor.shell_args must not be empty for shell %s", cfg.Executor.ShellPath))
	}
	if err := v.ValidateDuration("executor.timeout", cfg.Executor.Timeout); err != nil {
		errors = append(errors, err)
	}
	if cfg.Executor.MaxOutputBytes < 0 {
		errors = append(errors, fmt.Errorf("executor.max_output_bytes must be >= 0"))
	}
	if cfg.Executor.MaxConcurrency <= 0 {
		errors = append(errors, fmt.Errorf("executor.max_concurrency must be > 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}

	if err := v.ValidateListenAddr(cfg.Metrics.Addr); err != nil {
		errors = append(errors, err)
	}

	return errors
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
