package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidateRelayURL(t *testing.T) {
	v := NewValidator()

	t.Run("valid urls", func(t *testing.T) {
		for _, u := range []string{"http://localhost:8080", "https://relay.example", "ws://127.0.0.1:1", "wss://serverwitch.dev"} {
			assert.NoError(t, v.ValidateRelayURL(u), u)
		}
	})

	t.Run("empty", func(t *testing.T) {
		assert.Error(t, v.ValidateRelayURL("  "))
	})

	t.Run("bad scheme", func(t *testing.T) {
		assert.Error(t, v.ValidateRelayURL("ftp://relay.example"))
	})

	t.Run("missing host", func(t *testing.T) {
		assert.Error(t, v.ValidateRelayURL("wss://"))
	})
}

func TestValidateStrategy(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateStrategy(""))
	assert.NoError(t, v.ValidateStrategy("http"))
	assert.NoError(t, v.ValidateStrategy("frame"))
	assert.Error(t, v.ValidateStrategy("smoke-signals"))
}

func TestValidateShell(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateShell(""))
	assert.NoError(t, v.ValidateShell("exec"))
	assert.NoError(t, v.ValidateShell("builtin"))
	assert.Error(t, v.ValidateShell("zsh"))
}

func TestValidateDuration(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateDuration("x", 0))
	assert.NoError(t, v.ValidateDuration("x", time.Second))
	err := v.ValidateDuration("executor.timeout", -time.Second)
	assert.ErrorContains(t, err, "executor.timeout must be >= 0")
}

func TestValidateListenAddr(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateListenAddr(""))
	assert.NoError(t, v.ValidateListenAddr(":9090"))
	assert.NoError(t, v.ValidateListenAddr("127.0.0.1:9090"))
	assert.Error(t, v.ValidateListenAddr("9090"))
}

func TestValidateLogLevel(t *testing.T) {
	v := NewValidator()

	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.NoError(t, v.ValidateLogLevel(level))
	}
	assert.Error(t, v.ValidateLogLevel("trace"))
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()

	t.Run("defaults are valid", func(t *testing.T) {
		assert.Empty(t, v.ValidateConfig(DefaultConfig()))
	})

	t.Run("collects every error", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Relay.Strategy = "pigeon"
		cfg.Relay.KeepaliveInterval = -time.Second
		cfg.Executor.Shell = "fish"
		cfg.Executor.MaxOutputBytes = -1
		cfg.Executor.MaxConcurrency = 0
		cfg.Metrics.Addr = "nope"

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 6)
	})

	t.Run("exec shell needs args", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Executor.ShellArgs = nil

		errs := v.ValidateConfig(cfg)
		assert.Len(t, errs, 1)

		cfg.Executor.Shell = "builtin"
		assert.Empty(t, v.ValidateConfig(cfg))
	})
}
