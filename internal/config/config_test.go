package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultRelayURL, cfg.Relay.URL)
	assert.Equal(t, "http", cfg.Relay.Strategy)
	assert.Equal(t, 15*time.Second, cfg.Relay.HandshakeTimeout)
	assert.Equal(t, 20*time.Second, cfg.Relay.KeepaliveInterval)

	assert.Equal(t, "exec", cfg.Executor.Shell)
	assert.Equal(t, "/bin/bash", cfg.Executor.ShellPath)
	assert.Equal(t, []string{"-c"}, cfg.Executor.ShellArgs)
	assert.Zero(t, cfg.Executor.Timeout)
	assert.Zero(t, cfg.Executor.MaxOutputBytes)
	assert.Equal(t, 100, cfg.Executor.MaxConcurrency)
	assert.False(t, cfg.Executor.AtomicWrites)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Console)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.Empty(t, cfg.AuditFile)

	assert.NoError(t, cfg.Validate())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cfg.String()), &decoded))
	assert.Contains(t, decoded, "relay")
	assert.Contains(t, decoded, "executor")
}

func TestConfigValidate(t *testing.T) {
	t.Run("single error is returned as is", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Relay.URL = "ftp://relay.example"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid relay url scheme")
	})

	t.Run("multiple errors are summarized", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Relay.URL = ""
		cfg.Executor.MaxConcurrency = 0
		cfg.Logging.Level = "loud"

		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 configuration errors")
		assert.Contains(t, err.Error(), "relay url cannot be empty")
	})
}
