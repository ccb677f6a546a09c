package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	t.Run("version flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--version"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		assert.Contains(t, output.String(), "serverwitch version")
		assert.Contains(t, output.String(), GetVersion())
	})

	t.Run("help flag", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "session id")
		assert.Contains(t, helpText, "--url")
		assert.Contains(t, helpText, "config")
	})

	t.Run("global flags", func(t *testing.T) {
		cmd := GetRootCmd()

		// Check config flag exists
		configFlag := cmd.PersistentFlags().Lookup("config")
		require.NotNil(t, configFlag)
		assert.Equal(t, "", configFlag.DefValue)

		// Check log-level flag exists
		logLevelFlag := cmd.PersistentFlags().Lookup("log-level")
		require.NotNil(t, logLevelFlag)
		assert.Equal(t, "info", logLevelFlag.DefValue)

		for _, name := range []string{"url", "strategy", "log-file", "metrics-addr"} {
			assert.NotNil(t, cmd.Flags().Lookup(name), name)
		}
	})

	t.Run("rejects arguments", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"extra"})
		cmd.SetOut(&bytes.Buffer{})

		assert.Error(t, cmd.Execute())
	})
}

func TestGetVersion(t *testing.T) {
	version := GetVersion()
	assert.NotEmpty(t, version)
	assert.True(t, strings.HasPrefix(version, "0."))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   int
		silent bool
	}{
		{name: "nil", err: nil, code: 0},
		{name: "plain error", err: errors.New("boom"), code: 1},
		{name: "exit error", err: &ExitError{Code: 1}, code: 1, silent: true},
		{name: "wrapped exit error", err: fmt.Errorf("run: %w", &ExitError{Code: 3}), code: 3, silent: true},
		{name: "exit error with cause", err: &ExitError{Code: 1, Err: errors.New("fault")}, code: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCode(tt.err))
			if tt.err != nil {
				assert.Equal(t, tt.silent, Silent(tt.err))
			}
		})
	}
}

func TestExitError_Message(t *testing.T) {
	assert.Equal(t, "exit status 1", (&ExitError{Code: 1}).Error())
	assert.Equal(t, "fault", (&ExitError{Code: 1, Err: errors.New("fault")}).Error())
}
