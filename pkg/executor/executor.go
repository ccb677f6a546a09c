// Package executor runs approved actions against the host.
package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/harun/serverwitch/pkg/action"
	"github.com/rs/zerolog"
)

// Shell runner names accepted in Config.Shell.
const (
	ShellExec    = "exec"
	ShellBuiltin = "builtin"
)

// Config holds executor configuration
type Config struct {
	Shell          string        // exec, builtin
	ShellPath      string        // shell binary for the exec runner
	ShellArgs      []string      // arguments placed before the command string
	WorkingDir     string        // working directory for commands and relative paths
	Timeout        time.Duration // 0 disables the limit
	MaxOutputBytes int           // per stream, 0 disables the limit
	AtomicWrites   bool          // write to a temp file then rename
}

// DefaultConfig returns default executor configuration
func DefaultConfig() Config {
	return Config{
		Shell:     ShellExec,
		ShellPath: "/bin/bash",
		ShellArgs: []string{"-c"},
	}
}

// Executor turns an Action into an Outcome. It never returns a Go error:
// every host-side failure is reported inside the Outcome.
type Executor struct {
	cfg    Config
	runner Runner
	logger zerolog.Logger
}

// New creates a new Executor
func New(cfg Config, logger zerolog.Logger) (*Executor, error) {
	defaults := DefaultConfig()
	if cfg.Shell == "" {
		cfg.Shell = defaults.Shell
	}
	if cfg.ShellPath == "" {
		cfg.ShellPath = defaults.ShellPath
	}
	if cfg.ShellArgs == nil {
		cfg.ShellArgs = defaults.ShellArgs
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("invalid timeout: %v", cfg.Timeout)
	}
	if cfg.MaxOutputBytes < 0 {
		return nil, fmt.Errorf("invalid max output bytes: %d", cfg.MaxOutputBytes)
	}

	var runner Runner
	switch cfg.Shell {
	case ShellExec:
		runner = &ExecRunner{Path: cfg.ShellPath, Args: cfg.ShellArgs, Dir: cfg.WorkingDir}
	case ShellBuiltin:
		runner = &BuiltinRunner{Dir: cfg.WorkingDir}
	default:
		return nil, fmt.Errorf("unknown shell runner: %s (must be one of: %s, %s)", cfg.Shell, ShellExec, ShellBuiltin)
	}

	return &Executor{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "executor").Logger(),
	}, nil
}

// NewWithRunner creates an Executor that runs commands through runner.
func NewWithRunner(cfg Config, runner Runner, logger zerolog.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "executor").Logger(),
	}
}

// Execute runs a single action and returns its outcome.
func (e *Executor) Execute(ctx context.Context, a action.Action) (out action.Outcome) {
	start := time.Now()
	logger := e.logger.With().Str("action_id", a.ID()).Str("kind", a.Kind().String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Action execution panicked")
			out = action.Failure(fmt.Sprintf("internal error: %v", r))
		}
		logger.Debug().
			Bool("success", out.Success).
			Dur("duration", time.Since(start)).
			Msg("Action executed")
	}()

	switch v := a.(type) {
	case action.ExecuteCommand:
		return e.runCommand(ctx, v.Command)
	case action.ReadFile:
		return e.readFile(e.resolvePath(v.Path))
	case action.WriteFile:
		return e.writeFile(e.resolvePath(v.Path), v.Content)
	default:
		return action.Failure(fmt.Sprintf("unsupported action type %q", a.Kind()))
	}
}

func (e *Executor) runCommand(ctx context.Context, command string) action.Outcome {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	stdout := newCapture(e.cfg.MaxOutputBytes)
	stderr := newCapture(e.cfg.MaxOutputBytes)

	exitCode, err := e.runner.Run(ctx, command, stdout, stderr)

	out := action.Outcome{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		out.Err = fmt.Sprintf("timed out after %v", e.cfg.Timeout)
	case err != nil:
		out.Err = err.Error()
	case exitCode != 0:
		out.ExitCode = action.IntPtr(exitCode)
		out.Err = fmt.Sprintf("exit status %d", exitCode)
	default:
		out.ExitCode = action.IntPtr(0)
		out.Success = true
	}
	return out
}

func (e *Executor) resolvePath(path string) string {
	if e.cfg.WorkingDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.cfg.WorkingDir, path)
}
