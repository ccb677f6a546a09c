package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// waitDelay bounds how long Run waits for the output pipes after the shell
// exits, e.g. when a background grandchild keeps them open.
const waitDelay = 2 * time.Second

// Runner runs a shell command to completion, streaming its output.
// A non-zero exit is reported through the exit code, not the error; the
// error is reserved for commands that could not be run or were killed.
type Runner interface {
	Run(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)
}

// ExecRunner spawns an external shell with the agent's own privileges.
type ExecRunner struct {
	Path string
	Args []string
	Dir  string
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	args := append(append([]string{}, r.Args...), command)
	cmd := exec.CommandContext(ctx, r.Path, args...)
	cmd.Dir = r.Dir
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
		return -1, err
	}
	return -1, fmt.Errorf("failed to start command: %w", err)
}

// BuiltinRunner interprets commands with the in-process POSIX shell from
// mvdan.cc/sh. External programs are still spawned as child processes.
type BuiltinRunner struct {
	Dir string
}

// Run implements Runner
func (r *BuiltinRunner) Run(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return -1, fmt.Errorf("failed to parse command: %w", err)
	}

	opts := []interp.RunnerOption{
		interp.StdIO(nil, stdout, stderr),
		interp.Env(expand.ListEnviron(os.Environ()...)),
	}
	if r.Dir != "" {
		opts = append(opts, interp.Dir(r.Dir))
	}

	runner, err := interp.New(opts...)
	if err != nil {
		return -1, fmt.Errorf("failed to create shell: %w", err)
	}

	if err := runner.Run(ctx, prog); err != nil {
		if status, ok := interp.IsExitStatus(err); ok {
			return int(status), nil
		}
		return -1, err
	}
	return 0, nil
}
