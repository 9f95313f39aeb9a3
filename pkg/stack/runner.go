package stack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Command describes a single external command invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty inherits the harness cwd.
	Dir string
	// Env entries are appended to the inherited environment.
	Env []string
}

// String renders the command line for diagnostics.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// CommandRunner abstracts synchronous external command invocation so tests
// can script service and tool behavior without real binaries.
type CommandRunner interface {
	// Run executes the command and returns its stdout. A non-zero exit is
	// returned as an error that includes captured stderr.
	Run(ctx context.Context, cmd Command) ([]byte, error)
	// Stream executes the command with inherited stdout/stderr and returns
	// its exit code. Used for the test suite, whose output belongs to the
	// operator and whose exit code is the run's result.
	Stream(ctx context.Context, cmd Command) (int, error)
}

// ExecCommandRunner implements CommandRunner using os/exec.
type ExecCommandRunner struct{}

// Run executes a command and returns its stdout as bytes.
func (r *ExecCommandRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // command comes from harness config
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s: %w: %s", c, err, exitErr.Stderr)
		}
		return nil, fmt.Errorf("%s: %w", c, err)
	}
	return out, nil
}

// Stream executes a command with inherited stdio and returns its exit code.
// A non-zero exit is reported through the code, not the error.
func (r *ExecCommandRunner) Stream(ctx context.Context, c Command) (int, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //nolint:gosec // command comes from harness config
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("%s: %w", c, err)
	}
	return 0, nil
}
