// Package toolchain resolves a JavaScript package manager and drives the
// dependency install, browser-runner install and test-suite execution steps
// of a harness run.
package toolchain

import (
	"context"
	"errors"
	"fmt"

	"rig/pkg/stack"
)

// ErrNoTool is returned when none of the candidate package managers answer
// a version probe. This is a fatal pre-flight condition: the run aborts
// before any service process is created.
var ErrNoTool = errors.New("no usable package manager found")

// DefaultCandidates is the probe preference order.
var DefaultCandidates = []string{"pnpm", "yarn", "npm"}

// softwareRenderingEnv forces software GL for the browser run; CI hosts
// have no GPU.
const softwareRenderingEnv = "LIBGL_ALWAYS_SOFTWARE=true"

// Tool is a resolved package manager.
type Tool struct {
	Name string
}

// Resolve probes each candidate with a version query and returns the first
// one that responds successfully. candidates defaults to DefaultCandidates
// when empty.
func Resolve(ctx context.Context, runner stack.CommandRunner, candidates []string) (Tool, error) {
	if len(candidates) == 0 {
		candidates = DefaultCandidates
	}
	for _, name := range candidates {
		if _, err := runner.Run(ctx, stack.Command{Name: name, Args: []string{"--version"}}); err == nil {
			return Tool{Name: name}, nil
		}
	}
	return Tool{}, fmt.Errorf("%w (tried %v)", ErrNoTool, candidates)
}

// InstallDeps installs the test suite's dependencies in the tool's
// reproducible, lockfile-pinned mode.
func (t Tool) InstallDeps(ctx context.Context, runner stack.CommandRunner, dir string) error {
	args := []string{"install", "--frozen-lockfile"}
	if t.Name == "npm" {
		// npm's pinned mode is a dedicated subcommand.
		args = []string{"ci"}
	}
	if _, err := runner.Run(ctx, stack.Command{Name: t.Name, Args: args, Dir: dir}); err != nil {
		return fmt.Errorf("install dependencies: %w", err)
	}
	return nil
}

// InstallBrowsers installs the browser binaries the automation runner
// drives. browser selects which one (e.g. "chromium").
func (t Tool) InstallBrowsers(ctx context.Context, runner stack.CommandRunner, dir, browser string) error {
	cmd := stack.Command{Name: t.Name, Args: []string{"exec", "playwright", "install", browser}, Dir: dir}
	if _, err := runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("install test runner browsers: %w", err)
	}
	return nil
}

// RunTests executes the suite's test command with the software-rendering
// override injected and returns the command's exit code. A non-zero exit is
// the run's result, not an error of the harness.
func (t Tool) RunTests(ctx context.Context, runner stack.CommandRunner, dir string, command []string, extraEnv []string) (int, error) {
	env := append([]string{softwareRenderingEnv}, extraEnv...)
	cmd := stack.Command{Name: t.Name, Args: command, Dir: dir, Env: env}
	code, err := runner.Stream(ctx, cmd)
	if err != nil {
		return -1, fmt.Errorf("run tests: %w", err)
	}
	return code, nil
}
