// Package stack manages the lifecycle of the two external service processes
// the harness runs tests against: the build coordinator and the worker that
// attaches to it. Each lifecycle step is a synchronous external command whose
// success is observed through its exit status.
package stack

import (
	"context"
	"fmt"
)

// State is the lifecycle state of a managed service process.
type State string

const (
	// StateNotCreated means no persistent state exists for the service yet.
	StateNotCreated State = "not-created"
	// StateCreated means the creation step has written persistent config.
	StateCreated State = "created"
	// StateStarting means a start attempt is in flight.
	StateStarting State = "starting"
	// StateRunning means the start step completed.
	StateRunning State = "running"
	// StateStopped means a stop command was issued during cleanup.
	StateStopped State = "stopped"
	// StateFailed means a fatal step aborted the service.
	StateFailed State = "failed"
)

// service holds the pieces shared by Coordinator and Worker: an identity,
// the directory inside the workspace that carries the service's persistent
// state, the external binary driving it, and the current lifecycle state.
type service struct {
	name   string
	bin    string
	dir    string
	runner CommandRunner
	state  State
}

// State returns the current lifecycle state. The harness is single-threaded
// through lifecycle steps, so no locking is needed here.
func (s *service) State() State {
	return s.state
}

// Name returns the service identity.
func (s *service) Name() string {
	return s.name
}

// Dir returns the service's state directory inside the workspace.
func (s *service) Dir() string {
	return s.dir
}

// stop issues the graceful stop command. Stop is issued during cleanup and
// must tolerate the process already being gone: the error is returned for
// logging, but the state moves to Stopped either way so cleanup can proceed.
func (s *service) stop(ctx context.Context) error {
	prev := s.state
	s.state = StateStopped
	if prev == StateNotCreated {
		// Nothing was ever created; stopping is a no-op.
		return nil
	}
	if _, err := s.runner.Run(ctx, Command{Name: s.bin, Args: []string{"stop", s.dir}}); err != nil {
		return fmt.Errorf("stop %s: %w", s.name, err)
	}
	return nil
}
