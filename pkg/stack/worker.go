package stack

import (
	"context"
	"fmt"
)

// Worker manages the execution-worker process that attaches to the
// coordinator and runs assigned work.
type Worker struct {
	service
	coordinatorAddr string
	identity        string
	secret          string
}

// NewWorker returns a Worker driven by bin, with its persistent state under
// dir, configured to attach to the coordinator at addr using the given
// identity and shared secret.
func NewWorker(runner CommandRunner, bin, dir, addr, identity, secret string) *Worker {
	return &Worker{
		service: service{
			name:   "worker",
			bin:    bin,
			dir:    dir,
			runner: runner,
			state:  StateNotCreated,
		},
		coordinatorAddr: addr,
		identity:        identity,
		secret:          secret,
	}
}

// Create writes the worker's persistent configuration, registering the
// coordinator address, identity and shared secret it attaches with. The
// caller must not invoke this before the coordinator's start sequence has
// completed.
func (w *Worker) Create(ctx context.Context) error {
	if w.state != StateNotCreated {
		return fmt.Errorf("create worker: unexpected state %s", w.state)
	}
	cmd := Command{Name: w.bin, Args: []string{"create", w.dir, w.coordinatorAddr, w.identity, w.secret}}
	if _, err := w.runner.Run(ctx, cmd); err != nil {
		w.state = StateFailed
		return fmt.Errorf("create worker: %w", err)
	}
	w.state = StateCreated
	return nil
}

// Start launches the worker. Unlike the coordinator there is no slow-start
// tolerance here: a reported failure is fatal.
func (w *Worker) Start(ctx context.Context) error {
	if w.state != StateCreated {
		return fmt.Errorf("start worker: unexpected state %s", w.state)
	}
	w.state = StateStarting
	if _, err := w.runner.Run(ctx, Command{Name: w.bin, Args: []string{"start", w.dir}}); err != nil {
		w.state = StateFailed
		return fmt.Errorf("start worker: %w", err)
	}
	w.state = StateRunning
	return nil
}

// Stop issues a graceful stop. Best-effort during cleanup.
func (w *Worker) Stop(ctx context.Context) error {
	return w.stop(ctx)
}
