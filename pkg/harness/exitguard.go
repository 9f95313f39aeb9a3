package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"rig/pkg/stack"
	"rig/pkg/workspace"
)

// Phase is the exit guard's state. It starts at PreReady and moves to
// PostReady exactly once, when the whole stack has been confirmed started.
// The phase decides which cleanup procedure runs on exit.
type Phase string

const (
	// PhasePreReady means the stack never became usable; cleanup dumps the
	// coordinator log so the operator can diagnose the startup failure.
	PhasePreReady Phase = "pre-ready"
	// PhasePostReady means both services reached running; cleanup stops the
	// worker too and skips the log dump — later failures surface through
	// the test runner's own reporting.
	PhasePostReady Phase = "post-ready"
)

// Guard is the process-exit state machine. Whatever phase is current when
// an exit happens selects the cleanup procedure, and the procedure runs to
// completion exactly once no matter how many exit paths race into it.
type Guard struct {
	mu          sync.Mutex
	phase       Phase
	once        sync.Once
	ws          *workspace.Workspace
	coordinator *stack.Coordinator
	worker      *stack.Worker
	stopTail    func()
	archivePath string
	finalizer   func()
	diag        io.Writer
}

// NewGuard returns a Guard in the PreReady phase writing diagnostics to
// diag. Resources are attached as the run acquires them.
func NewGuard(diag io.Writer) *Guard {
	return &Guard{phase: PhasePreReady, diag: diag}
}

// Phase returns the current phase.
func (g *Guard) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// SetWorkspace attaches the workspace to destroy on exit.
func (g *Guard) SetWorkspace(ws *workspace.Workspace) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ws = ws
}

// SetCoordinator attaches the coordinator to stop on exit.
func (g *Guard) SetCoordinator(c *stack.Coordinator) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.coordinator = c
}

// SetWorker attaches the worker to stop on exit.
func (g *Guard) SetWorker(w *stack.Worker) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.worker = w
}

// SetStopTail attaches the function that cancels and joins the background
// log tailer. It runs first during cleanup, before the log's directory is
// removed.
func (g *Guard) SetStopTail(stop func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTail = stop
}

// SetLogArchive asks cleanup to copy the coordinator log to path before
// the workspace is destroyed. Empty disables archiving.
func (g *Guard) SetLogArchive(path string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.archivePath = path
}

// SetFinalizer attaches a function that runs as the very last cleanup
// step, after the workspace is gone. The controller uses it to close out
// the journal record on exits that bypass the normal run result, such as
// a signal.
func (g *Guard) SetFinalizer(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finalizer = fn
}

// Promote moves the guard from PreReady to PostReady. It is called exactly
// once, right after the worker start completes and before the test suite is
// invoked; there is no transition back.
func (g *Guard) Promote() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.phase != PhasePreReady {
		return errors.New("exit guard already promoted")
	}
	g.phase = PhasePostReady
	return nil
}

// Cleanup runs the cleanup procedure for the current phase, exactly once.
// Every step is best-effort: a failed stop is logged and cleanup proceeds
// to the next step, and destroying the workspace always happens last.
func (g *Guard) Cleanup(ctx context.Context) {
	g.once.Do(func() { g.cleanup(ctx) })
}

func (g *Guard) cleanup(ctx context.Context) {
	g.mu.Lock()
	phase := g.phase
	ws := g.ws
	coordinator := g.coordinator
	worker := g.worker
	stopTail := g.stopTail
	archivePath := g.archivePath
	finalizer := g.finalizer
	g.mu.Unlock()

	// The tailer reads files that are about to disappear; it goes first.
	if stopTail != nil {
		stopTail()
	}

	if phase == PhasePostReady && worker != nil {
		if err := worker.Stop(ctx); err != nil {
			fmt.Fprintf(g.diag, "warning: %v\n", err)
		}
	}
	if coordinator != nil {
		if err := coordinator.Stop(ctx); err != nil {
			fmt.Fprintf(g.diag, "warning: %v\n", err)
		}
		if phase == PhasePreReady {
			g.dumpLog(coordinator.LogPath())
		}
		if archivePath != "" {
			g.archiveLog(coordinator.LogPath(), archivePath)
		}
	}

	if ws != nil {
		if err := ws.Destroy(); err != nil {
			fmt.Fprintf(g.diag, "warning: %v\n", err)
		}
	}

	if finalizer != nil {
		finalizer()
	}
}

// archiveLog copies the coordinator log to dest so it survives workspace
// teardown. Best-effort: a missing log or a write failure is a warning.
func (g *Guard) archiveLog(src, dest string) {
	data, err := os.ReadFile(src) //nolint:gosec // path derives from the workspace layout
	if err != nil {
		fmt.Fprintf(g.diag, "warning: no coordinator log to archive at %s\n", src)
		return
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		fmt.Fprintf(g.diag, "warning: archive coordinator log: %v\n", err)
		return
	}
	if err := os.WriteFile(dest, data, 0o600); err != nil {
		fmt.Fprintf(g.diag, "warning: archive coordinator log: %v\n", err)
		return
	}
	fmt.Fprintf(g.diag, "coordinator log kept at %s\n", dest)
}

// dumpLog prints the coordinator's accumulated log for startup diagnosis.
// An absent log (the coordinator may never have started) is noted, not an
// error.
func (g *Guard) dumpLog(path string) {
	data, err := os.ReadFile(path) //nolint:gosec // path derives from the workspace layout
	if err != nil {
		fmt.Fprintf(g.diag, "no coordinator log at %s\n", path)
		return
	}
	fmt.Fprintf(g.diag, "--- coordinator log (%s) ---\n", path)
	_, _ = g.diag.Write(data)
	fmt.Fprintf(g.diag, "--- end coordinator log ---\n")
}
