// Package harness is the run controller: it sequences workspace
// preparation, the coordinator/worker lifecycle, and test invocation, and
// owns the exit guard that makes teardown unconditional.
package harness

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"rig/pkg/config"
	"rig/pkg/journal"
	"rig/pkg/stack"
	"rig/pkg/toolchain"
	"rig/pkg/workspace"
)

// Progress receives step notifications for operator output. Begin marks the
// start of a long-running step; its returned function marks completion.
type Progress interface {
	Step(msg string)
	Begin(msg string) (done func())
}

// NopProgress discards progress output.
type NopProgress struct{}

// Step implements Progress.
func (NopProgress) Step(string) {}

// Begin implements Progress.
func (NopProgress) Begin(string) func() { return func() {} }

// Controller drives one harness run end to end.
type Controller struct {
	cfg      config.Config
	runner   stack.CommandRunner
	jnl      *journal.Journal // nil disables journaling
	progress Progress
	diag     io.Writer
	sleep    func(time.Duration) // nil keeps the real grace-period sleep
	runID    string
	guard    *Guard
}

// New returns a Controller for one run. jnl may be nil; progress may be
// NopProgress. diag receives warnings, tolerated-failure notices and the
// tailed coordinator log.
func New(cfg config.Config, runner stack.CommandRunner, jnl *journal.Journal, progress Progress, diag io.Writer) *Controller {
	c := &Controller{
		cfg:      cfg,
		runner:   runner,
		jnl:      jnl,
		progress: progress,
		diag:     diag,
		runID:    uuid.NewString(),
		guard:    NewGuard(diag),
	}
	// A signal exit runs cleanup and leaves, bypassing the normal run
	// result; the finalizer closes out the journal record in that case.
	// FinishRun only touches still-running rows, so a completed run keeps
	// its recorded outcome.
	c.guard.SetFinalizer(func() {
		c.finishJournal(context.Background(), 130, journal.StatusAborted)
	})
	return c
}

// RunID returns this run's journal identity.
func (c *Controller) RunID() string {
	return c.runID
}

// Guard returns the exit guard so the caller can bind it to process
// signals before the run starts.
func (c *Controller) Guard() *Guard {
	return c.guard
}

// SetSleeper overrides the coordinator grace-period sleep. Tests use this.
func (c *Controller) SetSleeper(sleep func(time.Duration)) {
	c.sleep = sleep
}

// Run executes the full harness sequence and returns the process exit code:
// the test suite's own exit code when tests execute, non-zero when an
// earlier fatal step aborts the run. Cleanup for the current guard phase
// runs before Run returns, on every path.
func (c *Controller) Run(ctx context.Context) int {
	c.beginJournal(ctx)
	defer c.guard.Cleanup(context.Background())

	code, err := c.run(ctx)
	status := journal.StatusPassed
	if err != nil {
		fmt.Fprintf(c.diag, "rig: %v\n", err)
		if code == 0 {
			code = 1
		}
		status = journal.StatusAborted
	} else if code != 0 {
		status = journal.StatusFailed
	}
	c.finishJournal(ctx, code, status)
	return code
}

// run is the ordered lifecycle. Any returned error is fatal; the deferred
// guard cleanup in Run handles teardown for whichever phase was reached.
func (c *Controller) run(ctx context.Context) (int, error) {
	ws, err := workspace.Prepare(c.cfg.Workspace)
	if err != nil {
		return 0, err
	}
	c.guard.SetWorkspace(ws)
	c.record(ctx, "workspace", ws.Root())
	c.progress.Step("workspace ready")

	if err := ws.Materialize(templateLinks(c.cfg.Templates)); err != nil {
		return 0, err
	}

	// Pre-flight: without a package manager the suite can never run, so
	// fail before any service process is created.
	tool, err := toolchain.Resolve(ctx, c.runner, c.cfg.Tests.Tools)
	if err != nil {
		return 0, err
	}
	c.record(ctx, "toolchain", tool.Name)
	c.progress.Step(fmt.Sprintf("package manager: %s", tool.Name))

	coordinator := stack.NewCoordinator(
		c.runner, c.cfg.Coordinator.Bin, ws.Path("coordinator"),
		c.cfg.Coordinator.Host, c.cfg.Coordinator.Port, c.diag)
	if c.sleep != nil {
		coordinator.SetSleeper(c.sleep)
	}
	c.guard.SetCoordinator(coordinator)

	if err := coordinator.Create(ctx); err != nil {
		return 0, err
	}
	c.record(ctx, "coordinator-create", coordinator.Dir())
	if err := coordinator.CheckConfig(ctx); err != nil {
		return 0, err
	}
	c.record(ctx, "coordinator-checkconfig", "")
	c.progress.Step("coordinator configured")

	if err := config.WriteManifest(ws.Root(), config.Manifest{
		RunID:           c.runID,
		CoordinatorAddr: coordinator.Address(),
		CoordinatorLog:  coordinator.LogPath(),
		WorkerName:      c.cfg.Worker.Name,
		StartedAt:       time.Now().UTC(),
	}); err != nil {
		return 0, err
	}

	c.startTailer(coordinator.LogPath())

	if err := coordinator.Start(ctx); err != nil {
		return 0, err
	}
	if c.cfg.Coordinator.WaitReady {
		if err := stack.WaitReady(ctx, coordinator.Address(), c.cfg.Coordinator.ReadyTimeout.Std(), time.Second); err != nil {
			return 0, err
		}
	}
	c.record(ctx, "coordinator-start", coordinator.Address())
	c.progress.Step("coordinator started")

	worker := stack.NewWorker(
		c.runner, c.cfg.Worker.Bin, ws.Path("worker"),
		coordinator.Address(), c.cfg.Worker.Name, c.cfg.Worker.Secret)
	c.guard.SetWorker(worker)

	if err := worker.Create(ctx); err != nil {
		return 0, err
	}
	c.record(ctx, "worker-create", c.cfg.Worker.Name)
	if err := worker.Start(ctx); err != nil {
		return 0, err
	}
	c.record(ctx, "worker-start", "")
	c.progress.Step("worker started")

	if err := c.guard.Promote(); err != nil {
		return 0, err
	}
	c.record(ctx, "ready", "")

	done := c.progress.Begin("installing dependencies")
	err = tool.InstallDeps(ctx, c.runner, c.cfg.Tests.Dir)
	done()
	if err != nil {
		return 0, err
	}
	done = c.progress.Begin("installing browsers")
	err = tool.InstallBrowsers(ctx, c.runner, c.cfg.Tests.Dir, c.cfg.Tests.Browser)
	done()
	if err != nil {
		return 0, err
	}

	code, err := tool.RunTests(ctx, c.runner, c.cfg.Tests.Dir, c.cfg.Tests.Command, c.cfg.Tests.Env)
	if err != nil {
		return 0, err
	}
	c.record(ctx, "tests", fmt.Sprintf("exit %d", code))
	return code, nil
}

// startTailer launches the background coordinator-log tailer and registers
// its stop function (cancel, then join) on the guard.
func (c *Controller) startTailer(logPath string) {
	tailCtx, cancel := context.WithCancel(context.Background())
	eg, tailCtx := errgroup.WithContext(tailCtx)
	tailer := stack.NewTailer(logPath, c.diag)
	eg.Go(func() error { return tailer.Run(tailCtx) })
	c.guard.SetStopTail(func() {
		cancel()
		if err := eg.Wait(); err != nil {
			fmt.Fprintf(c.diag, "warning: log tailer: %v\n", err)
		}
	})
}

// record writes a journal event. Journaling is observability, not control
// flow: failures are logged and ignored.
func (c *Controller) record(ctx context.Context, step, detail string) {
	if c.jnl == nil {
		return
	}
	if err := c.jnl.Event(ctx, c.runID, step, detail); err != nil {
		fmt.Fprintf(c.diag, "warning: %v\n", err)
	}
}

func (c *Controller) beginJournal(ctx context.Context) {
	if c.jnl == nil {
		return
	}
	if err := c.jnl.BeginRun(ctx, c.runID, c.cfg.Workspace); err != nil {
		fmt.Fprintf(c.diag, "warning: %v\n", err)
	}
}

func (c *Controller) finishJournal(ctx context.Context, code int, status string) {
	if c.jnl == nil {
		return
	}
	if err := c.jnl.FinishRun(ctx, c.runID, code, status); err != nil {
		fmt.Fprintf(c.diag, "warning: %v\n", err)
	}
}

func templateLinks(templates []config.Template) []workspace.Link {
	links := make([]workspace.Link, 0, len(templates))
	for _, t := range templates {
		links = append(links, workspace.Link{Name: t.Name, Source: t.Source})
	}
	return links
}
