package harness

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyOnSignals binds the guard to SIGINT/SIGTERM: on the first signal
// the current phase's cleanup runs to completion and exit is called with
// 130. The returned stop function unbinds the handler; callers defer it so
// a normal return leaves no handler behind.
func NotifyOnSignals(g *Guard, exit func(int)) (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigCh:
			g.Cleanup(context.Background())
			exit(130)
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
