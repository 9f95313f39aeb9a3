package stack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultPollInterval is the fallback cadence for checking the log file when
// no filesystem watcher is available (and a safety net when events are lost).
const defaultPollInterval = 500 * time.Millisecond

// Tailer streams a service log file to an output writer while a run is in
// flight. It tolerates the file not existing yet (the coordinator creates it
// on first start) and begins from the top so the full log is surfaced.
type Tailer struct {
	path string
	out  io.Writer
	poll time.Duration
}

// NewTailer returns a Tailer that follows path and writes appended bytes to
// out.
func NewTailer(path string, out io.Writer) *Tailer {
	return &Tailer{path: path, out: out, poll: defaultPollInterval}
}

// SetPollInterval overrides the polling cadence. Tests shorten it so the
// tailer reacts quickly without filesystem events.
func (t *Tailer) SetPollInterval(d time.Duration) {
	t.poll = d
}

// Run follows the log file until ctx is cancelled. Cancellation is the
// normal way to stop the tailer and returns nil. A watcher that cannot be
// created is not fatal; the tailer falls back to polling only.
func (t *Tailer) Run(ctx context.Context) error {
	events := t.watch(ctx)

	var file *os.File
	defer func() {
		if file != nil {
			_ = file.Close()
		}
	}()

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		if file == nil {
			f, err := os.Open(t.path) //nolint:gosec // path derives from the workspace layout
			if err == nil {
				file = f
			} else if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("open log %s: %w", t.path, err)
			}
		}
		if file != nil {
			if _, err := io.Copy(t.out, file); err != nil {
				return fmt.Errorf("tail log %s: %w", t.path, err)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-events:
		case <-ticker.C:
		}
	}
}

// watch returns a channel that receives a value whenever the log's parent
// directory changes. Returns a nil channel (never ready) when a watcher
// cannot be created, leaving the polling ticker as the only trigger.
func (t *Tailer) watch(ctx context.Context) <-chan struct{} {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: log watcher unavailable (%v); polling only\n", err)
		return nil
	}
	// Watch the directory: the log file itself may not exist yet.
	if err := watcher.Add(filepath.Dir(t.path)); err != nil {
		_ = watcher.Close()
		fmt.Fprintf(os.Stderr, "warning: cannot watch %s (%v); polling only\n", filepath.Dir(t.path), err)
		return nil
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return ch
}
