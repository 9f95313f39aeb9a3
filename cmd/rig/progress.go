package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// stepLog prints step-by-step harness progress. It implements
// harness.Progress.
type stepLog struct {
	w     io.Writer
	isTTY bool
	mu    sync.Mutex

	mark lipgloss.Style
}

// newStepLog creates a progress printer writing to w. isTTY enables the
// styled checkmark; non-TTY output (CI logs) stays plain.
func newStepLog(w io.Writer, isTTY bool) *stepLog {
	return &stepLog{
		w:     w,
		isTTY: isTTY,
		mark:  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

// Step prints a completed step with a checkmark.
func (s *stepLog) Step(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.printDone(msg)
}

// Begin starts an animated spinner for a long-running step. The returned
// function stops the spinner and prints the final checkmark. In non-TTY
// mode the step prints as two static lines instead.
func (s *stepLog) Begin(msg string) func() {
	if !s.isTTY {
		s.mu.Lock()
		fmt.Fprintf(s.w, "%s ...\n", msg)
		s.mu.Unlock()
		return func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.printDone(msg)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)

	frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
	frameIdx := 0

	go func() {
		defer wg.Done()
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.w, "\r%c %s", frames[frameIdx], msg)
				s.mu.Unlock()
				frameIdx = (frameIdx + 1) % len(frames)
			}
		}
	}()

	stopOnce := sync.Once{}
	return func() {
		stopOnce.Do(func() {
			cancel()
			wg.Wait()

			s.mu.Lock()
			defer s.mu.Unlock()
			// Clear the spinner line before the final checkmark.
			fmt.Fprintf(s.w, "\r")
			s.printDone(msg)
		})
	}
}

// printDone writes the final checkmark line. Callers hold s.mu.
func (s *stepLog) printDone(msg string) {
	if s.isTTY {
		fmt.Fprintf(s.w, "%s %s\n", s.mark.Render("✓"), msg)
		return
	}
	fmt.Fprintf(s.w, "✓ %s\n", msg)
}
