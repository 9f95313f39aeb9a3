package journal_test

import (
	"context"
	"path/filepath"
	"testing"

	"rig/pkg/journal"
)

func openTestJournal(t *testing.T) *journal.Journal {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

// TestFinishRun_TerminalStatusSticks verifies that a finished run keeps its
// first outcome: a later finisher (the exit guard racing the normal run
// result) cannot overwrite it.
func TestFinishRun_TerminalStatusSticks(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-1", "/tmp/ws"); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", 0, journal.StatusPassed); err != nil {
		t.Fatalf("first FinishRun returned error: %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", 130, journal.StatusAborted); err != nil {
		t.Fatalf("second FinishRun returned error: %v", err)
	}

	runs, err := j.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != journal.StatusPassed {
		t.Fatalf("runs = %+v, want one passed run", runs)
	}
	if !runs[0].ExitCode.Valid || runs[0].ExitCode.Int64 != 0 {
		t.Fatalf("exit code = %+v, want 0", runs[0].ExitCode)
	}
}

// TestJournal_RunRoundTrip verifies begin → events → finish → query.
func TestJournal_RunRoundTrip(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-1", "/tmp/ws"); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	for _, step := range []string{"workspace", "coordinator-create", "coordinator-start", "worker-start", "tests"} {
		if err := j.Event(ctx, "run-1", step, ""); err != nil {
			t.Fatalf("Event(%s) returned error: %v", step, err)
		}
	}
	if err := j.FinishRun(ctx, "run-1", 0, journal.StatusPassed); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	runs, err := j.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("len(runs) = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != "run-1" || r.Status != journal.StatusPassed {
		t.Fatalf("run = %+v, want id run-1 status passed", r)
	}
	if !r.ExitCode.Valid || r.ExitCode.Int64 != 0 {
		t.Fatalf("exit code = %+v, want 0", r.ExitCode)
	}
	if !r.FinishedAt.Valid {
		t.Fatal("finished_at not set")
	}

	events, err := j.Events(ctx, "run-1")
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("len(events) = %d, want 5", len(events))
	}
	if events[0].Step != "workspace" || events[4].Step != "tests" {
		t.Fatalf("events out of order: first=%s last=%s", events[0].Step, events[4].Step)
	}
}

// TestJournal_FailedRunKeepsExitCode verifies that a failing suite's exit
// code is preserved for later inspection.
func TestJournal_FailedRunKeepsExitCode(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-7", "/tmp/ws"); err != nil {
		t.Fatalf("BeginRun returned error: %v", err)
	}
	if err := j.FinishRun(ctx, "run-7", 7, journal.StatusFailed); err != nil {
		t.Fatalf("FinishRun returned error: %v", err)
	}

	runs, err := j.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ExitCode.Int64 != 7 || runs[0].Status != journal.StatusFailed {
		t.Fatalf("run = %+v, want exit 7 status failed", runs)
	}
}

// TestJournal_EventsEmptyForUnknownRun verifies querying an unknown run is
// not an error.
func TestJournal_EventsEmptyForUnknownRun(t *testing.T) {
	j := openTestJournal(t)

	events, err := j.Events(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("len(events) = %d, want 0", len(events))
	}
}
