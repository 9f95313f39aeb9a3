package harness_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"rig/pkg/config"
	"rig/pkg/harness"
	"rig/pkg/journal"
	"rig/pkg/stack"
)

// fakeRunner scripts the external world: which package managers answer a
// version probe, which commands fail, and what the test suite exits with.
// All invocations are recorded in order.
type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	available map[string]bool
	failOn    map[string]error
	exitCode  int
	testEnv   []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		available: map[string]bool{"yarn": true},
		failOn:    make(map[string]error),
	}
}

func (f *fakeRunner) record(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, line)
}

func (f *fakeRunner) Run(_ context.Context, cmd stack.Command) ([]byte, error) {
	line := cmd.String()
	f.record(line)
	if len(cmd.Args) == 1 && cmd.Args[0] == "--version" {
		if !f.available[cmd.Name] {
			return nil, errors.New("executable file not found in $PATH")
		}
		return []byte("1.22.0\n"), nil
	}
	for prefix, err := range f.failOn {
		if strings.HasPrefix(line, prefix) {
			return nil, fmt.Errorf("%s: %w", line, err)
		}
	}
	return nil, nil
}

func (f *fakeRunner) Stream(_ context.Context, cmd stack.Command) (int, error) {
	f.record(cmd.String())
	f.mu.Lock()
	f.testEnv = cmd.Env
	f.mu.Unlock()
	return f.exitCode, nil
}

// callsMatching returns recorded command lines having the given prefix.
func (f *fakeRunner) callsMatching(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// indexOf returns the position of the first call with the prefix, or -1.
func (f *fakeRunner) indexOf(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// syncBuilder is a goroutine-safe diagnostics sink; the controller and the
// background log tailer both write to it.
type syncBuilder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuilder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuilder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Workspace = filepath.Join(t.TempDir(), "ws")
	cfg.Tests.Dir = t.TempDir()
	return cfg
}

func newController(t *testing.T, cfg config.Config, r *fakeRunner, diag *syncBuilder) *harness.Controller {
	t.Helper()
	c := harness.New(cfg, r, nil, harness.NopProgress{}, diag)
	c.SetSleeper(func(time.Duration) {})
	return c
}

// TestRun_NormalSequence verifies the full happy path: strict lifecycle
// order, PostReady cleanup, exit 0, and an absent workspace afterwards.
func TestRun_NormalSequence(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	var diag syncBuilder
	c := newController(t, cfg, r, &diag)

	code := c.Run(context.Background())
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	// Lifecycle steps happen in strict dependency order.
	order := []string{
		"coordinator create ",
		"coordinator checkconfig ",
		"coordinator start ",
		"worker create ",
		"worker start ",
		"yarn install --frozen-lockfile",
		"yarn exec playwright install chromium",
		"yarn run test",
		"worker stop ",
		"coordinator stop ",
	}
	prev := -1
	for _, prefix := range order {
		idx := r.indexOf(prefix)
		if idx < 0 {
			t.Fatalf("missing call %q in %v", prefix, r.calls)
		}
		if idx <= prev {
			t.Fatalf("call %q out of order in %v", prefix, r.calls)
		}
		prev = idx
	}

	if got := c.Guard().Phase(); got != harness.PhasePostReady {
		t.Fatalf("guard phase = %s, want %s", got, harness.PhasePostReady)
	}
	if _, err := os.Stat(cfg.Workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present, stat err = %v", err)
	}
	// Healthy stack: no diagnostic log dump.
	if strings.Contains(diag.String(), "coordinator log") {
		t.Fatalf("unexpected log dump on healthy run: %q", diag.String())
	}
}

// TestRun_TestFailureExitCodePropagates verifies that a failing suite is
// the run's result, with PostReady cleanup still performed.
func TestRun_TestFailureExitCodePropagates(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	r.exitCode = 7
	var diag syncBuilder
	c := newController(t, cfg, r, &diag)

	code := c.Run(context.Background())
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
	if len(r.callsMatching("worker stop")) != 1 || len(r.callsMatching("coordinator stop")) != 1 {
		t.Fatalf("expected post-ready stops, calls = %v", r.calls)
	}
	if _, err := os.Stat(cfg.Workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present, stat err = %v", err)
	}
}

// TestRun_InvalidConfigAbortsPreReady verifies the fatal-configuration
// path: no process spawned, PreReady cleanup with log dump, workspace gone.
func TestRun_InvalidConfigAbortsPreReady(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	r.failOn["coordinator checkconfig"] = errors.New("exit status 1")
	var diag syncBuilder
	c := newController(t, cfg, r, &diag)

	code := c.Run(context.Background())
	if code == 0 {
		t.Fatal("expected non-zero exit code")
	}

	if got := r.callsMatching("coordinator start"); len(got) != 0 {
		t.Fatalf("coordinator must not start after failed checkconfig: %v", got)
	}
	if got := r.callsMatching("worker"); len(got) != 0 {
		t.Fatalf("worker must never be created: %v", got)
	}
	if got := c.Guard().Phase(); got != harness.PhasePreReady {
		t.Fatalf("guard phase = %s, want %s", got, harness.PhasePreReady)
	}
	// PreReady cleanup stops the coordinator (tolerated no-op) and reports
	// the absent log.
	if !strings.Contains(diag.String(), "no coordinator log") {
		t.Fatalf("expected absent-log notice, diag = %q", diag.String())
	}
	if _, err := os.Stat(cfg.Workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present, stat err = %v", err)
	}
}

// TestRun_NoPackageManagerAbortsBeforeServices verifies the fatal
// pre-flight path: the workspace exists and is cleaned up, but no service
// command is ever issued.
func TestRun_NoPackageManagerAbortsBeforeServices(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	r.available = map[string]bool{}
	var diag syncBuilder
	c := newController(t, cfg, r, &diag)

	code := c.Run(context.Background())
	if code == 0 {
		t.Fatal("expected non-zero exit code")
	}

	if got := r.callsMatching("coordinator"); len(got) != 0 {
		t.Fatalf("no service command may run without a package manager: %v", got)
	}
	if !strings.Contains(diag.String(), "no usable package manager") {
		t.Fatalf("diag = %q", diag.String())
	}
	if _, err := os.Stat(cfg.Workspace); !os.IsNotExist(err) {
		t.Fatalf("workspace still present, stat err = %v", err)
	}
}

// TestRun_CoordinatorStartFailureTolerated verifies the slow-start policy
// end to end: the grace period elapses and the run proceeds to the worker
// and the tests.
func TestRun_CoordinatorStartFailureTolerated(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	r.failOn["coordinator start"] = errors.New("timed out")
	var diag syncBuilder

	c := harness.New(cfg, r, nil, harness.NopProgress{}, &diag)
	var slept []time.Duration
	c.SetSleeper(func(d time.Duration) { slept = append(slept, d) })

	code := c.Run(context.Background())
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(slept) != 1 || slept[0] != 20*time.Second {
		t.Fatalf("slept = %v, want one 20s grace period", slept)
	}
	if got := r.callsMatching("worker start"); len(got) != 1 {
		t.Fatalf("worker start missing after tolerated failure: %v", r.calls)
	}
}

// TestRun_JournalRecordsOutcome verifies the run journal integration:
// begun, stepped, and finished with the suite's status.
func TestRun_JournalRecordsOutcome(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	r.exitCode = 7

	jnl, err := journal.Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer jnl.Close()

	var diag syncBuilder
	c := harness.New(cfg, r, jnl, harness.NopProgress{}, &diag)
	c.SetSleeper(func(time.Duration) {})

	if code := c.Run(context.Background()); code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}

	runs, err := jnl.Runs(context.Background(), 1)
	if err != nil {
		t.Fatalf("Runs returned error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != c.RunID() {
		t.Fatalf("runs = %+v, want one run %s", runs, c.RunID())
	}
	if runs[0].Status != journal.StatusFailed || runs[0].ExitCode.Int64 != 7 {
		t.Fatalf("run = %+v, want failed exit 7", runs[0])
	}

	events, err := jnl.Events(context.Background(), c.RunID())
	if err != nil {
		t.Fatalf("Events returned error: %v", err)
	}
	var steps []string
	for _, e := range events {
		steps = append(steps, e.Step)
	}
	joined := strings.Join(steps, " ")
	for _, want := range []string{"workspace", "coordinator-create", "worker-start", "ready", "tests"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("journal steps %v missing %q", steps, want)
		}
	}
}

// TestRun_ManifestWrittenDuringRun verifies the software-rendering env is
// injected and the run manifest reaches the workspace while it exists.
func TestRun_ManifestWrittenDuringRun(t *testing.T) {
	cfg := testConfig(t)
	r := newFakeRunner()
	var diag syncBuilder
	c := newController(t, cfg, r, &diag)

	if code := c.Run(context.Background()); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	env := strings.Join(r.testEnv, " ")
	if !strings.Contains(env, "LIBGL_ALWAYS_SOFTWARE=true") {
		t.Fatalf("test env = %q, missing software rendering override", env)
	}
}
