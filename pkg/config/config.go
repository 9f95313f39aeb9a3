// Package config loads the harness configuration (rig.toml) and writes the
// per-run manifest into the workspace.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the rig.toml structure.
type Config struct {
	// Workspace is the disposable run directory.
	Workspace string `toml:"workspace"`
	// Templates are caller-owned sources symlinked into the workspace.
	Templates []Template `toml:"templates"`

	Coordinator Coordinator `toml:"coordinator"`
	Worker      Worker      `toml:"worker"`
	Tests       Tests       `toml:"tests"`
}

// Duration accepts "30s"-style strings in rig.toml.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Template is one linked-in configuration source.
type Template struct {
	Name   string `toml:"name"`
	Source string `toml:"source"`
}

// Coordinator configures the build-coordinator service.
type Coordinator struct {
	// Bin is the coordinator control binary.
	Bin  string `toml:"bin"`
	Host string `toml:"host"`
	Port int    `toml:"port"`
	// WaitReady enables the bounded TCP readiness poll after start. Off by
	// default: the baseline start policy is the grace delay alone.
	WaitReady bool `toml:"wait_ready"`
	// ReadyTimeout bounds the poll when WaitReady is on.
	ReadyTimeout Duration `toml:"ready_timeout"`
}

// Worker configures the execution worker.
type Worker struct {
	Bin string `toml:"bin"`
	// Name is the identity the worker registers with the coordinator.
	Name string `toml:"name"`
	// Secret is the shared secret; must match the coordinator's linked-in
	// configuration template.
	Secret string `toml:"secret"`
}

// Tests configures the browser-driven suite.
type Tests struct {
	// Dir is the directory holding the suite and its lockfile.
	Dir string `toml:"dir"`
	// Tools is the package-manager probe order; empty uses the default.
	Tools []string `toml:"tools"`
	// Browser is installed for the automation runner.
	Browser string `toml:"browser"`
	// Command is invoked through the resolved tool to run the suite.
	Command []string `toml:"command"`
	// Env entries are added to the test run environment.
	Env []string `toml:"env"`
}

// Default returns the configuration used when no rig.toml is present.
func Default() Config {
	return Config{
		Workspace: ".rig-workspace",
		Coordinator: Coordinator{
			Bin:          "coordinator",
			Host:         "localhost",
			Port:         9989,
			ReadyTimeout: Duration(30 * time.Second),
		},
		Worker: Worker{
			Bin:    "worker",
			Name:   "rig-worker",
			Secret: "rig-secret",
		},
		Tests: Tests{
			Dir:     ".",
			Browser: "chromium",
			Command: []string{"run", "test"},
		},
	}
}

// Load reads path and overlays it on the defaults. A missing file returns
// the defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path) //nolint:gosec // config path comes from the CLI flag
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
