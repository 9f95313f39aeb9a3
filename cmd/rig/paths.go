package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds the resolved rig state file paths. Unlike the workspace,
// these live outside the run and survive teardown.
type Paths struct {
	RigHome       string // ~/.rig or RIG_HOME
	JournalDBPath string // runs.db or RIG_DB_PATH
}

// ResolvePaths returns the rig paths, respecting env var overrides.
// Environment variables:
//   - RIG_HOME: base directory for rig state (default: ~/.rig)
//   - RIG_DB_PATH: run journal database (default: $RIG_HOME/runs.db)
func ResolvePaths() (*Paths, error) {
	home, err := resolveRigHome()
	if err != nil {
		return nil, err
	}
	return &Paths{
		RigHome:       home,
		JournalDBPath: resolvePathWithEnv("RIG_DB_PATH", home, "runs.db"),
	}, nil
}

// resolveRigHome returns the rig home directory from RIG_HOME or ~/.rig.
func resolveRigHome() (string, error) {
	if v := os.Getenv("RIG_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".rig"), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins
// base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
