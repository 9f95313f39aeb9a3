package main

import (
	"path/filepath"
	"testing"
)

// TestResolvePaths_Defaults verifies the ~/.rig layout.
func TestResolvePaths_Defaults(t *testing.T) {
	t.Setenv("RIG_HOME", "")
	t.Setenv("RIG_DB_PATH", "")
	home := t.TempDir()
	t.Setenv("HOME", home)

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths returned error: %v", err)
	}
	if paths.RigHome != filepath.Join(home, ".rig") {
		t.Fatalf("RigHome = %q", paths.RigHome)
	}
	if paths.JournalDBPath != filepath.Join(home, ".rig", "runs.db") {
		t.Fatalf("JournalDBPath = %q", paths.JournalDBPath)
	}
}

// TestResolvePaths_EnvOverrides verifies RIG_HOME and RIG_DB_PATH take
// precedence.
func TestResolvePaths_EnvOverrides(t *testing.T) {
	rigHome := t.TempDir()
	t.Setenv("RIG_HOME", rigHome)
	t.Setenv("RIG_DB_PATH", "")

	paths, err := ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths returned error: %v", err)
	}
	if paths.RigHome != rigHome {
		t.Fatalf("RigHome = %q, want %q", paths.RigHome, rigHome)
	}
	if paths.JournalDBPath != filepath.Join(rigHome, "runs.db") {
		t.Fatalf("JournalDBPath = %q", paths.JournalDBPath)
	}

	dbPath := filepath.Join(t.TempDir(), "elsewhere.db")
	t.Setenv("RIG_DB_PATH", dbPath)
	paths, err = ResolvePaths()
	if err != nil {
		t.Fatalf("ResolvePaths returned error: %v", err)
	}
	if paths.JournalDBPath != dbPath {
		t.Fatalf("JournalDBPath = %q, want %q", paths.JournalDBPath, dbPath)
	}
}
