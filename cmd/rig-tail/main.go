// Package main implements rig-tail, a live viewer for the coordinator log
// of an in-flight harness run. Point it at the workspace (it reads the run
// manifest) or directly at a log file.
package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"rig/pkg/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: rig-tail <workspace-or-logfile>")
		os.Exit(2)
	}

	logPath, title, err := resolveTarget(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "rig-tail: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(logPath, title), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "rig-tail: %v\n", err)
		os.Exit(1)
	}
}

// resolveTarget maps the argument to a log path and a viewer title. A
// directory is treated as a workspace and resolved through its run
// manifest; anything else is used as the log path directly.
func resolveTarget(arg string) (logPath, title string, err error) {
	info, statErr := os.Stat(arg)
	if statErr == nil && info.IsDir() {
		m, err := config.LoadManifest(arg)
		if err != nil {
			return "", "", fmt.Errorf("not a rig workspace: %w", err)
		}
		return m.CoordinatorLog, fmt.Sprintf("run %s @ %s", m.RunID, m.CoordinatorAddr), nil
	}
	return arg, arg, nil
}
