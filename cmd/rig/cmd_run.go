package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"rig/pkg/config"
	"rig/pkg/harness"
	"rig/pkg/journal"
	"rig/pkg/stack"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// exitCodeError carries a non-zero run result (usually the test suite's own
// exit code) up to main without cobra printing it as an error.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("run finished with exit code %d", e.code)
}

// newRunCmd creates the "rig run" subcommand.
func newRunCmd() *cobra.Command {
	var (
		configPath string
		wsOverride string
		keepLogs   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Bring up the stack, run the browser test suite, tear down",
		Long:  "Prepares a disposable workspace, starts the coordinator and the worker\nin dependency order, runs the test suite, and cleans up on every exit\npath. The command's exit code is the test suite's exit code.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if wsOverride != "" {
				cfg.Workspace = wsOverride
			}

			jnl := openJournal(cmd.ErrOrStderr())
			if jnl != nil {
				defer jnl.Close()
			}

			progress := newStepLog(cmd.OutOrStdout(), isatty.IsTerminal(os.Stdout.Fd()))
			ctrl := harness.New(cfg, &stack.ExecCommandRunner{}, jnl, progress, cmd.ErrOrStderr())

			if keepLogs {
				if paths, err := ResolvePaths(); err == nil {
					ctrl.Guard().SetLogArchive(filepath.Join(paths.RigHome, "logs", ctrl.RunID()+".log"))
				} else {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: --keep-logs disabled: %v\n", err)
				}
			}

			// Signals must reach the guard so an interrupted run still
			// tears the stack down.
			stopSignals := harness.NotifyOnSignals(ctrl.Guard(), os.Exit)
			defer stopSignals()

			if code := ctrl.Run(cmd.Context()); code != 0 {
				return &exitCodeError{code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "rig.toml", "harness configuration file")
	cmd.Flags().StringVarP(&wsOverride, "workspace", "w", "", "override the workspace directory")
	cmd.Flags().BoolVar(&keepLogs, "keep-logs", false, "archive the coordinator log under $RIG_HOME/logs before teardown")

	return cmd
}

// openJournal opens the run journal under $RIG_HOME. Journaling is
// best-effort: any failure is a warning and the run proceeds without it.
func openJournal(errW io.Writer) *journal.Journal {
	paths, err := ResolvePaths()
	if err != nil {
		fmt.Fprintf(errW, "warning: journal disabled: %v\n", err)
		return nil
	}
	jnl, err := journal.Open(paths.JournalDBPath)
	if err != nil {
		fmt.Fprintf(errW, "warning: journal disabled: %v\n", err)
		return nil
	}
	return jnl
}
