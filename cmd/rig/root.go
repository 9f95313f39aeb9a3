package main

import (
	"fmt"

	"rig/internal/version"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root rig command with all subcommands attached.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rig",
		Short:         "Integration-test harness for the build coordination stack",
		Long:          "rig brings up a coordinator and a worker in a disposable workspace,\nruns the browser test suite against them, and tears everything down\non every exit path.",
		Version:       fmt.Sprintf("rig %s", version.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	cmd.AddCommand(
		newRunCmd(),
		newRunsCmd(),
	)

	return cmd
}
