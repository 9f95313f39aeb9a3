package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"rig/pkg/journal"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// newRunsCmd creates the "rig runs" subcommand: run-journal queries.
func newRunsCmd() *cobra.Command {
	var (
		limit    int
		eventsOf string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent harness runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			jnl, err := journal.Open(paths.JournalDBPath)
			if err != nil {
				return err
			}
			defer jnl.Close()

			if eventsOf != "" {
				return printEvents(cmd.Context(), cmd.OutOrStdout(), jnl, eventsOf)
			}
			return printRuns(cmd.Context(), cmd.OutOrStdout(), jnl, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().StringVar(&eventsOf, "events", "", "show lifecycle events of the given run ID")

	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

// printRuns renders the most recent runs, newest first.
func printRuns(ctx context.Context, w io.Writer, jnl *journal.Journal, limit int) error {
	runs, err := jnl.Runs(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-8s  %-5s  %-20s  %s", "RUN", "STATUS", "EXIT", "STARTED", "DURATION")))
	for _, r := range runs {
		exit := "-"
		if r.ExitCode.Valid {
			exit = fmt.Sprintf("%d", r.ExitCode.Int64)
		}
		dur := "-"
		if r.FinishedAt.Valid {
			dur = r.FinishedAt.Time.Sub(r.StartedAt).Round(time.Second).String()
		}
		line := fmt.Sprintf("%-36s  %-8s  %-5s  %-20s  %s",
			r.ID, r.Status, exit, r.StartedAt.Local().Format("2006-01-02 15:04:05"), dur)
		fmt.Fprintln(w, styleForStatus(r.Status).Render(line))
	}
	return nil
}

// printEvents renders the lifecycle events of one run.
func printEvents(ctx context.Context, w io.Writer, jnl *journal.Journal, runID string) error {
	events, err := jnl.Events(ctx, runID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(w, "no events for run %s\n", runID)
		return nil
	}
	for _, e := range events {
		detail := ""
		if e.Detail != "" {
			detail = "  " + dimStyle.Render(e.Detail)
		}
		fmt.Fprintf(w, "%s  %-24s%s\n", e.CreatedAt.Local().Format("15:04:05"), e.Step, detail)
	}
	return nil
}

// styleForStatus maps a run status to its display style.
func styleForStatus(status string) lipgloss.Style {
	switch status {
	case journal.StatusPassed:
		return passStyle
	case journal.StatusFailed, journal.StatusAborted:
		return failStyle
	default:
		return lipgloss.NewStyle()
	}
}
