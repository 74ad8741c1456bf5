package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/devforge/devforge/pkg/stores"
)

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
		Long: `Inspect the recorded history of role applications.

Every apply records a run per host and role, with per-task outcomes and
an event timeline.`,
	}

	cmd.AddCommand(newRunsListCommand())
	cmd.AddCommand(newRunsShowCommand())

	return cmd
}

func newRunsListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Example: `  # Most recent runs
  devforge runs list

  # More history
  devforge runs list --limit 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tHOST\tROLE\tSTATUS\tSTARTED\tDURATION")
			for _, run := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					shortID(run.ID), run.Host, run.Role, run.Status,
					run.StartedAt.Format(time.RFC3339), runDuration(run))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")

	return cmd
}

func newRunsShowCommand() *cobra.Command {
	var showEvents bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its task results",
		Example: `  # Task-level detail for a run
  devforge runs show 3f2a9c1e-...

  # Include the event timeline
  devforge runs show 3f2a9c1e-... --events`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runID := args[0]

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(ctx, runID)
			if err != nil {
				return err
			}
			results, err := store.ListTaskResultsByRun(ctx, runID)
			if err != nil {
				return err
			}

			var events []*stores.Event
			if showEvents {
				events, err = store.GetEvents(ctx, &runID, nil, 1000, 0)
				if err != nil {
					return err
				}
			}

			if jsonOutput {
				data, err := json.MarshalIndent(map[string]any{
					"run":    run,
					"tasks":  results,
					"events": events,
				}, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %s on %s, role %s\n", run.ID, run.Status, run.Host, run.Role)
			if run.Error != nil {
				fmt.Fprintf(out, "error: %s\n", *run.Error)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TASK\tACTION\tSTATUS\tCHANGED\tDURATION")
			for _, result := range results {
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%dms\n",
					result.Task, result.Action, result.Status, result.Changed, result.DurationMS)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			for _, event := range events {
				fmt.Fprintf(out, "%s [%s] %s\n",
					event.Timestamp.Format(time.RFC3339), event.Level, event.Message)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showEvents, "events", false, "include the event timeline")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runDuration(run *stores.Run) string {
	if run.CompletedAt == nil {
		return "-"
	}
	return run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
