package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/sqlload/internal/state"
)

func newRunsCmd(g *globals) *cobra.Command {
	var (
		target string
		runID  string
		output string
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded load runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.execute(cmd, func(ctx context.Context, a *app) error {
				if target != "" {
					target = a.targetName(target)
				}
				var runs []*state.Run
				if runID != "" {
					run, err := a.runner.GetRun(ctx, runID)
					if err != nil {
						return err
					}
					runs = []*state.Run{run}
				} else {
					var err error
					if runs, err = a.runner.Runs(ctx, target); err != nil {
						return err
					}
				}
				switch output {
				case "json":
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(runs)
				case "text":
					return printRuns(cmd.OutOrStdout(), runs)
				default:
					return fmt.Errorf("unsupported output format: %s", output)
				}
			})
		},
	}

	cmd.Flags().StringVarP(&target, "target", "T", "", "Only list runs of this target")
	cmd.Flags().StringVar(&runID, "id", "", "Show only the run with this ID")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagsMutuallyExclusive("target", "id")

	cmd.AddCommand(newRunsDeleteCmd(g), newRunsPruneCmd(g))
	return cmd
}

func newRunsDeleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete RUN_ID...",
		Short: "Delete the records of finished runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.execute(cmd, func(ctx context.Context, a *app) error {
				for _, id := range args {
					if err := a.runner.DeleteRun(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", id)
				}
				return nil
			})
		},
	}
}

func newRunsPruneCmd(g *globals) *cobra.Command {
	var (
		target    string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete the records of finished runs older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return g.execute(cmd, func(ctx context.Context, a *app) error {
				if target != "" {
					target = a.targetName(target)
				}
				n, err := a.runner.DeleteRuns(ctx, target, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d runs\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&target, "target", "T", "", "Only prune runs of this target")
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Delete runs started longer ago than this")
	return cmd
}

func printRun(w io.Writer, run *state.Run) {
	fmt.Fprintf(w, "Run %s: %s %s", run.RunID, run.Target, run.Status)
	if run.MergePath != "" {
		fmt.Fprintf(w, " (%s)", run.MergePath)
	}
	if run.Status == state.StatusCompleted {
		fmt.Fprintf(w, ", %d rows", run.TargetRows)
	}
	if run.Error != "" {
		fmt.Fprintf(w, ": %s", run.Error)
	}
	fmt.Fprintln(w)
}

func printRuns(w io.Writer, runs []*state.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTARGET\tSTATUS\tMERGE\tROWS\tSTARTED\tDURATION")
	for _, r := range runs {
		duration := ""
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.RunID, r.Target, r.Status, r.MergePath, r.TargetRows,
			r.StartedAt.Format(time.RFC3339), duration)
	}
	return tw.Flush()
}
