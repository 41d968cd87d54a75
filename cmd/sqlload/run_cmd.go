package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/sqlload/internal/loader"
	"github.com/gerhard-ee/sqlload/internal/pipeline"
)

func newRunCmd(g *globals) *cobra.Command {
	var (
		concurrency int
		cleanup     bool
	)

	cmd := &cobra.Command{
		Use:   "run <manifest>",
		Short: "Run every job of a YAML manifest",
		Long:  "Runs the jobs of a manifest, several at a time. Every job runs even when others fail.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := pipeline.LoadJobs(args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				manifest.Concurrency = concurrency
			}

			return g.execute(cmd, func(ctx context.Context, a *app) error {
				for i := range manifest.Jobs {
					a.withDefaultSchema(&manifest.Jobs[i])
				}
				runs, err := a.runner.RunAll(ctx, manifest.Jobs, manifest.Concurrency)
				for _, run := range runs {
					if run != nil {
						printRun(cmd.OutOrStdout(), run)
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %d jobs\n", len(manifest.Jobs))
				return nil
			}, loader.WithCleanupOnError(cleanup))
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 1, "Jobs run at the same time, overrides the manifest")
	cmd.Flags().BoolVar(&cleanup, "cleanup-on-error", false, "Drop staging tables of failed loads")
	return cmd
}
