package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gerhard-ee/sqlload/internal/loader"
)

func newLoadCmd(g *globals) *cobra.Command {
	var (
		jf           jobFlags
		cleanup      bool
		strictSchema bool
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load one staged file into a table",
		Example: `  sqlload load --type duckdb --database warehouse.db \
    --source s3://landing/events.csv --target analytics.events \
    --column id:INTEGER --column created_at:TIMESTAMP --overlap id`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := jf.job()
			if err != nil {
				return err
			}
			opts := []loader.Option{loader.WithCleanupOnError(cleanup)}
			if strictSchema {
				opts = append(opts, loader.WithSchemaChecks(loader.CheckColumnNames, loader.CheckColumnTypes))
			}

			return g.execute(cmd, func(ctx context.Context, a *app) error {
				a.withDefaultSchema(&job)
				run, err := a.runner.Run(ctx, job)
				if run != nil {
					printRun(cmd.OutOrStdout(), run)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Loaded %s into %s\n", job.Request.Source, job.Request.Target)
				return nil
			}, opts...)
		},
	}

	jf.register(cmd)
	cmd.Flags().BoolVar(&cleanup, "cleanup-on-error", false, "Drop the staging table when the load fails")
	cmd.Flags().BoolVar(&strictSchema, "strict-schema", false, "Also compare column names and types before merging")
	return cmd
}
