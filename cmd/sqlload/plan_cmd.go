package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd(g *globals) *cobra.Command {
	var jf jobFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the steps a load would take without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := jf.job()
			if err != nil {
				return err
			}
			return g.execute(cmd, func(ctx context.Context, a *app) error {
				a.withDefaultSchema(&job)
				plan, err := a.runner.Plan(ctx, job)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Plan for %s:\n", plan.Target)
				for i, step := range plan.Steps() {
					fmt.Fprintf(out, "  %d. %s\n", i+1, step)
				}
				return nil
			})
		},
	}

	jf.register(cmd)
	return cmd
}
