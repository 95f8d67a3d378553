package main

import (
	"fmt"

	"github.com/dimitrije/communities/internal/enrichment"
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var lockPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single enrichment pass and print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			job, logger, err := ctx.buildJob(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			if lockPath == "" {
				lockPath = ctx.config.Altmetric.LockPath
			}

			sched := enrichment.NewScheduler(job, ctx.config.Altmetric.Interval, lockPath, logger)
			res, err := sched.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderResult(res))
			return nil
		},
	}

	cmd.Flags().StringVar(&lockPath, "lock", "", "Lock file path (defaults to ALTMETRIC_LOCK_PATH)")
	return cmd
}
