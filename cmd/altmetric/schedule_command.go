package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/dimitrije/communities/internal/enrichment"
	"github.com/spf13/cobra"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run enrichment passes periodically until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			job, logger, err := ctx.buildJob(signalCtx)
			if err != nil {
				return err
			}
			defer ctx.close()

			if interval <= 0 {
				interval = ctx.config.Altmetric.Interval
			}

			sched := enrichment.NewScheduler(job, interval, ctx.config.Altmetric.LockPath, logger)
			if err := sched.Start(signalCtx); err != nil {
				return err
			}

			<-signalCtx.Done()
			sched.Stop()
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Time between passes (defaults to ALTMETRIC_INTERVAL)")
	return cmd
}
