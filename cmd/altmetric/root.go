package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dimitrije/communities/internal/altmetric"
	"github.com/dimitrije/communities/internal/config"
	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/enrichment"
	"github.com/dimitrije/communities/internal/logging"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/services"
	"github.com/dimitrije/communities/internal/upload"
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "altmetric",
		Short:         "Link records with a DOI to their Altmetric entry",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newScheduleCommand(ctx))

	return rootCmd
}

// commandContext loads configuration once and owns the connections the
// subcommands share.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	db *database.DB
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

// buildJob wires the enrichment job against the records database. The
// caller must call close when done.
func (c *commandContext) buildJob(ctx context.Context) (*enrichment.Job, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.RecordsDatabaseURL == "" {
		return nil, nil, fmt.Errorf("RECORDS_DATABASE_URL or DATABASE_URL is required")
	}

	logger := logging.NewLogger(cfg.Log)

	db, err := database.New(ctx, cfg.RecordsDatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to records database: %w", err)
	}
	c.db = db

	var metrics enrichment.MetricsLookup
	if client := altmetric.NewClient(cfg.Altmetric.BaseURL, cfg.Altmetric.APIKey, cfg.Altmetric.Timeout, logger); client != nil {
		metrics = client
	}

	alerter := services.NewAlerter("altmetric", cfg.AdminEmail, services.NewEmailService(cfg.SMTP), logger)
	uploader := upload.NewClient(cfg.Upload.URL, cfg.Upload.CallbackURL, cfg.Upload.Timeout)

	job := enrichment.NewJob(records.NewPostgresIndex(db), metrics, uploader, alerter, logger)
	if err := job.CheckAvailable(ctx); err != nil {
		logger.Warn("altmetric client not configured", "error", err)
	}
	return job, logger, nil
}

func (c *commandContext) close() {
	if c.db != nil {
		c.db.Close()
	}
}
