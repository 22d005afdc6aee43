package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirechat-gateway/internal/app"
	"github.com/vovakirdan/wirechat-gateway/internal/config"
	"github.com/vovakirdan/wirechat-gateway/internal/log"
)

func serveCmd(root *rootOptions) *cobra.Command {
	var overrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bootLogger := log.New(root.logLevel)
			cfg, path, err := config.Load(bootLogger, root.configPath)
			if err != nil {
				return err
			}
			overrides.LogLevel = root.logLevel
			cfg.UpdateFrom(overrides)

			if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
				return err
			}
			logger := log.NewTo(cmd.OutOrStdout(), cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", path).Str("version", version).Msg("starting gateway")

			application, err := app.New(&cfg, logger)
			if err != nil {
				return fmt.Errorf("init app: %w", err)
			}
			if err := application.Run(cmd.Context()); err != nil {
				return fmt.Errorf("gateway exited with error: %w", err)
			}
			logger.Info().Msg("gateway stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&overrides.Addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&overrides.Backend.Fixture, "backend-fixture", "", "YAML fixture seeding the memory backend")
	cmd.Flags().StringVar(&overrides.JournalPath, "journal", "", "sqlite session journal path")
	cmd.Flags().DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	return cmd
}
