package cmd

import (
	"github.com/spf13/cobra"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/bootstrap"
)

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the discovery pipeline and its API",
		Long: `Run observes the configured feed source, classifies every new post
through the relay and serves the pipeline API (items, stats, preferences,
ad-hoc classification and the event stream).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting discovery pipeline",
				infralogger.String("source", cfg.Source.Kind),
				infralogger.String("relay_mode", cfg.Relay.Mode),
				infralogger.String("preference_store", cfg.Preference.Store),
				infralogger.Int("port", cfg.Server.Port),
			)

			components, err := bootstrap.NewPipelineComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			return components.Run(cmd.Context())
		},
	}
}
