package cmd

import (
	"github.com/spf13/cobra"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/bootstrap"
)

func newEngineCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "engine",
		Short: "Run the inference host",
		Long: `Engine hosts the inference context out of process. Pipelines configured
with relay mode "http" send their envelopes to its /relay endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			logger.Info("Starting inference host",
				infralogger.Int("port", cfg.Inference.Port),
				infralogger.Bool("preload", !cfg.Inference.SkipPreload),
			)
			return bootstrap.NewInferenceComponents(cfg, logger).Run(cmd.Context())
		},
	}
}
