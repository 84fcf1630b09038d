// Package cmd implements the slopedin command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/bootstrap"
	"github.com/Siriusbar/SlopedIn/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

type rootOptions struct {
	configFile string
	debug      bool
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "slopedin",
		Short: "Detect AI-generated posts in a feed",
		Long: `SlopedIn watches a feed, extracts the text of each post and labels it
AI or Human with a text classifier running in a separate inference context.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configFile, "config", "",
		"config file (default is $CONFIG_PATH or ./config.yml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(opts),
		newEngineCommand(opts),
		newClassifyCommand(opts),
		newToggleCommand(opts),
		newVersionCommand(),
	)
	return root
}

// load reads configuration and builds the logger for a command.
func (o *rootOptions) load() (*config.Config, infralogger.Logger, error) {
	cfg, err := bootstrap.LoadConfig(o.configFile, o.debug)
	if err != nil {
		return nil, nil, err
	}
	if Version != "dev" && cfg.Service.Version == "dev" {
		cfg.Service.Version = Version
		cfg.Server.ServiceVersion = Version
	}

	logger, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "slopedin version %s\n", Version)
		},
	}
}
