// Package bootstrap wires configuration into running components for the
// pipeline and inference hosts.
package bootstrap

import (
	"fmt"

	infraconfig "github.com/Siriusbar/SlopedIn/infrastructure/config"
	infralogger "github.com/Siriusbar/SlopedIn/infrastructure/logger"
	"github.com/Siriusbar/SlopedIn/internal/config"
)

// LoadConfig loads and validates configuration. An empty path falls back to
// CONFIG_PATH, then config.yml; a missing file means defaults. debug forces
// debug logging and gin debug mode.
func LoadConfig(path string, debug bool) (*config.Config, error) {
	if path == "" {
		path = infraconfig.GetConfigPath(infraconfig.DefaultConfigPath)
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if debug {
		cfg.Service.Debug = true
		cfg.Server.Debug = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	if err = cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// CreateLogger creates a logger instance from configuration.
func CreateLogger(cfg *config.Config) (infralogger.Logger, error) {
	logCfg := cfg.Logging
	logCfg.Development = logCfg.Development || cfg.Service.Debug

	logger, err := infralogger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger.With(
		infralogger.String("service", cfg.Service.Name),
		infralogger.String("version", cfg.Service.Version),
	), nil
}
