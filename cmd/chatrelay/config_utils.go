package main

import (
	"fmt"
	"log/slog"

	"github.com/elee1766/chatrelay/src/config"
	"github.com/spf13/afero"
)

// loadConfig loads the configuration from the given file or the default
// locations and applies global flags on top.
func loadConfig(cli *CLI, fs afero.Fs) (*config.Config, error) {
	loader := config.NewLoader(fs)

	paths := config.SearchPaths()
	if cli.Config != "" {
		if !loader.Exists(cli.Config) {
			return nil, fmt.Errorf("%w: config file %s not found", errConfig, cli.Config)
		}
		paths = []string{cli.Config}
	}

	cfg, err := loader.Load(paths...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}

	overrideConfigFromCLI(cfg, cli)
	if err := config.NewValidator().Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", errConfig, err)
	}
	return cfg, nil
}

// overrideConfigFromCLI overrides configuration values with CLI flags
func overrideConfigFromCLI(cfg *config.Config, cli *CLI) {
	if cli.APIKey != "" {
		cfg.Upstream.APIKey = cli.APIKey
	}
	if cli.BaseURL != "" {
		cfg.Upstream.BaseURL = cli.BaseURL
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
}

// setup loads the configuration and builds the logger every command uses.
// defaultLevel applies when neither flags nor config chose a level.
func setup(cli *CLI, defaultLevel string) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cli, afero.NewOsFs())
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Logging.Level
	if cli.LogLevel == "" && level == config.DefaultConfig().Logging.Level {
		level = defaultLevel
	}
	return cfg, createCLILogger(level, cfg.Logging.Format), nil
}
