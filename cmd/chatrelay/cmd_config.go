package main

import (
	"fmt"
	"os"

	"github.com/elee1766/chatrelay/src/config"
	"github.com/spf13/afero"
)

// ConfigCmd shows or writes configuration
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
	Init ConfigInitCmd `cmd:"" help:"Write the default configuration file"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// Run executes the config show command
func (c *ConfigShowCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli, afero.NewOsFs())
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, cfg)
}

// ConfigInitCmd writes the default configuration
type ConfigInitCmd struct {
	Path  string `arg:"" optional:"" type:"path" help:"Destination (defaults to the user config path)"`
	Force bool   `help:"Overwrite an existing file"`
}

// Run executes the config init command
func (c *ConfigInitCmd) Run(cli *CLI) error {
	return initConfig(afero.NewOsFs(), c.Path, c.Force)
}

func initConfig(fs afero.Fs, path string, force bool) error {
	if path == "" {
		path = config.DefaultConfigPath()
	}
	loader := config.NewLoader(fs)
	if loader.Exists(path) && !force {
		return fmt.Errorf("%w: %s already exists, use --force to overwrite", errUsage, path)
	}
	if err := loader.SaveFile(config.DefaultConfig(), path); err != nil {
		return fmt.Errorf("%w: %w", errConfig, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
