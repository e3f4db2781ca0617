package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "chatrelay"

// DefaultConfigPath returns the user config file path under XDG_CONFIG_HOME
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.json")
}

// DefaultArchivePath returns the transcript archive path under XDG_STATE_HOME
func DefaultArchivePath() string {
	// XDG_STATE_HOME holds data that should survive restarts but is not
	// important enough for XDG_DATA_HOME
	return filepath.Join(xdg.StateHome, appName, "archive.db")
}

// SearchPaths returns the config files Load layers by default, lowest
// precedence first: the user config, then chatrelay.json in the working
// directory.
func SearchPaths() []string {
	return []string{
		DefaultConfigPath(),
		"chatrelay.json",
	}
}
