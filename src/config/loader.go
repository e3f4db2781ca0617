package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// EnvironmentPrefix is the prefix of environment variable overrides
const EnvironmentPrefix = "CHATRELAY"

// Loader handles loading and layering configurations from multiple sources
type Loader struct {
	fs        afero.Fs
	envPrefix string
	getenv    func(string) string
	validator *Validator
}

// NewLoader creates a new configuration loader backed by fsys. A nil fsys
// uses the OS filesystem.
func NewLoader(fsys afero.Fs) *Loader {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Loader{
		fs:        fsys,
		envPrefix: EnvironmentPrefix,
		getenv:    os.Getenv,
		validator: NewValidator(),
	}
}

// WithEnv replaces the environment lookup, mostly for tests
func (l *Loader) WithEnv(getenv func(string) string) *Loader {
	l.getenv = getenv
	return l
}

// Load starts from DefaultConfig, layers each file in paths over it in
// order, applies environment overrides and validates the result. Files
// that do not exist are skipped.
func (l *Loader) Load(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := l.loadFile(path, config); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := l.applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFile decodes path over config; fields absent from the file keep
// their current values.
func (l *Loader) loadFile(path string, config *Config) error {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	return nil
}

// SaveFile saves configuration to a file
func (l *Loader) SaveFile(config *Config, path string) error {
	// Validate before saving
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Ensure directory exists
	if err := l.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := afero.WriteFile(l.fs, path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// applyEnvironmentOverrides applies CHATRELAY_* variables to config
func (l *Loader) applyEnvironmentOverrides(config *Config) error {
	env := func(name string) string {
		return strings.TrimSpace(l.getenv(l.envPrefix + "_" + name))
	}

	if addr := env("ADDR"); addr != "" {
		config.Server.Addr = addr
	}
	if baseURL := env("BASE_URL"); baseURL != "" {
		config.Upstream.BaseURL = baseURL
	}
	if model := env("CHAT_MODEL"); model != "" {
		config.Chat.Model = model
	}
	if model := env("ASK_MODEL"); model != "" {
		config.Ask.Model = model
	}
	if level := env("LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if format := env("LOG_FORMAT"); format != "" {
		config.Logging.Format = strings.ToLower(format)
	}
	if path := env("ARCHIVE_PATH"); path != "" {
		config.Archive.Path = path
		config.Archive.Enabled = true
	}

	if v := env("TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s_TIMEOUT: %w", l.envPrefix, err)
		}
		config.Upstream.Timeout = Duration(d)
	}
	if v := env("RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s_RETRY_COUNT: %w", l.envPrefix, err)
		}
		config.Upstream.RetryCount = n
	}
	if v := env("IDLE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s_IDLE_TTL: %w", l.envPrefix, err)
		}
		config.Sessions.IdleTTL = Duration(d)
	}

	return nil
}

// Exists reports whether path exists on the loader's filesystem
func (l *Loader) Exists(path string) bool {
	ok, err := afero.Exists(l.fs, path)
	return err == nil && ok
}
