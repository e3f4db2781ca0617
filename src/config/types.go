package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the complete configuration for chatrelay
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// Server configuration for the HTTP relay
	Server ServerConfig `json:"server"`

	// Upstream completion API configuration
	Upstream UpstreamConfig `json:"upstream"`

	// Chat holds the parameters of multi-turn conversations
	Chat ChatConfig `json:"chat"`

	// Ask holds the parameters of the stateless question endpoint
	Ask AskConfig `json:"ask"`

	// Sessions configures the in-memory conversation store
	Sessions SessionsConfig `json:"sessions"`

	// Archive configures the optional transcript archive
	Archive ArchiveConfig `json:"archive"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	// Addr is the listen address, host:port
	Addr string `json:"addr" validate:"required,listen_addr"`

	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout Duration `json:"shutdown_timeout" validate:"min=0"`

	// CORSOrigins lists allowed http(s) origins; a lone "*" allows any
	CORSOrigins []string `json:"cors_origins,omitempty" validate:"cors_origins,dive,required,cors_origin"`
}

// UpstreamConfig holds configuration of the completion API
type UpstreamConfig struct {
	// APIKey is never read from or written to config files
	APIKey string `json:"-"`

	// BaseURL of the OpenAI-compatible API
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`

	// Timeout bounds a single upstream call
	Timeout Duration `json:"timeout" validate:"min=0"`

	// RetryCount is the number of extra attempts on retryable errors
	RetryCount int `json:"retry_count" validate:"min=0,max=10"`

	// RetryDelay is the base backoff delay
	RetryDelay Duration `json:"retry_delay" validate:"min=0"`
}

// ChatConfig holds the fixed generation parameters of conversation turns
type ChatConfig struct {
	Model        string  `json:"model" validate:"required"`
	SystemPrompt string  `json:"system_prompt" validate:"required"`
	Temperature  float64 `json:"temperature" validate:"min=0,max=2"`
	MaxTokens    int     `json:"max_tokens" validate:"min=1"`
	TopP         float64 `json:"top_p" validate:"gt=0,max=1"`
	Stream       bool    `json:"stream"`
}

// AskConfig holds the parameters of one-shot questions
type AskConfig struct {
	Model        string `json:"model" validate:"required"`
	SystemPrompt string `json:"system_prompt" validate:"required"`
}

// SessionsConfig configures conversation retention
type SessionsConfig struct {
	// IdleTTL evicts conversations idle for longer; 0 keeps them forever
	IdleTTL Duration `json:"idle_ttl" validate:"min=0"`

	// SweepInterval is how often idle conversations are looked for
	SweepInterval Duration `json:"sweep_interval" validate:"min=0"`
}

// ArchiveConfig configures the SQLite transcript archive
type ArchiveConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty" validate:"required_if=Enabled true"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `json:"level,omitempty" validate:"log_level"`

	// Format is the output format (text, json)
	Format string `json:"format,omitempty" validate:"log_format"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Duration is a time.Duration that reads and writes JSON as "1m30s".
// Plain numbers are accepted as nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(data))
	}
}
