package config

import (
	"time"
)

// DefaultConfig returns a default configuration matching the behaviour of
// the original relay: Groq models, streamed chat turns at temperature 1.
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",

		Server: ServerConfig{
			Addr:            "0.0.0.0:8000",
			ShutdownTimeout: Duration(10 * time.Second),
			CORSOrigins:     []string{"*"},
		},

		Upstream: UpstreamConfig{
			BaseURL:    "https://api.groq.com/openai/v1",
			Timeout:    Duration(60 * time.Second),
			RetryCount: 0,
			RetryDelay: Duration(time.Second),
		},

		Chat: ChatConfig{
			Model:        "llama-3.1-8b-instant",
			SystemPrompt: "You are a useful AI assistant.",
			Temperature:  1,
			MaxTokens:    1024,
			TopP:         1,
			Stream:       true,
		},

		Ask: AskConfig{
			Model:        "llama-3.3-70b-versatile",
			SystemPrompt: "You are a helpful assistant.",
		},

		Sessions: SessionsConfig{
			IdleTTL:       Duration(24 * time.Hour),
			SweepInterval: Duration(5 * time.Minute),
		},

		Archive: ArchiveConfig{
			Enabled: false,
			Path:    DefaultArchivePath(),
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
