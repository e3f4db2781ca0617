package groqclient

import (
	"log/slog"
	"time"
)

// Config holds configuration for the Groq client
type Config struct {
	APIKey     string        // Groq API key
	BaseURL    string        // Base URL of the OpenAI-compatible API
	Logger     *slog.Logger  // Logger for debugging
	Timeout    time.Duration // HTTP timeout for non-streaming requests
	RetryCount int           // Extra attempts on retryable errors; 0 means a single attempt
	RetryDelay time.Duration // Base delay between retries
}
