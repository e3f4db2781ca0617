package groqclient

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Common error variables
var (
	// ErrNoAPIKey indicates the API key is missing
	ErrNoAPIKey = errors.New("API key is required")

	// ErrEmptyResponse indicates the API returned an empty response
	ErrEmptyResponse = errors.New("empty response from API")

	// ErrStreamClosed indicates the stream has been closed
	ErrStreamClosed = errors.New("stream closed")

	// ErrTimeout indicates a timeout occurred
	ErrTimeout = errors.New("operation timed out")

	// ErrRateLimited indicates rate limiting
	ErrRateLimited = errors.New("rate limited")
)

// ErrorResponse represents a standard error response from the API:
// {"error":{"message":"...","type":"...","code":"..."}}
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody is the payload of an ErrorResponse.
type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

// APIError represents an error response from the upstream API.
type APIError struct {
	StatusCode int
	Type       string
	Message    string
	Code       string
	Param      string
	Details    map[string]interface{}
	RequestID  string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error is retryable.
func (e *APIError) IsRetryable() bool {
	// 5xx errors are generally retryable
	if e.StatusCode >= 500 && e.StatusCode < 600 {
		return true
	}

	// Rate limit errors are retryable after a delay
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}

	// Specific error codes that are retryable
	switch e.Code {
	case "timeout", "connection_error", "server_error":
		return true
	}

	return false
}

// IsRateLimit returns true if this is a rate limit error.
func (e *APIError) IsRateLimit() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Code == "invalid_api_key"
}

// Is lets errors.Is(err, ErrRateLimited) match rate limit responses.
func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.IsRateLimit()
}

// RetryableError wraps the last error of an exhausted retry loop.
type RetryableError struct {
	Err         error
	RetryAfter  time.Duration
	AttemptNum  int
	MaxAttempts int
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	if e.RetryAfter <= 0 {
		return fmt.Sprintf("attempt %d/%d failed: %v", e.AttemptNum, e.MaxAttempts, e.Err)
	}
	return fmt.Sprintf("attempt %d/%d failed: %v (retry after %v)",
		e.AttemptNum, e.MaxAttempts, e.Err, e.RetryAfter)
}

// Unwrap returns the underlying error.
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// ShouldRetry returns true if the operation should be retried.
func (e *RetryableError) ShouldRetry() bool {
	return e.AttemptNum < e.MaxAttempts
}

// TimeoutError represents a timeout error with context.
type TimeoutError struct {
	Operation string
	Duration  time.Duration
	Cause     error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s timed out after %v: %v", e.Operation, e.Duration, e.Cause)
	}
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

// Unwrap returns the underlying error.
func (e *TimeoutError) Unwrap() error {
	return e.Cause
}

// Is implements error matching.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// ErrorHandler provides centralized error logging by error class.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger: logger.With("component", "error_handler"),
	}
}

// Handle logs err according to its class and returns it unchanged.
func (eh *ErrorHandler) Handle(err error, operation string, attrs ...slog.Attr) error {
	if err == nil {
		return nil
	}

	logAttrs := []any{"operation", operation, "error", err.Error()}
	for _, attr := range attrs {
		logAttrs = append(logAttrs, attr.Key, attr.Value)
	}

	var apiErr *APIError
	var timeoutErr *TimeoutError
	switch {
	case errors.As(err, &apiErr):
		if apiErr.IsRateLimit() {
			eh.logger.Warn("rate limited", logAttrs...)
		} else if apiErr.IsAuthError() {
			eh.logger.Error("authentication failed", logAttrs...)
		} else if apiErr.IsRetryable() {
			eh.logger.Warn("retryable API error", logAttrs...)
		} else {
			eh.logger.Error("API error", logAttrs...)
		}
	case errors.As(err, &timeoutErr):
		eh.logger.Error("timeout error", logAttrs...)
	default:
		eh.logger.Error("error occurred", logAttrs...)
	}

	return err
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	var retryErr *RetryableError
	if errors.As(err, &retryErr) {
		return retryErr.ShouldRetry()
	}

	if errors.Is(err, ErrTimeout) {
		return true
	}

	return errors.Is(err, ErrRateLimited)
}

// GetRetryDelay returns the delay before retry number attempt (1-based).
// A Retry-After hint on a rate limit wins; otherwise base doubles per
// attempt, capped at one minute.
func GetRetryDelay(err error, attempt int, base time.Duration) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsRateLimit() {
		if retryAfter, ok := apiErr.Details["retry_after"].(float64); ok {
			return time.Duration(retryAfter * float64(time.Second))
		}
	}

	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	maxDelay := time.Minute
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	return delay
}
