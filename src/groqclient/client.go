package groqclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"
	defaultTimeout = 60 * time.Second
)

var (
	_ aisdk.Provider    = (*Client)(nil)
	_ aisdk.ModelClient = (*Client)(nil)
)

// Client is a client for Groq's OpenAI-compatible chat completion API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	modelCache *ModelCache
}

// NewClient creates a new Groq API client.
func NewClient(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "groq_client")

	client := &Client{
		config: config,
		// No client-wide timeout: it would cut streamed bodies short. Deadlines
		// come from the request context.
		httpClient: &http.Client{},
		logger:     logger,
	}

	// Initialize model cache with 1 hour TTL
	client.modelCache = NewModelCache(client, time.Hour)

	return client
}

// CreateChatCompletion sends a non-streaming chat completion request.
func (c *Client) CreateChatCompletion(ctx context.Context, req *aisdk.ChatCompletionRequest) (*aisdk.ChatCompletionResponse, error) {
	logger := c.logger.With("method", "CreateChatCompletion", "model", req.Model)
	logger.Debug("sending chat completion request", "messages", len(req.Messages))

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	payload := *req
	payload.Stream = false

	resp, err := c.postJSON(ctx, "/chat/completions", &payload)
	if err != nil {
		logger.Error("request failed", "error", err)
		return nil, c.timeoutAware(ctx, "chat completion", err)
	}
	defer resp.Body.Close()

	var result aisdk.ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		logger.Error("failed to decode response", "error", err)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	logger.Info("chat completion successful",
		"usage_total", result.Usage.TotalTokens,
		"finish_reason", result.Choices[0].FinishReason)
	return &result, nil
}

// CreateChatCompletionStream sends a streaming chat completion request. The
// returned stream must be closed by the caller.
func (c *Client) CreateChatCompletionStream(ctx context.Context, req *aisdk.ChatCompletionRequest) (aisdk.StreamInterface, error) {
	logger := c.logger.With("method", "CreateChatCompletionStream", "model", req.Model)
	logger.Debug("sending streaming chat completion request", "messages", len(req.Messages))

	payload := *req
	payload.Stream = true

	resp, err := c.postJSON(ctx, "/chat/completions", &payload)
	if err != nil {
		logger.Error("request failed", "error", err)
		return nil, err
	}

	return newSSEStream(resp.Body, logger), nil
}

// postJSON marshals body, posts it to path and returns a 2xx response.
// Non-2xx responses are converted to *APIError.
func (c *Client) postJSON(ctx context.Context, path string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		c.logger.Debug("request body", "path", path, "body", string(data))
	}

	return c.doRequestWithRetry(ctx, http.MethodPost, path, data)
}

// newRequest creates a new HTTP request with the appropriate headers.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := c.config.BaseURL + path

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	return req, nil
}

// doRequestWithRetry performs an HTTP request, retrying retryable failures
// up to RetryCount extra times.
func (c *Client) doRequestWithRetry(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if c.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	logger := c.logger.With("method", "doRequestWithRetry", "path", path)
	attempts := c.config.RetryCount + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, err
			}
			logger.Debug("request attempt failed", "attempt", attempt, "error", err)
		} else if resp.StatusCode < 300 {
			return resp, nil
		} else {
			lastErr = c.handleError(resp)
			resp.Body.Close()
			if !IsRetryable(lastErr) {
				return nil, lastErr
			}
			logger.Debug("retryable error response", "attempt", attempt, "status_code", resp.StatusCode)
		}

		if attempt == attempts {
			break
		}
		if err := sleepContext(ctx, GetRetryDelay(lastErr, attempt, c.config.RetryDelay)); err != nil {
			return nil, err
		}
	}

	if attempts > 1 {
		logger.Error("request failed after all retries", "attempts", attempts, "error", lastErr)
		return nil, &RetryableError{
			Err:         lastErr,
			RetryAfter:  GetRetryDelay(lastErr, attempts, c.config.RetryDelay),
			AttemptNum:  attempts,
			MaxAttempts: attempts,
		}
	}
	return nil, lastErr
}

// handleError processes error responses from the API.
func (c *Client) handleError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read error response: %w", err)
	}

	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("X-Request-ID"),
	}

	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		// Return a basic API error if we can't parse the response
		apiErr.Message = string(bytes.TrimSpace(body))
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
	} else {
		apiErr.Type = errResp.Error.Type
		apiErr.Message = errResp.Error.Message
		apiErr.Code = errResp.Error.Code
		apiErr.Param = errResp.Error.Param
	}

	// Add retry-after information for rate limits
	if resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil {
			apiErr.Details = map[string]interface{}{"retry_after": retryAfter}
		}
	}

	return apiErr
}

// timeoutAware converts context deadline errors into *TimeoutError.
func (c *Client) timeoutAware(ctx context.Context, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Operation: operation, Duration: c.config.Timeout, Cause: err}
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
