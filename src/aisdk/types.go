// Package aisdk provides provider-agnostic types for OpenAI-compatible chat completion APIs.
package aisdk

import (
	"time"
)

// Well known message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// Metadata for message tracking, never sent upstream
	CreatedAt time.Time `json:"-"`
}

// ChatCompletionRequest represents a request to the chat completions endpoint.
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	User        string    `json:"user,omitempty"`
}

// GenerationParams holds the sampling parameters applied to a request.
// Nil fields are left to the upstream default.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
	Stream      bool
}

// Apply copies the parameters onto req.
func (p GenerationParams) Apply(req *ChatCompletionRequest) {
	req.Temperature = p.Temperature
	req.MaxTokens = p.MaxTokens
	req.TopP = p.TopP
	req.Stream = p.Stream
}

// ChatCompletionResponse represents a response from the chat completions endpoint.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Content returns the message content of the first choice, or "" if there is none.
func (r *ChatCompletionResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// Choice represents a single completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
	Delta        *Delta  `json:"delta,omitempty"` // For streaming
}

// Delta is the incremental message carried by a stream chunk.
// Content is a pointer because providers send null for role-only and final chunks.
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Text returns the fragment text, treating a missing delta or null content as "".
func (d *Delta) Text() string {
	if d == nil || d.Content == nil {
		return ""
	}
	return *d.Content
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamChunk represents a single chunk in a streaming response.
type StreamChunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

// StreamInterface defines the interface for reading streaming responses.
type StreamInterface interface {
	// Read reads the next chunk from the stream. It returns io.EOF once the
	// stream is exhausted.
	Read() (*StreamChunk, error)

	// Close closes the stream.
	Close() error
}

// ModelInfo describes a model as listed by the OpenAI-compatible /models endpoint.
type ModelInfo struct {
	ID            string `json:"id"`
	Object        string `json:"object"`
	Created       int64  `json:"created,omitempty"`
	OwnedBy       string `json:"owned_by,omitempty"`
	Active        bool   `json:"active,omitempty"`
	ContextWindow int    `json:"context_window,omitempty"`
}
