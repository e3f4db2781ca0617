package aisdk

import (
	"context"
)

// Provider represents an AI provider interface
type Provider interface {
	ListModels(ctx context.Context) ([]*ModelInfo, error)
}

// ModelClient issues chat completions against an upstream provider.
type ModelClient interface {
	CreateChatCompletion(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error)
	CreateChatCompletionStream(ctx context.Context, req *ChatCompletionRequest) (StreamInterface, error)
}
