package aisdk

import (
	"errors"
	"io"
	"strings"
)

// StreamCallback is a function called for each chunk in a stream.
type StreamCallback func(chunk *StreamChunk) error

// StreamToCallback reads a stream and calls the callback for each chunk.
func StreamToCallback(stream StreamInterface, callback StreamCallback) error {
	defer stream.Close()

	for {
		chunk, err := stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil // End of stream
			}
			return err
		}

		if chunk == nil {
			return nil // End of stream
		}

		if err := callback(chunk); err != nil {
			return err
		}
	}
}

// StreamAggregator helps aggregate streaming responses into a final response.
type StreamAggregator struct {
	ID      string
	Object  string
	Created int64
	Model   string
	Content strings.Builder

	FinishReason string
}

// NewStreamAggregator creates a new stream aggregator.
func NewStreamAggregator() *StreamAggregator {
	return &StreamAggregator{
		Object: "chat.completion",
	}
}

// AddChunk processes a stream chunk and updates the aggregated state.
func (a *StreamAggregator) AddChunk(chunk *StreamChunk) {
	if a.ID == "" {
		a.ID = chunk.ID
	}
	if a.Created == 0 {
		a.Created = chunk.Created
	}
	if a.Model == "" {
		a.Model = chunk.Model
	}

	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]

		a.Content.WriteString(choice.Delta.Text())

		if choice.FinishReason != "" {
			a.FinishReason = choice.FinishReason
		}
	}
}

// ToResponse converts the aggregated stream into a ChatCompletionResponse.
func (a *StreamAggregator) ToResponse() *ChatCompletionResponse {
	return &ChatCompletionResponse{
		ID:      a.ID,
		Object:  a.Object,
		Created: a.Created,
		Model:   a.Model,
		Choices: []Choice{
			{
				Index: 0,
				Message: Message{
					Role:    RoleAssistant,
					Content: a.Content.String(),
				},
				FinishReason: a.FinishReason,
			},
		},
	}
}

// AggregateStream reads a stream and returns the aggregated response. Null
// and empty content fragments contribute nothing.
func AggregateStream(stream StreamInterface) (*ChatCompletionResponse, error) {
	aggregator := NewStreamAggregator()

	err := StreamToCallback(stream, func(chunk *StreamChunk) error {
		aggregator.AddChunk(chunk)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return aggregator.ToResponse(), nil
}
