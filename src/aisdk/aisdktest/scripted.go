// Package aisdktest provides fakes of the aisdk interfaces for tests.
package aisdktest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
)

var _ aisdk.ModelClient = (*ScriptedClient)(nil)

// Call records a single request received by a ScriptedClient.
type Call struct {
	Stream  bool
	Request aisdk.ChatCompletionRequest
}

// Reply is one scripted answer. Fragments are served when the request
// streams; Text is served as an atomic response otherwise. A nil fragment
// models a chunk whose delta content is null.
type Reply struct {
	Fragments []*string
	Text      string
	Err       error
	// StreamErr is returned by the stream after all fragments were read.
	StreamErr error
	Delay     time.Duration
}

// ScriptedClient replays replies in order. Once the script is exhausted the
// last reply is repeated.
type ScriptedClient struct {
	mu      sync.Mutex
	replies []Reply
	next    int
	calls   []Call
}

// NewScriptedClient creates a client replaying the given replies.
func NewScriptedClient(replies ...Reply) *ScriptedClient {
	return &ScriptedClient{replies: replies}
}

// Calls returns a copy of the requests received so far.
func (s *ScriptedClient) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

func (s *ScriptedClient) take(req *aisdk.ChatCompletionRequest, stream bool) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := *req
	snapshot.Messages = append([]aisdk.Message(nil), req.Messages...)
	s.calls = append(s.calls, Call{Stream: stream, Request: snapshot})

	if len(s.replies) == 0 {
		return Reply{}
	}
	r := s.replies[s.next]
	if s.next < len(s.replies)-1 {
		s.next++
	}
	return r
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CreateChatCompletion implements aisdk.ModelClient.
func (s *ScriptedClient) CreateChatCompletion(ctx context.Context, req *aisdk.ChatCompletionRequest) (*aisdk.ChatCompletionResponse, error) {
	r := s.take(req, false)
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	text := r.Text
	if text == "" {
		for _, f := range r.Fragments {
			if f != nil {
				text += *f
			}
		}
	}
	return &aisdk.ChatCompletionResponse{
		ID:     "scripted",
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []aisdk.Choice{{
			Message:      aisdk.Message{Role: aisdk.RoleAssistant, Content: text},
			FinishReason: "stop",
		}},
	}, nil
}

// CreateChatCompletionStream implements aisdk.ModelClient.
func (s *ScriptedClient) CreateChatCompletionStream(ctx context.Context, req *aisdk.ChatCompletionRequest) (aisdk.StreamInterface, error) {
	r := s.take(req, true)
	if err := wait(ctx, r.Delay); err != nil {
		return nil, err
	}
	if r.Err != nil {
		return nil, r.Err
	}
	fragments := r.Fragments
	if fragments == nil && r.Text != "" {
		fragments = Fragments(r.Text)
	}
	st := NewStream(fragments...)
	st.err = r.StreamErr
	return st, nil
}

// Fragments turns strings into fragment pointers.
func Fragments(parts ...string) []*string {
	out := make([]*string, len(parts))
	for i := range parts {
		out[i] = &parts[i]
	}
	return out
}

// Stream is an in-memory aisdk.StreamInterface.
type Stream struct {
	chunks []*aisdk.StreamChunk
	pos    int
	err    error
	closed bool
}

// NewStream builds a stream yielding one chunk per fragment. The last chunk
// carries finish reason "stop".
func NewStream(fragments ...*string) *Stream {
	chunks := make([]*aisdk.StreamChunk, 0, len(fragments))
	for _, f := range fragments {
		chunks = append(chunks, &aisdk.StreamChunk{
			ID:     "scripted",
			Object: "chat.completion.chunk",
			Choices: []aisdk.Choice{{
				Delta: &aisdk.Delta{Content: f},
			}},
		})
	}
	if n := len(chunks); n > 0 {
		chunks[n-1].Choices[0].FinishReason = "stop"
	}
	return &Stream{chunks: chunks}
}

// Read implements aisdk.StreamInterface.
func (s *Stream) Read() (*aisdk.StreamChunk, error) {
	if s.closed {
		return nil, io.ErrClosedPipe
	}
	if s.pos >= len(s.chunks) {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	c := s.chunks[s.pos]
	s.pos++
	return c, nil
}

// Close implements aisdk.StreamInterface.
func (s *Stream) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	return s.closed
}
