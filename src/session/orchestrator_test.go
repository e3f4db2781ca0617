package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/elee1766/chatrelay/src/aisdk/aisdktest"
	"github.com/elee1766/chatrelay/src/groqclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func newTestOrchestrator(client aisdk.ModelClient, opts ...func(*OrchestratorConfig)) *Orchestrator {
	config := OrchestratorConfig{
		Client: client,
		Store:  NewStore(StoreConfig{}),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return NewOrchestrator(config)
}

func TestHandleTurnFirstTurn(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Fragments: aisdktest.Fragments("Hel", "lo")})
	o := newTestOrchestrator(client)

	result, err := o.HandleTurn(t.Context(), "fresh", "user", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello", result.Response)
	assert.Equal(t, "fresh", result.ConversationID)

	calls := client.Calls()
	require.Len(t, calls, 1)
	sent := calls[0].Request.Messages
	require.Len(t, sent, 2)
	assert.Equal(t, aisdk.RoleSystem, sent[0].Role)
	assert.Equal(t, DefaultSystemPrompt, sent[0].Content)
	assert.Equal(t, aisdk.Message{Role: "user", Content: "Hi"}, aisdk.Message{Role: sent[1].Role, Content: sent[1].Content})
}

func TestHandleTurnUsesChatParameters(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Text: "ok"})
	o := newTestOrchestrator(client)

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)

	call := client.Calls()[0]
	assert.True(t, call.Stream)
	assert.Equal(t, "llama-3.1-8b-instant", call.Request.Model)
	require.NotNil(t, call.Request.Temperature)
	assert.Equal(t, 1.0, *call.Request.Temperature)
	require.NotNil(t, call.Request.MaxTokens)
	assert.Equal(t, 1024, *call.Request.MaxTokens)
	require.NotNil(t, call.Request.TopP)
	assert.Equal(t, 1.0, *call.Request.TopP)
}

func TestHandleTurnGrowsByTwo(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{
		Fragments: []*string{nil, strp("Hel"), strp(""), strp("lo, "), nil, strp("world")},
	})
	o := newTestOrchestrator(client)
	c := o.Store().GetOrCreate("c1")
	before := c.Len()

	result, err := o.HandleTurn(t.Context(), "c1", "user", "greet me")
	require.NoError(t, err)

	msgs := c.Messages()
	require.Len(t, msgs, before+2)
	assert.Equal(t, "user", msgs[before].Role)
	assert.Equal(t, "greet me", msgs[before].Content)
	assert.Equal(t, aisdk.RoleAssistant, msgs[before+1].Role)
	assert.Equal(t, "Hello, world", msgs[before+1].Content)
	assert.Equal(t, msgs[before+1].Content, result.Response)
}

func TestHandleTurnConversationScenario(t *testing.T) {
	client := aisdktest.NewScriptedClient(
		aisdktest.Reply{Fragments: aisdktest.Fragments("Hello!")},
		aisdktest.Reply{Fragments: aisdktest.Fragments("Fine, ", "thanks.")},
	)
	o := newTestOrchestrator(client)

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)

	c, ok := o.Store().Get("c1")
	require.True(t, ok)
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"system", "user", "assistant"}, roles(msgs))
	assert.Equal(t, "Hi", msgs[1].Content)
	assert.Equal(t, "Hello!", msgs[2].Content)

	result, err := o.HandleTurn(t.Context(), "c1", "user", "How are you?")
	require.NoError(t, err)
	assert.Equal(t, "Fine, thanks.", result.Response)
	assert.Equal(t, 5, c.Len())

	calls := client.Calls()
	require.Len(t, calls, 2)
	second := calls[1].Request.Messages
	require.Len(t, second, 4)
	assert.Equal(t, []string{"system", "user", "assistant", "user"}, roles(second))
	assert.Equal(t, "Hello!", second[2].Content)
	assert.Equal(t, "How are you?", second[3].Content)
}

func TestHandleTurnDefaultsRole(t *testing.T) {
	o := newTestOrchestrator(aisdktest.NewScriptedClient(aisdktest.Reply{Text: "ok"}))

	_, err := o.HandleTurn(t.Context(), "c1", "", "Hi")
	require.NoError(t, err)
	c, _ := o.Store().Get("c1")
	assert.Equal(t, aisdk.RoleUser, c.Messages()[1].Role)

	_, err = o.HandleTurn(t.Context(), "c1", "narrator", "meanwhile")
	require.NoError(t, err)
	assert.Equal(t, "narrator", c.Messages()[3].Role)
}

func TestHandleTurnInactive(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Text: "ok"})
	o := newTestOrchestrator(client)

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)
	c, _ := o.Store().Get("c1")
	c.Deactivate()
	before := c.Messages()

	result, err := o.HandleTurn(t.Context(), "c1", "user", "still there?")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrSessionInactive)
	assert.Equal(t, before, c.Messages())
	assert.Len(t, client.Calls(), 1)
}

func TestHandleTurnUpstreamFailure(t *testing.T) {
	apiErr := &groqclient.APIError{StatusCode: 429, Message: "Rate limit reached", Code: "rate_limit_exceeded"}

	tests := []struct {
		name  string
		reply aisdktest.Reply
		match error
	}{
		{name: "request fails", reply: aisdktest.Reply{Err: apiErr}, match: groqclient.ErrRateLimited},
		{
			name:  "stream fails midway",
			reply: aisdktest.Reply{Fragments: aisdktest.Fragments("partial"), StreamErr: errors.New("connection reset")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOrchestrator(aisdktest.NewScriptedClient(tt.reply))
			c := o.Store().GetOrCreate("c1")
			before := c.Len()

			result, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
			assert.Nil(t, result)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUpstream)
			if tt.match != nil {
				assert.ErrorIs(t, err, tt.match)
			}

			var upstreamErr *UpstreamError
			require.ErrorAs(t, err, &upstreamErr)

			msgs := c.Messages()
			require.Len(t, msgs, before+1)
			assert.Equal(t, "Hi", msgs[len(msgs)-1].Content)
			assert.Equal(t, "user", msgs[len(msgs)-1].Role)
		})
	}
}

func TestHandleTurnUpstreamMessage(t *testing.T) {
	apiErr := &groqclient.APIError{StatusCode: 401, Message: "Invalid API Key", Code: "invalid_api_key"}
	o := newTestOrchestrator(aisdktest.NewScriptedClient(aisdktest.Reply{Err: apiErr}))

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	assert.EqualError(t, err, apiErr.Error())
}

func TestHandleTurnTimeout(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Text: "late", Delay: time.Second})
	o := newTestOrchestrator(client, func(c *OrchestratorConfig) { c.Timeout = 20 * time.Millisecond })

	start := time.Now()
	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, groqclient.ErrTimeout)

	var timeoutErr *groqclient.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 20*time.Millisecond, timeoutErr.Duration)
}

func TestHandleTurnTimeoutMidStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"id\":\"c\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	client := groqclient.NewClient(groqclient.Config{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	o := newTestOrchestrator(client, func(c *OrchestratorConfig) { c.Timeout = 100 * time.Millisecond })

	start := time.Now()
	result, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	assert.Nil(t, result)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, groqclient.ErrTimeout)

	c, ok := o.Store().Get("c1")
	require.True(t, ok)
	assert.Equal(t, []string{"system", "user"}, roles(c.Messages()))
}

func TestUpstreamFailureLogsComponentOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	apiErr := &groqclient.APIError{StatusCode: 503, Message: "Service unavailable"}
	o := newTestOrchestrator(aisdktest.NewScriptedClient(aisdktest.Reply{Err: apiErr}), func(c *OrchestratorConfig) {
		c.Logger = logger
	})

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.Error(t, err)

	var failure string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, strings.Count(line, "component="), 1, line)
		if strings.Contains(line, "chat turn") {
			failure = line
		}
	}
	require.NotEmpty(t, failure)
	assert.Contains(t, failure, "component=error_handler")
	assert.Contains(t, failure, "conversation_id=c1")
}

func TestHandleTurnNonStreaming(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Text: "atomic answer"})
	o := newTestOrchestrator(client, func(c *OrchestratorConfig) {
		c.Chat = ChatSettings{Model: "m", Params: aisdk.GenerationParams{}}
	})

	result, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "atomic answer", result.Response)
	assert.False(t, client.Calls()[0].Stream)
}

func TestHandleTurnSerializesSameConversation(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Fragments: aisdktest.Fragments("a", "b"), Delay: 2 * time.Millisecond})
	o := newTestOrchestrator(client)

	const turns = 16
	var wg sync.WaitGroup
	for i := range turns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.HandleTurn(context.Background(), "shared", "user", fmt.Sprintf("msg %d", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	c, _ := o.Store().Get("shared")
	msgs := c.Messages()
	require.Len(t, msgs, 1+2*turns)
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, "user", msgs[i].Role, "message %d", i)
		assert.Equal(t, aisdk.RoleAssistant, msgs[i+1].Role, "message %d", i+1)
	}

	// every call saw a history with complete turns only
	for _, call := range client.Calls() {
		assert.Equal(t, 0, len(call.Request.Messages)%2, "history sent upstream should end on a user turn")
	}
}

// gatedClient blocks completions whose last message is "block" until released.
type gatedClient struct {
	aisdk.ModelClient
	release chan struct{}
}

func (g *gatedClient) CreateChatCompletionStream(ctx context.Context, req *aisdk.ChatCompletionRequest) (aisdk.StreamInterface, error) {
	if req.Messages[len(req.Messages)-1].Content == "block" {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return aisdktest.NewStream(aisdktest.Fragments("done")...), nil
}

func TestHandleTurnIndependentConversations(t *testing.T) {
	client := &gatedClient{release: make(chan struct{})}
	o := newTestOrchestrator(client)

	blocked := make(chan error, 1)
	go func() {
		_, err := o.HandleTurn(context.Background(), "a", "user", "block")
		blocked <- err
	}()

	// wait until the blocked turn holds conversation a
	require.Eventually(t, func() bool {
		c, ok := o.Store().Get("a")
		if !ok {
			return false
		}
		if c.mu.TryLock() {
			c.mu.Unlock()
			return false
		}
		return true
	}, time.Second, time.Millisecond)

	result, err := o.HandleTurn(t.Context(), "b", "user", "hello")
	require.NoError(t, err)
	assert.Equal(t, "done", result.Response)

	close(client.release)
	require.NoError(t, <-blocked)
}

type recordedMessage struct {
	conversationID string
	seq            int
	role           string
	content        string
}

type fakeRecorder struct {
	mu            sync.Mutex
	conversations []string
	messages      []recordedMessage
	fail          error
}

func (f *fakeRecorder) RecordConversation(_ context.Context, id, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = append(f.conversations, id)
	return f.fail
}

func (f *fakeRecorder) RecordMessage(_ context.Context, id string, seq int, msg aisdk.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, recordedMessage{id, seq, msg.Role, msg.Content})
	return f.fail
}

func TestHandleTurnRecordsMessages(t *testing.T) {
	recorder := &fakeRecorder{}
	client := aisdktest.NewScriptedClient(
		aisdktest.Reply{Text: "one"},
		aisdktest.Reply{Err: errors.New("boom")},
	)
	o := newTestOrchestrator(client, func(c *OrchestratorConfig) { c.Recorder = recorder })

	_, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)
	_, err = o.HandleTurn(t.Context(), "c1", "user", "again")
	require.Error(t, err)

	assert.Equal(t, []string{"c1"}, recorder.conversations)
	assert.Equal(t, []recordedMessage{
		{"c1", 0, "system", DefaultSystemPrompt},
		{"c1", 1, "user", "Hi"},
		{"c1", 2, "assistant", "one"},
		{"c1", 3, "user", "again"},
	}, recorder.messages)
}

func TestHandleTurnRecorderFailureIgnored(t *testing.T) {
	recorder := &fakeRecorder{fail: errors.New("disk full")}
	o := newTestOrchestrator(aisdktest.NewScriptedClient(aisdktest.Reply{Text: "ok"}),
		func(c *OrchestratorConfig) { c.Recorder = recorder })

	result, err := o.HandleTurn(t.Context(), "c1", "user", "Hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
}

func TestAsk(t *testing.T) {
	client := aisdktest.NewScriptedClient(aisdktest.Reply{Text: "42"})
	o := newTestOrchestrator(client)

	answer, err := o.Ask(t.Context(), "meaning of life?")
	require.NoError(t, err)
	assert.Equal(t, "42", answer)
	assert.Equal(t, 0, o.Store().Len())

	call := client.Calls()[0]
	assert.False(t, call.Stream)
	assert.Equal(t, "llama-3.3-70b-versatile", call.Request.Model)
	assert.Nil(t, call.Request.Temperature)
	require.Len(t, call.Request.Messages, 2)
	assert.Equal(t, aisdk.RoleSystem, call.Request.Messages[0].Role)
	assert.Equal(t, "You are a helpful assistant.", call.Request.Messages[0].Content)
	assert.Equal(t, "meaning of life?", call.Request.Messages[1].Content)
}

func TestAskUpstreamFailure(t *testing.T) {
	o := newTestOrchestrator(aisdktest.NewScriptedClient(aisdktest.Reply{Err: &groqclient.APIError{StatusCode: 503, Message: "over capacity"}}))

	answer, err := o.Ask(t.Context(), "hi")
	assert.Empty(t, answer)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "over capacity")
}

func roles(msgs []aisdk.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}
