package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/elee1766/chatrelay/src/groqclient"
)

// Defaults for the two completion paths.
const (
	DefaultChatModel       = "llama-3.1-8b-instant"
	DefaultAskModel        = "llama-3.3-70b-versatile"
	DefaultAskSystemPrompt = "You are a helpful assistant."
	DefaultTimeout         = 60 * time.Second
)

// TurnRecorder receives every message appended to a conversation. Record
// failures are logged and do not fail the turn.
type TurnRecorder interface {
	RecordConversation(ctx context.Context, conversationID, systemPrompt string, createdAt time.Time) error
	RecordMessage(ctx context.Context, conversationID string, seq int, msg aisdk.Message) error
}

// ChatSettings are the fixed parameters of conversation turns.
type ChatSettings struct {
	Model  string
	Params aisdk.GenerationParams
}

// DefaultChatSettings returns model llama-3.1-8b-instant at temperature 1,
// 1024 max tokens, top_p 1, streamed.
func DefaultChatSettings() ChatSettings {
	temperature, topP, maxTokens := 1.0, 1.0, 1024
	return ChatSettings{
		Model: DefaultChatModel,
		Params: aisdk.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			TopP:        &topP,
			Stream:      true,
		},
	}
}

// AskSettings are the parameters of one-shot questions.
type AskSettings struct {
	Model        string
	SystemPrompt string
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	Client aisdk.ModelClient
	Store  *Store
	Chat   ChatSettings
	Ask    AskSettings
	// Timeout bounds each upstream call; DefaultTimeout when zero.
	Timeout  time.Duration
	Recorder TurnRecorder
	Logger   *slog.Logger
}

// TurnResult is the outcome of an accepted turn.
type TurnResult struct {
	Response       string
	ConversationID string
}

// Orchestrator runs conversation turns and one-shot questions against the
// completion client.
type Orchestrator struct {
	client   aisdk.ModelClient
	store    *Store
	chat     ChatSettings
	ask      AskSettings
	timeout  time.Duration
	recorder TurnRecorder
	logger   *slog.Logger
	errors   *groqclient.ErrorHandler
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. Client and Store are required.
func NewOrchestrator(config OrchestratorConfig) *Orchestrator {
	if config.Chat.Model == "" {
		config.Chat = DefaultChatSettings()
	}
	if config.Ask.Model == "" {
		config.Ask.Model = DefaultAskModel
	}
	if config.Ask.SystemPrompt == "" {
		config.Ask.SystemPrompt = DefaultAskSystemPrompt
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		client:   config.Client,
		store:    config.Store,
		chat:     config.Chat,
		ask:      config.Ask,
		timeout:  config.Timeout,
		recorder: config.Recorder,
		logger:   logger.With("component", "orchestrator"),
		errors:   groqclient.NewErrorHandler(logger),
		now:      config.Store.now,
	}
}

// Store returns the conversation store turns run against.
func (o *Orchestrator) Store() *Store {
	return o.store
}

// HandleTurn appends {role, content} to the conversation, sends the whole
// history upstream and appends the assistant reply.
//
// On upstream failure the user message stays in the history and no
// assistant message is appended.
func (o *Orchestrator) HandleTurn(ctx context.Context, conversationID, role, content string) (*TurnResult, error) {
	if role == "" {
		role = aisdk.RoleUser
	}
	logger := o.logger.With("conversation_id", conversationID)

	c := o.store.acquire(conversationID)
	defer c.mu.Unlock()

	if !c.active {
		logger.Debug("turn rejected, conversation inactive")
		return nil, ErrSessionInactive
	}

	o.recordConversation(ctx, c)
	o.appendMessage(ctx, c, aisdk.Message{Role: role, Content: content, CreatedAt: o.now()})

	req := &aisdk.ChatCompletionRequest{
		Model:    o.chat.Model,
		Messages: c.snapshot(),
	}
	o.chat.Params.Apply(req)

	start := o.now()
	resp, err := o.complete(ctx, req)
	if err != nil {
		return nil, o.errors.Handle(&UpstreamError{Operation: "chat turn", Err: err}, "chat turn",
			slog.String("conversation_id", conversationID),
			slog.Int("messages", len(c.messages)))
	}

	text := resp.Content()
	o.appendMessage(ctx, c, aisdk.Message{Role: aisdk.RoleAssistant, Content: text, CreatedAt: o.now()})
	logger.Info("turn complete",
		"messages", len(c.messages),
		"response_chars", len(text),
		"finish_reason", resp.Choices[0].FinishReason,
		"duration", o.now().Sub(start))

	return &TurnResult{Response: text, ConversationID: conversationID}, nil
}

// Ask sends a single question with the ask system prompt and returns the
// answer. It does not touch the conversation store.
func (o *Orchestrator) Ask(ctx context.Context, question string) (string, error) {
	req := &aisdk.ChatCompletionRequest{
		Model: o.ask.Model,
		Messages: []aisdk.Message{
			{Role: aisdk.RoleSystem, Content: o.ask.SystemPrompt},
			{Role: aisdk.RoleUser, Content: question},
		},
	}

	resp, err := o.complete(ctx, req)
	if err != nil {
		return "", o.errors.Handle(&UpstreamError{Operation: "ask", Err: err}, "ask")
	}
	return resp.Content(), nil
}

// complete issues req under the upstream timeout. Streamed fragments are
// folded in arrival order into a single-choice response.
func (o *Orchestrator) complete(ctx context.Context, req *aisdk.ChatCompletionRequest) (*aisdk.ChatCompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var (
		resp *aisdk.ChatCompletionResponse
		err  error
	)
	if req.Stream {
		var stream aisdk.StreamInterface
		stream, err = o.client.CreateChatCompletionStream(ctx, req)
		if err == nil {
			resp, err = aisdk.AggregateStream(stream)
		}
	} else {
		resp, err = o.client.CreateChatCompletion(ctx, req)
		if err == nil && len(resp.Choices) == 0 {
			err = groqclient.ErrEmptyResponse
		}
	}

	if err != nil && !errors.Is(err, groqclient.ErrTimeout) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = &groqclient.TimeoutError{Operation: "completion", Duration: o.timeout, Cause: err}
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// appendMessage requires c.mu.
func (o *Orchestrator) appendMessage(ctx context.Context, c *Conversation, msg aisdk.Message) {
	seq := c.append(msg)
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordMessage(context.WithoutCancel(ctx), c.ID, seq, msg); err != nil {
		o.logger.Warn("failed to archive message", "conversation_id", c.ID, "seq", seq, "error", err)
	}
}

// recordConversation archives the conversation and its system message the
// first time it takes a turn. Requires c.mu.
func (o *Orchestrator) recordConversation(ctx context.Context, c *Conversation) {
	if o.recorder == nil || c.recorded {
		return
	}
	c.recorded = true
	ctx = context.WithoutCancel(ctx)

	system := c.messages[0]
	if err := o.recorder.RecordConversation(ctx, c.ID, system.Content, c.createdAt); err != nil {
		o.logger.Warn("failed to archive conversation", "conversation_id", c.ID, "error", err)
		return
	}
	if err := o.recorder.RecordMessage(ctx, c.ID, 0, system); err != nil {
		o.logger.Warn("failed to archive message", "conversation_id", c.ID, "seq", 0, "error", err)
	}
}
