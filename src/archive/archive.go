// Package archive keeps a write-only SQLite transcript of relayed
// conversations. It is never read to restore conversation state.
package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/google/uuid"
)

// ErrUnknownConversation is returned when a message is recorded for a
// conversation key that was never recorded.
var ErrUnknownConversation = errors.New("conversation not recorded")

// ErrNotFound is returned when no archived conversation has the given row id.
var ErrNotFound = errors.New("archived conversation not found")

// Archive records conversations and their messages.
type Archive struct {
	db     *DB
	logger *slog.Logger

	mu      sync.Mutex
	current map[string]string // conversation key -> row id
}

// New wraps an opened database.
func New(db *DB, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{
		db:      db,
		logger:  logger.With("component", "archive", "path", db.Path()),
		current: make(map[string]string),
	}
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// RecordConversation starts a new archived conversation for key. Later
// messages for key attach to it.
func (a *Archive) RecordConversation(ctx context.Context, key, systemPrompt string, createdAt time.Time) error {
	conv := &Conversation{
		ID:           uuid.New().String(),
		Key:          key,
		SystemPrompt: systemPrompt,
		CreatedAt:    createdAt,
	}
	if err := CreateConversation(ctx, a.db.DB(), conv); err != nil {
		return fmt.Errorf("failed to record conversation: %w", err)
	}

	a.mu.Lock()
	a.current[key] = conv.ID
	a.mu.Unlock()

	a.logger.Debug("conversation recorded", "conversation_id", key, "archive_id", conv.ID)
	return nil
}

// RecordMessage appends msg at position seq of the current conversation for key.
func (a *Archive) RecordMessage(ctx context.Context, key string, seq int, msg aisdk.Message) error {
	a.mu.Lock()
	id, ok := a.current[key]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, key)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	return CreateMessage(ctx, a.db.DB(), &Message{
		ConversationID: id,
		Seq:            seq,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      createdAt,
	})
}

// ListConversations returns archived conversations, newest first. A
// non-empty key restricts the result to that conversation id.
func (a *Archive) ListConversations(ctx context.Context, key string, limit int) ([]Conversation, error) {
	return ListConversations(ctx, a.db.DB(), key, limit)
}

// ListMessages returns every archived message for key, oldest conversation
// first and in turn order within each conversation.
func (a *Archive) ListMessages(ctx context.Context, key string) ([]Message, error) {
	return GetMessagesByConversationKey(ctx, a.db.DB(), key)
}

// GetConversation returns the archived conversation stored under row id,
// along with its messages in turn order.
func (a *Archive) GetConversation(ctx context.Context, id string) (*Conversation, []Message, error) {
	conv, err := GetConversationByID(ctx, a.db.DB(), id)
	if err != nil {
		return nil, nil, err
	}
	if conv == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	messages, err := GetMessagesByConversationID(ctx, a.db.DB(), id)
	if err != nil {
		return nil, nil, err
	}
	return conv, messages, nil
}

// CreateConversation inserts a conversation row
func CreateConversation(ctx context.Context, db Execer, conversation *Conversation) error {
	if conversation.ID == "" {
		conversation.ID = uuid.New().String()
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now()
	}

	query := `INSERT INTO conversations (id, conversation_key, system_prompt, created_at) VALUES (?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, conversation.ID, conversation.Key, conversation.SystemPrompt, conversation.CreatedAt.UTC())
	return err
}

// CreateMessage inserts a message row
func CreateMessage(ctx context.Context, db Execer, message *Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}

	query := `INSERT INTO messages (id, conversation_id, seq, role, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, message.ID, message.ConversationID, message.Seq, message.Role, message.Content, message.CreatedAt.UTC())
	return err
}

// GetConversationByID retrieves a conversation by its row id, nil when absent
func GetConversationByID(ctx context.Context, db sqlscan.Querier, id string) (*Conversation, error) {
	query := `SELECT c.id, c.conversation_key, c.system_prompt, c.created_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c WHERE c.id = ?`
	var conv Conversation
	err := sqlscan.Get(ctx, db, &conv, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListConversations lists conversations newest first; limit <= 0 means no limit
func ListConversations(ctx context.Context, db sqlscan.Querier, key string, limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT c.id, c.conversation_key, c.system_prompt, c.created_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
		FROM conversations c
		WHERE (? = '' OR c.conversation_key = ?)
		ORDER BY c.created_at DESC, c.rowid DESC
		LIMIT ?`
	var conversations []Conversation
	if err := sqlscan.Select(ctx, db, &conversations, query, key, key, limit); err != nil {
		return nil, err
	}
	return conversations, nil
}

// GetMessagesByConversationKey retrieves all messages recorded under key
func GetMessagesByConversationKey(ctx context.Context, db sqlscan.Querier, key string) ([]Message, error) {
	query := `SELECT m.id, m.conversation_id, m.seq, m.role, m.content, m.created_at
		FROM messages m JOIN conversations c ON c.id = m.conversation_id
		WHERE c.conversation_key = ?
		ORDER BY c.created_at, c.rowid, m.seq`
	var messages []Message
	if err := sqlscan.Select(ctx, db, &messages, query, key); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetMessagesByConversationID retrieves the messages of one archived conversation row
func GetMessagesByConversationID(ctx context.Context, db sqlscan.Querier, id string) ([]Message, error) {
	query := `SELECT id, conversation_id, seq, role, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY seq`
	var messages []Message
	if err := sqlscan.Select(ctx, db, &messages, query, id); err != nil {
		return nil, err
	}
	return messages, nil
}
