package archive

import (
	"context"
	"database/sql"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// Conversation is one archived conversation. Key is the client supplied
// conversation id; a key evicted and reused gets a new row.
type Conversation struct {
	ID           string    `json:"id" db:"id"`
	Key          string    `json:"conversation_id" db:"conversation_key"`
	SystemPrompt string    `json:"system_prompt" db:"system_prompt"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	MessageCount int       `json:"message_count" db:"message_count"`
}

// Message is one archived message.
type Message struct {
	ID             string    `json:"id" db:"id"`
	ConversationID string    `json:"-" db:"conversation_id"`
	Seq            int       `json:"seq" db:"seq"`
	Role           string    `json:"role" db:"role"`
	Content        string    `json:"content" db:"content"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Execer is an interface for executing SQL statements
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// ExecQuerier combines both Execer and sqlscan.Querier interfaces
type ExecQuerier interface {
	Execer
	sqlscan.Querier
}
