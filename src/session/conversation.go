package session

import (
	"sync"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
)

// Conversation is an ordered message history plus an active flag. The first
// message is always the system message it was created with.
//
// mu is held for a whole turn, so turns on one conversation run one at a time.
type Conversation struct {
	ID string

	mu           sync.Mutex
	messages     []aisdk.Message
	active       bool
	evicted      bool
	recorded     bool
	createdAt    time.Time
	lastActivity time.Time
}

func newConversation(id, systemPrompt string, now time.Time) *Conversation {
	return &Conversation{
		ID: id,
		messages: []aisdk.Message{{
			Role:      aisdk.RoleSystem,
			Content:   systemPrompt,
			CreatedAt: now,
		}},
		active:       true,
		createdAt:    now,
		lastActivity: now,
	}
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []aisdk.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

// Len returns the number of messages in the history.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Active reports whether the conversation still accepts turns.
func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Deactivate stops the conversation from accepting further turns. It waits
// for a turn in flight to finish. Nothing in the relay calls it yet.
func (c *Conversation) Deactivate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
}

// CreatedAt returns when the conversation was first referenced.
func (c *Conversation) CreatedAt() time.Time {
	return c.createdAt
}

// the following require c.mu

func (c *Conversation) snapshot() []aisdk.Message {
	out := make([]aisdk.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) append(msg aisdk.Message) int {
	c.messages = append(c.messages, msg)
	c.lastActivity = msg.CreatedAt
	return len(c.messages) - 1
}
