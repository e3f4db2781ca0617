package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSystemPrompt seeds every new conversation.
const DefaultSystemPrompt = "You are a useful AI assistant."

// StoreConfig configures a Store.
type StoreConfig struct {
	// SystemPrompt seeds new conversations; DefaultSystemPrompt when empty.
	SystemPrompt string
	// IdleTTL is how long a conversation may sit without turns before the
	// sweeper drops it. Zero keeps conversations for the process lifetime.
	IdleTTL time.Duration
	Logger  *slog.Logger
	// Now is the clock, time.Now when nil.
	Now func() time.Time
}

// Store maps conversation identifiers to conversations. Identifiers are
// compared by exact string equality and never validated.
type Store struct {
	mu            sync.Mutex
	conversations map[string]*Conversation

	systemPrompt string
	idleTTL      time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// NewStore creates an empty store.
func NewStore(config StoreConfig) *Store {
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		conversations: make(map[string]*Conversation),
		systemPrompt:  config.SystemPrompt,
		idleTTL:       config.IdleTTL,
		now:           config.Now,
		logger:        logger.With("component", "session_store"),
	}
}

// GetOrCreate returns the conversation for id, creating it with the seeded
// system message when absent. Concurrent callers for one id always get the
// same *Conversation.
func (s *Store) GetOrCreate(id string) *Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.conversations[id]; ok {
		return c
	}

	c := newConversation(id, s.systemPrompt, s.now())
	s.conversations[id] = c
	s.logger.Debug("conversation created", "conversation_id", id, "conversations", len(s.conversations))
	return c
}

// Get returns the conversation for id without creating it.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Len returns the number of conversations held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conversations)
}

// SystemPrompt returns the prompt new conversations are seeded with.
func (s *Store) SystemPrompt() string {
	return s.systemPrompt
}

// Evict drops conversations idle for longer than the TTL as of now and
// returns how many were dropped. Conversations with a turn in flight are
// skipped, and so are inactive ones: an ended id stays ended instead of
// coming back as a fresh conversation.
func (s *Store) Evict(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, c := range s.conversations {
		if !c.mu.TryLock() {
			continue
		}
		if c.active && now.Sub(c.lastActivity) > s.idleTTL {
			c.evicted = true
			delete(s.conversations, id)
			evicted++
		}
		c.mu.Unlock()
	}
	return evicted
}

// Run sweeps idle conversations every interval until ctx is done. It returns
// immediately when eviction is disabled.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	if s.idleTTL <= 0 || interval <= 0 {
		s.logger.Debug("conversation eviction disabled")
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Evict(s.now()); n > 0 {
				s.logger.Info("evicted idle conversations", "count", n, "remaining", s.Len())
			}
		}
	}
}

// acquire resolves id and locks the conversation. A conversation evicted
// between lookup and lock is resolved again.
func (s *Store) acquire(id string) *Conversation {
	for {
		c := s.GetOrCreate(id)
		c.mu.Lock()
		if !c.evicted {
			return c
		}
		c.mu.Unlock()
	}
}
