// Package history keeps a short rolling record of each conversation.
package history

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
)

// Ring is a bounded list of turns; appending past capacity drops the oldest.
type Ring struct {
	turns    []llm.Message
	start    int
	size     int
	maxChars int
}

// NewRing creates a ring holding up to capacity turns, truncating each content to
// maxChars characters (0 means no truncation).
func NewRing(capacity, maxChars int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{turns: make([]llm.Message, capacity), maxChars: maxChars}
}

// Append records a turn.
func (r *Ring) Append(role llm.Role, content string) {
	msg := llm.Message{Role: role, Content: Truncate(content, r.maxChars)}
	capacity := len(r.turns)
	if r.size < capacity {
		r.turns[(r.start+r.size)%capacity] = msg
		r.size++
		return
	}
	r.turns[r.start] = msg
	r.start = (r.start + 1) % capacity
}

// Messages returns the turns oldest first.
func (r *Ring) Messages() []llm.Message {
	out := make([]llm.Message, r.size)
	for i := range out {
		out[i] = r.turns[(r.start+i)%len(r.turns)]
	}
	return out
}

// Len returns the number of retained turns.
func (r *Ring) Len() int { return r.size }

// Truncate cuts s to at most n characters without splitting a character.
func Truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Store holds one ring per conversation, keeping the most recently active ones.
type Store struct {
	mu       sync.Mutex
	rings    *lru.Cache[int64, *Ring]
	turns    int
	maxChars int
}

// NewStore creates a store from the history configuration.
func NewStore(cfg config.HistoryConfig) (*Store, error) {
	conversations := cfg.Conversations
	if conversations <= 0 {
		conversations = config.DefaultConversationCapacity
	}
	rings, err := lru.New[int64, *Ring](conversations)
	if err != nil {
		return nil, fmt.Errorf("failed to create history cache: %w", err)
	}
	return &Store{rings: rings, turns: cfg.Turns, maxChars: cfg.MaxChars}, nil
}

// Append records a turn for the conversation.
func (s *Store) Append(conversation int64, role llm.Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings.Get(conversation)
	if !ok {
		ring = NewRing(s.turns, s.maxChars)
		s.rings.Add(conversation, ring)
	}
	ring.Append(role, content)
}

// AppendExchange records a user turn and the assistant's answer together.
func (s *Store) AppendExchange(conversation int64, user, assistant string) {
	s.Append(conversation, llm.RoleUser, user)
	s.Append(conversation, llm.RoleAssistant, assistant)
}

// Snapshot returns a copy of the conversation's turns, oldest first. It always
// opens on a user turn: assistant turns whose question was evicted are left out.
func (s *Store) Snapshot(conversation int64) []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings.Get(conversation)
	if !ok {
		return nil
	}
	msgs := ring.Messages()
	for len(msgs) > 0 && msgs[0].Role == llm.RoleAssistant {
		msgs = msgs[1:]
	}
	return msgs
}

// Reset forgets the conversation.
func (s *Store) Reset(conversation int64) {
	s.rings.Remove(conversation)
}

// Len returns the number of tracked conversations.
func (s *Store) Len() int {
	return s.rings.Len()
}
