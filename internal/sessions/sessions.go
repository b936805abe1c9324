// Package sessions provides the in-memory conversation store: one bounded
// message buffer per conversation key.
//
// Each key has its own mutex, so work on one channel never blocks another.
// Buffers live for the life of the process and are never written to disk.
package sessions

import (
	"sort"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

// MaxTurns is the number of non-system messages a buffer retains.
const MaxTurns = 20

// MaxMessages is the buffer cap: the system message plus MaxTurns.
const MaxMessages = MaxTurns + 1

type buffer struct {
	mu       sync.Mutex
	messages []models.Message // messages[0] is always role=system
}

// Store is a thread-safe conversation store keyed by conversation key.
type Store struct {
	mu      sync.RWMutex
	buffers map[models.ConversationKey]*buffer
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{buffers: make(map[models.ConversationKey]*buffer)}
}

// slot returns the buffer for key, creating an unseeded one when absent.
func (s *Store) slot(key models.ConversationKey) *buffer {
	s.mu.RLock()
	b, ok := s.buffers[key]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok = s.buffers[key]; ok {
		return b
	}
	b = &buffer{}
	s.buffers[key] = b
	return b
}

// Ensure returns the buffer for key, seeding it with the persona's system
// prompt when the key has no buffer yet.
func (s *Store) Ensure(key models.ConversationKey, persona models.Persona) []models.Message {
	return s.EnsurePrompt(key, persona.SystemPrompt)
}

// EnsurePrompt is Ensure with a raw system prompt.
func (s *Store) EnsurePrompt(key models.ConversationKey, prompt string) []models.Message {
	b := s.slot(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.messages) == 0 {
		b.messages = []models.Message{models.SystemMessage(prompt)}
	}
	return copyMessages(b.messages)
}

// Append adds msgs to the key's buffer and applies the retention rule: past
// MaxMessages, the oldest non-system messages are dropped. Appending to an
// unknown key seeds it with an empty system message first.
func (s *Store) Append(key models.ConversationKey, msgs ...models.Message) {
	b := s.slot(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(msgs...)
}

// AppendAndSnapshot appends msg and returns a copy of the resulting buffer
// in one critical section, so the snapshot contains exactly this append.
func (s *Store) AppendAndSnapshot(key models.ConversationKey, msg models.Message) []models.Message {
	b := s.slot(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.append(msg)
	return copyMessages(b.messages)
}

// append must be called with b.mu held.
func (b *buffer) append(msgs ...models.Message) {
	if len(b.messages) == 0 {
		b.messages = []models.Message{models.SystemMessage("")}
	}
	b.messages = append(b.messages, msgs...)
	if len(b.messages) > MaxMessages {
		kept := make([]models.Message, 0, MaxMessages)
		kept = append(kept, b.messages[0])
		kept = append(kept, b.messages[len(b.messages)-MaxTurns:]...)
		b.messages = kept
	}
}

// Reset replaces the key's buffer with a fresh one seeded by the persona.
func (s *Store) Reset(key models.ConversationKey, persona models.Persona) {
	s.ResetPrompt(key, persona.SystemPrompt)
}

// ResetPrompt replaces the key's buffer with a single system message.
func (s *Store) ResetPrompt(key models.ConversationKey, prompt string) {
	b := s.slot(key)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = []models.Message{models.SystemMessage(prompt)}
}

// Snapshot returns a copy of the key's buffer, or nil when the key has none.
func (s *Store) Snapshot(key models.ConversationKey) []models.Message {
	s.mu.RLock()
	b, ok := s.buffers[key]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyMessages(b.messages)
}

// SystemPrompt returns the system message at index 0 for key.
func (s *Store) SystemPrompt(key models.ConversationKey) (string, bool) {
	msgs := s.Snapshot(key)
	if len(msgs) == 0 {
		return "", false
	}
	return msgs[0].Content, true
}

// Len returns the number of messages buffered for key.
func (s *Store) Len(key models.ConversationKey) int {
	return len(s.Snapshot(key))
}

// Keys returns every key with a buffer, sorted.
func (s *Store) Keys() []models.ConversationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]models.ConversationKey, 0, len(s.buffers))
	for k := range s.buffers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func copyMessages(msgs []models.Message) []models.Message {
	if msgs == nil {
		return nil
	}
	out := make([]models.Message, len(msgs))
	copy(out, msgs)
	return out
}
