package personas

import (
	"fmt"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/store"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// PromptBook remembers the raw system prompt last set on each conversation
// with a system or preset command.
type PromptBook struct {
	mu      sync.RWMutex
	prompts map[string]string
	persist store.PromptStore
}

// NewPromptBook loads saved prompts from persist (nil keeps them in memory).
func NewPromptBook(persist store.PromptStore) (*PromptBook, error) {
	b := &PromptBook{prompts: map[string]string{}, persist: persist}
	if persist == nil {
		return b, nil
	}
	saved, err := persist.LoadPrompts()
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}
	if saved != nil {
		b.prompts = saved
	}
	log.Info().Int("count", len(saved)).Msg("📝 Saved prompts loaded")
	return b, nil
}

// Get returns the saved prompt for key.
func (b *PromptBook) Get(key models.ConversationKey) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.prompts[string(key)]
	return p, ok
}

// Set stores prompt for key and rewrites the prompt document.
func (b *PromptBook) Set(key models.ConversationKey, prompt string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	prev, had := b.prompts[string(key)]
	b.prompts[string(key)] = prompt
	if b.persist == nil {
		return nil
	}
	if err := b.persist.SavePrompts(b.prompts); err != nil {
		if had {
			b.prompts[string(key)] = prev
		} else {
			delete(b.prompts, string(key))
		}
		log.Error().Err(err).Str("key", string(key)).Msg("Failed to save system prompt")
		return fmt.Errorf("save prompts: %w", err)
	}
	return nil
}
