// Package store persists the relay's durable state: custom personas and the
// per-conversation raw system prompts. Conversation transcripts are never
// persisted.
package store

import (
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

// PersonaStore loads and rewrites the custom persona document.
type PersonaStore interface {
	LoadPersonas() (map[string]models.PersonaRecord, error)
	SavePersonas(personas map[string]models.PersonaRecord) error
}

// PromptStore loads and rewrites the conversation-key → raw prompt document.
type PromptStore interface {
	LoadPrompts() (map[string]string, error)
	SavePrompts(prompts map[string]string) error
}

// Store is the full persistence surface.
type Store interface {
	PersonaStore
	PromptStore
}

// Memory is a Store that keeps documents in memory. Used by tests and when
// no data directory is configured.
type Memory struct {
	personas map[string]models.PersonaRecord
	prompts  map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		personas: map[string]models.PersonaRecord{},
		prompts:  map[string]string{},
	}
}

func (m *Memory) LoadPersonas() (map[string]models.PersonaRecord, error) {
	out := make(map[string]models.PersonaRecord, len(m.personas))
	for k, v := range m.personas {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SavePersonas(personas map[string]models.PersonaRecord) error {
	m.personas = make(map[string]models.PersonaRecord, len(personas))
	for k, v := range personas {
		m.personas[k] = v
	}
	return nil
}

func (m *Memory) LoadPrompts() (map[string]string, error) {
	out := make(map[string]string, len(m.prompts))
	for k, v := range m.prompts {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) SavePrompts(prompts map[string]string) error {
	m.prompts = make(map[string]string, len(prompts))
	for k, v := range prompts {
		m.prompts[k] = v
	}
	return nil
}
