// Package models holds the value types shared by the relay's core packages
// and its collaborators (command layer, Discord transport, HTTP API).
package models

import (
	"time"
)

// ── Providers ───────────────────────────────────────────────

// Provider identifies a model backend. The set is closed: every value has
// exactly one driver registered in the model router.
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGroq       Provider = "groq"
)

// AllProviders lists providers in their canonical display order.
var AllProviders = []Provider{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter, ProviderGroq}

// Valid reports whether p is one of the known providers.
func (p Provider) Valid() bool {
	for _, known := range AllProviders {
		if p == known {
			return true
		}
	}
	return false
}

// DisplayName is the human-facing provider name used in listings.
func (p Provider) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderOpenRouter:
		return "OpenRouter"
	case ProviderGroq:
		return "Groq"
	}
	return string(p)
}

// ModelEntry maps a logical model name to a provider and its wire model id.
type ModelEntry struct {
	Name        string   `json:"name" yaml:"name"`
	Provider    Provider `json:"provider" yaml:"provider"`
	WireModelID string   `json:"wire_model_id" yaml:"model"`
}

// ── Messages ────────────────────────────────────────────────

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage builds a role=system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage builds a role=user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage builds a role=assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NormalizedResponse is the provider-independent result of a completion.
// TokensUsed is nil when the provider did not report usage.
type NormalizedResponse struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	WireModelID string   `json:"wire_model_id"`
	Provider    Provider `json:"provider"`
	TokensUsed  *int     `json:"tokens_used,omitempty"`
	LatencyMs   int64    `json:"latency_ms"`
}

// Tokens returns the reported token usage or 0.
func (r *NormalizedResponse) Tokens() int {
	if r == nil || r.TokensUsed == nil {
		return 0
	}
	return *r.TokensUsed
}

// ── Conversations & personas ────────────────────────────────

// ConversationKey scopes a message buffer, one per chat channel.
type ConversationKey string

// Persona is a named bundle of system prompt, generation parameters and
// target model.
type Persona struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Model        string  `json:"model"`
	BuiltIn      bool    `json:"built_in"`
}

// PersonaRecord is the persisted shape of a persona (keyed by id on disk).
type PersonaRecord struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float64 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
	Model        string  `json:"model"`
}

// Record converts a persona to its persisted shape.
func (p Persona) Record() PersonaRecord {
	return PersonaRecord{
		Name:         p.Name,
		Description:  p.Description,
		SystemPrompt: p.SystemPrompt,
		Temperature:  p.Temperature,
		MaxTokens:    p.MaxTokens,
		Model:        p.Model,
	}
}

// PersonaFromRecord rebuilds a persona from disk.
func PersonaFromRecord(id string, r PersonaRecord) Persona {
	return Persona{
		ID:           id,
		Name:         r.Name,
		Description:  r.Description,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
		Model:        r.Model,
	}
}

// ── Usage ───────────────────────────────────────────────────

// UsageRecord describes one successful completion. No message content is kept.
type UsageRecord struct {
	ID        string          `json:"id"`
	Key       ConversationKey `json:"key"`
	Persona   string          `json:"persona,omitempty"`
	Provider  Provider        `json:"provider"`
	Model     string          `json:"model"`
	Tokens    int             `json:"tokens"`
	LatencyMs int64           `json:"latency_ms"`
	CreatedAt time.Time       `json:"created_at"`
}

// UsageSummary aggregates usage records.
type UsageSummary struct {
	Requests    int64              `json:"requests"`
	TotalTokens int64              `json:"total_tokens"`
	ByProvider  map[Provider]int64 `json:"by_provider"`
	ByModel     map[string]int64   `json:"by_model"`
}

// NewUsageSummary returns an empty summary with initialized maps.
func NewUsageSummary() *UsageSummary {
	return &UsageSummary{
		ByProvider: make(map[Provider]int64),
		ByModel:    make(map[string]int64),
	}
}
