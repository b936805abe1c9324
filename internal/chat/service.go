// Package chat runs conversation turns: it ties the active persona, the
// conversation buffer and the model router together for one key at a time.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/sessions"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/usage"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNoPreviousReply is returned by FollowUp and Continue before the first reply.
var ErrNoPreviousReply = errors.New("no previous bot response found in this channel")

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// UnknownPresetError is returned by ApplyPreset.
type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("preset '%s' not found", e.Name)
}

// Completer is the unified completion call.
type Completer interface {
	ChatCompletion(ctx context.Context, logicalModel string, msgs []models.Message, temperature float64, maxTokens int) (*models.NormalizedResponse, error)
}

// Result is one completed turn.
type Result struct {
	Reply    string
	Persona  models.Persona
	Response *models.NormalizedResponse
}

// Service is safe for concurrent use. Turns on the same key run one at a
// time; turns on different keys never wait on each other.
type Service struct {
	completer Completer
	convs     *sessions.Store
	personas  *personas.Registry
	prompts   *personas.PromptBook
	ledger    *usage.Ledger
	limits    *limiter
	web       config.WebConfig

	locksMu sync.Mutex
	locks   map[models.ConversationKey]*sync.Mutex

	repliesMu sync.RWMutex
	replies   map[models.ConversationKey]string
}

// Deps are the collaborators of a Service. Ledger and Prompts may be nil.
type Deps struct {
	Completer Completer
	Sessions  *sessions.Store
	Personas  *personas.Registry
	Prompts   *personas.PromptBook
	Ledger    *usage.Ledger
}

// NewService creates a chat service.
func NewService(deps Deps, chatCfg config.ChatConfig, webCfg config.WebConfig) *Service {
	prompts := deps.Prompts
	if prompts == nil {
		prompts, _ = personas.NewPromptBook(nil)
	}
	return &Service{
		completer: deps.Completer,
		convs:     deps.Sessions,
		personas:  deps.Personas,
		prompts:   prompts,
		ledger:    deps.Ledger,
		limits:    newLimiter(chatCfg.RatePerSecond, chatCfg.Burst),
		web:       webCfg,
		locks:     make(map[models.ConversationKey]*sync.Mutex),
		replies:   make(map[models.ConversationKey]string),
	}
}

func (s *Service) turnLock(key models.ConversationKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[key] = mu
	}
	return mu
}

// Send runs one turn with the key's active persona. On failure the user
// message stays in the buffer and nothing else is appended.
func (s *Service) Send(ctx context.Context, key models.ConversationKey, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	return s.turn(ctx, key, text)
}

// FollowUp sends text framed as a reply to the previous bot response.
func (s *Service) FollowUp(ctx context.Context, key models.ConversationKey, text string) (*Result, error) {
	last, ok := s.LastReply(key)
	if !ok {
		return nil, ErrNoPreviousReply
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	prompt := fmt.Sprintf("Regarding your previous response: \"%s\"\n\n%s", excerpt(last), text)
	return s.turn(ctx, key, prompt)
}

// Continue asks the model to elaborate on its previous response.
func (s *Service) Continue(ctx context.Context, key models.ConversationKey) (*Result, error) {
	last, ok := s.LastReply(key)
	if !ok {
		return nil, ErrNoPreviousReply
	}
	prompt := fmt.Sprintf("Please continue or elaborate on your previous response. For context, your last response was: \"%s\"", excerpt(last))
	return s.turn(ctx, key, prompt)
}

func excerpt(s string) string {
	r := []rune(s)
	if len(r) <= 200 {
		return s
	}
	return string(r[:200]) + "..."
}

func (s *Service) turn(ctx context.Context, key models.ConversationKey, userText string) (*Result, error) {
	if err := s.limits.allow(key); err != nil {
		return nil, err
	}

	mu := s.turnLock(key)
	mu.Lock()
	defer mu.Unlock()

	persona := s.personas.Attach(key)
	s.convs.Ensure(key, persona)
	msgs := s.convs.AppendAndSnapshot(key, models.UserMessage(userText))

	resp, err := s.completer.ChatCompletion(ctx, persona.Model, msgs, persona.Temperature, persona.MaxTokens)
	if err != nil {
		log.Error().Err(err).Str("key", string(key)).Str("persona", persona.ID).Str("model", persona.Model).Msg("Chat turn failed")
		return nil, err
	}

	s.convs.Append(key, models.AssistantMessage(resp.Content))
	s.setLastReply(key, resp.Content)
	s.record(ctx, key, persona.ID, persona.Model, resp)

	return &Result{Reply: resp.Content, Persona: persona, Response: resp}, nil
}

// Complete runs a web chat turn: chatID scopes a buffer seeded with prompt
// (or the configured default) and the web model settings apply.
func (s *Service) Complete(ctx context.Context, chatID, prompt, text string) (*Result, error) {
	if chatID == "" {
		chatID = "default"
	}
	if prompt == "" {
		prompt = s.web.DefaultPrompt
	}
	key := WebKey(chatID)

	if err := s.limits.allow(key); err != nil {
		return nil, err
	}
	mu := s.turnLock(key)
	mu.Lock()
	defer mu.Unlock()

	s.convs.EnsurePrompt(key, prompt)
	msgs := s.convs.AppendAndSnapshot(key, models.UserMessage(text))

	resp, err := s.completer.ChatCompletion(ctx, s.web.Model, msgs, s.web.Temperature, s.web.MaxTokens)
	if err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Str("model", s.web.Model).Msg("Web chat turn failed")
		return nil, err
	}
	s.convs.Append(key, models.AssistantMessage(resp.Content))
	s.setLastReply(key, resp.Content)
	s.record(ctx, key, "", s.web.Model, resp)
	return &Result{Reply: resp.Content, Response: resp}, nil
}

// WebKey namespaces web chat ids apart from platform channels.
func WebKey(chatID string) models.ConversationKey {
	return models.ConversationKey("web:" + chatID)
}

func (s *Service) record(ctx context.Context, key models.ConversationKey, persona, model string, resp *models.NormalizedResponse) {
	if s.ledger == nil {
		return
	}
	s.ledger.Record(ctx, models.UsageRecord{
		Key:       key,
		Persona:   persona,
		Provider:  resp.Provider,
		Model:     model,
		Tokens:    resp.Tokens(),
		LatencyMs: resp.LatencyMs,
	})
}

// LastReply returns the most recent assistant reply for key.
func (s *Service) LastReply(key models.ConversationKey) (string, bool) {
	s.repliesMu.RLock()
	defer s.repliesMu.RUnlock()
	r, ok := s.replies[key]
	return r, ok
}

func (s *Service) setLastReply(key models.ConversationKey, reply string) {
	s.repliesMu.Lock()
	s.replies[key] = reply
	s.repliesMu.Unlock()
}

// Reset reseeds the key's buffer with its active persona.
func (s *Service) Reset(key models.ConversationKey) models.Persona {
	mu := s.turnLock(key)
	mu.Lock()
	defer mu.Unlock()

	p := s.personas.Attach(key)
	s.convs.Reset(key, p)
	return p
}

// SwitchPersona activates persona id for key and resets the buffer.
func (s *Service) SwitchPersona(key models.ConversationKey, id string) (models.Persona, error) {
	mu := s.turnLock(key)
	mu.Lock()
	defer mu.Unlock()
	return s.personas.Activate(key, id)
}

// SetSystemPrompt replaces the key's buffer with prompt and saves it.
func (s *Service) SetSystemPrompt(key models.ConversationKey, prompt string) error {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ErrEmptyMessage
	}
	mu := s.turnLock(key)
	mu.Lock()
	defer mu.Unlock()

	s.convs.ResetPrompt(key, prompt)
	return s.prompts.Set(key, prompt)
}

// ApplyPreset sets a preset prompt on key and returns it.
func (s *Service) ApplyPreset(key models.ConversationKey, name string) (string, error) {
	prompt, ok := personas.LookupPreset(name)
	if !ok {
		return "", &UnknownPresetError{Name: strings.ToLower(name)}
	}
	if err := s.SetSystemPrompt(key, prompt); err != nil {
		return "", err
	}
	return prompt, nil
}

// CurrentPrompt returns the buffer's system prompt, else the saved prompt,
// else the default preset.
func (s *Service) CurrentPrompt(key models.ConversationKey) string {
	if p, ok := s.convs.SystemPrompt(key); ok {
		return p
	}
	if p, ok := s.prompts.Get(key); ok {
		return p
	}
	return personas.DefaultPrompt()
}

// History returns a copy of the key's buffer.
func (s *Service) History(key models.ConversationKey) []models.Message {
	return s.convs.Snapshot(key)
}

// Personas exposes the persona registry.
func (s *Service) Personas() *personas.Registry { return s.personas }

// Usage exposes the usage ledger (may be nil).
func (s *Service) Usage() *usage.Ledger { return s.ledger }
