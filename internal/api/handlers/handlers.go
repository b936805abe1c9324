// Package handlers implements the relay's HTTP handlers: the web chat
// endpoint and the /api/v1 management surface.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/api/middleware"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/chat"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/router"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// Handlers holds handler dependencies.
type Handlers struct {
	Chat    *chat.Service
	Router  *router.ModelRouter
	Catalog *catalog.Catalog
}

// New creates a Handlers instance.
func New(svc *chat.Service, mr *router.ModelRouter) *Handlers {
	return &Handlers{Chat: svc, Router: mr, Catalog: mr.Catalog()}
}

// ── Web chat ────────────────────────────────────────────────

type webChatRequest struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
	ChatID  string `json:"chat_id"`
}

type webChatResponse struct {
	Response string `json:"response"`
	ChatID   string `json:"chat_id"`
}

// WebChat handles POST /chat. Every failure is a 500 with {error}.
func (h *Handlers) WebChat(w http.ResponseWriter, r *http.Request) {
	var req webChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusInternalServerError, "Invalid request body")
		return
	}
	if req.ChatID == "" {
		req.ChatID = "default"
	}

	res, err := h.Chat.Complete(r.Context(), req.ChatID, req.Prompt, req.Message)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, webChatResponse{Response: res.Reply, ChatID: req.ChatID})
}

// ── Models ──────────────────────────────────────────────────

type modelGroup struct {
	Provider    models.Provider `json:"provider"`
	DisplayName string          `json:"display_name"`
	Models      []string        `json:"models"`
}

// ListModels handles GET /api/v1/models.
func (h *Handlers) ListModels(w http.ResponseWriter, r *http.Request) {
	groups := h.Catalog.ListByProvider()
	out := make([]modelGroup, 0, len(groups))
	for _, p := range h.Catalog.Providers() {
		out = append(out, modelGroup{Provider: p, DisplayName: p.DisplayName(), Models: groups[p]})
	}
	respondJSON(w, http.StatusOK, out)
}

// ProbeProviders handles GET /api/v1/providers/health. It spends one tiny
// completion per provider.
func (h *Handlers) ProbeProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"probes":    h.Router.Probe(r.Context()),
		"latencies": h.Router.Latencies(),
	})
}

// ── Personas ────────────────────────────────────────────────

// ListPersonas handles GET /api/v1/personas.
func (h *Handlers) ListPersonas(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Chat.Personas().List())
}

// GetPersona handles GET /api/v1/personas/{id}.
func (h *Handlers) GetPersona(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, ok := h.Chat.Personas().Lookup(id)
	if !ok {
		respondErr(w, &personas.NotFoundError{ID: strings.ToLower(id)})
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// CreatePersona handles POST /api/v1/personas.
func (h *Handlers) CreatePersona(w http.ResponseWriter, r *http.Request) {
	var req models.Persona
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Chat.Personas().Create(req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// DeletePersona handles DELETE /api/v1/personas/{id}.
func (h *Handlers) DeletePersona(w http.ResponseWriter, r *http.Request) {
	switched, err := h.Chat.Personas().Delete(chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"switched_to_default": keysOrEmpty(switched)})
}

type modelUpdate struct {
	Model string `json:"model"`
}

// UpdatePersonaModel handles PUT /api/v1/personas/{id}/model.
func (h *Handlers) UpdatePersonaModel(w http.ResponseWriter, r *http.Request) {
	var req modelUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id := chi.URLParam(r, "id")
	old, reset, err := h.Chat.Personas().UpdateModel(id, req.Model)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"persona":        h.Chat.Personas().Get(id),
		"previous_model": old,
		"reset":          keysOrEmpty(reset),
	})
}

// ── Conversations ───────────────────────────────────────────

func conversationKey(r *http.Request) models.ConversationKey {
	return models.ConversationKey(middleware.GetConversation(r.Context()))
}

type messageRequest struct {
	Message string `json:"message"`
}

type messageResponse struct {
	ID         string          `json:"id"`
	Reply      string          `json:"reply"`
	Persona    string          `json:"persona"`
	Model      string          `json:"model"`
	Provider   models.Provider `json:"provider"`
	TokensUsed *int            `json:"tokens_used,omitempty"`
	LatencyMs  int64           `json:"latency_ms"`
}

// SendMessage handles POST /api/v1/conversations/{key}/messages.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.Chat.Send(r.Context(), conversationKey(r), req.Message)
	if err != nil {
		respondErr(w, err)
		return
	}
	id := res.Response.ID
	if id == "" {
		id = uuid.New().String()
	}
	respondJSON(w, http.StatusOK, messageResponse{
		ID:         id,
		Reply:      res.Reply,
		Persona:    res.Persona.ID,
		Model:      res.Persona.Model,
		Provider:   res.Response.Provider,
		TokensUsed: res.Response.TokensUsed,
		LatencyMs:  res.Response.LatencyMs,
	})
}

// ResetConversation handles POST /api/v1/conversations/{key}/reset.
func (h *Handlers) ResetConversation(w http.ResponseWriter, r *http.Request) {
	p := h.Chat.Reset(conversationKey(r))
	respondJSON(w, http.StatusOK, map[string]string{"persona": p.ID})
}

type personaSwitch struct {
	Persona string `json:"persona"`
}

// SetConversationPersona handles PUT /api/v1/conversations/{key}/persona.
func (h *Handlers) SetConversationPersona(w http.ResponseWriter, r *http.Request) {
	var req personaSwitch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	p, err := h.Chat.SwitchPersona(conversationKey(r), req.Persona)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

type promptUpdate struct {
	Prompt string `json:"prompt"`
	Preset string `json:"preset"`
}

// SetConversationPrompt handles PUT /api/v1/conversations/{key}/prompt with
// either a raw prompt or a preset name.
func (h *Handlers) SetConversationPrompt(w http.ResponseWriter, r *http.Request) {
	var req promptUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	key := conversationKey(r)
	var err error
	switch {
	case req.Preset != "":
		_, err = h.Chat.ApplyPreset(key, req.Preset)
	default:
		err = h.Chat.SetSystemPrompt(key, req.Prompt)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"prompt": h.Chat.CurrentPrompt(key)})
}

type conversationView struct {
	Key      models.ConversationKey `json:"key"`
	Persona  string                 `json:"persona"`
	Prompt   string                 `json:"system_prompt"`
	Messages []models.Message       `json:"messages"`
}

// GetConversation handles GET /api/v1/conversations/{key}.
func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	key := conversationKey(r)
	msgs := h.Chat.History(key)
	if msgs == nil {
		msgs = []models.Message{}
	}
	respondJSON(w, http.StatusOK, conversationView{
		Key:      key,
		Persona:  h.Chat.Personas().ActiveID(key),
		Prompt:   h.Chat.CurrentPrompt(key),
		Messages: msgs,
	})
}

// ── Usage ───────────────────────────────────────────────────

// GetUsage handles GET /api/v1/usage, optionally scoped with ?key=.
func (h *Handlers) GetUsage(w http.ResponseWriter, r *http.Request) {
	ledger := h.Chat.Usage()
	if ledger == nil {
		respondError(w, http.StatusNotFound, "usage tracking disabled")
		return
	}
	if key := r.URL.Query().Get("key"); key != "" {
		respondJSON(w, http.StatusOK, ledger.Summary(models.ConversationKey(key)))
		return
	}
	respondJSON(w, http.StatusOK, ledger.Totals())
}

// ── Helpers ─────────────────────────────────────────────────

func keysOrEmpty(keys []models.ConversationKey) []models.ConversationKey {
	if keys == nil {
		return []models.ConversationKey{}
	}
	return keys
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	var (
		unknown   *catalog.UnknownModelError
		invalid   *personas.InvalidParameterError
		dup       *personas.DuplicateIDError
		protected *personas.ProtectedPersonaError
		notFound  *personas.NotFoundError
		preset    *chat.UnknownPresetError
		limited   *chat.RateLimitedError
		timeout   *router.TimeoutError
		provider  *router.ProviderError
	)
	switch {
	case errors.As(err, &unknown), errors.As(err, &invalid), errors.As(err, &preset),
		errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrNoPreviousReply):
		return http.StatusBadRequest
	case errors.As(err, &dup):
		return http.StatusConflict
	case errors.As(err, &protected):
		return http.StatusForbidden
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &limited):
		return http.StatusTooManyRequests
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &provider):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondErr(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("Request failed")
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
