// Package personas manages the persona table (built-in and custom) and
// which persona each conversation has active.
package personas

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/store"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// Resetter replaces a conversation buffer with one seeded by persona.
type Resetter interface {
	Reset(key models.ConversationKey, persona models.Persona)
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	personas map[string]models.Persona
	active   map[models.ConversationKey]string

	catalog  *catalog.Catalog
	persist  store.PersonaStore
	resetter Resetter
}

// NewRegistry seeds the built-ins and merges persisted custom personas on
// top. A persisted entry may override a built-in's fields; the id stays
// protected from deletion.
func NewRegistry(cat *catalog.Catalog, persist store.PersonaStore, resetter Resetter) (*Registry, error) {
	r := &Registry{
		personas: make(map[string]models.Persona),
		active:   make(map[models.ConversationKey]string),
		catalog:  cat,
		persist:  persist,
		resetter: resetter,
	}
	for _, p := range BuiltIns() {
		r.personas[p.ID] = p
	}

	if persist == nil {
		return r, nil
	}
	saved, err := persist.LoadPersonas()
	if err != nil {
		return nil, fmt.Errorf("load personas: %w", err)
	}
	for id, rec := range saved {
		id = normalizeID(id)
		p := models.PersonaFromRecord(id, rec)
		p.BuiltIn = IsBuiltIn(id)
		if err := r.Validate(p); err != nil {
			log.Warn().Err(err).Str("persona", id).Str("model", p.Model).Msg("Persisted persona is invalid")
		}
		r.personas[id] = p
	}
	log.Info().Int("custom", len(saved)).Int("total", len(r.personas)).Msg("🎭 Personas loaded")
	return r, nil
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Get returns the persona for id, falling back to the default persona.
func (r *Registry) Get(id string) models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(normalizeID(id))
}

func (r *Registry) getLocked(id string) models.Persona {
	if p, ok := r.personas[id]; ok {
		return p
	}
	return r.personas[DefaultID]
}

// Lookup returns the persona for id, if any.
func (r *Registry) Lookup(id string) (models.Persona, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.personas[normalizeID(id)]
	return p, ok
}

// List returns every persona sorted by id.
func (r *Registry) List() []models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Persona, 0, len(r.personas))
	for _, p := range r.personas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Validate checks the persona's parameters and model.
func (r *Registry) Validate(p models.Persona) error {
	if normalizeID(p.ID) == "" {
		return &InvalidParameterError{Field: "id", Reason: "must not be empty"}
	}
	if math.IsNaN(p.Temperature) || p.Temperature < MinTemperature || p.Temperature > MaxTemperature {
		return &InvalidParameterError{Field: "temperature", Reason: "must be between 0.0 and 2.0"}
	}
	if p.MaxTokens < MinMaxTokens || p.MaxTokens > MaxMaxTokens {
		return &InvalidParameterError{Field: "max_tokens", Reason: "must be between 1 and 4000"}
	}
	if _, err := r.catalog.Resolve(p.Model); err != nil {
		return err
	}
	return nil
}

// Create adds a custom persona and persists the custom table.
func (r *Registry) Create(p models.Persona) (models.Persona, error) {
	p.ID = normalizeID(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.SystemPrompt = strings.TrimSpace(p.SystemPrompt)
	p.BuiltIn = false

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.personas[p.ID]; exists {
		return models.Persona{}, &DuplicateIDError{ID: p.ID}
	}
	if err := r.Validate(p); err != nil {
		return models.Persona{}, err
	}

	r.personas[p.ID] = p
	if err := r.saveLocked(); err != nil {
		delete(r.personas, p.ID)
		return models.Persona{}, err
	}
	log.Info().Str("persona", p.ID).Str("model", p.Model).Msg("Persona created")
	return p, nil
}

// Delete removes a custom persona. Conversations that had it active are
// switched back to the default persona; their keys are returned. Buffers
// are left as they are.
func (r *Registry) Delete(id string) ([]models.ConversationKey, error) {
	id = normalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.personas[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	if p.BuiltIn {
		return nil, &ProtectedPersonaError{ID: id}
	}

	delete(r.personas, id)
	if err := r.saveLocked(); err != nil {
		r.personas[id] = p
		return nil, err
	}

	var switched []models.ConversationKey
	for key, active := range r.active {
		if active == id {
			r.active[key] = DefaultID
			switched = append(switched, key)
		}
	}
	sortKeys(switched)
	log.Info().Str("persona", id).Int("switched", len(switched)).Msg("Persona deleted")
	return switched, nil
}

// UpdateModel points a persona at a different logical model and resets every
// conversation that has it active. It returns the previous model and the
// reset keys.
func (r *Registry) UpdateModel(id, model string) (string, []models.ConversationKey, error) {
	id = normalizeID(id)
	model = strings.TrimSpace(model)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.personas[id]
	if !ok {
		return "", nil, &NotFoundError{ID: id}
	}
	if _, err := r.catalog.Resolve(model); err != nil {
		return "", nil, err
	}

	old := p.Model
	p.Model = model
	r.personas[id] = p
	if err := r.saveLocked(); err != nil {
		p.Model = old
		r.personas[id] = p
		return "", nil, err
	}

	var reset []models.ConversationKey
	for key, active := range r.active {
		if active == id {
			reset = append(reset, key)
		}
	}
	sortKeys(reset)
	if r.resetter != nil {
		for _, key := range reset {
			r.resetter.Reset(key, p)
		}
	}
	log.Info().Str("persona", id).Str("from", old).Str("to", model).Int("reset", len(reset)).Msg("Persona model switched")
	return old, reset, nil
}

// Activate makes id the active persona for key and resets the key's buffer.
func (r *Registry) Activate(key models.ConversationKey, id string) (models.Persona, error) {
	id = normalizeID(id)

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.personas[id]
	if !ok {
		return models.Persona{}, &NotFoundError{ID: id}
	}
	if _, err := r.catalog.Resolve(p.Model); err != nil {
		return models.Persona{}, err
	}

	r.active[key] = id
	if r.resetter != nil {
		r.resetter.Reset(key, p)
	}
	log.Debug().Str("key", string(key)).Str("persona", id).Msg("Persona activated")
	return p, nil
}

// ActiveID returns the id of the persona active for key.
func (r *Registry) ActiveID(key models.ConversationKey) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.active[key]; ok {
		if _, exists := r.personas[id]; exists {
			return id
		}
	}
	return DefaultID
}

// Active returns the persona active for key.
func (r *Registry) Active(key models.ConversationKey) models.Persona {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(r.active[key])
}

// Attach returns the persona active for key and starts tracking key (with
// the default persona when none was chosen), so later model switches and
// deletions reach it.
func (r *Registry) Attach(key models.ConversationKey) models.Persona {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[key]
	if !ok {
		id = DefaultID
		r.active[key] = id
	}
	return r.getLocked(id)
}

// saveLocked writes custom personas plus any built-in whose fields differ from
// the shipped definition. Must be called with r.mu held.
func (r *Registry) saveLocked() error {
	if r.persist == nil {
		return nil
	}
	out := make(map[string]models.PersonaRecord)
	for id, p := range r.personas {
		if shipped, ok := builtinByID(id); ok && shipped == p {
			continue
		}
		out[id] = p.Record()
	}
	if err := r.persist.SavePersonas(out); err != nil {
		log.Error().Err(err).Msg("Failed to save personas")
		return fmt.Errorf("save personas: %w", err)
	}
	return nil
}

func sortKeys(keys []models.ConversationKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
