// Package commands turns prefixed chat commands into platform-neutral replies.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/chat"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
)

// HandlerFunc runs one command for key with the raw argument string.
type HandlerFunc func(ctx context.Context, key models.ConversationKey, args string) []Reply

// Dispatcher routes parsed commands to handlers.
type Dispatcher struct {
	chat        *chat.Service
	catalog     *catalog.Catalog
	prefix      string
	channelName string
	handlers    map[string]HandlerFunc
}

// NewDispatcher wires every command.
func NewDispatcher(svc *chat.Service, cat *catalog.Catalog, prefix, channelName string) *Dispatcher {
	if prefix == "" {
		prefix = "!"
	}
	d := &Dispatcher{
		chat:        svc,
		catalog:     cat,
		prefix:      prefix,
		channelName: channelName,
	}
	d.handlers = map[string]HandlerFunc{
		"chat":             d.handleChat,
		"reset":            d.handleReset,
		"system":           d.handleSystem,
		"preset":           d.handlePreset,
		"prompt":           d.handlePrompt,
		"character":        d.handleCharacter,
		"characters":       d.handleCharacters,
		"create_character": d.handleCreateCharacter,
		"delete_character": d.handleDeleteCharacter,
		"models":           d.handleModels,
		"switch_model":     d.handleSwitchModel,
		"follow":           d.handleFollow,
		"continue_chat":    d.handleContinue,
		"more":             d.handleContinue,
		"usage":            d.handleUsage,
		"guide":            d.handleGuide,
		"help_bot":         d.handleHelpBot,
	}
	return d
}

// Prefix returns the command prefix.
func (d *Dispatcher) Prefix() string { return d.prefix }

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsCommand reports whether content starts with the command prefix.
func (d *Dispatcher) IsCommand(content string) bool {
	_, ok := Parse(d.prefix, content)
	return ok
}

// Handle runs the command in content. ok is false when content is not a
// command at all.
func (d *Dispatcher) Handle(ctx context.Context, key models.ConversationKey, content string) ([]Reply, bool) {
	inv, ok := Parse(d.prefix, content)
	if !ok {
		return nil, false
	}
	h, found := d.handlers[inv.Name]
	if !found {
		return []Reply{text(fmt.Sprintf("Command not found. Use `%shelp_bot` to see available commands.", d.prefix))}, true
	}
	log.Debug().Str("key", string(key)).Str("command", inv.Name).Msg("Handling command")
	return h(ctx, key, inv.Rest), true
}

// Chat runs a plain (non-command) message as a chat turn.
func (d *Dispatcher) Chat(ctx context.Context, key models.ConversationKey, message string) []Reply {
	res, err := d.chat.Send(ctx, key, message)
	return d.turnReplies(res, err)
}

func (d *Dispatcher) turnReplies(res *chat.Result, err error) []Reply {
	if err != nil {
		return []Reply{text(FriendlyError(err))}
	}
	chunks := chat.Split(res.Reply, chat.MaxMessageLength)
	out := make([]Reply, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, text(c))
	}
	return out
}

// FriendlyError renders an error for chat users.
func FriendlyError(err error) string {
	var (
		limited *chat.RateLimitedError
		unknown *catalog.UnknownModelError
	)
	switch {
	case errors.Is(err, chat.ErrNoPreviousReply):
		return "❌ No previous bot response found in this channel. Chat with me first!"
	case errors.Is(err, chat.ErrEmptyMessage):
		return "Please provide a message to chat with the bot."
	case errors.As(err, &limited):
		return "⏳ You're sending messages too quickly. Please wait a moment."
	case errors.As(err, &unknown):
		return fmt.Sprintf("Model '%s' not supported. Use `!models` to see available models.", unknown.Name)
	}
	return fmt.Sprintf("Sorry, I encountered an error: %v", err)
}

func (d *Dispatcher) usage(format string) []Reply {
	return []Reply{text("Usage: `" + d.prefix + format + "`")}
}

// ── Chat commands ───────────────────────────────────────────

func (d *Dispatcher) handleChat(ctx context.Context, key models.ConversationKey, args string) []Reply {
	if args == "" {
		return []Reply{text(fmt.Sprintf("Please provide a message to chat with the bot. Use `%schat <your message>`", d.prefix))}
	}
	return d.Chat(ctx, key, args)
}

func (d *Dispatcher) handleFollow(ctx context.Context, key models.ConversationKey, args string) []Reply {
	if args == "" {
		return d.usage("follow <message>")
	}
	res, err := d.chat.FollowUp(ctx, key, args)
	return d.turnReplies(res, err)
}

func (d *Dispatcher) handleContinue(ctx context.Context, key models.ConversationKey, _ string) []Reply {
	res, err := d.chat.Continue(ctx, key)
	return d.turnReplies(res, err)
}

func (d *Dispatcher) handleReset(_ context.Context, key models.ConversationKey, _ string) []Reply {
	p := d.chat.Reset(key)
	return []Reply{text(fmt.Sprintf("Conversation history has been reset! Active character: **%s**", p.Name))}
}

// ── Prompts ─────────────────────────────────────────────────

func (d *Dispatcher) handleSystem(_ context.Context, key models.ConversationKey, args string) []Reply {
	if args == "" {
		return d.usage("system <prompt>")
	}
	if err := d.chat.SetSystemPrompt(key, args); err != nil {
		return []Reply{text(FriendlyError(err))}
	}
	return []Reply{text("System prompt updated: " + truncate(args, 100))}
}

func (d *Dispatcher) handlePreset(_ context.Context, key models.ConversationKey, args string) []Reply {
	if args == "" {
		e := &Embed{
			Title:       "Available Preset Prompts",
			Description: fmt.Sprintf("Use `%spreset <name>` to set a preset prompt:", d.prefix),
			Color:       colorGreen,
		}
		for _, p := range personas.Presets() {
			e.add("**"+p.Name+"**", truncate(p.Prompt, 100), false)
		}
		return []Reply{card(e)}
	}

	name := strings.ToLower(strings.Fields(args)[0])
	prompt, err := d.chat.ApplyPreset(key, name)
	var unknown *chat.UnknownPresetError
	switch {
	case errors.As(err, &unknown):
		return []Reply{text(fmt.Sprintf("Preset '%s' not found. Use `%spreset` to see available presets.", unknown.Name, d.prefix))}
	case err != nil:
		return []Reply{text(FriendlyError(err))}
	}
	return []Reply{text(fmt.Sprintf("System prompt set to **%s**: %s", name, truncate(prompt, 100)))}
}

func (d *Dispatcher) handlePrompt(_ context.Context, key models.ConversationKey, _ string) []Reply {
	return []Reply{card(&Embed{
		Title:       "Current System Prompt",
		Description: d.chat.CurrentPrompt(key),
		Color:       colorBlue,
		Footer:      "Channel ID: " + string(key),
	})}
}

// ── Personas ────────────────────────────────────────────────

func personaStats(e *Embed, p models.Persona) {
	e.add("Temperature", formatFloat(p.Temperature), true)
	e.add("Max Tokens", strconv.Itoa(p.MaxTokens), true)
	e.add("Model", p.Model, true)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func (d *Dispatcher) handleCharacter(_ context.Context, key models.ConversationKey, args string) []Reply {
	reg := d.chat.Personas()
	if args == "" {
		p := reg.Active(key)
		e := &Embed{
			Title:       "Current Character: " + p.Name,
			Description: p.Description,
			Color:       colorPurple,
			Footer:      fmt.Sprintf("Use `%scharacter <name>` to switch characters", d.prefix),
		}
		e.add("System Prompt", truncate(p.SystemPrompt, 200), false)
		personaStats(e, p)
		return []Reply{card(e)}
	}

	id := strings.ToLower(strings.Fields(args)[0])
	p, err := d.chat.SwitchPersona(key, id)
	var notFound *personas.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return []Reply{text(fmt.Sprintf("Character '%s' not found. Use `%scharacters` to see available characters.", id, d.prefix))}
	case err != nil:
		return []Reply{text(FriendlyError(err))}
	}
	e := &Embed{Title: "Switched to: " + p.Name, Description: p.Description, Color: colorGreen}
	personaStats(e, p)
	return []Reply{card(e)}
}

func (d *Dispatcher) handleCharacters(_ context.Context, key models.ConversationKey, _ string) []Reply {
	reg := d.chat.Personas()
	active := reg.ActiveID(key)
	e := &Embed{
		Title:       "Available Characters",
		Description: fmt.Sprintf("Use `%scharacter <name>` to switch to a character", d.prefix),
		Color:       colorPurple,
	}
	for _, p := range reg.List() {
		status := ""
		if p.ID == active {
			status = " 🔹 **ACTIVE**"
		}
		e.add(
			fmt.Sprintf("**%s** (%s)%s", p.Name, p.ID, status),
			fmt.Sprintf("%s\n*Temp: %s, Tokens: %d*", p.Description, formatFloat(p.Temperature), p.MaxTokens),
			false,
		)
	}
	return []Reply{card(e)}
}

func (d *Dispatcher) handleCreateCharacter(_ context.Context, _ models.ConversationKey, args string) []Reply {
	const format = `create_character <id> "Name" <temp> <tokens> <model> "Description | System prompt"`
	parts, err := splitArgs(args, 6)
	if err != nil || len(parts) < 6 {
		return d.usage(format)
	}
	descAndPrompt := parts[5]
	desc, prompt, found := strings.Cut(descAndPrompt, " | ")
	if !found {
		return []Reply{text(fmt.Sprintf("Please separate description and system prompt with ` | `. Example:\n`%screate_character wizard \"Merlin\" 0.8 600 gpt-4o \"A wise wizard | You are Merlin, a wise and ancient wizard...\"`", d.prefix))}
	}
	temp, terr := strconv.ParseFloat(parts[2], 64)
	tokens, kerr := strconv.Atoi(parts[3])
	if terr != nil || kerr != nil {
		return []Reply{text("Invalid temperature or max_tokens. Temperature should be a decimal (e.g., 0.7) and max_tokens should be an integer.")}
	}

	p, err := d.chat.Personas().Create(models.Persona{
		ID:           parts[0],
		Name:         parts[1],
		Description:  desc,
		SystemPrompt: prompt,
		Temperature:  temp,
		MaxTokens:    tokens,
		Model:        parts[4],
	})
	if err != nil {
		return []Reply{text(personaError(err, d.catalog))}
	}

	e := &Embed{Title: "Created Character: " + p.Name, Description: p.Description, Color: colorGreen}
	e.add("ID", p.ID, true)
	e.add("Temperature", formatFloat(p.Temperature), true)
	e.add("Max Tokens", strconv.Itoa(p.MaxTokens), true)
	e.add("System Prompt", truncate(p.SystemPrompt, 200), false)
	return []Reply{card(e)}
}

func personaError(err error, cat *catalog.Catalog) string {
	var (
		dup       *personas.DuplicateIDError
		invalid   *personas.InvalidParameterError
		unknown   *catalog.UnknownModelError
		protected *personas.ProtectedPersonaError
		notFound  *personas.NotFoundError
	)
	switch {
	case errors.As(err, &dup):
		return fmt.Sprintf("Character '%s' already exists. Use a different ID.", dup.ID)
	case errors.As(err, &invalid) && invalid.Field == "temperature":
		return "Temperature must be between 0.0 and 2.0"
	case errors.As(err, &invalid) && invalid.Field == "max_tokens":
		return "Max tokens must be between 1 and 4000"
	case errors.As(err, &invalid):
		return "Invalid character: " + invalid.Error()
	case errors.As(err, &unknown):
		return fmt.Sprintf("Model '%s' not supported. Available models: %s", unknown.Name, strings.Join(cat.Names(), ", "))
	case errors.As(err, &protected):
		return fmt.Sprintf("Cannot delete default character '%s'.", protected.ID)
	case errors.As(err, &notFound):
		return fmt.Sprintf("Character '%s' not found.", notFound.ID)
	}
	return "Error: " + err.Error()
}

func (d *Dispatcher) handleDeleteCharacter(_ context.Context, _ models.ConversationKey, args string) []Reply {
	if args == "" {
		return d.usage("delete_character <id>")
	}
	reg := d.chat.Personas()
	id := strings.ToLower(strings.Fields(args)[0])
	p, ok := reg.Lookup(id)
	if _, err := reg.Delete(id); err != nil {
		return []Reply{text(personaError(err, d.catalog))}
	}
	name := id
	if ok {
		name = p.Name
	}
	return []Reply{text(fmt.Sprintf("Deleted character '%s' (%s). Channels using this character have been switched to default.", name, id))}
}

// ── Models ──────────────────────────────────────────────────

var providerLabels = map[models.Provider]string{
	models.ProviderOpenAI:     "🟢 OpenAI",
	models.ProviderAnthropic:  "🔵 Anthropic (Claude)",
	models.ProviderOpenRouter: "🟡 OpenRouter",
	models.ProviderGroq:       "⚡ Groq",
}

func (d *Dispatcher) handleModels(_ context.Context, _ models.ConversationKey, _ string) []Reply {
	e := &Embed{
		Title:       "🤖 Available AI Models",
		Description: "Choose from different AI providers and models",
		Color:       colorSky,
		Footer:      "Use these model names when creating characters or switching models",
	}
	groups := d.catalog.ListByProvider()
	for _, p := range d.catalog.Providers() {
		names := groups[p]
		if len(names) == 0 {
			continue
		}
		lines := make([]string, len(names))
		for i, n := range names {
			lines[i] = "• `" + n + "`"
		}
		label, ok := providerLabels[p]
		if !ok {
			label = p.DisplayName()
		}
		e.add(label, strings.Join(lines, "\n"), false)
	}
	return []Reply{card(e)}
}

func (d *Dispatcher) handleSwitchModel(_ context.Context, _ models.ConversationKey, args string) []Reply {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return d.usage("switch_model <character> <model>")
	}
	id := strings.ToLower(parts[0])
	reg := d.chat.Personas()
	old, _, err := reg.UpdateModel(id, parts[1])
	var (
		notFound *personas.NotFoundError
		unknown  *catalog.UnknownModelError
	)
	switch {
	case errors.As(err, &notFound):
		return []Reply{text(fmt.Sprintf("Character '%s' not found. Use `%scharacters` to see available characters.", id, d.prefix))}
	case errors.As(err, &unknown):
		return []Reply{text(fmt.Sprintf("Model '%s' not supported. Use `%smodels` to see available models.", unknown.Name, d.prefix))}
	case err != nil:
		return []Reply{text(FriendlyError(err))}
	}
	p := reg.Get(id)
	return []Reply{text(fmt.Sprintf("✅ Switched **%s** (%s) from `%s` to `%s`\nConversation history reset for this character.", p.Name, id, old, p.Model))}
}

// ── Usage ───────────────────────────────────────────────────

func (d *Dispatcher) handleUsage(_ context.Context, key models.ConversationKey, _ string) []Reply {
	ledger := d.chat.Usage()
	if ledger == nil {
		return []Reply{text("Usage tracking is disabled.")}
	}
	s := ledger.Summary(key)
	total := ledger.Totals()

	e := &Embed{Title: "📊 Token Usage", Description: "Tokens reported by providers", Color: colorAmber}
	e.add("This channel", fmt.Sprintf("%d requests, %d tokens", s.Requests, s.TotalTokens), true)
	e.add("All channels", fmt.Sprintf("%d requests, %d tokens", total.Requests, total.TotalTokens), true)
	var lines []string
	for _, p := range models.AllProviders {
		if n, ok := s.ByProvider[p]; ok {
			lines = append(lines, fmt.Sprintf("%s: %d", p.DisplayName(), n))
		}
	}
	if len(lines) > 0 {
		e.add("By provider", strings.Join(lines, "\n"), false)
	}
	return []Reply{card(e)}
}
