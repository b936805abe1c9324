package commands_test

import (
	"context"
	"strings"
	"testing"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/chat"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/commands"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/router"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/sessions"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/usage"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	reply string
	err   error
	model string
}

func (s *stubCompleter) ChatCompletion(_ context.Context, model string, _ []models.Message, _ float64, _ int) (*models.NormalizedResponse, error) {
	s.model = model
	if s.err != nil {
		return nil, s.err
	}
	n := 3
	return &models.NormalizedResponse{Content: s.reply, Provider: models.ProviderOpenAI, TokensUsed: &n}, nil
}

func newTestDispatcher(t *testing.T) (*commands.Dispatcher, *stubCompleter, *sessions.Store) {
	t.Helper()
	cat := catalog.Default()
	convs := sessions.NewStore()
	reg, err := personas.NewRegistry(cat, nil, convs)
	require.NoError(t, err)
	ledger, err := usage.NewLedger(context.Background(), nil)
	require.NoError(t, err)
	stub := &stubCompleter{reply: "pong"}
	svc := chat.NewService(chat.Deps{Completer: stub, Sessions: convs, Personas: reg, Ledger: ledger}, config.ChatConfig{}, config.WebConfig{})
	return commands.NewDispatcher(svc, cat, "!", "ai-chat"), stub, convs
}

func run(t *testing.T, d *commands.Dispatcher, key models.ConversationKey, content string) []commands.Reply {
	t.Helper()
	replies, ok := d.Handle(context.Background(), key, content)
	require.True(t, ok, "not a command: %q", content)
	require.NotEmpty(t, replies)
	return replies
}

func TestParse(t *testing.T) {
	inv, ok := commands.Parse("!", "  !Chat   hello there ")
	require.True(t, ok)
	assert.Equal(t, "chat", inv.Name)
	assert.Equal(t, "hello there", inv.Rest)

	inv, ok = commands.Parse("!", "!system\nmulti\nline")
	require.True(t, ok)
	assert.Equal(t, "system", inv.Name)
	assert.Equal(t, "multi\nline", inv.Rest)

	_, ok = commands.Parse("!", "hello")
	assert.False(t, ok)
	_, ok = commands.Parse("!", "!")
	assert.False(t, ok)
}

func TestHandle_UnknownCommand(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	replies := run(t, d, "c", "!dance")
	assert.Contains(t, replies[0].Text, "help_bot")

	_, ok := d.Handle(context.Background(), "c", "not a command")
	assert.False(t, ok)
}

func TestChatAndReset(t *testing.T) {
	d, _, convs := newTestDispatcher(t)

	replies := run(t, d, "c", "!chat hi")
	assert.Equal(t, "pong", replies[0].Text)
	assert.Equal(t, 3, convs.Len("c"))

	replies = run(t, d, "c", "!reset")
	assert.Equal(t, "Conversation history has been reset! Active character: **Assistant**", replies[0].Text)
	assert.Equal(t, 1, convs.Len("c"))

	replies = run(t, d, "c", "!chat")
	assert.Contains(t, replies[0].Text, "Please provide a message")
}

func TestChat_LongReplyIsSplit(t *testing.T) {
	d, stub, _ := newTestDispatcher(t)
	stub.reply = strings.Repeat("z", 4100)

	replies := d.Chat(context.Background(), "c", "essay please")
	require.Len(t, replies, 3)
	assert.Len(t, replies[0].Text, 2000)
}

func TestChat_ProviderErrorIsFriendly(t *testing.T) {
	d, stub, _ := newTestDispatcher(t)
	stub.err = &router.ProviderError{Provider: models.ProviderOpenAI, Model: "gpt-4o", Cause: &router.StatusError{Code: 500, Body: "boom"}}

	replies := d.Chat(context.Background(), "c", "hello")
	require.Len(t, replies, 1)
	assert.True(t, strings.HasPrefix(replies[0].Text, "Sorry, I encountered an error: "))
	assert.Contains(t, replies[0].Text, "openai")
}

func TestFollowWithoutReply(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	replies := run(t, d, "c", "!more")
	assert.Contains(t, replies[0].Text, "No previous bot response")
}

func TestCharacterCommands(t *testing.T) {
	d, stub, _ := newTestDispatcher(t)

	replies := run(t, d, "c", "!character")
	require.NotNil(t, replies[0].Embed)
	assert.Equal(t, "Current Character: Assistant", replies[0].Embed.Title)

	replies = run(t, d, "c", "!character Scholar")
	require.NotNil(t, replies[0].Embed)
	assert.Equal(t, "Switched to: Scholar", replies[0].Embed.Title)

	run(t, d, "c", "!chat hi")
	assert.Equal(t, "claude-3.5-sonnet", stub.model)

	replies = run(t, d, "c", "!character ghost")
	assert.Contains(t, replies[0].Text, "Character 'ghost' not found")

	replies = run(t, d, "c", "!characters")
	require.NotNil(t, replies[0].Embed)
	assert.Len(t, replies[0].Embed.Fields, 6)
	var active int
	for _, f := range replies[0].Embed.Fields {
		if strings.Contains(f.Name, "ACTIVE") {
			active++
			assert.Contains(t, f.Name, "(scholar)")
		}
	}
	assert.Equal(t, 1, active)
}

func TestCreateAndDeleteCharacter(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	replies := run(t, d, "c", `!create_character Wizard "Merlin the Wise" 0.8 600 gpt-4o "A wise wizard | You are Merlin, a wise and ancient wizard."`)
	require.NotNil(t, replies[0].Embed, replies[0].Text)
	assert.Equal(t, "Created Character: Merlin the Wise", replies[0].Embed.Title)
	assert.Equal(t, "A wise wizard", replies[0].Embed.Description)

	replies = run(t, d, "c", `!create_character wizard "Again" 0.8 600 gpt-4o "x | y"`)
	assert.Contains(t, replies[0].Text, "already exists")

	replies = run(t, d, "c", `!create_character hot "Hot" 2.5 600 gpt-4o "x | y"`)
	assert.Equal(t, "Temperature must be between 0.0 and 2.0", replies[0].Text)

	replies = run(t, d, "c", `!create_character nan "NaN" NaN 600 gpt-4o "x | y"`)
	assert.Equal(t, "Temperature must be between 0.0 and 2.0", replies[0].Text)

	replies = run(t, d, "c", `!create_character big "Big" 0.5 0 gpt-4o "x | y"`)
	assert.Equal(t, "Max tokens must be between 1 and 4000", replies[0].Text)

	replies = run(t, d, "c", `!create_character bad "Bad" 0.5 100 gpt-9 "x | y"`)
	assert.Contains(t, replies[0].Text, "Model 'gpt-9' not supported")

	replies = run(t, d, "c", `!create_character nosep "No" 0.5 100 gpt-4o "just a description"`)
	assert.Contains(t, replies[0].Text, "separate description and system prompt")

	replies = run(t, d, "c", `!create_character nums "N" warm 100 gpt-4o "x | y"`)
	assert.Contains(t, replies[0].Text, "Invalid temperature or max_tokens")

	run(t, d, "c", "!character wizard")
	replies = run(t, d, "c", "!delete_character wizard")
	assert.Contains(t, replies[0].Text, "Deleted character 'Merlin the Wise' (wizard)")
	replies = run(t, d, "c", "!character")
	assert.Equal(t, "Current Character: Assistant", replies[0].Embed.Title)

	replies = run(t, d, "c", "!delete_character default")
	assert.Equal(t, "Cannot delete default character 'default'.", replies[0].Text)
}

func TestModelsAndSwitchModel(t *testing.T) {
	d, stub, convs := newTestDispatcher(t)

	replies := run(t, d, "c", "!models")
	require.NotNil(t, replies[0].Embed)
	require.Len(t, replies[0].Embed.Fields, 4)
	assert.Equal(t, "🟢 OpenAI", replies[0].Embed.Fields[0].Name)
	assert.Contains(t, replies[0].Embed.Fields[3].Value, "`llama-3.1-8b-groq`")

	run(t, d, "c", "!chat hi")
	require.Equal(t, 3, convs.Len("c"))

	replies = run(t, d, "c", "!switch_model default claude-3-haiku")
	assert.Contains(t, replies[0].Text, "from `gpt-4o` to `claude-3-haiku`")
	assert.Equal(t, 1, convs.Len("c"), "active conversation is reset")

	run(t, d, "c", "!chat again")
	assert.Equal(t, "claude-3-haiku", stub.model)

	replies = run(t, d, "c", "!switch_model default gpt-9")
	assert.Contains(t, replies[0].Text, "Model 'gpt-9' not supported")
}

func TestPromptCommands(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	replies := run(t, d, "42", "!prompt")
	require.NotNil(t, replies[0].Embed)
	assert.Equal(t, personas.DefaultPrompt(), replies[0].Embed.Description)
	assert.Equal(t, "Channel ID: 42", replies[0].Embed.Footer)

	replies = run(t, d, "42", "!system "+strings.Repeat("p", 150))
	assert.Equal(t, "System prompt updated: "+strings.Repeat("p", 100)+"...", replies[0].Text)

	replies = run(t, d, "42", "!preset")
	require.NotNil(t, replies[0].Embed)
	assert.Len(t, replies[0].Embed.Fields, 8)

	replies = run(t, d, "42", "!preset TUTOR")
	assert.True(t, strings.HasPrefix(replies[0].Text, "System prompt set to **tutor**: "))

	replies = run(t, d, "42", "!preset ninja")
	assert.Contains(t, replies[0].Text, "Preset 'ninja' not found")
}

func TestUsageAndGuide(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	run(t, d, "c", "!chat hi")

	replies := run(t, d, "c", "!usage")
	require.NotNil(t, replies[0].Embed)
	assert.Equal(t, "1 requests, 3 tokens", replies[0].Embed.Fields[0].Value)

	for _, section := range []string{"", " characters", " chat", " custom", " examples"} {
		replies = run(t, d, "c", "!guide"+section)
		assert.NotNil(t, replies[0].Embed, "section %q", section)
	}
	replies = run(t, d, "c", "!help_bot")
	assert.NotNil(t, replies[0].Embed)

	replies = run(t, d, "c", "!guide cooking")
	assert.Contains(t, replies[0].Text, "Unknown help section")
}
