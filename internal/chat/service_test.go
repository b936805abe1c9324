package chat_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/chat"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/personas"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/router"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/sessions"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/usage"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type call struct {
	Model       string
	Messages    []models.Message
	Temperature float64
	MaxTokens   int
}

// mockCompleter replies with a fixed string (or err) and records calls.
type mockCompleter struct {
	mu    sync.Mutex
	calls []call
	reply string
	err   error
	hook  func(ctx context.Context, msgs []models.Message)
}

func (m *mockCompleter) ChatCompletion(ctx context.Context, model string, msgs []models.Message, temperature float64, maxTokens int) (*models.NormalizedResponse, error) {
	if m.hook != nil {
		m.hook(ctx, msgs)
	}
	m.mu.Lock()
	m.calls = append(m.calls, call{model, msgs, temperature, maxTokens})
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	tokens := 12
	return &models.NormalizedResponse{ID: "r", Content: m.reply, Provider: models.ProviderOpenAI, TokensUsed: &tokens}, nil
}

func (m *mockCompleter) last() call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

type fixture struct {
	svc    *chat.Service
	convs  *sessions.Store
	reg    *personas.Registry
	ledger *usage.Ledger
	mock   *mockCompleter
}

func newFixture(t *testing.T, chatCfg config.ChatConfig) *fixture {
	t.Helper()
	convs := sessions.NewStore()
	reg, err := personas.NewRegistry(catalog.Default(), nil, convs)
	require.NoError(t, err)
	ledger, err := usage.NewLedger(context.Background(), nil)
	require.NoError(t, err)
	mock := &mockCompleter{reply: "Hello!"}
	web := config.WebConfig{Model: "gpt-4o", DefaultPrompt: "You are a helpful assistant.", MaxTokens: 1000, Temperature: 0.7}
	svc := chat.NewService(chat.Deps{Completer: mock, Sessions: convs, Personas: reg, Ledger: ledger}, chatCfg, web)
	return &fixture{svc: svc, convs: convs, reg: reg, ledger: ledger, mock: mock}
}

func unlimited() config.ChatConfig { return config.ChatConfig{} }

func TestSend_FirstTurnUsesDefaultPersona(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")

	res, err := f.svc.Send(context.Background(), key, "  Hi  ")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Reply)

	c := f.mock.last()
	assert.Equal(t, "gpt-4o", c.Model)
	assert.Equal(t, 0.7, c.Temperature)
	assert.Equal(t, 500, c.MaxTokens)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, models.SystemMessage("You are a helpful Discord bot assistant. Keep responses concise and friendly."), c.Messages[0])
	assert.Equal(t, models.UserMessage("Hi"), c.Messages[1])

	msgs := f.convs.Snapshot(key)
	require.Len(t, msgs, 3)
	assert.Equal(t, models.AssistantMessage("Hello!"), msgs[2])

	assert.Equal(t, int64(12), f.ledger.Summary(key).TotalTokens)
}

func TestSend_EmptyMessage(t *testing.T) {
	f := newFixture(t, unlimited())
	_, err := f.svc.Send(context.Background(), "k", "   ")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.Empty(t, f.mock.calls)
}

func TestSend_FailureKeepsOnlyUserMessage(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")
	f.mock.err = &router.ProviderError{Provider: models.ProviderOpenAI, Model: "gpt-4o", Cause: &router.StatusError{Code: 429, Body: "rate limited"}}

	_, err := f.svc.Send(context.Background(), key, "hello")
	var pe *router.ProviderError
	require.True(t, errors.As(err, &pe))

	msgs := f.convs.Snapshot(key)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[1].Role)
	_, ok := f.svc.LastReply(key)
	assert.False(t, ok)
	assert.Zero(t, f.ledger.Totals().Requests)
}

func TestSend_UsesActivePersona(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")
	_, err := f.svc.SwitchPersona(key, "lightning")
	require.NoError(t, err)

	_, err = f.svc.Send(context.Background(), key, "quick")
	require.NoError(t, err)
	c := f.mock.last()
	assert.Equal(t, "llama-3.1-8b-groq", c.Model)
	assert.Equal(t, 400, c.MaxTokens)
	assert.Contains(t, c.Messages[0].Content, "Lightning")
}

func TestFollowUpAndContinue(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")

	_, err := f.svc.FollowUp(context.Background(), key, "why?")
	assert.ErrorIs(t, err, chat.ErrNoPreviousReply)
	_, err = f.svc.Continue(context.Background(), key)
	assert.ErrorIs(t, err, chat.ErrNoPreviousReply)

	f.mock.reply = strings.Repeat("x", 250)
	_, err = f.svc.Send(context.Background(), key, "tell me")
	require.NoError(t, err)

	_, err = f.svc.FollowUp(context.Background(), key, "why?")
	require.NoError(t, err)
	got := f.mock.last().Messages
	want := "Regarding your previous response: \"" + strings.Repeat("x", 200) + "...\"\n\nwhy?"
	assert.Equal(t, want, got[len(got)-1].Content)

	f.mock.reply = "short"
	_, err = f.svc.Send(context.Background(), key, "again")
	require.NoError(t, err)
	_, err = f.svc.Continue(context.Background(), key)
	require.NoError(t, err)
	got = f.mock.last().Messages
	assert.Equal(t, "Please continue or elaborate on your previous response. For context, your last response was: \"short\"", got[len(got)-1].Content)
}

func TestSystemPromptAndPresets(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")

	assert.Equal(t, personas.DefaultPrompt(), f.svc.CurrentPrompt(key))

	require.NoError(t, f.svc.SetSystemPrompt(key, "Talk like a robot."))
	assert.Equal(t, "Talk like a robot.", f.svc.CurrentPrompt(key))
	assert.Equal(t, 1, f.convs.Len(key))

	prompt, err := f.svc.ApplyPreset(key, "Pirate")
	require.NoError(t, err)
	assert.Contains(t, prompt, "pirate")
	assert.Equal(t, prompt, f.svc.CurrentPrompt(key))

	_, err = f.svc.ApplyPreset(key, "ninja")
	var unknown *chat.UnknownPresetError
	assert.True(t, errors.As(err, &unknown))
}

func TestReset(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")
	_, err := f.svc.Send(context.Background(), key, "hi")
	require.NoError(t, err)

	p := f.svc.Reset(key)
	assert.Equal(t, "Assistant", p.Name)
	assert.Equal(t, 1, f.convs.Len(key))
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t, config.ChatConfig{RatePerSecond: 0.001, Burst: 2})
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "a", "1")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, "a", "2")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, "a", "3")
	var limited *chat.RateLimitedError
	require.True(t, errors.As(err, &limited))

	// Other keys have their own budget.
	_, err = f.svc.Send(ctx, "b", "1")
	assert.NoError(t, err)
}

func TestSend_SlowKeyDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t, unlimited())
	release := make(chan struct{})
	var slowStarted atomic.Bool
	f.mock.hook = func(ctx context.Context, msgs []models.Message) {
		if msgs[len(msgs)-1].Content == "slow" {
			slowStarted.Store(true)
			<-release
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := f.svc.Send(context.Background(), "slow-chan", "slow")
		return err
	})
	require.Eventually(t, slowStarted.Load, time.Second, 5*time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Send(context.Background(), "fast-chan", "fast")
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("fast key waited on slow key")
	}

	close(release)
	require.NoError(t, g.Wait())
}

func TestSend_SameKeyTurnsAreSerialized(t *testing.T) {
	f := newFixture(t, unlimited())
	key := models.ConversationKey("chan")

	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error {
			_, err := f.svc.Send(context.Background(), key, "q")
			return err
		})
	}
	require.NoError(t, g.Wait())

	msgs := f.convs.Snapshot(key)
	require.Len(t, msgs, 11)
	for i := 1; i < len(msgs); i += 2 {
		assert.Equal(t, models.RoleUser, msgs[i].Role)
		assert.Equal(t, models.RoleAssistant, msgs[i+1].Role)
	}
}

func TestComplete_WebChat(t *testing.T) {
	f := newFixture(t, unlimited())

	res, err := f.svc.Complete(context.Background(), "", "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", res.Reply)

	c := f.mock.last()
	assert.Equal(t, "gpt-4o", c.Model)
	assert.Equal(t, 1000, c.MaxTokens)
	assert.Equal(t, models.SystemMessage("You are a helpful assistant."), c.Messages[0])

	// The prompt only seeds a new chat id.
	_, err = f.svc.Complete(context.Background(), "", "ignored", "again")
	require.NoError(t, err)
	assert.Equal(t, "You are a helpful assistant.", f.mock.last().Messages[0].Content)
	assert.Len(t, f.svc.History(chat.WebKey("default")), 5)
}

func TestSplit(t *testing.T) {
	assert.Nil(t, chat.Split("", 2000))
	assert.Equal(t, []string{"abc"}, chat.Split("abc", 2000))

	long := strings.Repeat("a", 4500)
	chunks := chat.Split(long, 2000)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2000)
	assert.Len(t, chunks[2], 500)
	assert.Equal(t, long, strings.Join(chunks, ""))

	multi := strings.Repeat("é", 3)
	assert.Equal(t, []string{"éé", "é"}, chat.Split(multi, 2))
}
