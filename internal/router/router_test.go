package router_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/router"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDriver is a test Driver.
type mockDriver struct {
	provider models.Provider
	err      error
	delay    time.Duration
	calls    []router.Call
}

func (d *mockDriver) Provider() models.Provider { return d.provider }

func (d *mockDriver) Send(ctx context.Context, call router.Call) (*models.NormalizedResponse, error) {
	d.calls = append(d.calls, call)
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	tokens := 7
	return &models.NormalizedResponse{
		Content:     "mock response from " + string(d.provider),
		WireModelID: call.WireModel,
		Provider:    d.provider,
		TokensUsed:  &tokens,
	}, nil
}

func noKeys(string) (string, bool) { return "", false }

func newTestRouter(t *testing.T, timeout time.Duration) *router.ModelRouter {
	t.Helper()
	return router.NewModelRouter(catalog.Default(), router.Options{Timeout: timeout, Keys: noKeys})
}

func TestBuiltinDriversRegistered(t *testing.T) {
	mr := newTestRouter(t, 0)

	assert.ElementsMatch(t, models.AllProviders, mr.ListDrivers())
	for _, p := range models.AllProviders {
		d := mr.GetDriver(p)
		require.NotNil(t, d, "GetDriver(%s)", p)
		assert.Equal(t, p, d.Provider())
	}
}

func TestRegisterDriver_Overrides(t *testing.T) {
	mr := newTestRouter(t, 0)

	mock := &mockDriver{provider: models.ProviderOpenAI}
	mr.RegisterDriver(mock)

	resp, err := mr.ChatCompletion(context.Background(), "gpt-4o-mini",
		[]models.Message{models.SystemMessage("sys"), models.UserMessage("hi")}, 0.3, 50)
	require.NoError(t, err)
	assert.Equal(t, "mock response from openai", resp.Content)
	assert.Equal(t, "gpt-4o-mini", resp.WireModelID)
	assert.Equal(t, 7, resp.Tokens())

	require.Len(t, mock.calls, 1)
	assert.Equal(t, 0.3, mock.calls[0].Temperature)
	assert.Equal(t, 50, mock.calls[0].MaxTokens)
	assert.Len(t, mock.calls[0].Messages, 2)
}

func TestChatCompletion_DispatchesByProvider(t *testing.T) {
	mr := newTestRouter(t, 0)
	mocks := map[models.Provider]*mockDriver{}
	for _, p := range models.AllProviders {
		mocks[p] = &mockDriver{provider: p}
		mr.RegisterDriver(mocks[p])
	}

	cases := map[string]models.Provider{
		"gpt-4":             models.ProviderOpenAI,
		"claude-3-haiku":    models.ProviderAnthropic,
		"gemini-pro":        models.ProviderOpenRouter,
		"gemma-7b-groq":     models.ProviderGroq,
		"llama-3.1-70b":     models.ProviderOpenRouter,
		"claude-3.5-sonnet": models.ProviderAnthropic,
	}
	for model, want := range cases {
		resp, err := mr.ChatCompletion(context.Background(), model, []models.Message{models.UserMessage("x")}, 0.7, 10)
		require.NoError(t, err, model)
		assert.Equal(t, want, resp.Provider, model)
	}
	assert.Len(t, mocks[models.ProviderAnthropic].calls, 2)
	assert.Len(t, mocks[models.ProviderOpenRouter].calls, 2)
}

func TestChatCompletion_DefaultMaxTokens(t *testing.T) {
	mr := newTestRouter(t, 0)
	mock := &mockDriver{provider: models.ProviderGroq}
	mr.RegisterDriver(mock)

	_, err := mr.ChatCompletion(context.Background(), "gemma-7b-groq", nil, router.DefaultTemperature, 0)
	require.NoError(t, err)
	assert.Equal(t, router.DefaultMaxTokens, mock.calls[0].MaxTokens)
}

func TestChatCompletion_UnknownModel(t *testing.T) {
	mr := newTestRouter(t, 0)

	_, err := mr.ChatCompletion(context.Background(), "nonexistent-model", nil, 0.7, 10)
	var unknown *catalog.UnknownModelError
	require.True(t, errors.As(err, &unknown), "err = %v", err)

	var perr *router.ProviderError
	assert.False(t, errors.As(err, &perr), "unknown model must not be reported as a provider error")
}

func TestChatCompletion_WrapsDriverErrors(t *testing.T) {
	mr := newTestRouter(t, 0)
	cause := errors.New("boom")
	mr.RegisterDriver(&mockDriver{provider: models.ProviderAnthropic, err: cause})

	_, err := mr.ChatCompletion(context.Background(), "claude-3-opus", nil, 0.7, 10)
	var perr *router.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, models.ProviderAnthropic, perr.Provider)
	assert.Equal(t, "claude-3-opus", perr.Model)
	assert.ErrorIs(t, err, cause)
}

func TestChatCompletion_MissingCredentialIsLazy(t *testing.T) {
	// Only the Groq key is present; other providers are never consulted.
	keys := func(name string) (string, bool) {
		if name == "GROQ_API_KEY" {
			return "k", true
		}
		return "", false
	}
	mr := router.NewModelRouter(catalog.Default(), router.Options{Keys: keys})

	_, err := mr.ChatCompletion(context.Background(), "gpt-4o", []models.Message{models.UserMessage("x")}, 0.7, 10)
	var missing *router.MissingCredentialError
	require.True(t, errors.As(err, &missing), "err = %v", err)
	assert.Equal(t, models.ProviderOpenAI, missing.Provider)
	assert.Equal(t, "OPENAI_API_KEY", missing.EnvVar)

	var perr *router.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "gpt-4o", perr.Model)
}

func TestChatCompletion_Timeout(t *testing.T) {
	mr := newTestRouter(t, 20*time.Millisecond)
	mr.RegisterDriver(&mockDriver{provider: models.ProviderGroq, delay: time.Second})

	start := time.Now()
	_, err := mr.ChatCompletion(context.Background(), "llama-3.1-8b-groq", nil, 0.7, 10)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	var terr *router.TimeoutError
	require.True(t, errors.As(err, &terr), "err = %v", err)
	assert.Equal(t, models.ProviderGroq, terr.Provider)
	assert.Equal(t, "llama-3.1-8b-groq", terr.Model)

	assert.Equal(t, 20*time.Millisecond, terr.After)

	var perr *router.ProviderError
	assert.False(t, errors.As(err, &perr), "timeouts are distinct from provider errors")
}

func TestChatCompletion_TimeoutReportsCallerDeadline(t *testing.T) {
	mr := newTestRouter(t, time.Second)
	mr.RegisterDriver(&mockDriver{provider: models.ProviderGroq, delay: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := mr.ChatCompletion(ctx, "llama-3.1-8b-groq", nil, 0.7, 10)

	var terr *router.TimeoutError
	require.True(t, errors.As(err, &terr), "err = %v", err)
	assert.LessOrEqual(t, terr.After, 30*time.Millisecond)
	assert.NotContains(t, terr.Error(), "1s")
}

func TestLatencies(t *testing.T) {
	mr := newTestRouter(t, 0)
	mr.RegisterDriver(&mockDriver{provider: models.ProviderGroq})

	_, err := mr.ChatCompletion(context.Background(), "gemma-7b-groq", nil, 0.7, 10)
	require.NoError(t, err)
	_, ok := mr.Latencies()[models.ProviderGroq]
	assert.True(t, ok)
}

func TestProbe(t *testing.T) {
	mr := newTestRouter(t, 0)
	mr.RegisterDriver(&mockDriver{provider: models.ProviderGroq})

	results := mr.Probe(context.Background())
	require.Len(t, results, len(models.AllProviders))
	for _, r := range results {
		if r.Provider == models.ProviderGroq {
			assert.True(t, r.Healthy)
			assert.Equal(t, "llama-3.1-8b-groq", r.Model)
		} else {
			assert.False(t, r.Healthy)
			assert.Contains(t, r.Error, "API key not configured")
		}
	}
}
