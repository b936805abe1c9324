package router

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// ── OpenAI Provider ─────────────────────────────────────────

// openAIDriver calls the OpenAI chat completions API through the SDK.
// The SDK client is built on the first call that finds an API key.
type openAIDriver struct {
	keys    KeyLookup
	baseURL string
	http    *http.Client

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIDriver returns the OpenAI driver. An empty baseURL uses the SDK default.
func NewOpenAIDriver(keys KeyLookup, baseURL string, client *http.Client) Driver {
	return &openAIDriver{keys: keys, baseURL: baseURL, http: client}
}

func (d *openAIDriver) Provider() models.Provider { return models.ProviderOpenAI }

func (d *openAIDriver) sdk() (*openai.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	apiKey, err := lookupKey(d.keys, models.ProviderOpenAI)
	if err != nil {
		return nil, err
	}
	cfg := openai.DefaultConfig(apiKey)
	if d.baseURL != "" {
		cfg.BaseURL = d.baseURL
	}
	if d.http != nil {
		cfg.HTTPClient = d.http
	}
	d.client = openai.NewClientWithConfig(cfg)
	return d.client, nil
}

func (d *openAIDriver) Send(ctx context.Context, call Call) (*models.NormalizedResponse, error) {
	client, err := d.sdk()
	if err != nil {
		return nil, err
	}

	msgs := make([]openai.ChatCompletionMessage, 0, len(call.Messages))
	for _, m := range call.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	// The SDK drops a zero temperature (omitempty); the smallest float keeps it deterministic.
	temperature := float32(call.Temperature)
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       call.WireModel,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   call.MaxTokens,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Code: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		return nil, fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: response has no choices")
	}

	out := &models.NormalizedResponse{
		ID:          resp.ID,
		Content:     resp.Choices[0].Message.Content,
		WireModelID: call.WireModel,
		Provider:    models.ProviderOpenAI,
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if total := resp.Usage.TotalTokens; total > 0 {
		out.TokensUsed = &total
	}
	return out, nil
}
