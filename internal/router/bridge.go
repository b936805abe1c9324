package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
)

// ── OpenAI-compatible HTTP bridges (OpenRouter, Groq) ───────

type bridgeRequest struct {
	Model       string           `json:"model"`
	Messages    []models.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens"`
}

type bridgeResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens *int `json:"total_tokens"`
	} `json:"usage"`
}

// bridgeDriver posts a plain chat-completions body with bearer auth and
// any provider-specific headers.
type bridgeDriver struct {
	provider models.Provider
	keys     KeyLookup
	endpoint string
	headers  map[string]string
	client   *http.Client
}

// NewOpenRouterDriver returns the OpenRouter bridge. referer and title are
// sent as the HTTP-Referer and X-Title attribution headers.
func NewOpenRouterDriver(keys KeyLookup, baseURL, referer, title string, client *http.Client) Driver {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	headers := map[string]string{}
	if referer != "" {
		headers["HTTP-Referer"] = referer
	}
	if title != "" {
		headers["X-Title"] = title
	}
	return newBridge(models.ProviderOpenRouter, keys, baseURL, headers, client)
}

// NewGroqDriver returns the Groq bridge.
func NewGroqDriver(keys KeyLookup, baseURL string, client *http.Client) Driver {
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	return newBridge(models.ProviderGroq, keys, baseURL, nil, client)
}

func newBridge(p models.Provider, keys KeyLookup, baseURL string, headers map[string]string, client *http.Client) *bridgeDriver {
	if client == nil {
		client = http.DefaultClient
	}
	return &bridgeDriver{
		provider: p,
		keys:     keys,
		endpoint: strings.TrimRight(baseURL, "/") + "/chat/completions",
		headers:  headers,
		client:   client,
	}
}

func (d *bridgeDriver) Provider() models.Provider { return d.provider }

func (d *bridgeDriver) Send(ctx context.Context, call Call) (*models.NormalizedResponse, error) {
	apiKey, err := lookupKey(d.keys, d.provider)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(bridgeRequest{
		Model:       call.WireModel,
		Messages:    call.Messages,
		Temperature: call.Temperature,
		MaxTokens:   call.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", d.provider, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", d.provider, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	for k, v := range d.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", d.provider, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &StatusError{Code: httpResp.StatusCode, Body: string(respBody)}
	}

	var br bridgeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&br); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", d.provider, err)
	}
	if len(br.Choices) == 0 {
		return nil, fmt.Errorf("%s: response has no choices", d.provider)
	}

	out := &models.NormalizedResponse{
		ID:          br.ID,
		Content:     br.Choices[0].Message.Content,
		WireModelID: call.WireModel,
		Provider:    d.provider,
	}
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	if br.Usage != nil && br.Usage.TotalTokens != nil {
		total := *br.Usage.TotalTokens
		out.TokensUsed = &total
	}
	return out, nil
}
