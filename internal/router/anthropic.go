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

// ── Anthropic Provider ──────────────────────────────────────

const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system,omitempty"`
	Messages    []models.Message `json:"messages"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicDriver struct {
	keys     KeyLookup
	endpoint string
	client   *http.Client
}

// NewAnthropicDriver returns the Anthropic Messages API driver.
func NewAnthropicDriver(keys KeyLookup, endpoint string, client *http.Client) Driver {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &anthropicDriver{keys: keys, endpoint: strings.TrimRight(endpoint, "/"), client: client}
}

func (d *anthropicDriver) Provider() models.Provider { return models.ProviderAnthropic }

// splitSystem pulls the first system message out of msgs. Every other
// message, whatever its role, stays in the turn list in order.
func splitSystem(msgs []models.Message) (string, []models.Message) {
	system := ""
	found := false
	turns := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if !found && m.Role == models.RoleSystem {
			system = m.Content
			found = true
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}

func (d *anthropicDriver) Send(ctx context.Context, call Call) (*models.NormalizedResponse, error) {
	apiKey, err := lookupKey(d.keys, models.ProviderAnthropic)
	if err != nil {
		return nil, err
	}

	system, turns := splitSystem(call.Messages)
	body, err := json.Marshal(anthropicRequest{
		Model:       call.WireModel,
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
		System:      system,
		Messages:    turns,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(httpResp.Body)
		return nil, &StatusError{Code: httpResp.StatusCode, Body: string(respBody)}
	}

	var anthResp anthropicResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&anthResp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	if len(anthResp.Content) == 0 {
		return nil, fmt.Errorf("anthropic: response has no content blocks")
	}

	total := anthResp.Usage.InputTokens + anthResp.Usage.OutputTokens
	id := anthResp.ID
	if id == "" {
		id = uuid.New().String()
	}
	return &models.NormalizedResponse{
		ID:          id,
		Content:     anthResp.Content[0].Text,
		WireModelID: call.WireModel,
		Provider:    models.ProviderAnthropic,
		TokensUsed:  &total,
	}, nil
}
