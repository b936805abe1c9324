// Package router implements the relay's unified completion facade.
//
// A ModelRouter resolves a logical model through the catalog, hands the
// request to the driver registered for the resolved provider and returns a
// provider-independent response. Every driver failure comes back wrapped as
// a *ProviderError, or as a *TimeoutError when the bounded wait expires, so
// callers never see provider-specific error shapes. The router never retries.
package router

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/liammagee/six-authors-in-search-of-a-character/internal/catalog"
	"github.com/liammagee/six-authors-in-search-of-a-character/internal/config"
	"github.com/liammagee/six-authors-in-search-of-a-character/pkg/models"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 500
	DefaultTimeout     = 60 * time.Second
)

var tracer = otel.Tracer("persona-relay/router")

// Options configures the built-in drivers.
type Options struct {
	Timeout           time.Duration
	Keys              KeyLookup
	HTTPClient        *http.Client
	OpenAIBaseURL     string
	AnthropicBaseURL  string
	OpenRouterBaseURL string
	GroqBaseURL       string
	OpenRouterReferer string
	OpenRouterTitle   string
}

// OptionsFromConfig maps provider configuration onto router options.
func OptionsFromConfig(cfg config.ProvidersConfig) Options {
	return Options{
		Timeout:           cfg.Timeout,
		Keys:              EnvKeys,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		AnthropicBaseURL:  cfg.AnthropicBaseURL,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		GroqBaseURL:       cfg.GroqBaseURL,
		OpenRouterReferer: cfg.OpenRouterReferer,
		OpenRouterTitle:   cfg.OpenRouterTitle,
	}
}

// ModelRouter routes chat completions to provider drivers.
type ModelRouter struct {
	catalog *catalog.Catalog
	timeout time.Duration

	driversMu sync.RWMutex
	drivers   map[models.Provider]Driver

	// Latency tracking: provider → rolling avg ms
	latencyMu sync.RWMutex
	latencies map[models.Provider]int64
}

// NewModelRouter creates a router with the four built-in drivers registered.
func NewModelRouter(cat *catalog.Catalog, opts Options) *ModelRouter {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Keys == nil {
		opts.Keys = EnvKeys
	}
	mr := &ModelRouter{
		catalog:   cat,
		timeout:   opts.Timeout,
		drivers:   make(map[models.Provider]Driver),
		latencies: make(map[models.Provider]int64),
	}
	mr.RegisterDriver(NewOpenAIDriver(opts.Keys, opts.OpenAIBaseURL, opts.HTTPClient))
	mr.RegisterDriver(NewAnthropicDriver(opts.Keys, opts.AnthropicBaseURL, opts.HTTPClient))
	mr.RegisterDriver(NewOpenRouterDriver(opts.Keys, opts.OpenRouterBaseURL, opts.OpenRouterReferer, opts.OpenRouterTitle, opts.HTTPClient))
	mr.RegisterDriver(NewGroqDriver(opts.Keys, opts.GroqBaseURL, opts.HTTPClient))
	return mr
}

// Catalog returns the registry the router resolves against.
func (mr *ModelRouter) Catalog() *catalog.Catalog { return mr.catalog }

// RegisterDriver installs d for its provider, replacing any existing driver.
func (mr *ModelRouter) RegisterDriver(d Driver) {
	mr.driversMu.Lock()
	defer mr.driversMu.Unlock()
	mr.drivers[d.Provider()] = d
}

// GetDriver returns the driver for a provider, or nil.
func (mr *ModelRouter) GetDriver(p models.Provider) Driver {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	return mr.drivers[p]
}

// ListDrivers returns the providers that have a driver, sorted.
func (mr *ModelRouter) ListDrivers() []models.Provider {
	mr.driversMu.RLock()
	defer mr.driversMu.RUnlock()
	out := make([]models.Provider, 0, len(mr.drivers))
	for p := range mr.drivers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ChatCompletion resolves logicalModel and sends msgs to its provider.
// A zero temperature is sent as-is; a non-positive maxTokens falls back to
// DefaultMaxTokens.
func (mr *ModelRouter) ChatCompletion(ctx context.Context, logicalModel string, msgs []models.Message, temperature float64, maxTokens int) (*models.NormalizedResponse, error) {
	entry, err := mr.catalog.Resolve(logicalModel)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	driver := mr.GetDriver(entry.Provider)
	if driver == nil {
		return nil, &ProviderError{Provider: entry.Provider, Model: logicalModel, Cause: errors.New("no driver registered")}
	}

	ctx, span := tracer.Start(ctx, "router.chat_completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("relay.provider", string(entry.Provider)),
			attribute.String("relay.model", logicalModel),
			attribute.String("relay.wire_model", entry.WireModelID),
			attribute.Int("relay.messages", len(msgs)),
			attribute.Int("relay.max_tokens", maxTokens),
		),
	)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, mr.timeout)
	defer cancel()

	start := time.Now()
	resp, err := driver.Send(callCtx, Call{
		WireModel:   entry.WireModelID,
		Messages:    msgs,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		err = mr.wrapError(callCtx, start, entry.Provider, logicalModel, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn().
			Str("provider", string(entry.Provider)).
			Str("model", logicalModel).
			Int64("latency_ms", latencyMs).
			Err(err).
			Msg("Provider call failed")
		return nil, err
	}

	resp.LatencyMs = latencyMs
	mr.trackLatency(entry.Provider, latencyMs)
	span.SetAttributes(attribute.Int("relay.tokens", resp.Tokens()))

	log.Debug().
		Str("provider", string(entry.Provider)).
		Str("model", logicalModel).
		Int("tokens", resp.Tokens()).
		Int64("latency_ms", latencyMs).
		Msg("Completion received")
	return resp, nil
}

// wrapError reports a timeout with the deadline that actually fired, which
// may be the caller's when it was shorter than the router's.
func (mr *ModelRouter) wrapError(callCtx context.Context, start time.Time, p models.Provider, model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		after := mr.timeout
		if deadline, ok := callCtx.Deadline(); ok {
			after = deadline.Sub(start).Round(time.Millisecond)
		}
		return &TimeoutError{Provider: p, Model: model, After: after, Cause: err}
	}
	return &ProviderError{Provider: p, Model: model, Cause: err}
}

func (mr *ModelRouter) trackLatency(p models.Provider, latencyMs int64) {
	mr.latencyMu.Lock()
	defer mr.latencyMu.Unlock()
	prev := mr.latencies[p]
	if prev == 0 {
		mr.latencies[p] = latencyMs
	} else {
		// Exponential moving average
		mr.latencies[p] = (prev*7 + latencyMs*3) / 10
	}
}

// Latencies returns the rolling average latency per provider in ms.
func (mr *ModelRouter) Latencies() map[models.Provider]int64 {
	mr.latencyMu.RLock()
	defer mr.latencyMu.RUnlock()
	out := make(map[models.Provider]int64, len(mr.latencies))
	for p, v := range mr.latencies {
		out[p] = v
	}
	return out
}

// ── Provider Probe ──────────────────────────────────────────

// ProbeResult reports whether a provider answered a minimal completion.
type ProbeResult struct {
	Provider  models.Provider `json:"provider"`
	Model     string          `json:"model"`
	Healthy   bool            `json:"healthy"`
	LatencyMs int64           `json:"latency_ms"`
	Error     string          `json:"error,omitempty"`
}

// Probe sends a 1-token completion to the first catalog model of each
// provider to validate credentials. Providers are probed sequentially.
func (mr *ModelRouter) Probe(ctx context.Context) []ProbeResult {
	grouped := mr.catalog.ListByProvider()
	var results []ProbeResult
	for _, p := range mr.catalog.Providers() {
		model := grouped[p][0]
		start := time.Now()
		_, err := mr.ChatCompletion(ctx, model, []models.Message{models.UserMessage("Say OK")}, 0, 1)
		r := ProbeResult{Provider: p, Model: model, LatencyMs: time.Since(start).Milliseconds()}
		if err != nil {
			r.Error = err.Error()
		} else {
			r.Healthy = true
		}
		results = append(results, r)
	}
	return results
}
