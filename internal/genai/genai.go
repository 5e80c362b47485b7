// Package genai provides a rotating-key gateway to an OpenAI-compatible chat
// completion endpoint (OpenRouter by default).
//
// Keys come from the store ordered by (priority ascending, last used
// ascending); an environment-level key, when configured, is tried last.
// Retryable upstream failures rotate to the next key. The gateway never
// returns an error to callers: when every key is exhausted it returns an
// empty completion and the caller falls back to a deterministic answer.
package genai

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/optichat/optichat/internal/metrics"
	"github.com/optichat/optichat/internal/models"
	"github.com/optichat/optichat/internal/store"
)

// Defaults for the gateway.
const (
	// DefaultBaseURL is the OpenRouter OpenAI-compatible endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel is used when neither the flow's AI config nor the request
	// names a model.
	DefaultModel = "openai/gpt-4o-mini"
	// DefaultTimeout bounds a single upstream attempt.
	DefaultTimeout = 20 * time.Second
)

// retryableStatuses are upstream HTTP statuses that rotate to the next key.
// 401/403 are included: a revoked or over-quota key should not take the
// whole gateway down.
var retryableStatuses = map[int]bool{
	401: true, 403: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// chatCompleter is one attempt against a single key.
type chatCompleter interface {
	Complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error)
}

type openaiCompleter struct {
	client openai.Client
}

func (c *openaiCompleter) Complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Opts holds configuration options for the gateway.
type Opts struct {
	BaseURL string
	EnvKey  string
	Timeout time.Duration

	newCompleter func(apiKey string) chatCompleter
}

// Option configures the gateway.
type Option func(*Opts)

// WithBaseURL overrides the upstream endpoint.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithEnvKey sets the environment-level fallback API key, tried after every
// stored key.
func WithEnvKey(k string) Option {
	return func(o *Opts) { o.EnvKey = k }
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// Gateway rotates across stored AI keys for chat completions.
type Gateway struct {
	store        store.Store
	baseURL      string
	envKey       string
	timeout      time.Duration
	newCompleter func(apiKey string) chatCompleter
}

// NewGateway creates a gateway backed by the given store.
func NewGateway(st store.Store, opts ...Option) *Gateway {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	g := &Gateway{
		store:        st,
		baseURL:      cfg.BaseURL,
		envKey:       cfg.EnvKey,
		timeout:      cfg.Timeout,
		newCompleter: cfg.newCompleter,
	}
	if g.newCompleter == nil {
		g.newCompleter = func(apiKey string) chatCompleter {
			client := openai.NewClient(
				option.WithAPIKey(apiKey),
				option.WithBaseURL(g.baseURL),
			)
			return &openaiCompleter{client: client}
		}
	}
	return g
}

// Request is one completion request.
type Request struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

func (r Request) params() openai.ChatCompletionNewParams {
	model := r.Model
	if model == "" {
		model = DefaultModel
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if r.System != "" {
		msgs = append(msgs, openai.SystemMessage(r.System))
	}
	msgs = append(msgs, openai.UserMessage(r.User))
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: msgs,
	}
	if r.Temperature > 0 {
		params.Temperature = openai.Float(r.Temperature)
	}
	if r.MaxTokens > 0 {
		params.MaxTokens = openai.Int(r.MaxTokens)
	}
	return params
}

// candidateKeys returns stored active keys in rotation order, with the
// environment key appended as a last resort.
func (g *Gateway) candidateKeys() []models.AIKey {
	keys, err := g.store.ListActiveAIKeys(models.ProviderOpenRouter)
	if err != nil {
		slog.Error("Gateway failed to list AI keys", "error", err)
		keys = nil
	}
	if g.envKey != "" {
		keys = append(keys, models.AIKey{APIKey: g.envKey, Name: "env"})
	}
	return keys
}

// isRetryable classifies an attempt error: retryable statuses and transport
// errors rotate, anything else stops the rotation.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return retryableStatuses[apiErr.StatusCode]
	}
	// No HTTP response at all: network failure, timeout, connection reset.
	return true
}

func (g *Gateway) recordUse(key models.AIKey, success bool) {
	if key.ID == 0 {
		return
	}
	if err := g.store.RecordAIKeyUse(key.ID, success, time.Now().UTC()); err != nil {
		slog.Error("Gateway failed to record key use", "error", err, "key_id", key.ID)
	}
}

// Complete runs the request across the key rotation. It returns the first
// successful completion, or an empty string when no key could serve the
// request. Callers must treat an empty result as "AI unavailable".
func (g *Gateway) Complete(ctx context.Context, req Request) string {
	keys := g.candidateKeys()
	if len(keys) == 0 {
		slog.Debug("Gateway has no AI keys configured")
		return ""
	}
	params := req.params()
	for i, key := range keys {
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		text, err := g.newCompleter(key.APIKey).Complete(attemptCtx, params)
		cancel()
		if err == nil {
			g.recordUse(key, true)
			metrics.AIAttempts.WithLabelValues("ok").Inc()
			if i > 0 {
				metrics.AIFailovers.Inc()
			}
			return text
		}
		g.recordUse(key, false)
		if ctx.Err() != nil {
			metrics.AIAttempts.WithLabelValues("fatal").Inc()
			slog.Debug("Gateway completion canceled", "error", ctx.Err())
			return ""
		}
		if !isRetryable(err) {
			metrics.AIAttempts.WithLabelValues("fatal").Inc()
			slog.Error("Gateway completion failed fatally", "error", err, "key", key.Name)
			return ""
		}
		metrics.AIAttempts.WithLabelValues("retryable").Inc()
		slog.Warn("Gateway key attempt failed, rotating", "error", err, "key", key.Name, "attempt", i+1)
	}
	slog.Error("Gateway exhausted all AI keys", "keys", len(keys))
	return ""
}

// Classify asks the model a closed question expecting one label out of the
// candidates. It returns the matched candidate, or empty when the model
// answered something else or was unavailable.
func (g *Gateway) Classify(ctx context.Context, model, instructions, input string, candidates []string) string {
	answer := g.Complete(ctx, Request{
		Model:       model,
		System:      instructions,
		User:        input,
		Temperature: 0,
		MaxTokens:   20,
	})
	if answer == "" {
		return ""
	}
	answer = strings.ToLower(strings.TrimSpace(strings.Trim(answer, `"'.`)))
	for _, c := range candidates {
		if strings.EqualFold(answer, c) {
			return c
		}
	}
	return ""
}
