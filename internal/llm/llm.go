// Package llm is the model invocation boundary. It maps role-tagged messages
// and an execution config onto the Anthropic, OpenAI and Google SDKs and
// returns the raw response text. It never inspects or validates that text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/time/rate"

	"github.com/dshills/promptqa/internal/schema"
)

// ErrNoContent is returned when a provider response carries no text.
var ErrNoContent = errors.New("llm: response contained no text content")

// InvokeFunc is the injected model call: messages and config in, raw text out.
// Implementations must honor ctx cancellation.
type InvokeFunc func(ctx context.Context, msgs []schema.Message, cfg schema.ExecutionConfig) (schema.ModelResponse, error)

// Request is a provider-neutral completion request. System holds every
// system message joined; Messages holds the user/assistant turns with
// adjacent same-role turns merged.
type Request struct {
	System      string
	Messages    []schema.Message
	MaxTokens   int
	Temperature float64
	JSON        bool
}

// Provider is the interface for LLM backends.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// NewProvider is the factory for creating LLM providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call site.
// Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// DefaultMaxTokens is used when the execution config leaves MaxTokens unset.
const DefaultMaxTokens = 4096

// Invoke is the default InvokeFunc. It creates the provider named by
// cfg.Provider and sends one completion request.
func Invoke(ctx context.Context, msgs []schema.Message, cfg schema.ExecutionConfig) (schema.ModelResponse, error) {
	provider, err := NewProvider(cfg.Provider, cfg.Model)
	if err != nil {
		return schema.ModelResponse{}, fmt.Errorf("llm: create provider: %w", err)
	}
	req := BuildRequest(msgs, cfg)
	if len(req.Messages) == 0 {
		return schema.ModelResponse{}, errors.New("llm: no user message to send")
	}
	raw, err := provider.Complete(ctx, req)
	if err != nil {
		return schema.ModelResponse{}, fmt.Errorf("llm: complete: %w", err)
	}
	return schema.ModelResponse{RawText: raw}, nil
}

// BuildRequest converts a message history into a provider request.
func BuildRequest(msgs []schema.Message, cfg schema.ExecutionConfig) Request {
	var system []string
	var conv []schema.Message
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role == schema.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		if n := len(conv); n > 0 && conv[n-1].Role == m.Role {
			conv[n-1].Content += "\n\n" + m.Content
			continue
		}
		conv = append(conv, m)
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Request{
		System:      strings.Join(system, "\n\n"),
		Messages:    conv,
		MaxTokens:   maxTokens,
		Temperature: cfg.Temperature,
		JSON:        cfg.OutputFormat.IsStructured(),
	}
}

// Throttle limits fn to requestsPerMinute calls, waiting on the caller's
// context. A non-positive rate returns fn unchanged.
func Throttle(fn InvokeFunc, requestsPerMinute int) InvokeFunc {
	if requestsPerMinute <= 0 {
		return fn
	}
	limiter := rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	return func(ctx context.Context, msgs []schema.Message, cfg schema.ExecutionConfig) (schema.ModelResponse, error) {
		if err := limiter.Wait(ctx); err != nil {
			return schema.ModelResponse{}, fmt.Errorf("llm: throttle: %w", err)
		}
		return fn(ctx, msgs, cfg)
	}
}

// ── Provider dispatch ─────────────────────────────────────────────────────────

// defaultNewProvider dispatches to the appropriate provider implementation.
func defaultNewProvider(providerName, model string) (Provider, error) {
	switch strings.ToLower(providerName) {
	case "anthropic", "":
		return newAnthropicProvider(model)
	case "openai":
		return newOpenAIProvider(model)
	case "google", "gemini":
		return newGoogleProvider(model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", providerName)
	}
}

// ── Anthropic provider ───────────────────────────────────────────────────────

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5"

// anthropicProvider implements Provider using the Anthropic SDK.
// anthropic.Client is a value type; the SDK's NewClient returns it by value.
type anthropicProvider struct {
	client anthropic.Client
	model  string
}

func newAnthropicProvider(model string) (Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("llm: ANTHROPIC_API_KEY environment variable not set")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicProvider{client: client, model: model}, nil
}

func (p *anthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(req.MaxTokens),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == schema.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: messages.new: %w", err)
	}

	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("anthropic: %w", ErrNoContent)
	}
	return strings.Join(parts, ""), nil
}
