package aiconnectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/changesmith/internal/llm"
)

// Provider identifies an AI completion provider.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
	ProviderClaude Provider = "claude"
	ProviderOllama Provider = "ollama"
)

// Options configure a Connector.
type Options struct {
	Provider    Provider `json:"provider"`
	APIKey      string   `json:"api_key"`
	BaseURL     string   `json:"base_url,omitempty"`
	Model       string   `json:"model,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
}

// Connector adapts a langchaingo model to the llm.Client interface the rest
// of the system speaks.
type Connector struct {
	provider Provider
	model    llms.Model
	options  Options
}

// NewConnector creates a connector for the configured provider.
func NewConnector(ctx context.Context, options Options) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Msg("creating AI connector")

	switch options.Provider {
	case ProviderOpenAI:
		model, err = newOpenAIModel(options)
	case ProviderGemini:
		model, err = newGeminiModel(ctx, options)
	case ProviderClaude:
		model, err = newAnthropicModel(options)
	case ProviderOllama:
		model, err = newOllamaModel(options)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return &Connector{provider: options.Provider, model: model, options: options}, nil
}

// Complete implements llm.Client. The finish reason of the first choice is
// mapped onto the truncation flag so callers can warn about length-limited
// responses.
func (c *Connector) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	parts := []llms.ContentPart{llms.TextPart(req.Prompt)}
	if req.Image != nil && len(req.Image.Data) > 0 {
		mime := "image/" + strings.ToLower(req.Image.Format)
		parts = append(parts, llms.BinaryPart(mime, req.Image.Data))
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	})

	opts := []llms.CallOption{}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	} else if c.options.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.options.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	} else if c.options.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(c.options.Temperature))
	}
	model := req.Model
	if model == "" {
		model = c.options.Model
	}
	if model != "" {
		opts = append(opts, llms.WithModel(model))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return llm.Response{}, fmt.Errorf("completion call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return llm.Response{}, fmt.Errorf("completion returned no choices")
	}

	choice := resp.Choices[0]
	return llm.Response{
		Text:      choice.Content,
		Truncated: isTruncatedStop(choice.StopReason),
	}, nil
}

// isTruncatedStop reports whether a finish reason means the response was
// cut short by the token limit. Providers spell this differently.
func isTruncatedStop(reason string) bool {
	switch strings.ToLower(reason) {
	case "length", "max_tokens", "max_output_tokens":
		return true
	}
	return false
}

// Validate issues a tiny completion to prove the credentials work. Used by
// `changesmith config --validate` at setup time, not on the hot path.
func (c *Connector) Validate(ctx context.Context) error {
	_, err := llms.GenerateFromSinglePrompt(ctx, c.model, "ping", llms.WithMaxTokens(8))
	if err != nil {
		return fmt.Errorf("provider %s validation failed: %w", c.provider, err)
	}
	return nil
}

func newOpenAIModel(options Options) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, openai.WithModel(options.Model))
	}
	if options.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(options.BaseURL))
	}
	return openai.New(opts...)
}

func newGeminiModel(ctx context.Context, options Options) (llms.Model, error) {
	opts := []googleai.Option{
		googleai.WithAPIKey(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, googleai.WithDefaultModel(options.Model))
	}
	return googleai.New(ctx, opts...)
}

func newAnthropicModel(options Options) (llms.Model, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(options.APIKey),
	}
	if options.Model != "" {
		opts = append(opts, anthropic.WithModel(options.Model))
	}
	return anthropic.New(opts...)
}

func newOllamaModel(options Options) (llms.Model, error) {
	opts := []ollama.Option{}
	if options.Model != "" {
		opts = append(opts, ollama.WithModel(options.Model))
	}
	if options.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(options.BaseURL))
	}
	return ollama.New(opts...)
}
