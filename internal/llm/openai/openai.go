// Package openai is the llm.Provider for OpenAI-compatible endpoints.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
)

const (
	Name = "openai"
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o"
)

// Provider talks to OpenAI or any server speaking its chat completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// Option customizes the client configuration.
type Option func(*openai.ClientConfig)

// WithBaseURL targets an OpenAI-compatible endpoint, including the /v1 suffix.
func WithBaseURL(url string) Option {
	return func(c *openai.ClientConfig) {
		if url != "" {
			c.BaseURL = url
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openai.ClientConfig) {
		c.HTTPClient = hc
	}
}

// New creates a new OpenAI provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("openai: API key required"))
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	for _, o := range opts {
		o(&cfg)
	}
	return &Provider{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *Provider) Name() string { return Name }

func toMessages(req llm.ChatRequest) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == llm.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

// Chat runs one completion. JSONMode maps to the json_object response format.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toMessages(req),
		MaxTokens:   llm.MaxTokensOr(req.MaxTokens),
		Temperature: float32(req.Temperature),
	}
	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, llm.Classify(Name, 0, errors.New("response has no choices"))
	}

	choice := resp.Choices[0]
	return &llm.ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return llm.Classify(Name, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return llm.Classify(Name, reqErr.HTTPStatusCode, err)
	}
	return err
}
