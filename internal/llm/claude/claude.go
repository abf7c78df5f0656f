// Package claude is the llm.Provider backed by the Anthropic SDK.
package claude

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
)

const (
	Name = "claude"
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-20250514"
)

// Provider calls the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// Option customizes the underlying SDK client.
type Option func(*[]option.RequestOption)

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithBaseURL(url))
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(opts *[]option.RequestOption) {
		*opts = append(*opts, option.WithHTTPClient(c))
	}
}

// New creates a new Claude provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, core.WrapError(core.ErrConfigMissing, errors.New("claude: API key required"))
	}
	if model == "" {
		model = DefaultModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(1)}
	for _, o := range opts {
		o(&reqOpts)
	}
	return &Provider{client: anthropic.NewClient(reqOpts...), model: model}, nil
}

func (p *Provider) Name() string { return Name }

// Chat sends a chat request to the Claude API. Claude has no JSON response
// mode, so JSONMode is expressed as an extra system instruction.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	messages := make([]anthropic.MessageParam, len(req.Messages))
	for i, m := range req.Messages {
		if m.Role == llm.RoleUser {
			messages[i] = anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content))
		} else {
			messages[i] = anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content))
		}
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   int64(llm.MaxTokensOr(req.MaxTokens)),
		Messages:    messages,
		Temperature: anthropic.Float(req.Temperature),
	}

	system := req.SystemPrompt
	if req.JSONMode {
		system = strings.TrimSpace(system + "\nRespond with a single JSON object and nothing else.")
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, llm.Classify(Name, apiErr.StatusCode, err)
		}
		return nil, err
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &llm.ChatResponse{
		Content: content.String(),
		Usage: llm.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
		FinishReason: string(resp.StopReason),
	}, nil
}
