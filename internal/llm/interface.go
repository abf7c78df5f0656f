// Package llm abstracts the chat-completion backends that write analysis
// narratives. Backends live in subpackages; factory picks one from config.
package llm

import "context"

// Provider is one chat-completion backend.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Role is the author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DefaultMaxTokens applies when a request leaves MaxTokens unset.
const DefaultMaxTokens = 1024

type ChatRequest struct {
	SystemPrompt string
	Messages     []Message
	MaxTokens    int
	Temperature  float64
	// JSONMode asks for a JSON object reply where the backend supports it.
	JSONMode bool
}

type Message struct {
	Role    Role
	Content string
}

// Prompt builds a single-turn request.
func Prompt(system, user string) ChatRequest {
	return ChatRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: user}},
	}
}

type ChatResponse struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// MaxTokensOr returns n, or DefaultMaxTokens when n is not positive.
func MaxTokensOr(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}
