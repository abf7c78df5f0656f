package claude

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/llm"
)

func TestProvider_ImplementsInterface(t *testing.T) {
	var _ llm.Provider = (*Provider)(nil)
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New("", "model")
	assert.Error(t, err)
}

func TestNew_DefaultModel(t *testing.T) {
	p, err := New("test-key", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.model)
}

func TestChat(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		raw, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_01",
			"type": "message",
			"role": "assistant",
			"model": "claude-test",
			"content": [{"type": "text", "text": "{\"summary\":"}, {"type": "text", "text": "\"steady\"}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "claude-test", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	resp, err := p.Chat(context.Background(), llm.ChatRequest{
		SystemPrompt: "be brief",
		Messages:     []llm.Message{{Role: "user", Content: "AAPL?"}},
		JSONMode:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"summary":"steady"}`, resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, llm.Usage{InputTokens: 12, OutputTokens: 7}, resp.Usage)

	assert.Equal(t, "claude-test", body["model"])
	assert.EqualValues(t, llm.DefaultMaxTokens, body["max_tokens"])
	system, _ := json.Marshal(body["system"])
	assert.Contains(t, string(system), "JSON object")
}

func TestChat_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad"}}`))
	}))
	defer srv.Close()

	p, err := New("test-key", "", WithBaseURL(srv.URL+"/"), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	assert.ErrorIs(t, err, core.ErrLLMFailed)
	assert.ErrorContains(t, err, "status 400")
}
