package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wabridge/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const claudeMessageBody = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-3-5-haiku-latest",
	"content": [
		{"type": "text", "text": "{\"reply\":"},
		{"type": "text", "text": "\"hi\"}"}
	],
	"stop_reason": "end_turn",
	"usage": {"input_tokens": 10, "output_tokens": 5}
}`

func TestClaude_ChatSplitsSystemAndJoinsText(t *testing.T) {
	var got map[string]any
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		apiKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(claudeMessageBody))
	}))
	defer srv.Close()

	p := NewClaude(ClaudeConfig{APIKey: "sk-ant", APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages:    []domain.Message{domain.SystemMessage("sys"), domain.UserMessage("hello")},
		Temperature: domain.Float(0),
	})
	require.NoError(t, err)

	assert.Equal(t, `{"reply":"hi"}`, resp.Content)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 10, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, "sk-ant", apiKey)

	assert.Equal(t, "claude-3-5-haiku-latest", got["model"])
	assert.InDelta(t, float64(defaultMaxTokens), got["max_tokens"], 1e-9)
	assert.InDelta(t, 0.0, got["temperature"], 1e-9)

	system, ok := got["system"].([]any)
	require.True(t, ok, "system prompt must be sent as text blocks")
	require.Len(t, system, 1)
	assert.Equal(t, "text", system[0].(map[string]any)["type"])
	assert.Equal(t, "sys", system[0].(map[string]any)["text"])

	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
}

func TestClaude_ServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
	}))
	defer srv.Close()

	p := NewClaude(ClaudeConfig{APIKey: "k", APIBase: srv.URL + "/", Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{domain.UserMessage("x")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude request")
	assert.Equal(t, 1, calls)
}

func TestClaude_HealthyNeedsKey(t *testing.T) {
	assert.Error(t, NewClaude(ClaudeConfig{Logger: testLogger()}).Healthy(context.Background()))
	assert.NoError(t, NewClaude(ClaudeConfig{APIKey: "k", Logger: testLogger()}).Healthy(context.Background()))
}
