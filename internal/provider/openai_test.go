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

const chatCompletionBody = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "llama3",
	"choices": [{
		"index": 0,
		"message": {"role": "assistant", "content": "{\"reply\":\"hi\"}"},
		"finish_reason": "stop"
	}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

func TestOpenAI_ChatSendsTwoTurnsAndReadsContent(t *testing.T) {
	var got map[string]any
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionBody))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "ollama", APIBase: srv.URL + "/v1", Model: "llama3", Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages:    []domain.Message{domain.SystemMessage("sys"), domain.UserMessage("hello")},
		Temperature: domain.Float(0.2),
	})
	require.NoError(t, err)

	assert.Equal(t, `{"reply":"hi"}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 17, resp.Usage.TotalTokens)
	assert.Equal(t, "Bearer ollama", auth)

	assert.Equal(t, "llama3", got["model"])
	assert.InDelta(t, 0.2, got["temperature"], 1e-9)
	msgs, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAI_TemperatureOnlyWhenSet(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = nil
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionBody))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	msgs := []domain.Message{domain.UserMessage("x")}

	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: msgs, Temperature: domain.Float(0)})
	require.NoError(t, err)
	temp, ok := got["temperature"]
	require.True(t, ok, "explicit zero temperature must be sent")
	assert.InDelta(t, 0.0, temp, 1e-9)

	_, err = p.Chat(context.Background(), domain.ChatRequest{Messages: msgs})
	require.NoError(t, err)
	assert.NotContains(t, got, "temperature")
}

func TestOpenAI_ServerErrorIsNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	_, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{domain.UserMessage("x")}})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "k", APIBase: srv.URL, Logger: testLogger()})
	resp, err := p.Chat(context.Background(), domain.ChatRequest{Messages: []domain.Message{domain.UserMessage("x")}})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}
