package domain

import "context"

// Provider is the interface all completion backends must implement.
type Provider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
	Models() []string
	Healthy(ctx context.Context) error
}

type ChatRequest struct {
	Messages  []Message
	Model     string
	MaxTokens int
	// Temperature is sent only when set; nil leaves the backend default.
	Temperature *float64
}

type ChatResponse struct {
	Content      string
	FinishReason string // stop | length | end_turn
	Usage        Usage
	LatencyMs    int64
}

type Message struct {
	Role    string `json:"role"` // system | user | assistant
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// SystemMessage and UserMessage build the two turns of a relay prompt.
func SystemMessage(content string) Message { return Message{Role: "system", Content: content} }

func UserMessage(content string) Message { return Message{Role: "user", Content: content} }

// Float returns a pointer to v, for optional request settings.
func Float(v float64) *float64 { return &v }
