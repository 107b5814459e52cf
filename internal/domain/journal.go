package domain

import (
	"context"
	"time"
)

// Journal records relay interactions for later inspection. Nothing in the
// relay reads it back.
type Journal interface {
	Record(ctx context.Context, it Interaction) error
	Recent(ctx context.Context, limit int) ([]Interaction, error)
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
	Close() error
}

type Interaction struct {
	ID             int64     `json:"id"`
	RequestID      string    `json:"request_id"`
	SessionID      string    `json:"session_id"`
	SenderID       string    `json:"sender_id"`
	Kind           string    `json:"kind"` // reply | template
	Intent         string    `json:"intent,omitempty"`
	Sentiment      string    `json:"sentiment,omitempty"`
	Confidence     float64   `json:"confidence,omitempty"`
	NextAction     string    `json:"next_action,omitempty"`
	Fallback       bool      `json:"fallback"`
	FallbackReason string    `json:"fallback_reason,omitempty"`
	SendStatus     int       `json:"send_status"`
	LatencyMs      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
