package domain

import "time"

// EventKind classifies a webhook delivery. Providers multiplex message and
// status events onto the same endpoint.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status"
	EventUnknown EventKind = "unknown"
)

// InboundMessage is a single user message extracted from a webhook payload.
type InboundMessage struct {
	Channel   string
	MessageID string
	SenderID  string
	Content   string
	Timestamp time.Time
}

// Template references a pre-registered outbound message template.
type Template struct {
	Name     string
	Language string
}

// OutboundMessage is addressed to a recipient and carries either a template
// reference or free text.
type OutboundMessage struct {
	To       string
	Text     string
	Template *Template
}

// IsTemplate reports whether the message opens a session with a template.
func (m OutboundMessage) IsTemplate() bool { return m.Template != nil }
