package domain

import "context"

// Sender is the outbound half of a messaging channel.
type Sender interface {
	SendText(ctx context.Context, to, body string) (SendResult, error)
	SendTemplate(ctx context.Context, to string, tmpl Template) (SendResult, error)
}

// SendResult carries the provider's raw answer to a send call for logging.
type SendResult struct {
	StatusCode int
	Body       string
}

// OK reports a 2xx provider response.
func (r SendResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
