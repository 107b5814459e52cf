package agent

import "strings"

// DefaultSessionPrefix namespaces WhatsApp senders in session identifiers.
const DefaultSessionPrefix = "whatsapp:"

// SessionID derives the correlation key for a sender. It is a pure function
// of its inputs; no session store backs it.
func SessionID(prefix, senderID string) string {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return prefix + strings.TrimSpace(senderID)
}
