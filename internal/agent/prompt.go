package agent

import (
	"fmt"

	"wabridge/internal/domain"
)

// SystemPrompt instructs the model to act as the conversation engine and
// fixes the output contract parsed by ParseReply.
const SystemPrompt = `You are a WhatsApp customer conversation engine.

Rules:
- Always reply in English
- Be concise, polite, and helpful
- Ask follow-up questions if needed
- Decide what should happen next

Return ONLY valid JSON in this exact format:

{
  "reply": string,
  "intent": string,
  "sentiment": "positive" | "neutral" | "frustrated",
  "confidence": number,
  "next_action": string
}`

// BuildMessages returns the two turns sent for every inbound message: the
// fixed system prompt and one user turn. No history is included.
func BuildMessages(systemPrompt, sessionID, text string) []domain.Message {
	if systemPrompt == "" {
		systemPrompt = SystemPrompt
	}
	return []domain.Message{
		domain.SystemMessage(systemPrompt),
		domain.UserMessage(fmt.Sprintf("Session ID: %s\nUser message: %s", sessionID, text)),
	}
}
