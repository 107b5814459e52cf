package domain

import "fmt"

// Sentiment is the model's read of the user's mood.
type Sentiment string

const (
	SentimentPositive   Sentiment = "positive"
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
)

// Valid reports whether s is one of the enumerated sentiments.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentFrustrated:
		return true
	}
	return false
}

// NextActionHandoff asks a human agent to take over the conversation.
const NextActionHandoff = "human_handoff"

// Reply is the structured answer relayed for every inbound message.
// It is always fully populated: either parsed and validated, or FallbackReply.
type Reply struct {
	Reply      string    `json:"reply"`
	Intent     string    `json:"intent"`
	Sentiment  Sentiment `json:"sentiment"`
	Confidence float64   `json:"confidence"`
	NextAction string    `json:"next_action"`
}

func (r Reply) String() string {
	return fmt.Sprintf("intent=%s sentiment=%s confidence=%.2f next=%s", r.Intent, r.Sentiment, r.Confidence, r.NextAction)
}

// FallbackReplyText is sent whenever the completion backend cannot be trusted.
const FallbackReplyText = "Thanks for your message. A support agent will follow up shortly."

// FallbackReply returns the fixed reply substituted on any completion failure.
func FallbackReply() Reply {
	return Reply{
		Reply:      FallbackReplyText,
		Intent:     "fallback",
		Sentiment:  SentimentNeutral,
		Confidence: 0.1,
		NextAction: NextActionHandoff,
	}
}
