package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"wabridge/internal/domain"
)

var (
	ErrEmptyOutput = errors.New("model returned empty output")
	ErrInvalidJSON = errors.New("model output is not a JSON object")
)

// SchemaError reports a JSON object that does not match the reply shape.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("reply schema: %s %s", e.Field, e.Reason)
}

// wireReply mirrors domain.Reply with pointers so missing fields are detectable.
type wireReply struct {
	Reply      *string  `json:"reply"`
	Intent     *string  `json:"intent"`
	Sentiment  *string  `json:"sentiment"`
	Confidence *float64 `json:"confidence"`
	NextAction *string  `json:"next_action"`
}

// ParseReply validates raw model output against the reply contract. The
// output must be one JSON object, optionally wrapped in a markdown code fence.
func ParseReply(raw string) (domain.Reply, error) {
	content := stripCodeFence(strings.TrimSpace(raw))
	if content == "" {
		return domain.Reply{}, ErrEmptyOutput
	}
	if !strings.HasPrefix(content, "{") || !json.Valid([]byte(content)) {
		return domain.Reply{}, ErrInvalidJSON
	}

	var w wireReply
	if err := json.Unmarshal([]byte(content), &w); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.Reply{}, &SchemaError{Field: typeErr.Field, Reason: "has wrong type " + typeErr.Value}
		}
		return domain.Reply{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	switch {
	case w.Reply == nil:
		return domain.Reply{}, &SchemaError{Field: "reply", Reason: "is missing"}
	case strings.TrimSpace(*w.Reply) == "":
		return domain.Reply{}, &SchemaError{Field: "reply", Reason: "is empty"}
	case w.Intent == nil:
		return domain.Reply{}, &SchemaError{Field: "intent", Reason: "is missing"}
	case w.Sentiment == nil:
		return domain.Reply{}, &SchemaError{Field: "sentiment", Reason: "is missing"}
	case !domain.Sentiment(*w.Sentiment).Valid():
		return domain.Reply{}, &SchemaError{Field: "sentiment", Reason: fmt.Sprintf("has unknown value %q", *w.Sentiment)}
	case w.Confidence == nil:
		return domain.Reply{}, &SchemaError{Field: "confidence", Reason: "is missing"}
	case math.IsNaN(*w.Confidence) || *w.Confidence < 0 || *w.Confidence > 1:
		return domain.Reply{}, &SchemaError{Field: "confidence", Reason: "is outside [0,1]"}
	case w.NextAction == nil:
		return domain.Reply{}, &SchemaError{Field: "next_action", Reason: "is missing"}
	}

	return domain.Reply{
		Reply:      *w.Reply,
		Intent:     *w.Intent,
		Sentiment:  domain.Sentiment(*w.Sentiment),
		Confidence: *w.Confidence,
		NextAction: *w.NextAction,
	}, nil
}

// stripCodeFence removes a surrounding ``` or ```json fence. Smaller models
// often wrap JSON output in one despite the instruction.
func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) >= 3 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return content
}
