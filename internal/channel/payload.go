package channel

import (
	"time"

	"github.com/tidwall/gjson"

	"wabridge/internal/domain"
)

// ClassifyEvent inspects a raw webhook body without decoding it. Any change
// carrying a messages array makes it a message event; status receipts and
// everything else are acknowledged and dropped.
func ClassifyEvent(body []byte) domain.EventKind {
	kind := domain.EventUnknown
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			value := change.Get("value")
			if value.Get("messages").IsArray() {
				kind = domain.EventMessage
				return false
			}
			if value.Get("statuses").IsArray() {
				kind = domain.EventStatus
			}
			return true
		})
		return kind != domain.EventMessage
	})
	return kind
}

// ExtractMessages returns every text message in the payload in delivery
// order. Only from and text.body are required; other fields are read
// leniently so a provider schema change cannot drop a message. Messages
// with an explicit non-text type (media, reactions) are skipped.
func ExtractMessages(body []byte) []domain.InboundMessage {
	var out []domain.InboundMessage
	gjson.GetBytes(body, "entry").ForEach(func(_, entry gjson.Result) bool {
		entry.Get("changes").ForEach(func(_, change gjson.Result) bool {
			change.Get("value.messages").ForEach(func(_, msg gjson.Result) bool {
				if m, ok := textMessage(msg); ok {
					out = append(out, m)
				}
				return true
			})
			return true
		})
		return true
	})
	return out
}

func textMessage(msg gjson.Result) (domain.InboundMessage, bool) {
	if t := msg.Get("type"); t.Exists() && t.String() != "text" {
		return domain.InboundMessage{}, false
	}
	text := msg.Get("text.body")
	from := msg.Get("from").String()
	if text.Type != gjson.String || from == "" {
		return domain.InboundMessage{}, false
	}
	return domain.InboundMessage{
		Channel:   "whatsapp",
		MessageID: msg.Get("id").String(),
		SenderID:  from,
		Content:   text.String(),
		Timestamp: unixTime(msg.Get("timestamp")),
	}, true
}

// unixTime accepts the timestamp as a string (Cloud API) or a number.
func unixTime(r gjson.Result) time.Time {
	if sec := r.Int(); sec > 0 {
		return time.Unix(sec, 0)
	}
	return time.Now()
}
