package whatsapp

import (
	"encoding/json"
	"fmt"
)

// InboundMessage is the normalized form of one incoming user message.
type InboundMessage struct {
	From     string
	Text     string
	ButtonID string
	HasImage bool
}

// Body returns the single input value the conversation engine consumes:
// the button reply id when present, otherwise the text body, otherwise
// an image marker.
func (m InboundMessage) Body() string {
	switch {
	case m.ButtonID != "":
		return m.ButtonID
	case m.Text != "":
		return m.Text
	case m.HasImage:
		return "image_received"
	default:
		return ""
	}
}

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Messages []inboundPayload `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type inboundPayload struct {
	From string `json:"from"`
	Text *struct {
		Body string `json:"body"`
	} `json:"text"`
	Interactive *struct {
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
	Image *struct {
		ID string `json:"id"`
	} `json:"image"`
}

// ErrNotAnEvent indicates the payload is not a WhatsApp webhook envelope.
var ErrNotAnEvent = fmt.Errorf("whatsapp: payload is not a webhook event")

// ParseEnvelope extracts the first message from a webhook payload.
// The second return value is false for valid envelopes that carry no
// user message (delivery receipts, status updates).
func ParseEnvelope(body []byte) (InboundMessage, bool, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return InboundMessage{}, false, fmt.Errorf("whatsapp: decode envelope: %w", err)
	}
	if env.Object == "" {
		return InboundMessage{}, false, ErrNotAnEvent
	}
	if len(env.Entry) == 0 || len(env.Entry[0].Changes) == 0 {
		return InboundMessage{}, false, nil
	}
	msgs := env.Entry[0].Changes[0].Value.Messages
	if len(msgs) == 0 {
		return InboundMessage{}, false, nil
	}

	p := msgs[0]
	msg := InboundMessage{From: p.From}
	switch {
	case p.Text != nil:
		msg.Text = p.Text.Body
	case p.Interactive != nil && p.Interactive.ButtonReply != nil:
		msg.ButtonID = p.Interactive.ButtonReply.ID
	case p.Image != nil:
		msg.HasImage = true
	}
	return msg, true, nil
}
