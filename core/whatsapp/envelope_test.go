package whatsapp

import (
	"errors"
	"testing"
)

func TestParseEnvelopeTextMessage(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "263771234567", "text": {"body": "hi"}}
		]}}]}]
	}`)

	msg, ok, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if !ok {
		t.Fatal("ok = false, want message")
	}
	if msg.From != "263771234567" {
		t.Errorf("From = %q, want 263771234567", msg.From)
	}
	if msg.Body() != "hi" {
		t.Errorf("Body() = %q, want hi", msg.Body())
	}
}

func TestParseEnvelopeButtonReply(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "u1", "interactive": {"button_reply": {"id": "paid_yes", "title": "Yes, I paid"}}}
		]}}]}]
	}`)

	msg, ok, err := ParseEnvelope(body)
	if err != nil || !ok {
		t.Fatalf("ParseEnvelope: ok=%v err=%v", ok, err)
	}
	if msg.ButtonID != "paid_yes" {
		t.Errorf("ButtonID = %q, want paid_yes", msg.ButtonID)
	}
	if msg.Body() != "paid_yes" {
		t.Errorf("Body() = %q, want button id", msg.Body())
	}
}

func TestParseEnvelopeImage(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": "u1", "image": {"id": "media-123"}}
		]}}]}]
	}`)

	msg, ok, err := ParseEnvelope(body)
	if err != nil || !ok {
		t.Fatalf("ParseEnvelope: ok=%v err=%v", ok, err)
	}
	if !msg.HasImage {
		t.Error("HasImage = false, want true")
	}
	if msg.Body() != "image_received" {
		t.Errorf("Body() = %q, want image marker", msg.Body())
	}
}

func TestParseEnvelopeStatusUpdate(t *testing.T) {
	body := []byte(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"statuses": [{"status": "delivered"}]}}]}]
	}`)

	_, ok, err := ParseEnvelope(body)
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if ok {
		t.Error("ok = true for a status-only envelope")
	}
}

func TestParseEnvelopeNotAnEvent(t *testing.T) {
	_, _, err := ParseEnvelope([]byte(`{"hello": "world"}`))
	if !errors.Is(err, ErrNotAnEvent) {
		t.Fatalf("err = %v, want ErrNotAnEvent", err)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	_, _, err := ParseEnvelope([]byte(`{not json`))
	if err == nil {
		t.Fatal("err = nil for malformed payload")
	}
	if errors.Is(err, ErrNotAnEvent) {
		t.Fatal("malformed payload misreported as non-event")
	}
}

func TestBodyPrecedence(t *testing.T) {
	msg := InboundMessage{Text: "hello", ButtonID: "paid_no", HasImage: true}
	if msg.Body() != "paid_no" {
		t.Errorf("Body() = %q, want button id to win", msg.Body())
	}
	if (InboundMessage{}).Body() != "" {
		t.Error("empty message should yield empty body")
	}
}
