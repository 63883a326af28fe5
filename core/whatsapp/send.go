package whatsapp

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/zimyouth/regbot/core/logger"
)

// Button is a single interactive reply option.
type Button struct {
	ID    string
	Title string
}

type textPayload struct {
	Body string `json:"body"`
}

type imageLinkPayload struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type imageIDPayload struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

type buttonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type interactiveButton struct {
	Type  string      `json:"type"`
	Reply buttonReply `json:"reply"`
}

type interactivePayload struct {
	Type   string `json:"type"`
	Body   struct {
		Text string `json:"text"`
	} `json:"body"`
	Action struct {
		Buttons []interactiveButton `json:"buttons"`
	} `json:"action"`
}

type messageRequest struct {
	MessagingProduct string              `json:"messaging_product"`
	To               string              `json:"to"`
	Type             string              `json:"type"`
	Text             *textPayload        `json:"text,omitempty"`
	Image            any                 `json:"image,omitempty"`
	Interactive      *interactivePayload `json:"interactive,omitempty"`
}

type messageResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type mediaResponse struct {
	ID string `json:"id"`
}

func (c *Client) sendMessage(ctx context.Context, action string, req messageRequest) error {
	start := time.Now()
	var out messageResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(c.messagesPath())
	if err == nil {
		err = apiError(resp)
	}
	attrs := []slog.Attr{
		slog.String("action", action),
		slog.String("to", req.To),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Error(ctx, "wa", "send.fail", attrs...)
		return fmt.Errorf("whatsapp: %s to %s: %w", action, req.To, err)
	}
	if len(out.Messages) > 0 {
		attrs = append(attrs, slog.String("message_id", out.Messages[0].ID))
	}
	logger.Debug(ctx, "wa", "send.success", attrs...)
	return nil
}

// SendText sends a plain text message to the given WhatsApp number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	return c.sendMessage(ctx, "send.text", messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textPayload{Body: body},
	})
}

// SendImage sends an image by URL with an optional caption.
func (c *Client) SendImage(ctx context.Context, to, imageURL, caption string) error {
	return c.sendMessage(ctx, "send.image", messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            imageLinkPayload{Link: imageURL, Caption: caption},
	})
}

// UploadAndSendImage uploads PNG bytes to the media endpoint, then sends
// the image by the returned media id.
func (c *Client) UploadAndSendImage(ctx context.Context, to string, image []byte, caption string) error {
	start := time.Now()
	var media mediaResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", "ticket.png", bytes.NewReader(image)).
		SetFormData(map[string]string{
			"type":              "image/png",
			"messaging_product": "whatsapp",
		}).
		SetResult(&media).
		Post(c.mediaPath())
	if err == nil {
		err = apiError(resp)
	}
	if err != nil {
		logger.Error(ctx, "wa", "media.upload.fail",
			slog.String("to", to),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("whatsapp: media upload for %s: %w", to, err)
	}
	logger.Debug(ctx, "wa", "media.upload.success",
		slog.String("to", to),
		slog.String("media_id", media.ID),
		slog.Duration("duration", logger.Took(start)),
	)

	return c.sendMessage(ctx, "send.image.media", messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "image",
		Image:            imageIDPayload{ID: media.ID, Caption: caption},
	})
}

// SendButtons sends an interactive button message. A transport failure
// degrades to a plain-text send of the same body so the conversation
// can always continue.
func (c *Client) SendButtons(ctx context.Context, to, body string, buttons []Button) error {
	interactive := &interactivePayload{Type: "button"}
	interactive.Body.Text = body
	for _, b := range buttons {
		interactive.Action.Buttons = append(interactive.Action.Buttons, interactiveButton{
			Type:  "reply",
			Reply: buttonReply{ID: b.ID, Title: b.Title},
		})
	}

	err := c.sendMessage(ctx, "send.buttons", messageRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive:      interactive,
	})
	if err == nil {
		return nil
	}

	logger.Warn(ctx, "wa", "send.buttons.fallback",
		slog.String("to", to),
		slog.String("err", err.Error()),
	)
	return c.SendText(ctx, to, body)
}
