// Package flow implements the registration conversation state machine.
// Each step either rejects the input with a canonical re-prompt and no
// state change, or records the validated field, advances the state, and
// emits exactly one outbound prompt.
package flow

import (
	"context"
	"strings"

	"log/slog"

	"github.com/zimyouth/regbot/core/logger"
	"github.com/zimyouth/regbot/core/session"
	"github.com/zimyouth/regbot/core/whatsapp"
)

// Transport is the outbound messaging surface the engine drives.
type Transport interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, buttons []whatsapp.Button) error
}

// Dispatcher receives a completed registration record exactly once per
// session and owns everything after that point: collaborator submission,
// arming the delivery reconciler, and failure messaging.
type Dispatcher interface {
	Dispatch(ctx context.Context, reg session.Registration)
}

// Engine routes each inbound message through the handler for the
// sender's current conversation state.
type Engine struct {
	sessions   *session.Store
	transport  Transport
	dispatcher Dispatcher
}

// NewEngine wires the state machine to its stores and collaborators.
func NewEngine(sessions *session.Store, transport Transport, dispatcher Dispatcher) *Engine {
	return &Engine{
		sessions:   sessions,
		transport:  transport,
		dispatcher: dispatcher,
	}
}

// HandleMessage advances the sender's conversation by one step.
func (e *Engine) HandleMessage(ctx context.Context, msg whatsapp.InboundMessage) error {
	sess := e.sessions.Get(msg.From)
	body := msg.Body()
	lower := strings.ToLower(strings.TrimSpace(body))

	logger.Debug(ctx, "flow", "message.received",
		slog.String("state", string(sess.State)),
		slog.String("payload", logger.SanitizeLimit(body, 256)),
	)

	switch sess.State {
	case session.StateInitial:
		return e.handleInitial(ctx, msg.From, lower)
	case session.StatePaymentCheck:
		return e.handlePaymentCheck(ctx, msg.From, sess, lower)
	case session.StateAwaitingPayment:
		return e.handlePaymentReturn(ctx, msg.From, sess, lower)
	case session.StateCollectingName:
		return e.collectName(ctx, msg.From, sess, body)
	case session.StateCollectingPhone:
		return e.collectPhone(ctx, msg.From, sess, body)
	case session.StateCollectingEmail:
		return e.collectEmail(ctx, msg.From, sess, body)
	case session.StateCollectingChurch:
		return e.collectChurch(ctx, msg.From, sess, body)
	case session.StateCollectingReference:
		return e.collectReference(ctx, msg.From, sess, body)
	case session.StateCollectingScreenshot:
		return e.collectScreenshot(ctx, msg, sess, lower)
	case session.StateGeneratingTicket:
		// Absorbing until a delivery path finalizes the session.
		return e.transport.SendText(ctx, msg.From, promptGenerating)
	case session.StateCompleted:
		// Absorbing terminal state; guards against replays and re-greetings.
		return e.transport.SendText(ctx, msg.From, promptCompleted)
	default:
		return e.handleInitial(ctx, msg.From, lower)
	}
}

func isGreeting(lower string) bool {
	for _, w := range []string{"hi", "hello", "hey", "start"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func (e *Engine) handleInitial(ctx context.Context, from, lower string) error {
	if !isGreeting(lower) {
		return e.transport.SendText(ctx, from, promptGreetingHint)
	}

	buttons := []whatsapp.Button{
		{ID: ButtonPaidYes, Title: "✅ Yes, I paid"},
		{ID: ButtonPaidNo, Title: "❌ Not yet"},
	}
	if err := e.transport.SendButtons(ctx, from, promptPaymentCheck, buttons); err != nil {
		return err
	}
	e.sessions.Put(from, &session.Session{
		State: session.StatePaymentCheck,
		Data:  session.Registration{WhatsAppNumber: from},
	})
	return nil
}

func (e *Engine) handlePaymentCheck(ctx context.Context, from string, sess *session.Session, lower string) error {
	switch {
	// The negative branch is checked first: "paid_no" contains "paid"
	// and would otherwise match the affirmative substring checks.
	case lower == ButtonPaidNo || strings.Contains(lower, "no") || strings.Contains(lower, "not"):
		if err := e.transport.SendText(ctx, from, promptPaymentInstructions); err != nil {
			return err
		}
		sess.State = session.StateAwaitingPayment
		e.sessions.Put(from, sess)
		return nil
	case lower == ButtonPaidYes || strings.Contains(lower, "yes") || strings.Contains(lower, "paid"):
		if err := e.transport.SendText(ctx, from, promptAskName); err != nil {
			return err
		}
		sess.State = session.StateCollectingName
		e.sessions.Put(from, sess)
		return nil
	default:
		return e.transport.SendText(ctx, from, promptYesNo)
	}
}

func (e *Engine) handlePaymentReturn(ctx context.Context, from string, sess *session.Session, lower string) error {
	if strings.Contains(lower, "paid") || strings.Contains(lower, "done") || strings.Contains(lower, "completed") {
		if err := e.transport.SendText(ctx, from, promptAskNameAgain); err != nil {
			return err
		}
		sess.State = session.StateCollectingName
		e.sessions.Put(from, sess)
		return nil
	}
	return e.transport.SendText(ctx, from, promptPaymentReminder)
}

func (e *Engine) collectName(ctx context.Context, from string, sess *session.Session, body string) error {
	if !ValidName(body) {
		return e.transport.SendText(ctx, from, promptMinChars("full name", 2))
	}
	sess.Data.FullName = strings.TrimSpace(body)
	sess.State = session.StateCollectingPhone
	e.sessions.Put(from, sess)
	return e.transport.SendText(ctx, from, promptAskPhone)
}

func (e *Engine) collectPhone(ctx context.Context, from string, sess *session.Session, body string) error {
	if !ValidPhone(body) {
		return e.transport.SendText(ctx, from, promptInvalidFormat("phone number", "0771234567 or +263771234567"))
	}
	sess.Data.PhoneNumber = strings.TrimSpace(body)
	sess.State = session.StateCollectingEmail
	e.sessions.Put(from, sess)
	return e.transport.SendText(ctx, from, promptAskEmail)
}

func (e *Engine) collectEmail(ctx context.Context, from string, sess *session.Session, body string) error {
	if !ValidEmail(body) {
		return e.transport.SendText(ctx, from, promptInvalidFormat("email address", "example@gmail.com"))
	}
	sess.Data.Email = strings.TrimSpace(body)
	sess.State = session.StateCollectingChurch
	e.sessions.Put(from, sess)
	return e.transport.SendText(ctx, from, promptAskChurch)
}

func (e *Engine) collectChurch(ctx context.Context, from string, sess *session.Session, body string) error {
	if !ValidChurch(body) {
		return e.transport.SendText(ctx, from, promptMinChars("church name", 2))
	}
	sess.Data.ChurchName = strings.TrimSpace(body)
	sess.State = session.StateCollectingReference
	e.sessions.Put(from, sess)
	return e.transport.SendText(ctx, from, promptAskReference)
}

func (e *Engine) collectReference(ctx context.Context, from string, sess *session.Session, body string) error {
	if !ValidReference(body) {
		return e.transport.SendText(ctx, from, promptMinChars("EcoCash reference number", 5))
	}
	sess.Data.EcocashReference = strings.TrimSpace(body)
	sess.Data.WhatsAppNumber = from
	sess.State = session.StateCollectingScreenshot
	e.sessions.Put(from, sess)
	return e.transport.SendText(ctx, from, promptAskScreenshot)
}

func (e *Engine) collectScreenshot(ctx context.Context, msg whatsapp.InboundMessage, sess *session.Session, lower string) error {
	from := msg.From
	switch {
	case msg.HasImage:
		sess.Data.PaymentScreenshot = "Image received"
	case strings.Contains(lower, "skip"):
		sess.Data.PaymentScreenshot = "Skipped - will verify via reference"
	default:
		return e.transport.SendText(ctx, from, promptInvalidFormat("payment screenshot", "send the image or type 'SKIP'"))
	}

	// Moving to StateGeneratingTicket is the single dispatch trigger;
	// once past this point the absorbing states above prevent a refire.
	sess.State = session.StateGeneratingTicket
	e.sessions.Put(from, sess)

	if err := e.transport.SendText(ctx, from, summaryMessage(sess.Data)); err != nil {
		logger.Warn(ctx, "flow", "summary.send.fail", slog.String("err", err.Error()))
	}

	logger.Info(ctx, "flow", "registration.collected",
		slog.String("name", logger.SanitizeLimit(sess.Data.FullName, 64)),
		slog.String("reference", logger.SanitizeLimit(sess.Data.EcocashReference, 32)),
	)
	e.dispatcher.Dispatch(ctx, sess.Data)
	return nil
}
