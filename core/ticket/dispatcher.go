package ticket

import (
	"context"

	"log/slog"

	"github.com/zimyouth/regbot/core/logger"
	"github.com/zimyouth/regbot/core/session"
)

// Messenger is the outbound delivery surface the ticket subsystem uses.
type Messenger interface {
	SendText(ctx context.Context, to, body string) error
	SendImage(ctx context.Context, to, imageURL, caption string) error
	UploadAndSendImage(ctx context.Context, to string, image []byte, caption string) error
}

const ticketCaptionFormat = "🎟️ Here's your Youth Big Sabbath ticket, %s! See you there! 🙏"

func supportMessage(reference string) string {
	return "⚠️ Registration completed but there was an issue processing your request. " +
		"Please contact our support team with your reference number: " + reference
}

// Dispatcher submits completed registrations to the collaborator and
// arms the delivery reconciler. It fires at most once per session; the
// state machine's absorbing states guarantee the single trigger.
type Dispatcher struct {
	collaborator Collaborator
	sessions     *session.Store
	pending      *session.PendingStore
	reconciler   *Reconciler
	messenger    Messenger
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(collaborator Collaborator, sessions *session.Store, pending *session.PendingStore, reconciler *Reconciler, messenger Messenger) *Dispatcher {
	return &Dispatcher{
		collaborator: collaborator,
		sessions:     sessions,
		pending:      pending,
		reconciler:   reconciler,
		messenger:    messenger,
	}
}

// Dispatch submits the record and arms reconciliation. Collaborator
// failure is not fatal: the user is directed to support with their
// reference and the session is finalized so the conversation never
// hangs open.
func (d *Dispatcher) Dispatch(ctx context.Context, reg session.Registration) {
	user := reg.WhatsAppNumber

	ticketNumber, err := d.collaborator.RegisterUser(ctx, reg)
	if err != nil {
		logger.Error(ctx, "ticket", "dispatch.fail",
			slog.String("user", user),
			slog.String("err", err.Error()),
		)
		if sendErr := d.messenger.SendText(ctx, user, supportMessage(reg.EcocashReference)); sendErr != nil {
			logger.Error(ctx, "ticket", "dispatch.notify.fail",
				slog.String("user", user),
				slog.String("err", sendErr.Error()),
			)
		}
		d.sessions.SetState(user, session.StateCompleted)
		return
	}

	attrs := []slog.Attr{slog.String("user", user)}
	if ticketNumber != "" {
		attrs = append(attrs, slog.String("ticket_number", ticketNumber))
	}
	logger.Info(ctx, "ticket", "dispatch.success", attrs...)

	d.pending.Arm(user, reg)
	d.reconciler.StartPoll(user, reg)
}
