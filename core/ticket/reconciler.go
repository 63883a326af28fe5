package ticket

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	"github.com/zimyouth/regbot/core/logger"
	"github.com/zimyouth/regbot/core/session"
)

// AssetFinder searches the collaborator's storage for a rendered
// ticket image matching the user's identifying attributes.
type AssetFinder interface {
	FindTicket(ctx context.Context, name, email string) (image []byte, found bool, err error)
}

const stillProcessingMessage = "⏰ Your ticket is being generated and will be sent to your email shortly. " +
	"If you don't receive it within 10 minutes, please contact our support team."

// Options bounds the poll loop.
type Options struct {
	InitialDelay time.Duration
	Interval     time.Duration
	MaxAttempts  int
}

// Reconciler resolves each armed ticket request exactly once. The push
// path (collaborator webhook) and the poll path (bounded storage
// search) both funnel through PendingStore.Claim; only the claimant
// delivers, the loser aborts without side effects.
type Reconciler struct {
	pending   *session.PendingStore
	sessions  *session.Store
	messenger Messenger
	finder    AssetFinder
	opts      Options

	// baseCtx parents all poll chains so shutdown cancels them.
	baseCtx context.Context
}

// NewReconciler wires the reconciler. finder may be nil when no storage
// search is configured; the poll path then degrades to exhaustion.
func NewReconciler(baseCtx context.Context, pending *session.PendingStore, sessions *session.Store, messenger Messenger, finder AssetFinder, opts Options) *Reconciler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if opts.InitialDelay <= 0 {
		opts.InitialDelay = 5 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 12
	}
	return &Reconciler{
		pending:   pending,
		sessions:  sessions,
		messenger: messenger,
		finder:    finder,
		opts:      opts,
		baseCtx:   baseCtx,
	}
}

// HandlePush resolves a collaborator push notification. A push for a
// user with no armed request is a no-op, not an error: the poll path
// or an earlier push already completed delivery.
func (r *Reconciler) HandlePush(ctx context.Context, user, ticketURL string, reg session.Registration) error {
	if ticketURL == "" {
		return fmt.Errorf("ticket: push for %s carries no asset locator", user)
	}

	claimed, ok := r.pending.Claim(user)
	if !ok {
		logger.Info(ctx, "ticket", "push.duplicate", slog.String("user", user))
		return nil
	}

	name := reg.FullName
	if name == "" {
		name = claimed.Registration.FullName
	}
	if name == "" {
		name = "there"
	}

	if err := r.messenger.SendImage(ctx, user, ticketURL, fmt.Sprintf(ticketCaptionFormat, name)); err != nil {
		// The claim is spent; keep the terminal guarantee by finishing
		// the session and pointing the user at support.
		logger.Error(ctx, "ticket", "push.deliver.fail",
			slog.String("user", user),
			slog.String("err", err.Error()),
		)
		if sendErr := r.messenger.SendText(ctx, user, supportMessage(claimed.Registration.EcocashReference)); sendErr != nil {
			logger.Error(ctx, "ticket", "push.notify.fail",
				slog.String("user", user),
				slog.String("err", sendErr.Error()),
			)
		}
		r.sessions.SetState(user, session.StateCompleted)
		return err
	}

	r.sessions.SetState(user, session.StateCompleted)
	logger.Info(ctx, "ticket", "push.delivered", slog.String("user", user))
	return nil
}

// StartPoll launches the background poll chain for a freshly armed
// request.
func (r *Reconciler) StartPoll(user string, reg session.Registration) {
	go r.poll(r.baseCtx, user, reg)
}

func (r *Reconciler) poll(ctx context.Context, user string, reg session.Registration) {
	if !r.sleep(ctx, r.opts.InitialDelay) {
		return
	}

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		// The push path cancels us implicitly: once the pending entry is
		// gone there is nothing left to deliver.
		if !r.pending.Armed(user) {
			logger.Debug(ctx, "ticket", "poll.abort",
				slog.String("user", user),
				slog.Int("attempt", attempt),
			)
			return
		}

		logger.Debug(ctx, "ticket", "poll.attempt",
			slog.String("user", user),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.opts.MaxAttempts),
		)

		if r.finder != nil {
			image, found, err := r.finder.FindTicket(ctx, reg.FullName, reg.Email)
			if err != nil {
				logger.Warn(ctx, "ticket", "poll.search.fail",
					slog.String("user", user),
					slog.Int("attempt", attempt),
					slog.String("err", err.Error()),
				)
			} else if found {
				r.deliverFound(ctx, user, reg, image)
				return
			}
		}

		if attempt < r.opts.MaxAttempts {
			if !r.sleep(ctx, r.opts.Interval) {
				return
			}
		}
	}

	r.exhaust(ctx, user)
}

func (r *Reconciler) deliverFound(ctx context.Context, user string, reg session.Registration, image []byte) {
	claimed, ok := r.pending.Claim(user)
	if !ok {
		// Push won between our search and the claim.
		logger.Debug(ctx, "ticket", "poll.claim.lost", slog.String("user", user))
		return
	}

	name := reg.FullName
	if name == "" {
		name = claimed.Registration.FullName
	}
	if err := r.messenger.UploadAndSendImage(ctx, user, image, fmt.Sprintf(ticketCaptionFormat, name)); err != nil {
		logger.Error(ctx, "ticket", "poll.deliver.fail",
			slog.String("user", user),
			slog.String("err", err.Error()),
		)
		if sendErr := r.messenger.SendText(ctx, user, supportMessage(claimed.Registration.EcocashReference)); sendErr != nil {
			logger.Error(ctx, "ticket", "poll.notify.fail",
				slog.String("user", user),
				slog.String("err", sendErr.Error()),
			)
		}
	} else {
		logger.Info(ctx, "ticket", "poll.delivered", slog.String("user", user))
	}
	r.sessions.SetState(user, session.StateCompleted)
}

// exhaust finalizes a request whose poll budget ran out without a
// match. Not a failure: the ticket is still coming by email.
func (r *Reconciler) exhaust(ctx context.Context, user string) {
	if _, ok := r.pending.Claim(user); !ok {
		return
	}

	if err := r.messenger.SendText(ctx, user, stillProcessingMessage); err != nil {
		logger.Error(ctx, "ticket", "poll.exhaust.notify.fail",
			slog.String("user", user),
			slog.String("err", err.Error()),
		)
	}
	r.sessions.SetState(user, session.StateCompleted)
	logger.Info(ctx, "ticket", "poll.exhausted", slog.String("user", user))
}

// ExpirePending is the janitor hook for pending entries that neither
// path ever resolved; it closes the conversation without messaging.
func (r *Reconciler) ExpirePending(user string, ticket session.PendingTicket) {
	logger.Warn(context.Background(), "ticket", "pending.expired",
		slog.String("user", user),
		slog.Time("submitted_at", ticket.SubmittedAt),
	)
	r.sessions.SetState(user, session.StateCompleted)
}

func (r *Reconciler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
