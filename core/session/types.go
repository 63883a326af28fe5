// Package session provides the TTL-bounded in-memory stores that hold
// per-user conversation state and armed ticket requests. State lives
// only for the process lifetime; a restart loses in-flight
// conversations, which is acceptable because the collaborator records
// registrations durably on its own side.
package session

import "time"

// State identifies a step of the registration conversation.
type State string

const (
	// StateInitial indicates no conversation has started yet.
	StateInitial State = "initial"
	// StatePaymentCheck waits for the yes/no payment answer.
	StatePaymentCheck State = "payment_check"
	// StateAwaitingPayment waits for the user to return after paying.
	StateAwaitingPayment State = "awaiting_payment"
	// StateCollectingName waits for the full name.
	StateCollectingName State = "collecting_name"
	// StateCollectingPhone waits for the phone number.
	StateCollectingPhone State = "collecting_phone"
	// StateCollectingEmail waits for the email address.
	StateCollectingEmail State = "collecting_email"
	// StateCollectingChurch waits for the church name.
	StateCollectingChurch State = "collecting_church"
	// StateCollectingReference waits for the EcoCash reference.
	StateCollectingReference State = "collecting_reference"
	// StateCollectingScreenshot waits for the payment screenshot or SKIP.
	StateCollectingScreenshot State = "collecting_screenshot"
	// StateGeneratingTicket means the record was dispatched and delivery is pending.
	StateGeneratingTicket State = "generating_ticket"
	// StateCompleted is the terminal state; the ticket outcome was delivered.
	StateCompleted State = "completed"
)

// Registration accumulates the validated answers of one conversant.
// Fields are only ever added or overwritten, never removed, until the
// session expires.
type Registration struct {
	FullName          string `json:"fullName"`
	PhoneNumber       string `json:"phoneNumber"`
	Email             string `json:"email"`
	ChurchName        string `json:"churchName"`
	EcocashReference  string `json:"ecocashReference"`
	PaymentScreenshot string `json:"paymentScreenshot"`
	WhatsAppNumber    string `json:"whatsappNumber"`
}

// Session stores conversation state and collected data for a user.
type Session struct {
	State State
	Data  Registration
}

// PendingTicket is an armed ticket request awaiting delivery by either
// the push or the poll path. Its presence is the sole signal that a
// reconciliation path may still act for the user.
type PendingTicket struct {
	Registration Registration
	SubmittedAt  time.Time
}
