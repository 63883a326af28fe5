package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zimyouth/regbot/core/flow"
	"github.com/zimyouth/regbot/core/session"
	"github.com/zimyouth/regbot/core/ticket"
	"github.com/zimyouth/regbot/core/whatsapp"
)

type recordingMessenger struct {
	mu     sync.Mutex
	texts  []string
	images []string
}

func (m *recordingMessenger) SendText(_ context.Context, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendButtons(_ context.Context, _, body string, _ []whatsapp.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, body)
	return nil
}

func (m *recordingMessenger) SendImage(_ context.Context, _, imageURL, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.images = append(m.images, imageURL)
	return nil
}

func (m *recordingMessenger) UploadAndSendImage(_ context.Context, _ string, _ []byte, _ string) error {
	return nil
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, session.Registration) {}

type testStack struct {
	server    *Server
	sessions  *session.Store
	pending   *session.PendingStore
	messenger *recordingMessenger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	sessions := session.NewStore(time.Hour)
	pending := session.NewPendingStore(time.Hour)
	messenger := &recordingMessenger{}
	reconciler := ticket.NewReconciler(context.Background(), pending, sessions, messenger, nil,
		ticket.Options{InitialDelay: time.Hour, Interval: time.Hour, MaxAttempts: 1})
	engine := flow.NewEngine(sessions, messenger, noopDispatcher{})

	srv := New(Options{
		VerifyToken: "secret-token",
		Engine:      engine,
		Reconciler:  reconciler,
		Sessions:    sessions,
		Pending:     pending,
	})
	return &testStack{server: srv, sessions: sessions, pending: pending, messenger: messenger}
}

func (s *testStack) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.server.Handler().ServeHTTP(rec, req)
	return rec
}

func textEnvelope(from, body string) string {
	return fmt.Sprintf(`{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {"messages": [
			{"from": %q, "text": {"body": %q}}
		]}}]}]
	}`, from, body)
}

func TestVerifyWebhook(t *testing.T) {
	stack := newTestStack(t)

	t.Run("valid challenge echoed", func(t *testing.T) {
		rec := stack.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=secret-token&hub.challenge=12345", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Body.String(); got != "12345" {
			t.Fatalf("body = %q, want challenge echoed", got)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		rec := stack.do(http.MethodGet, "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("wrong mode rejected", func(t *testing.T) {
		rec := stack.do(http.MethodGet, "/webhook?hub.mode=unsubscribe&hub.verify_token=secret-token&hub.challenge=12345", "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("missing params rejected", func(t *testing.T) {
		rec := stack.do(http.MethodGet, "/webhook", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestReceiveMessage(t *testing.T) {
	t.Run("text message drives the conversation", func(t *testing.T) {
		stack := newTestStack(t)
		rec := stack.do(http.MethodPost, "/webhook", textEnvelope("263771234567", "hi"))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Body.String(); got != "EVENT_RECEIVED" {
			t.Fatalf("body = %q, want EVENT_RECEIVED", got)
		}
		if got := stack.sessions.Get("263771234567").State; got != session.StatePaymentCheck {
			t.Fatalf("state = %q, want %q", got, session.StatePaymentCheck)
		}
		if len(stack.messenger.texts) != 1 {
			t.Fatalf("sent %d messages, want 1", len(stack.messenger.texts))
		}
	})

	t.Run("status-only envelope acknowledged", func(t *testing.T) {
		stack := newTestStack(t)
		rec := stack.do(http.MethodPost, "/webhook", `{"object": "whatsapp_business_account", "entry": []}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if got := rec.Body.String(); got != "EVENT_RECEIVED" {
			t.Fatalf("body = %q, want EVENT_RECEIVED", got)
		}
		if len(stack.messenger.texts) != 0 {
			t.Fatalf("sent %d messages, want 0", len(stack.messenger.texts))
		}
	})

	t.Run("non-event payload gets 404", func(t *testing.T) {
		stack := newTestStack(t)
		rec := stack.do(http.MethodPost, "/webhook", `{"hello": "world"}`)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("malformed json gets 400", func(t *testing.T) {
		stack := newTestStack(t)
		rec := stack.do(http.MethodPost, "/webhook", `{not json`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestTicketReady(t *testing.T) {
	t.Run("push delivers armed ticket", func(t *testing.T) {
		stack := newTestStack(t)
		stack.pending.Arm("263771234567", session.Registration{
			FullName:       "Jane Doe",
			WhatsAppNumber: "263771234567",
		})
		stack.sessions.SetState("263771234567", session.StateGeneratingTicket)

		rec := stack.do(http.MethodPost, "/ticket-ready", `{
			"whatsappNumber": "263771234567",
			"ticketUrl": "https://drive.example/ticket.png",
			"ticketNumber": "YBS-0042",
			"userData": {"fullName": "Jane Doe"}
		}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}

		var resp struct {
			Success bool `json:"success"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if !resp.Success {
			t.Fatal("success = false, want true")
		}
		if len(stack.messenger.images) != 1 {
			t.Fatalf("delivered %d images, want 1", len(stack.messenger.images))
		}
		if got := stack.sessions.Get("263771234567").State; got != session.StateCompleted {
			t.Fatalf("state = %q, want %q", got, session.StateCompleted)
		}
	})

	t.Run("missing number gets 400", func(t *testing.T) {
		stack := newTestStack(t)
		rec := stack.do(http.MethodPost, "/ticket-ready", `{"ticketUrl": "https://x/y.png"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("missing url acknowledged without delivery", func(t *testing.T) {
		stack := newTestStack(t)
		stack.pending.Arm("263771234567", session.Registration{WhatsAppNumber: "263771234567"})

		rec := stack.do(http.MethodPost, "/ticket-ready", `{"whatsappNumber": "263771234567"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if len(stack.messenger.images) != 0 {
			t.Fatalf("delivered %d images, want 0", len(stack.messenger.images))
		}
		if !stack.pending.Armed("263771234567") {
			t.Fatal("pending entry claimed by url-less push")
		}
	})

	t.Run("duplicate push acknowledged without second delivery", func(t *testing.T) {
		stack := newTestStack(t)
		stack.pending.Arm("263771234567", session.Registration{WhatsAppNumber: "263771234567"})

		body := `{"whatsappNumber": "263771234567", "ticketUrl": "https://x/y.png"}`
		first := stack.do(http.MethodPost, "/ticket-ready", body)
		second := stack.do(http.MethodPost, "/ticket-ready", body)
		if first.Code != http.StatusOK || second.Code != http.StatusOK {
			t.Fatalf("statuses = %d, %d, want 200, 200", first.Code, second.Code)
		}
		if len(stack.messenger.images) != 1 {
			t.Fatalf("delivered %d images, want exactly 1", len(stack.messenger.images))
		}
	})
}

func TestHealth(t *testing.T) {
	stack := newTestStack(t)
	stack.sessions.SetState("u1", session.StatePaymentCheck)
	stack.sessions.SetState("u2", session.StateCollectingName)
	stack.pending.Arm("u1", session.Registration{WhatsAppNumber: "u1"})

	rec := stack.do(http.MethodGet, "/", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Status              string `json:"status"`
		ActiveRegistrations int    `json:"activeRegistrations"`
		PendingTickets      int    `json:"pendingTickets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ActiveRegistrations != 2 {
		t.Fatalf("activeRegistrations = %d, want 2", resp.ActiveRegistrations)
	}
	if resp.PendingTickets != 1 {
		t.Fatalf("pendingTickets = %d, want 1", resp.PendingTickets)
	}
	if resp.Status == "" {
		t.Fatal("status message empty")
	}
}

func TestUnknownPathNotFound(t *testing.T) {
	stack := newTestStack(t)
	rec := stack.do(http.MethodGet, "/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
