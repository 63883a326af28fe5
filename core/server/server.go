// Package server exposes the HTTP surface of the registration bot: the
// WhatsApp webhook pair, the collaborator push endpoint, and a health
// status endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/zimyouth/regbot/core/buildinfo"
	"github.com/zimyouth/regbot/core/flow"
	"github.com/zimyouth/regbot/core/logger"
	"github.com/zimyouth/regbot/core/session"
	"github.com/zimyouth/regbot/core/ticket"
	"github.com/zimyouth/regbot/core/whatsapp"
)

// Options wires the server to the rest of the service.
type Options struct {
	VerifyToken string
	Engine      *flow.Engine
	Reconciler  *ticket.Reconciler
	Sessions    *session.Store
	Pending     *session.PendingStore
}

// Server handles the webhook and status endpoints.
type Server struct {
	opts    Options
	handler http.Handler
}

// New builds the routed handler with recover and logging middleware.
func New(opts Options) *Server {
	s := &Server{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", s.verifyWebhook)
	mux.HandleFunc("POST /webhook", s.receiveMessage)
	mux.HandleFunc("POST /ticket-ready", s.ticketReady)
	mux.HandleFunc("GET /{$}", s.health)

	s.handler = recoverMiddleware(loggingMiddleware(mux))
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info(ctx, "http", "listening", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}

// verifyWebhook answers Meta's subscription challenge against the
// configured verification token.
func (s *Server) verifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		logger.Warn(r.Context(), "http", "webhook.verify.missing_params")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || token != s.opts.VerifyToken {
		logger.Warn(r.Context(), "http", "webhook.verify.rejected")
		w.WriteHeader(http.StatusForbidden)
		return
	}

	logger.Info(r.Context(), "http", "webhook.verified")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (s *Server) receiveMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	msg, ok, err := whatsapp.ParseEnvelope(body)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotAnEvent) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		logger.Warn(r.Context(), "http", "webhook.decode.fail", slog.String("err", err.Error()))
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if !ok {
		// Status updates and delivery receipts are acknowledged silently.
		_, _ = io.WriteString(w, "EVENT_RECEIVED")
		return
	}

	ctx := logger.WithHandler(logger.WithUser(r.Context(), msg.From), "webhook")
	if err := s.opts.Engine.HandleMessage(ctx, msg); err != nil {
		logger.Error(ctx, "http", "webhook.process.fail", slog.String("err", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	_, _ = io.WriteString(w, "EVENT_RECEIVED")
}

type ticketReadyRequest struct {
	WhatsAppNumber string               `json:"whatsappNumber"`
	TicketURL      string               `json:"ticketUrl"`
	UserData       session.Registration `json:"userData"`
	TicketNumber   string               `json:"ticketNumber"`
}

type ticketReadyResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ticketReady handles the collaborator's push notification that a
// ticket asset exists.
func (s *Server) ticketReady(w http.ResponseWriter, r *http.Request) {
	var req ticketReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ticketReadyResponse{Success: false, Error: "malformed payload"})
		return
	}
	if req.WhatsAppNumber == "" {
		writeJSON(w, http.StatusBadRequest, ticketReadyResponse{Success: false, Error: "whatsappNumber is required"})
		return
	}

	ctx := logger.WithHandler(logger.WithUser(r.Context(), req.WhatsAppNumber), "ticket-ready")
	logger.Info(ctx, "http", "ticket.ready",
		slog.String("ticket_url", logger.SanitizeLimit(req.TicketURL, 256)),
		slog.String("ticket_number", req.TicketNumber),
	)

	if req.TicketURL == "" {
		// Nothing to deliver; acknowledged so the collaborator does not retry.
		writeJSON(w, http.StatusOK, ticketReadyResponse{Success: true})
		return
	}

	if err := s.opts.Reconciler.HandlePush(ctx, req.WhatsAppNumber, req.TicketURL, req.UserData); err != nil {
		writeJSON(w, http.StatusInternalServerError, ticketReadyResponse{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ticketReadyResponse{Success: true})
}

type healthResponse struct {
	Status              string `json:"status"`
	Timestamp           string `json:"timestamp"`
	Version             string `json:"version"`
	ActiveRegistrations int    `json:"activeRegistrations"`
	PendingTickets      int    `json:"pendingTickets"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:              "Youth Big Sabbath Registration Bot is running!",
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		Version:             buildinfo.Version,
		ActiveRegistrations: s.opts.Sessions.Len(),
		PendingTickets:      s.opts.Pending.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
