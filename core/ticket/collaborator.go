// Package ticket owns everything after a registration record is
// complete: submission to the external generation collaborator, and the
// reconciliation of the two delivery paths (collaborator push and local
// storage poll) so the rendered ticket reaches the user exactly once.
package ticket

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	coreconfig "github.com/zimyouth/regbot/core/config"
	"github.com/zimyouth/regbot/core/netutil"
	"github.com/zimyouth/regbot/core/session"
)

// Collaborator is the request/response contract of the external
// ticket-generation service.
type Collaborator interface {
	RegisterUser(ctx context.Context, reg session.Registration) (ticketNumber string, err error)
}

// CollaboratorClient talks to the Apps Script endpoint that persists
// the registration and renders the ticket.
type CollaboratorClient struct {
	http *resty.Client
	url  string
}

// NewCollaboratorClient builds the client from configuration.
func NewCollaboratorClient(cfg coreconfig.CollaboratorConfig) *CollaboratorClient {
	httpClient := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return netutil.ShouldRetry(err)
		})
	return &CollaboratorClient{http: httpClient, url: cfg.URL}
}

type registerRequest struct {
	Action   string               `json:"action"`
	UserData session.Registration `json:"userData"`
}

type registerResponse struct {
	Success      bool   `json:"success"`
	TicketNumber string `json:"ticketNumber"`
	Error        string `json:"error"`
}

// RegisterUser submits the completed record. The collaborator records
// it durably on success; the assigned ticket number is informational.
func (c *CollaboratorClient) RegisterUser(ctx context.Context, reg session.Registration) (string, error) {
	if c.url == "" {
		return "", fmt.Errorf("ticket: collaborator URL not configured")
	}

	var out registerResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(registerRequest{Action: "registerUser", UserData: reg}).
		SetResult(&out).
		Post(c.url)
	if err != nil {
		return "", fmt.Errorf("ticket: collaborator call: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("ticket: collaborator status %d: %s", resp.StatusCode(), resp.String())
	}
	if !out.Success {
		return "", fmt.Errorf("ticket: collaborator rejected registration: %s", out.Error)
	}
	return out.TicketNumber, nil
}
