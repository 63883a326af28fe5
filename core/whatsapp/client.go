// Package whatsapp implements the outbound transport adapter for the
// WhatsApp Cloud API and parsing of inbound webhook envelopes.
package whatsapp

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	coreconfig "github.com/zimyouth/regbot/core/config"
	"github.com/zimyouth/regbot/core/netutil"
)

const (
	defaultBaseURL = "https://graph.facebook.com"

	defaultDialTimeout     = 5 * time.Second
	defaultTLSHandshake    = 5 * time.Second
	defaultIdleConnTimeout = 30 * time.Second
	defaultClientTimeout   = 30 * time.Second
	defaultRetryAttempts   = 3
	defaultRetryBackoff    = 2 * time.Second
)

// APIError carries a non-2xx Graph API response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp: graph api status %d: %s", e.StatusCode, e.Body)
}

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	http          *resty.Client
	phoneNumberID string
}

// NewClient builds a Client from configuration with retrying transport.
func NewClient(cfg coreconfig.WhatsAppConfig) *Client {
	base := cfg.APIBaseURL
	if base == "" {
		base = defaultBaseURL
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: defaultDialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     defaultIdleConnTimeout,
		TLSHandshakeTimeout: defaultTLSHandshake,
	}

	httpClient := resty.New().
		SetBaseURL(fmt.Sprintf("%s/%s", base, cfg.APIVersion)).
		SetAuthToken(cfg.Token).
		SetTimeout(defaultClientTimeout).
		SetTransport(transport).
		SetRetryCount(defaultRetryAttempts).
		SetRetryWaitTime(defaultRetryBackoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return netutil.ShouldRetry(err)
		})

	return &Client{
		http:          httpClient,
		phoneNumberID: cfg.PhoneNumberID,
	}
}

func (c *Client) messagesPath() string {
	return fmt.Sprintf("/%s/messages", c.phoneNumberID)
}

func (c *Client) mediaPath() string {
	return fmt.Sprintf("/%s/media", c.phoneNumberID)
}

func apiError(resp *resty.Response) error {
	if resp == nil {
		return fmt.Errorf("whatsapp: nil response")
	}
	if !resp.IsError() {
		return nil
	}
	return &APIError{StatusCode: resp.StatusCode(), Body: resp.String()}
}
