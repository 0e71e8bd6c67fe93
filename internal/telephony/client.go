// Package telephony talks to the Twilio call-control REST API. The relay
// uses it for exactly one thing: speak a final message on a live call and
// hang up.
package telephony

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/covox/relay/pkg/logging"
)

const (
	defaultTwilioBaseURL = "https://api.twilio.com"
	twilioCallTimeout    = 15 * time.Second
)

// Client updates live calls via the Twilio Calls API.
type Client struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// Config configures the call-control client.
type Config struct {
	// AccountSID is the Twilio account SID.
	AccountSID string
	// AuthToken is the Twilio auth token (basic auth password).
	AuthToken string
	// BaseURL overrides the Twilio API base URL (for testing).
	BaseURL string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewClient creates a call-control client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccountSID) == "" {
		return nil, fmt.Errorf("telephony: account SID required")
	}
	if strings.TrimSpace(cfg.AuthToken) == "" {
		return nil, fmt.Errorf("telephony: auth token required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: twilioCallTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// EndCallWithMessage replaces the live call's instructions with TwiML that
// speaks the message and hangs up.
func (c *Client) EndCallWithMessage(ctx context.Context, callSid, message string) error {
	if strings.TrimSpace(callSid) == "" {
		return fmt.Errorf("telephony: call SID required")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		c.baseURL, url.PathEscape(c.accountSID), url.PathEscape(callSid))

	form := url.Values{}
	form.Set("Twiml", hangupTwiML(message))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	c.logger.Info("telephony: ending call", "call_sid", callSid)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telephony: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("telephony: API error",
			"status", resp.StatusCode,
			"call_sid", callSid,
			"body", string(body),
		)
		return fmt.Errorf("telephony: API returned %d: %s", resp.StatusCode, string(body))
	}

	c.logger.Info("telephony: call ended", "call_sid", callSid)
	return nil
}

// hangupTwiML builds the <Say> + <Hangup> document, escaping the message.
func hangupTwiML(message string) string {
	var sb strings.Builder
	sb.WriteString("<Response>")
	if strings.TrimSpace(message) != "" {
		sb.WriteString("<Say>")
		_ = xml.EscapeText(&sb, []byte(message))
		sb.WriteString("</Say>")
	}
	sb.WriteString("<Hangup/></Response>")
	return sb.String()
}
