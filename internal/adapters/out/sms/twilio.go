// Package sms sends text messages through the Twilio REST API.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"freight/internal/adapters/out/httpx"
	"freight/internal/core/ports"
	"freight/internal/pkg/errs"
	"freight/internal/workflow"
)

const (
	DefaultBaseURL = "https://api.twilio.com"
	defaultTimeout = 10 * time.Second
)

var _ ports.MessageSender = (*TwilioSender)(nil)

// Config holds the Twilio account credentials and sending number.
type Config struct {
	AccountSID string
	AuthToken  string
	From       string
	BaseURL    string
}

// Validate requires every credential.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AccountSID) == "" {
		missing = append(missing, "accountSID")
	}
	if strings.TrimSpace(c.AuthToken) == "" {
		missing = append(missing, "authToken")
	}
	if strings.TrimSpace(c.From) == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return errs.NewValueIsRequiredError(strings.Join(missing, ", "))
	}
	return nil
}

// TwilioSender implements ports.MessageSender.
type TwilioSender struct {
	client *http.Client
	cfg    Config
}

// NewTwilioSender creates a sender for the Twilio Messages API. A nil client
// selects one with a default timeout.
func NewTwilioSender(cfg Config, client *http.Client) (*TwilioSender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &TwilioSender{client: client, cfg: cfg}, nil
}

type messageResponse struct {
	SID string `json:"sid"`
}

// SendSMS posts the message and returns Twilio's message SID. The
// idempotency key travels in the I-Twilio-Idempotency-Token header, so a
// retried request inside Twilio's dedup window yields the original message.
func (s *TwilioSender) SendSMS(ctx context.Context, to, body, idempotencyKey string) (string, error) {
	if strings.TrimSpace(to) == "" {
		return "", workflow.NewNonRetryableError(errs.NewValueIsRequiredError("to"))
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.cfg.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.cfg.BaseURL, url.PathEscape(s.cfg.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("I-Twilio-Idempotency-Token", idempotencyKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	if err = httpx.CheckResponse("twilio", resp); err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded messageResponse
	if err = json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode twilio response: %w", err)
	}
	return decoded.SID, nil
}
