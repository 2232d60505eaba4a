package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"duewatch/internal/external"
	"duewatch/internal/types"
)

// mailAPIBase is the default mail provider API base URL, overridable in
// tests via EmailSenderConfig.BaseURL.
const mailAPIBase = "https://api.sendgrid.com"

// EmailSenderConfig holds the configuration for creating an EmailSender.
type EmailSenderConfig struct {
	APIKey      string
	BaseURL     string
	FromAddress string
	FromName    string
}

// EmailSender delivers notifications through the provider's v3 mail send
// API. All requests go through external.BaseClient so email shares the same
// circuit breaker and retry behavior as every other outbound call.
type EmailSender struct {
	base   *external.BaseClient
	cfg    EmailSenderConfig
	logger types.Logger
}

var _ Sender = (*EmailSender)(nil)

// NewEmailSender creates an EmailSender. The httpClient's Timeout bounds a
// single delivery attempt.
func NewEmailSender(httpClient *http.Client, cfg EmailSenderConfig, logger types.Logger, opts ...external.BaseClientOption) *EmailSender {
	if cfg.BaseURL == "" {
		cfg.BaseURL = mailAPIBase
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	base := external.NewBaseClient(
		httpClient,
		"email-provider",
		external.DefaultRetryPolicy(),
		types.ErrCodeUpstreamEmail,
		opts...,
	)

	return &EmailSender{base: base, cfg: cfg, logger: logger}
}

// Type implements Sender.
func (s *EmailSender) Type() types.ChannelType {
	return types.ChannelEmail
}

// mailPayload mirrors the provider's v3 mail send request body.
type mailPayload struct {
	Personalizations []personalization `json:"personalizations"`
	From             mailAddress       `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []mailAddress `json:"to"`
}

type mailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send implements Sender. The payload is rendered as an HTML email and
// posted to the mail send endpoint; any 2xx response counts as accepted.
func (s *EmailSender) Send(ctx context.Context, payload types.Payload, destination string) error {
	subject, htmlBody, err := FormatEmail(payload)
	if err != nil {
		return err
	}

	body, err := json.Marshal(mailPayload{
		Personalizations: []personalization{{To: []mailAddress{{Email: destination}}}},
		From:             mailAddress{Email: s.cfg.FromAddress, Name: s.cfg.FromName},
		Subject:          subject,
		Content:          []mailContent{{Type: "text/html", Value: htmlBody}},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to marshal mail payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to create mail send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.NewAppError(types.ErrCodeUpstreamEmail,
			fmt.Sprintf("mail provider rejected send with status %d: %s", resp.StatusCode, string(snippet)), nil)
	}

	s.logger.Debug("email accepted by provider", "to", destination, "kind", payload.Kind, "status", resp.StatusCode)
	return nil
}

// emailSendTimeout is the default per-attempt bound for provider calls.
const emailSendTimeout = 10 * time.Second

// DefaultEmailHTTPClient returns an http.Client with the standard send
// timeout applied.
func DefaultEmailHTTPClient() *http.Client {
	return &http.Client{Timeout: emailSendTimeout}
}
