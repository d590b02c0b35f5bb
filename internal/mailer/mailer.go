package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 10 * time.Second

// Mailer delivers transactional notifications. Delivery is best-effort for
// every caller in this service: failures are logged, never propagated to the
// user-visible outcome.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// ResendClient talks to a Resend-compatible transactional email API.
type ResendClient struct {
	apiURL string
	apiKey string
	from   string
	client *http.Client
}

type sendEmailRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func NewResendClient(apiURL, apiKey, from string, timeout time.Duration) *ResendClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &ResendClient{
		apiURL: apiURL,
		apiKey: apiKey,
		from:   from,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *ResendClient) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	body, err := json.Marshal(sendEmailRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    htmlBody,
		Text:    textBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email API returned status %d: %s", resp.StatusCode, raw)
	}

	return nil
}
