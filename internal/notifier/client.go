package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"commerce-core/internal/util"

	"go.uber.org/zap"
)

// Client sends transactional emails through the notification service.
// Delivery is fire-and-forget: a failed send is logged and never rolls back
// order or cart state.
type Client struct {
	baseURL    string
	fromEmail  string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a notification client with a bounded request timeout
func NewClient(baseURL, fromEmail string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		fromEmail: fromEmail,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: util.GetLogger(),
	}
}

type sendEmailRequest struct {
	From     string `json:"from"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}

// SendEmail posts one email to the notification service
func (c *Client) SendEmail(ctx context.Context, to, subject, htmlBody string) error {
	body, err := json.Marshal(sendEmailRequest{
		From:     c.fromEmail,
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
	})
	if err != nil {
		return fmt.Errorf("marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("send email: unexpected status %d", resp.StatusCode)
	}

	c.logger.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
