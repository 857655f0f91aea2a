package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// PaymentIntent is the gateway's handle for one attempted payment
type PaymentIntent struct {
	ID              string            `json:"id"`
	ClientSecret    string            `json:"client_secret,omitempty"`
	Status          string            `json:"status"`
	AmountCents     int64             `json:"amount"`
	Currency        string            `json:"currency"`
	ChargeID        string            `json:"latest_charge,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ShippingAddress json.RawMessage   `json:"shipping,omitempty"`
}

// Intent statuses reported by the gateway
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "failed"
	IntentStatusRefunded  = "refunded"
	IntentStatusPending   = "pending"
)

// Client talks to the external payment gateway over HTTP. All calls carry a
// bounded timeout; an order is never assumed paid on timeout.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a gateway client with the given request timeout
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type createIntentRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentIntent opens a payment intent for the given amount. The call
// is deliberately not retried: a duplicate intent is worse than a pending
// order, which remains recoverable through Sync.
func (c *Client) CreatePaymentIntent(ctx context.Context, amountCents int64, currency string, metadata map[string]string) (*PaymentIntent, error) {
	body, err := json.Marshal(createIntentRequest{
		AmountCents: amountCents,
		Currency:    currency,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal intent request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payment_intents", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("create payment intent: unexpected status %d", resp.StatusCode)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	return &intent, nil
}

// RetrievePaymentIntent fetches the gateway's current view of an intent.
// The read is idempotent, so it is retried with backoff.
func (c *Client) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		intent, err := c.retrieveOnce(ctx, intentID)
		if err == nil {
			return intent, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) retrieveOnce(ctx context.Context, intentID string) (*PaymentIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payment_intents/"+intentID, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve payment intent: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("payment intent not found: %s", intentID)
	default:
		return nil, fmt.Errorf("retrieve payment intent: unexpected status %d", resp.StatusCode)
	}

	var intent PaymentIntent
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("decode intent response: %w", err)
	}
	return &intent, nil
}
