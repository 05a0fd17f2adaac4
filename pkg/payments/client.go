// Package payments is the client for the external settlement collaborator.
// Settlement mechanics (ledgers, transfers) live on the other side of this
// API; approved claims only record the resulting settlement identifier.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Client submits payouts for approved claims.
type Client interface {
	Payout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error)
}

// PayoutRequest is the body for POST /payouts.
type PayoutRequest struct {
	ClaimID     string  `json:"claim_id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Description string  `json:"description,omitempty"`
}

// PayoutResponse is the settlement collaborator's acknowledgment.
type PayoutResponse struct {
	SettlementID string  `json:"settlement_id"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	key     string
	http    *http.Client
}

// NewClient creates a payments client.
func NewClient(baseURL, key string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		key:     key,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Payout(ctx context.Context, req PayoutRequest) (*PayoutResponse, error) {
	if req.ClaimID == "" {
		return nil, eris.New("payments: claim id is required")
	}
	if req.Amount <= 0 {
		return nil, eris.Errorf("payments: amount %.2f is not positive", req.Amount)
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, eris.Wrap(err, "payments: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payouts", bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "payments: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "payments: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "payments: read response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, eris.Errorf("payments: unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var result PayoutResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "payments: decode response")
	}
	if result.SettlementID == "" {
		return nil, eris.New("payments: response missing settlement id")
	}

	return &result, nil
}
