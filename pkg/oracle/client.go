package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestParams carries the oracle request parameters. They are opaque
// to the round manager and forwarded to the oracle unmodified.
type RequestParams struct {
	KeyHash              string `json:"keyHash"`
	SubscriptionID       string `json:"subscriptionId"`
	RequestConfirmations int    `json:"requestConfirmations"`
	CallbackGasLimit     int64  `json:"callbackGasLimit"`
	NumWords             int    `json:"numWords"`
}

// Client represents a randomness oracle client. The oracle accepts a
// request synchronously and delivers the random values later through
// the service's randomness callback endpoint.
type Client struct {
	BaseURL    string
	APIKey     string
	MockOracle bool
	client     *http.Client
}

// NewClient creates a new oracle client
func NewClient(baseURL, apiKey string, mockOracle bool) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MockOracle: mockOracle,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type requestResponse struct {
	RequestID string `json:"requestId"`
}

// RequestRandomness submits a randomness request and returns the
// request id the oracle will echo back on delivery. Acceptance is
// synchronous; fulfillment is not.
func (c *Client) RequestRandomness(ctx context.Context, params RequestParams) (string, error) {
	if c.MockOracle {
		return c.mockRequestRandomness()
	}

	body, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/requests", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("oracle request rejected with status %d", resp.StatusCode)
	}

	var out requestResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode oracle response: %w", err)
	}
	if out.RequestID == "" {
		return "", fmt.Errorf("oracle response missing request id")
	}
	return out.RequestID, nil
}

// mockRequestRandomness mocks request acceptance for testing. Delivery
// still has to be driven through the randomness callback by hand.
func (c *Client) mockRequestRandomness() (string, error) {
	return uuid.NewString(), nil
}
