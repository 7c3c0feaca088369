package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client represents a ledger transfer-service client. A transfer is
// atomic from the caller's perspective: either the full amount moves
// or the call returns an error.
type Client struct {
	BaseURL    string
	APIKey     string
	MockLedger bool
	client     *http.Client
}

// NewClient creates a new ledger client
func NewClient(baseURL, apiKey string, mockLedger bool) *Client {
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		MockLedger: mockLedger,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type transferRequest struct {
	To        string `json:"to"`
	Amount    int64  `json:"amount"`
	Reference string `json:"reference"`
}

type transferResponse struct {
	Status string `json:"status"`
}

// Transfer moves amount to the given address. Reference is a caller
// supplied id the ledger uses to deduplicate retries.
func (c *Client) Transfer(ctx context.Context, to string, amount int64, reference string) error {
	if c.MockLedger {
		return nil
	}

	body, err := json.Marshal(transferRequest{To: to, Amount: amount, Reference: reference})
	if err != nil {
		return fmt.Errorf("failed to encode transfer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build transfer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("transfer failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transfer rejected with status %d", resp.StatusCode)
	}

	var out transferResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode transfer response: %w", err)
	}
	if out.Status != "SUCCESS" {
		return fmt.Errorf("transfer not successful: status %s", out.Status)
	}
	return nil
}
