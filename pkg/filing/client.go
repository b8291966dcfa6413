// Package filing integrates the external filing and account systems. The
// billing engine only needs two narrow views of them: how many billable
// units a filing reference represents, and how to reach an account owner.
package filing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gstpilot/billing/pkg/billing"
)

const clientTimeout = 10 * time.Second

// Client talks to the filing system's internal HTTP API. It implements both
// billing.FilingLookup and billing.OwnerDirectory.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient creates a filing system client. apiKey may be empty when the
// deployment relies on network-level auth.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: clientTimeout},
	}
}

// UnitCount returns the billable unit count for a filing reference.
func (c *Client) UnitCount(ctx context.Context, filingRef string) (int, error) {
	var resp struct {
		FilingRef string `json:"filing_ref"`
		UnitCount int    `json:"unit_count"`
	}
	if err := c.get(ctx, "/internal/v1/filings/"+url.PathEscape(filingRef), &resp); err != nil {
		return 0, err
	}
	if resp.UnitCount < 0 {
		return 0, fmt.Errorf("filing %s reported negative unit count %d", filingRef, resp.UnitCount)
	}
	return resp.UnitCount, nil
}

// Contact returns contact details for an account owner.
func (c *Client) Contact(ctx context.Context, ownerID string) (*billing.OwnerContact, error) {
	var resp struct {
		OwnerID string `json:"owner_id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
	}
	if err := c.get(ctx, "/internal/v1/owners/"+url.PathEscape(ownerID), &resp); err != nil {
		return nil, err
	}
	return &billing.OwnerContact{
		OwnerID: resp.OwnerID,
		Name:    resp.Name,
		Email:   resp.Email,
		Phone:   resp.Phone,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build filing request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("filing system request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return billing.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("filing system returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode filing response: %w", err)
	}
	return nil
}

var (
	_ billing.FilingLookup   = (*Client)(nil)
	_ billing.OwnerDirectory = (*Client)(nil)
)
