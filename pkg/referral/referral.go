// Package referral implements the referral discount service client.
package referral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Item describes one cart line for eligibility evaluation.
type Item struct {
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

// Request is the referral discount request.
type Request struct {
	Items   []Item `json:"items"`
	Country string `json:"country"`
}

// Result is the referral evaluation outcome.
type Result struct {
	Eligible bool    `json:"eligible"`
	Discount float64 `json:"discount"`
}

// Client calls the referral discount service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a referral client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Evaluate checks referral discount eligibility for the given cart.
func (c *Client) Evaluate(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("referral evaluate failed: %s", resp.Status)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}
