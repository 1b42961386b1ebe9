// Package loyalty implements the loyalty benefits service client.
package loyalty

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Reward types returned by the loyalty service.
const (
	RewardNone         = "none"
	RewardSample       = "sample"
	RewardFreeShipping = "freeShipping"
	RewardFreeProduct  = "freeProduct"
	RewardDiscount     = "discount"
)

// Item describes one cart line for benefit evaluation.
type Item struct {
	ProductID string  `json:"productId"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Request is the loyalty benefits request.
type Request struct {
	CartTotal    float64 `json:"cartTotal"`
	ShippingCost float64 `json:"shippingCost"`
	Items        []Item  `json:"items"`
}

// Benefits is the loyalty evaluation outcome.
type Benefits struct {
	Active         bool    `json:"active"`
	Message        string  `json:"message"`
	DiscountAmount float64 `json:"discountAmount"`
	RewardType     string  `json:"rewardType"`
	OrderCount     int     `json:"orderCount"`
	NextLevel      string  `json:"nextLevel,omitempty"`
}

type wireResponse struct {
	OrderCount int `json:"orderCount"`
	Reward     *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"reward,omitempty"`
	Discount  float64 `json:"discount,omitempty"`
	NextLevel string  `json:"nextLevel,omitempty"`
}

// Client calls the loyalty benefits service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a loyalty client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Evaluate fetches the customer's loyalty benefits for the given cart.
func (c *Client) Evaluate(ctx context.Context, req *Request) (*Benefits, error) {
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
		return nil, fmt.Errorf("loyalty benefits failed: %s", resp.Status)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	benefits := &Benefits{
		OrderCount:     wire.OrderCount,
		DiscountAmount: wire.Discount,
		RewardType:     RewardNone,
		NextLevel:      wire.NextLevel,
	}
	if wire.Reward != nil {
		benefits.Active = true
		benefits.RewardType = wire.Reward.Type
		benefits.Message = wire.Reward.Message
	}
	if wire.Discount > 0 {
		benefits.Active = true
		if benefits.RewardType == RewardNone {
			benefits.RewardType = RewardDiscount
		}
	}
	return benefits, nil
}
