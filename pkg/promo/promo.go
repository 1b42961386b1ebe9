// Package promo implements the promo code validation service client.
package promo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Discount types returned by the promo service.
const (
	TypePercentage   = "percentage"
	TypeFixed        = "fixed"
	TypeFreeShipping = "free_shipping"
)

// Item describes one cart line for category-restricted promo checks.
type Item struct {
	ProductID  string  `json:"productId"`
	CategoryID string  `json:"categoryId,omitempty"`
	Price      float64 `json:"price"`
	Quantity   int     `json:"quantity"`
}

// Request is the promo validation request.
type Request struct {
	Code         string  `json:"code"`
	CartTotal    float64 `json:"cartTotal"`
	ShippingCost float64 `json:"shippingCost"`
	Items        []Item  `json:"items"`
}

// Result is the promo validation outcome.
type Result struct {
	Applied                 bool     `json:"applied"`
	Code                    string   `json:"code"`
	Discount                float64  `json:"discount"`
	Message                 string   `json:"message"`
	Type                    string   `json:"type"`
	CategoryRestrictionType string   `json:"categoryRestrictionType,omitempty"`
	RestrictedCategories    []string `json:"restrictedCategories,omitempty"`
}

type wireResponse struct {
	Success                 bool     `json:"success"`
	Valid                   bool     `json:"valid"`
	Code                    string   `json:"code"`
	Discount                float64  `json:"discount"`
	Type                    string   `json:"type"`
	Message                 string   `json:"message"`
	CategoryRestrictionType string   `json:"categoryRestrictionType,omitempty"`
	RestrictedCategories    []string `json:"restrictedCategories,omitempty"`
}

// Client calls the promo validation service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a promo client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Validate checks a promo code against the current cart. An invalid
// code is not an error; it comes back as Applied=false with the
// service message.
func (c *Client) Validate(ctx context.Context, req *Request) (*Result, error) {
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
		return nil, fmt.Errorf("promo validate failed: %s", resp.Status)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, err
	}

	return &Result{
		Applied:                 wire.Success && wire.Valid,
		Code:                    wire.Code,
		Discount:                wire.Discount,
		Message:                 wire.Message,
		Type:                    wire.Type,
		CategoryRestrictionType: wire.CategoryRestrictionType,
		RestrictedCategories:    wire.RestrictedCategories,
	}, nil
}
