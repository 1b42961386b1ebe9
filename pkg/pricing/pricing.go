// Package pricing implements the client for the authoritative pricing
// service. The service computes the canonical cart breakdown (site
// promotion, loyalty, promo code, referral and wallet credit as
// independent labeled lines) plus the server-derived gift set. Calls
// are idempotent and side-effect-free, safe to issue speculatively and
// discard.
package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"encore.app/pkg/errs"
)

// Item is one cart line as submitted for pricing. Gift items are
// server-derived, not server-priced-as-input; the client strips them
// before sending.
type Item struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Weight    float64 `json:"weight,omitempty"`
	SKU       string  `json:"sku,omitempty"`
	IsGift    bool    `json:"-"`
}

// Request is the pricing calculation request.
type Request struct {
	Items       []Item `json:"items"`
	Country     string `json:"country"`
	PromoCode   string `json:"promoCode,omitempty"`
	ApplyWallet bool   `json:"applyWallet,omitempty"`
}

// GiftRef is a server-designated automatic gift.
type GiftRef struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

// Totals is the authoritative server-computed breakdown. It supersedes
// any locally computed total when a fresh reconciliation succeeds.
type Totals struct {
	Subtotal         float64 `json:"subtotal"`
	SiteDiscount     float64 `json:"siteDiscount"`
	ShippingCost     float64 `json:"shippingCost"`
	LoyaltyDiscount  float64 `json:"loyaltyDiscount"`
	PromoDiscount    float64 `json:"promoDiscount"`
	ReferralDiscount float64 `json:"referralDiscount"`
	WalletDiscount   float64 `json:"walletDiscount"`
	Total            float64 `json:"total"`
	Currency         string  `json:"currency"`
	ShippingMethod   string  `json:"shippingMethod,omitempty"`

	AppliedSitePromotion string `json:"appliedSitePromotion,omitempty"`
	AppliedPromo         string `json:"appliedPromo,omitempty"`
	AppliedLoyalty       string `json:"appliedLoyalty,omitempty"`
	AppliedReferral      string `json:"appliedReferral,omitempty"`
	AppliedWallet        string `json:"appliedWallet,omitempty"`

	AutomaticGifts []GiftRef `json:"automaticGifts,omitempty"`
}

// Normalize clamps the total to the invariant
// total = max(0, subtotal + shipping - sum of discounts).
func (t *Totals) Normalize() {
	total := t.Subtotal + t.ShippingCost -
		t.SiteDiscount - t.LoyaltyDiscount - t.PromoDiscount -
		t.ReferralDiscount - t.WalletDiscount
	if total < 0 {
		total = 0
	}
	t.Total = total
}

// Client calls the external pricing service. It is stateless apart from
// the circuit breaker guarding the upstream.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[*Totals]
}

// Options configures a pricing client.
type Options struct {
	BaseURL          string
	Timeout          time.Duration
	BreakerThreshold int
}

// NewClient creates a pricing client with a circuit breaker.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}

	breaker := gobreaker.NewCircuitBreaker[*Totals](gobreaker.Settings{
		Name:        "pricing",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
	})

	return &Client{
		baseURL: opts.BaseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// Calculate submits the cart for an authoritative pricing breakdown.
// All failure modes (network, timeout, breaker open, remote rejection)
// surface as a single soft error kind; callers retain last-known-good
// totals.
func (c *Client) Calculate(ctx context.Context, req *Request) (*Totals, error) {
	// Gifts never travel upstream.
	stripped := *req
	stripped.Items = make([]Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it.IsGift {
			continue
		}
		stripped.Items = append(stripped.Items, it)
	}

	totals, err := c.breaker.Execute(func() (*Totals, error) {
		return c.doCalculate(ctx, &stripped)
	})
	if err != nil {
		return nil, &errs.Error{Code: errs.PrcServiceUnavailable, Message: "pricing service unavailable", Details: err.Error()}
	}
	return totals, nil
}

func (c *Client) doCalculate(ctx context.Context, req *Request) (*Totals, error) {
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
		return nil, fmt.Errorf("pricing calculate failed: %s", resp.Status)
	}

	var totals Totals
	if err := json.NewDecoder(resp.Body).Decode(&totals); err != nil {
		return nil, err
	}
	totals.Normalize()
	return &totals, nil
}
