// Package cart holds the per-session cart state machine: regular and
// gift line items, shipping selection, side inputs feeding the pricing
// reconciliation, and the last authoritative totals breakdown.
package cart

import (
	"encore.app/pkg/money"
	"encore.app/pkg/pricing"
)

// Item is one cart line. Gift lines carry IsGift=true, a zero unit
// price and a synthetic "gift-" product identifier; they are derived by
// the system and cannot be edited through the item operations.
type Item struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	IsGift    bool    `json:"isGift,omitempty"`
	Weight    float64 `json:"weight,omitempty"` // grams
	SKU       string  `json:"sku,omitempty"`
}

// LineTotal is the line's contribution to the subtotal. Gift lines
// contribute nothing regardless of the stored price.
func (it Item) LineTotal() float64 {
	if it.IsGift {
		return 0
	}
	return money.RoundHalfUp(it.UnitPrice*float64(it.Quantity), 2)
}

// SameLine reports whether two lines belong to the same merge identity,
// the (product, variant) pair.
func (it Item) SameLine(productID, variantID string) bool {
	return it.ProductID == productID && it.VariantID == variantID
}

// ShippingMethod is the currently selected delivery option.
type ShippingMethod struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Cost float64 `json:"cost"`
}

// AddInput is a request to add one product line. UnitPrice arrives as
// an upstream catalog string and is parsed defensively; it may be
// locale formatted ("12,90", "1 299,00 €").
type AddInput struct {
	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	UnitPrice string  `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Weight    float64 `json:"weight,omitempty"`
	SKU       string  `json:"sku,omitempty"`
}

// View is a point-in-time copy of the cart state, safe to hand out
// across goroutines.
type View struct {
	SessionID string `json:"sessionId"`

	Items    []Item          `json:"items"`
	Shipping *ShippingMethod `json:"shipping,omitempty"`

	PromoCode   string `json:"promoCode,omitempty"`
	Country     string `json:"country"`
	ApplyWallet bool   `json:"applyWallet,omitempty"`

	// Subtotal sums regular lines only; gift lines never contribute.
	Subtotal float64 `json:"subtotal"`

	// EstimatedTotal is the optimistic local figure, clamped at zero.
	// It is superseded by Totals whenever a reconciliation succeeds.
	EstimatedTotal float64 `json:"estimatedTotal"`

	// Totals is the last authoritative breakdown, nil until the first
	// successful reconciliation.
	Totals *pricing.Totals `json:"totals,omitempty"`

	// PricingError is advisory: when set, Totals (or EstimatedTotal)
	// may be out of date. The cart stays fully usable.
	PricingError string `json:"pricingError,omitempty"`
}

// IsEmpty reports whether the view has no regular items.
func (v *View) IsEmpty() bool {
	for _, it := range v.Items {
		if !it.IsGift {
			return false
		}
	}
	return true
}
