package cart

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	cartstore "encore.app/pkg/cart"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/loyalty"
	"encore.app/pkg/promo"
	"encore.app/pkg/referral"
	"encore.app/pkg/snapshot"
)

type serviceState struct {
	manager   *Manager
	hub       *Hub
	snapshots snapshot.Storage
}

var (
	svcMu sync.RWMutex
	svc   *serviceState
)

func setService(s *serviceState) {
	svcMu.Lock()
	defer svcMu.Unlock()
	svc = s
}

func getService() *serviceState {
	svcMu.RLock()
	defer svcMu.RUnlock()
	return svc
}

// ensureSession returns the session id from the header, minting a new
// one for first-time visitors. The response echoes it so the caller can
// persist it.
func ensureSession(sessionID string) string {
	if s := strings.TrimSpace(sessionID); s != "" {
		return s
	}
	return uuid.NewString()
}

// CartResponse wraps a cart view. SessionID repeats the session the
// view belongs to, including newly minted ones.
type CartResponse struct {
	SessionID string          `json:"sessionId"`
	Cart      *cartstore.View `json:"cart"`
}

func respond(view *cartstore.View) *CartResponse {
	return &CartResponse{SessionID: view.SessionID, Cart: view}
}

type GetCartParams struct {
	SessionID string `header:"X-Cart-Session"`
}

// GetCart returns the current cart for the session.
//
//encore:api public method=GET path=/cart
func GetCart(ctx context.Context, p *GetCartParams) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	return respond(store.View()), nil
}

type AddItemRequest struct {
	SessionID string `header:"X-Cart-Session"`

	ProductID string  `json:"productId"`
	VariantID string  `json:"variantId,omitempty"`
	Name      string  `json:"name"`
	UnitPrice string  `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
	Weight    float64 `json:"weight,omitempty"`
	SKU       string  `json:"sku,omitempty"`
}

// AddItem adds a product line to the cart.
//
//encore:api public method=POST path=/cart/items
func AddItem(ctx context.Context, req *AddItemRequest) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.AddItem(ctx, cartstore.AddInput{
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Name:      req.Name,
		UnitPrice: req.UnitPrice,
		Quantity:  req.Quantity,
		Weight:    req.Weight,
		SKU:       req.SKU,
	})
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type UpdateItemRequest struct {
	SessionID string `header:"X-Cart-Session"`

	ProductID string `json:"productId"`
	VariantID string `json:"variantId,omitempty"`
	Quantity  int    `json:"quantity"`
}

// UpdateItem changes the quantity of a cart line. Quantities below one
// leave the cart unchanged; removal goes through RemoveItem.
//
//encore:api public method=PUT path=/cart/items
func UpdateItem(ctx context.Context, req *UpdateItemRequest) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.UpdateQuantity(ctx, req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type RemoveItemParams struct {
	SessionID string `header:"X-Cart-Session"`
	VariantID string `query:"variantId"`
}

// RemoveItem removes a cart line.
//
//encore:api public method=DELETE path=/cart/items/:productID
func RemoveItem(ctx context.Context, productID string, p *RemoveItemParams) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.RemoveItem(ctx, productID, p.VariantID)
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type ClearCartParams struct {
	SessionID string `header:"X-Cart-Session"`
}

// ClearCart empties the cart and drops its durable snapshots.
//
//encore:api public method=DELETE path=/cart
func ClearCart(ctx context.Context, p *ClearCartParams) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.Clear(ctx)
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type SetShippingRequest struct {
	SessionID string `header:"X-Cart-Session"`

	MethodID string  `json:"methodId"`
	Name     string  `json:"name"`
	Cost     float64 `json:"cost"`
}

// SetShipping selects a delivery method.
//
//encore:api public method=PUT path=/cart/shipping
func SetShipping(ctx context.Context, req *SetShippingRequest) (*CartResponse, error) {
	if strings.TrimSpace(req.MethodID) == "" {
		return nil, errs.E(ctx, errs.InvalidArgument, "shipping method id is required")
	}
	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.SetShippingMethod(ctx, &cartstore.ShippingMethod{
		ID:   req.MethodID,
		Name: req.Name,
		Cost: req.Cost,
	})
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type ApplyPromoRequest struct {
	SessionID string `header:"X-Cart-Session"`

	Code string `json:"code"`
}

// ApplyPromoResponse reports the promo service's verdict alongside the
// updated cart.
type ApplyPromoResponse struct {
	SessionID string          `json:"sessionId"`
	Applied   bool            `json:"applied"`
	Message   string          `json:"message,omitempty"`
	Discount  float64         `json:"discount,omitempty"`
	Cart      *cartstore.View `json:"cart"`
}

// ApplyPromo validates a promo code against the promo service and, when
// accepted, records it as a pricing side input.
//
//encore:api public method=POST path=/cart/promo
func ApplyPromo(ctx context.Context, req *ApplyPromoRequest) (*ApplyPromoResponse, error) {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, errs.E(ctx, errs.PromoInvalidCode, "promo code is required")
	}

	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view := store.View()
	if view.IsEmpty() {
		return nil, errs.E(ctx, errs.ChkEmptyCart, "cart is empty")
	}

	settings := config.GetSettings()
	client := promo.NewClient(settings.PromoServiceURL)

	promoReq := &promo.Request{Code: code, CartTotal: view.Subtotal}
	if view.Shipping != nil {
		promoReq.ShippingCost = view.Shipping.Cost
	}
	for _, it := range view.Items {
		if it.IsGift {
			continue
		}
		promoReq.Items = append(promoReq.Items, promo.Item{
			ProductID: it.ProductID,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	result, err := client.Validate(ctx, promoReq)
	if err != nil {
		return nil, errs.E(ctx, errs.ServiceUnavailable, "promo service unavailable")
	}
	if !result.Applied {
		return &ApplyPromoResponse{
			SessionID: view.SessionID,
			Applied:   false,
			Message:   result.Message,
			Cart:      view,
		}, nil
	}

	view, err = store.SetPromoCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return &ApplyPromoResponse{
		SessionID: view.SessionID,
		Applied:   true,
		Message:   result.Message,
		Discount:  result.Discount,
		Cart:      view,
	}, nil
}

type RemovePromoParams struct {
	SessionID string `header:"X-Cart-Session"`
}

// RemovePromo clears the applied promo code.
//
//encore:api public method=DELETE path=/cart/promo
func RemovePromo(ctx context.Context, p *RemovePromoParams) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.SetPromoCode(ctx, "")
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type SetCountryRequest struct {
	SessionID string `header:"X-Cart-Session"`

	Country string `json:"country"`
}

// SetCountry changes the pricing country.
//
//encore:api public method=PUT path=/cart/country
func SetCountry(ctx context.Context, req *SetCountryRequest) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.SetCountry(ctx, strings.ToUpper(strings.TrimSpace(req.Country)))
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type SetWalletRequest struct {
	SessionID string `header:"X-Cart-Session"`

	Apply bool `json:"apply"`
}

// SetWallet toggles wallet credit application.
//
//encore:api public method=PUT path=/cart/wallet
func SetWallet(ctx context.Context, req *SetWalletRequest) (*CartResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(req.SessionID))
	if err != nil {
		return nil, err
	}
	view, err := store.SetApplyWallet(ctx, req.Apply)
	if err != nil {
		return nil, err
	}
	return respond(view), nil
}

type BenefitsParams struct {
	SessionID string `header:"X-Cart-Session"`
}

// BenefitsResponse carries the customer's loyalty standing for display.
type BenefitsResponse struct {
	Benefits *loyalty.Benefits `json:"benefits"`
}

// GetBenefits evaluates the customer's loyalty benefits for the current
// cart.
//
//encore:api public method=GET path=/cart/benefits
func GetBenefits(ctx context.Context, p *BenefitsParams) (*BenefitsResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	view := store.View()

	settings := config.GetSettings()
	client := loyalty.NewClient(settings.LoyaltyServiceURL)

	req := &loyalty.Request{CartTotal: view.Subtotal}
	if view.Shipping != nil {
		req.ShippingCost = view.Shipping.Cost
	}
	for _, it := range view.Items {
		if it.IsGift {
			continue
		}
		req.Items = append(req.Items, loyalty.Item{
			ProductID: it.ProductID,
			Price:     it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}

	benefits, err := client.Evaluate(ctx, req)
	if err != nil {
		return nil, errs.E(ctx, errs.ServiceUnavailable, "loyalty service unavailable")
	}
	return &BenefitsResponse{Benefits: benefits}, nil
}

type ReferralParams struct {
	SessionID string `header:"X-Cart-Session"`
}

// ReferralResponse reports referral discount eligibility.
type ReferralResponse struct {
	Eligible bool    `json:"eligible"`
	Discount float64 `json:"discount"`
}

// CheckReferral evaluates referral discount eligibility for the current
// cart.
//
//encore:api public method=GET path=/cart/referral
func CheckReferral(ctx context.Context, p *ReferralParams) (*ReferralResponse, error) {
	store, err := getService().manager.Get(ctx, ensureSession(p.SessionID))
	if err != nil {
		return nil, err
	}
	view := store.View()

	settings := config.GetSettings()
	client := referral.NewClient(settings.ReferralServiceURL)

	req := &referral.Request{Country: view.Country}
	for _, it := range view.Items {
		if it.IsGift {
			continue
		}
		req.Items = append(req.Items, referral.Item{UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}

	result, err := client.Evaluate(ctx, req)
	if err != nil {
		return nil, errs.E(ctx, errs.ServiceUnavailable, "referral service unavailable")
	}
	return &ReferralResponse{Eligible: result.Eligible, Discount: result.Discount}, nil
}

// EvictResponse reports an idle-store eviction run.
type EvictResponse struct {
	Evicted int `json:"evicted"`
	Live    int `json:"live"`
}

// EvictIdleStores drops in-memory stores idle past the configured
// threshold. Their state survives in durable snapshots.
//
//encore:api private
func EvictIdleStores(ctx context.Context) (*EvictResponse, error) {
	s := getService()
	maxIdle := 60 * time.Minute
	if settings := config.GetSettings(); settings != nil {
		maxIdle = time.Duration(settings.CartIdleEvictMinutes) * time.Minute
	}
	evicted := s.manager.EvictIdle(maxIdle)
	return &EvictResponse{Evicted: evicted, Live: s.manager.Count()}, nil
}

// CleanupResponse reports a snapshot cleanup run.
type CleanupResponse struct {
	Removed int `json:"removed"`
}

// CleanupSnapshots removes durable snapshots past their TTL.
//
//encore:api private
func CleanupSnapshots(ctx context.Context) (*CleanupResponse, error) {
	s := getService()
	ttl := 72 * time.Hour
	if settings := config.GetSettings(); settings != nil {
		ttl = time.Duration(settings.CartSnapshotTTLHours) * time.Hour
	}
	removed, err := s.snapshots.CleanupExpired(ctx, ttl)
	if err != nil {
		return nil, err
	}
	return &CleanupResponse{Removed: removed}, nil
}
