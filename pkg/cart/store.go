package cart

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"encore.app/pkg/errs"
	"encore.app/pkg/gifts"
	"encore.app/pkg/logger"
	"encore.app/pkg/metrics"
	"encore.app/pkg/money"
	"encore.app/pkg/pricing"
	"encore.app/pkg/snapshot"
)

// Pricer computes an authoritative totals breakdown for a cart.
type Pricer interface {
	Calculate(ctx context.Context, req *pricing.Request) (*pricing.Totals, error)
}

// UpdateFunc receives a fresh view after every state change, including
// asynchronous reconciliation outcomes.
type UpdateFunc func(view *View)

// Options configures a session cart store.
type Options struct {
	SessionID string
	Pricer    Pricer
	Snapshots snapshot.Storage
	GiftTable gifts.Table
	Catalog   gifts.Catalog
	Country   string
	OnUpdate  UpdateFunc

	// SyncReconcile runs reconciliations inline instead of in a
	// background goroutine. Used by tests.
	SyncReconcile bool
}

// Store is the mutable cart state for one session. Every mutation
// issues a pricing reconciliation stamped with a monotonically
// increasing sequence number; a response is applied only while its
// sequence is still current, so issuance order wins over arrival order.
type Store struct {
	mu sync.Mutex

	sessionID string
	items     []Item
	shipping  *ShippingMethod

	promoCode   string
	country     string
	applyWallet bool

	totals     *pricing.Totals
	pricingErr string

	seq uint64

	pricer    Pricer
	snapshots snapshot.Storage
	giftTable gifts.Table
	catalog   gifts.Catalog
	onUpdate  UpdateFunc
	inline    bool

	touchedAt time.Time
}

// cartSnapshot is the durable representation of the cart key.
type cartSnapshot struct {
	Items       []Item          `json:"items"`
	Shipping    *ShippingMethod `json:"shipping,omitempty"`
	ApplyWallet bool            `json:"applyWallet,omitempty"`
}

// NewStore creates an empty cart store for a session.
func NewStore(opts Options) *Store {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = gifts.DefaultCatalog
	}
	table := opts.GiftTable
	if len(table.Tiers) == 0 {
		table = gifts.TableClassic
	}
	return &Store{
		sessionID: opts.SessionID,
		country:   opts.Country,
		pricer:    opts.Pricer,
		snapshots: opts.Snapshots,
		giftTable: table,
		catalog:   catalog,
		onUpdate:  opts.OnUpdate,
		inline:    opts.SyncReconcile,
		touchedAt: time.Now().UTC(),
	}
}

// SessionID returns the owning session identifier.
func (s *Store) SessionID() string {
	return s.sessionID
}

// LastTouched reports when the store last served a mutation or view,
// used for idle eviction.
func (s *Store) LastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}

// View returns a point-in-time copy of the cart state.
func (s *Store) View() *View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// AddItem adds a regular product line. Lines with the same
// (product, variant) identity merge by summing quantities. Gift
// identifiers are rejected; gifts are system-derived only.
func (s *Store) AddItem(ctx context.Context, in AddInput) (*View, error) {
	if in.ProductID == "" {
		return nil, errs.E(ctx, errs.CartInvalidProduct, "product id is required")
	}
	if gifts.IsGiftID(in.ProductID) {
		return nil, errs.E(ctx, errs.CartGiftImmutable, "gift items cannot be added directly")
	}

	price := money.ParseAmount(in.UnitPrice)
	if price < 0 {
		price = 0
	}
	qty := in.Quantity
	if qty < 1 {
		qty = 1
	}

	s.mu.Lock()
	merged := false
	for i := range s.items {
		if !s.items[i].IsGift && s.items[i].SameLine(in.ProductID, in.VariantID) {
			s.items[i].Quantity += qty
			merged = true
			break
		}
	}
	if !merged {
		s.items = append(s.items, Item{
			ProductID: in.ProductID,
			VariantID: in.VariantID,
			Name:      in.Name,
			UnitPrice: price,
			Quantity:  qty,
			Weight:    in.Weight,
			SKU:       in.SKU,
		})
	}
	return s.finishMutationLocked(ctx)
}

// UpdateQuantity sets the quantity of an existing regular line. It is
// a no-op when the quantity is below one or the target does not resolve
// to a regular line. Gift lines never resolve; gifts are immutable by
// the user. Removal goes through RemoveItem, never through a zero
// quantity.
func (s *Store) UpdateQuantity(ctx context.Context, productID, variantID string, quantity int) (*View, error) {
	s.mu.Lock()
	idx := s.findRegularLocked(productID, variantID)
	if quantity < 1 || idx < 0 {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	s.items[idx].Quantity = quantity
	return s.finishMutationLocked(ctx)
}

// RemoveItem removes a regular line. Targeting a gift line or an absent
// line leaves the cart unchanged.
func (s *Store) RemoveItem(ctx context.Context, productID, variantID string) (*View, error) {
	s.mu.Lock()
	idx := s.findRegularLocked(productID, variantID)
	if idx < 0 {
		view := s.viewLocked()
		s.mu.Unlock()
		return view, nil
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	return s.finishMutationLocked(ctx)
}

// Clear empties the cart entirely and drops the session's durable
// snapshots. No reconciliation is issued for an empty cart.
func (s *Store) Clear(ctx context.Context) (*View, error) {
	s.mu.Lock()
	s.resetLocked()
	s.seq++ // invalidate any in-flight reconciliation
	s.touchedAt = time.Now().UTC()
	view := s.viewLocked()
	s.mu.Unlock()

	if s.snapshots != nil {
		if err := s.snapshots.DeleteSession(ctx, s.sessionID); err != nil && err != snapshot.ErrNotFound {
			logger.Warn(ctx, "failed to drop session snapshots", logger.Fields{"error": err.Error()})
		}
	}
	s.notify(view)
	return view, nil
}

// SetShippingMethod selects a delivery option.
func (s *Store) SetShippingMethod(ctx context.Context, method *ShippingMethod) (*View, error) {
	s.mu.Lock()
	s.shipping = method
	return s.finishMutationLocked(ctx)
}

// SetPromoCode records a promo code as a pricing side input. Validation
// against the promo service happens upstream; the code recorded here is
// what reconciliation requests carry.
func (s *Store) SetPromoCode(ctx context.Context, code string) (*View, error) {
	s.mu.Lock()
	s.promoCode = code
	return s.finishMutationLocked(ctx)
}

// SetCountry changes the pricing country.
func (s *Store) SetCountry(ctx context.Context, country string) (*View, error) {
	if country == "" {
		return nil, errs.E(ctx, errs.InvalidArgument, "country is required")
	}
	s.mu.Lock()
	s.country = country
	return s.finishMutationLocked(ctx)
}

// SetApplyWallet toggles wallet credit application.
func (s *Store) SetApplyWallet(ctx context.Context, apply bool) (*View, error) {
	s.mu.Lock()
	s.applyWallet = apply
	return s.finishMutationLocked(ctx)
}

// Refresh issues a reconciliation without mutating the cart. Used after
// rehydration and on realtime reconnects.
func (s *Store) Refresh(ctx context.Context) *View {
	s.mu.Lock()
	if s.emptyLocked() {
		view := s.viewLocked()
		s.mu.Unlock()
		return view
	}
	seq, req := s.issueLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	s.startReconcile(ctx, seq, req)
	return view
}

// Rehydrate loads the cart, promo and country snapshots for the
// session. A missing snapshot leaves the corresponding state at its
// zero value; a malformed one is dropped and the cart starts empty.
func (s *Store) Rehydrate(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, err := s.snapshots.Get(ctx, s.sessionID, snapshot.KeyCart); err == nil {
		var snap cartSnapshot
		if jsonErr := json.Unmarshal(raw, &snap); jsonErr != nil {
			logger.Warn(ctx, "malformed cart snapshot, starting empty", logger.Fields{"error": jsonErr.Error()})
			s.resetLocked()
		} else {
			s.items = snap.Items
			s.shipping = snap.Shipping
			s.applyWallet = snap.ApplyWallet
		}
	} else if err != snapshot.ErrNotFound {
		return err
	}

	if raw, err := s.snapshots.Get(ctx, s.sessionID, snapshot.KeyPromo); err == nil {
		var code string
		if jsonErr := json.Unmarshal(raw, &code); jsonErr != nil {
			logger.Warn(ctx, "malformed promo snapshot, dropping", logger.Fields{"error": jsonErr.Error()})
		} else {
			s.promoCode = code
		}
	} else if err != snapshot.ErrNotFound {
		return err
	}

	if raw, err := s.snapshots.Get(ctx, s.sessionID, snapshot.KeyCountry); err == nil {
		var c string
		if jsonErr := json.Unmarshal(raw, &c); jsonErr != nil {
			logger.Warn(ctx, "malformed country snapshot, dropping", logger.Fields{"error": jsonErr.Error()})
		} else if c != "" {
			s.country = c
		}
	} else if err != snapshot.ErrNotFound {
		return err
	}

	s.deriveGiftsLocked()
	s.touchedAt = time.Now().UTC()
	return nil
}

// finishMutationLocked runs the shared tail of every mutation: empty
// reset, local gift derivation, persistence, reconciliation issuance.
// The caller holds the lock; it is released here.
func (s *Store) finishMutationLocked(ctx context.Context) (*View, error) {
	if s.emptyLocked() {
		// Removing the last regular item resets everything tied to
		// the cart's contents.
		s.resetLocked()
		s.seq++
		s.touchedAt = time.Now().UTC()
		s.persistLocked(ctx)
		view := s.viewLocked()
		s.mu.Unlock()
		s.notify(view)
		return view, nil
	}

	s.deriveGiftsLocked()
	s.touchedAt = time.Now().UTC()
	s.persistLocked(ctx)
	seq, req := s.issueLocked()
	view := s.viewLocked()
	s.mu.Unlock()

	s.startReconcile(ctx, seq, req)
	s.notify(view)
	return view, nil
}

func (s *Store) findRegularLocked(productID, variantID string) int {
	for i := range s.items {
		if !s.items[i].IsGift && s.items[i].SameLine(productID, variantID) {
			return i
		}
	}
	return -1
}

func (s *Store) emptyLocked() bool {
	for _, it := range s.items {
		if !it.IsGift {
			return false
		}
	}
	return true
}

func (s *Store) resetLocked() {
	s.items = nil
	s.shipping = nil
	s.promoCode = ""
	s.applyWallet = false
	s.totals = nil
	s.pricingErr = ""
}

func (s *Store) subtotalLocked() float64 {
	var sum float64
	for _, it := range s.items {
		sum += it.LineTotal()
	}
	return money.RoundHalfUp(sum, 2)
}

// deriveGiftsLocked replaces all gift lines with the local tier table's
// derivation. The server's gift set supersedes this on the next
// successful reconciliation.
func (s *Store) deriveGiftsLocked() {
	s.setGiftLinesLocked(s.giftTable.Derive(s.subtotalLocked()))
}

// applyServerGiftsLocked replaces all gift lines wholesale with the
// server-designated set. Unknown identifiers are skipped.
func (s *Store) applyServerGiftsLocked(refs []pricing.GiftRef) {
	resolved := make([]gifts.Item, 0, len(refs))
	for _, ref := range refs {
		def, ok := s.catalog.Resolve(ref.ID, ref.Quantity)
		if !ok {
			logger.Warn(context.Background(), "unknown gift id from pricing service", logger.Fields{"gift_id": ref.ID})
			continue
		}
		resolved = append(resolved, def)
	}
	s.setGiftLinesLocked(resolved)
}

func (s *Store) setGiftLinesLocked(giftItems []gifts.Item) {
	kept := s.items[:0]
	for _, it := range s.items {
		if !it.IsGift {
			kept = append(kept, it)
		}
	}
	s.items = kept
	for _, g := range giftItems {
		s.items = append(s.items, Item{
			ProductID: g.ID,
			Name:      g.Name,
			UnitPrice: 0,
			Quantity:  g.Quantity,
			IsGift:    true,
			Weight:    g.Weight,
		})
	}
}

// issueLocked stamps a new reconciliation with the next sequence number
// and captures the request while the state is consistent.
func (s *Store) issueLocked() (uint64, *pricing.Request) {
	s.seq++
	req := &pricing.Request{
		Items:       make([]pricing.Item, 0, len(s.items)),
		Country:     s.country,
		PromoCode:   s.promoCode,
		ApplyWallet: s.applyWallet,
	}
	for _, it := range s.items {
		req.Items = append(req.Items, pricing.Item{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			Weight:    it.Weight,
			SKU:       it.SKU,
			IsGift:    it.IsGift,
		})
	}
	return s.seq, req
}

func (s *Store) startReconcile(ctx context.Context, seq uint64, req *pricing.Request) {
	if s.pricer == nil {
		return
	}
	metrics.ReconcileIssuedTotal.Inc()
	if s.inline {
		s.reconcile(ctx, seq, req)
		return
	}
	go s.reconcile(context.WithoutCancel(ctx), seq, req)
}

func (s *Store) reconcile(ctx context.Context, seq uint64, req *pricing.Request) {
	started := time.Now()
	totals, err := s.pricer.Calculate(ctx, req)
	s.applyResult(ctx, seq, totals, err, started)
}

// applyResult applies a reconciliation outcome if and only if its
// sequence is still the latest issued. Anything older is discarded
// unconditionally, even when the newest response arrived first.
func (s *Store) applyResult(ctx context.Context, seq uint64, totals *pricing.Totals, err error, started time.Time) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		metrics.ObserveReconcile("dropped_stale", started)
		return
	}

	if err != nil {
		// Soft failure: keep last-known-good totals and the locally
		// derived gifts, flag the staleness, stay usable.
		s.pricingErr = "totals may be out of date"
		view := s.viewLocked()
		s.mu.Unlock()
		metrics.ObserveReconcile("failed", started)
		logger.LogError(ctx, err, "pricing reconciliation failed", logger.Fields{"seq": seq})
		s.notify(view)
		return
	}

	s.totals = totals
	s.pricingErr = ""
	s.applyServerGiftsLocked(totals.AutomaticGifts)
	s.persistLocked(ctx)
	view := s.viewLocked()
	s.mu.Unlock()

	metrics.ObserveReconcile("applied", started)
	s.notify(view)
}

// persistLocked writes the three durable snapshots best effort. A
// failed write is logged and counted, never propagated; in-memory state
// is already authoritative for the session.
func (s *Store) persistLocked(ctx context.Context) {
	if s.snapshots == nil {
		return
	}

	snap := cartSnapshot{Items: s.items, Shipping: s.shipping, ApplyWallet: s.applyWallet}
	if raw, err := json.Marshal(snap); err == nil {
		if err := s.snapshots.Set(ctx, s.sessionID, snapshot.KeyCart, raw); err != nil {
			metrics.SnapshotWriteFailuresTotal.WithLabelValues(snapshot.KeyCart).Inc()
			logger.Warn(ctx, "cart snapshot write failed", logger.Fields{"error": err.Error()})
		}
	}

	// Promo and country are stored as JSON strings so the SQL backend's
	// jsonb column accepts them.
	if s.promoCode == "" {
		if err := s.snapshots.Delete(ctx, s.sessionID, snapshot.KeyPromo); err != nil && err != snapshot.ErrNotFound {
			metrics.SnapshotWriteFailuresTotal.WithLabelValues(snapshot.KeyPromo).Inc()
		}
	} else if raw, err := json.Marshal(s.promoCode); err == nil {
		if err := s.snapshots.Set(ctx, s.sessionID, snapshot.KeyPromo, raw); err != nil {
			metrics.SnapshotWriteFailuresTotal.WithLabelValues(snapshot.KeyPromo).Inc()
			logger.Warn(ctx, "promo snapshot write failed", logger.Fields{"error": err.Error()})
		}
	}

	if s.country != "" {
		if raw, err := json.Marshal(s.country); err == nil {
			if err := s.snapshots.Set(ctx, s.sessionID, snapshot.KeyCountry, raw); err != nil {
				metrics.SnapshotWriteFailuresTotal.WithLabelValues(snapshot.KeyCountry).Inc()
				logger.Warn(ctx, "country snapshot write failed", logger.Fields{"error": err.Error()})
			}
		}
	}
}

func (s *Store) viewLocked() *View {
	items := make([]Item, len(s.items))
	copy(items, s.items)

	var shipping *ShippingMethod
	if s.shipping != nil {
		cp := *s.shipping
		shipping = &cp
	}

	var totals *pricing.Totals
	if s.totals != nil {
		cp := *s.totals
		totals = &cp
	}

	subtotal := s.subtotalLocked()
	estimated := subtotal
	if shipping != nil {
		estimated += shipping.Cost
	}
	if s.totals != nil {
		estimated -= s.totals.SiteDiscount + s.totals.LoyaltyDiscount +
			s.totals.PromoDiscount + s.totals.ReferralDiscount + s.totals.WalletDiscount
	}
	if estimated < 0 {
		estimated = 0
	}

	return &View{
		SessionID:      s.sessionID,
		Items:          items,
		Shipping:       shipping,
		PromoCode:      s.promoCode,
		Country:        s.country,
		ApplyWallet:    s.applyWallet,
		Subtotal:       subtotal,
		EstimatedTotal: money.RoundHalfUp(estimated, 2),
		Totals:         totals,
		PricingError:   s.pricingErr,
	}
}

func (s *Store) notify(view *View) {
	if s.onUpdate != nil {
		s.onUpdate(view)
	}
}
