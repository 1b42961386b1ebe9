package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"encore.app/pkg/pricing"
	"encore.app/pkg/snapshot"
)

type fakePricer struct {
	fn    func(req *pricing.Request) (*pricing.Totals, error)
	calls int
}

func (f *fakePricer) Calculate(ctx context.Context, req *pricing.Request) (*pricing.Totals, error) {
	f.calls++
	if f.fn == nil {
		return nil, errors.New("pricing offline")
	}
	return f.fn(req)
}

func failingPricer() *fakePricer {
	return &fakePricer{}
}

func newTestStore(p Pricer) *Store {
	return NewStore(Options{
		SessionID:     "sess-1",
		Pricer:        p,
		Snapshots:     snapshot.NewMemoryStorage(),
		Country:       "FR",
		SyncReconcile: true,
	})
}

func TestAddItemMergesByProductVariant(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", VariantID: "v1", Name: "Thé vert", UnitPrice: "10.00", Quantity: 2}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	view, err := s.AddItem(ctx, AddInput{ProductID: "p1", VariantID: "v1", Name: "Thé vert", UnitPrice: "10.00", Quantity: 3})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	regular := 0
	for _, it := range view.Items {
		if it.IsGift {
			continue
		}
		regular++
		if it.Quantity != 5 {
			t.Errorf("merged quantity = %d, want 5", it.Quantity)
		}
	}
	if regular != 1 {
		t.Errorf("regular lines = %d, want 1 (merged)", regular)
	}

	// A different variant is a distinct line.
	view, err = s.AddItem(ctx, AddInput{ProductID: "p1", VariantID: "v2", Name: "Thé vert 100g", UnitPrice: "18.00", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	regular = 0
	for _, it := range view.Items {
		if !it.IsGift {
			regular++
		}
	}
	if regular != 2 {
		t.Errorf("regular lines = %d, want 2", regular)
	}
}

func TestAddItemParsesLocalePrice(t *testing.T) {
	s := newTestStore(failingPricer())
	view, err := s.AddItem(context.Background(), AddInput{ProductID: "p1", Name: "Coffret", UnitPrice: "1 299,50 €", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if view.Items[0].UnitPrice != 1299.50 {
		t.Errorf("UnitPrice = %v, want 1299.5", view.Items[0].UnitPrice)
	}
}

func TestAddItemFloorsQuantity(t *testing.T) {
	s := newTestStore(failingPricer())
	view, err := s.AddItem(context.Background(), AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "5.00", Quantity: -3})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if view.Items[0].Quantity != 1 {
		t.Errorf("Quantity = %d, want 1", view.Items[0].Quantity)
	}
}

func TestGiftLinesAreImmutable(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	// Subtotal 80 derives a gift line locally.
	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "40.00", Quantity: 2}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	view := s.View()
	giftID := ""
	for _, it := range view.Items {
		if it.IsGift {
			giftID = it.ProductID
		}
	}
	if giftID == "" {
		t.Fatal("no gift derived at subtotal 80")
	}

	if _, err := s.AddItem(ctx, AddInput{ProductID: giftID, Name: "x", UnitPrice: "0", Quantity: 1}); err == nil {
		t.Error("AddItem accepted a gift id")
	}

	// Quantity updates and removal targeting the gift line are silent
	// no-ops; the cart's composition must not change.
	before := s.View()
	after, err := s.UpdateQuantity(ctx, giftID, "", 5)
	if err != nil {
		t.Fatalf("UpdateQuantity on gift returned error: %v", err)
	}
	if len(after.Items) != len(before.Items) {
		t.Error("UpdateQuantity on gift changed cart composition")
	}
	after, err = s.RemoveItem(ctx, giftID, "")
	if err != nil {
		t.Fatalf("RemoveItem on gift returned error: %v", err)
	}
	if len(after.Items) != len(before.Items) {
		t.Error("RemoveItem on gift changed cart composition")
	}
	for _, it := range after.Items {
		if it.IsGift && it.Quantity == 5 {
			t.Error("gift quantity was mutated")
		}
	}

	// Subtotal from regular lines only: the gift contributes nothing.
	if view.Subtotal != 80.00 {
		t.Errorf("Subtotal = %v, want 80", view.Subtotal)
	}
}

func TestRemoveLastItemResetsCart(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "60.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s.SetShippingMethod(ctx, &ShippingMethod{ID: "std", Name: "Standard", Cost: 4.95}); err != nil {
		t.Fatalf("SetShippingMethod failed: %v", err)
	}
	if _, err := s.SetPromoCode(ctx, "BIENVENUE10"); err != nil {
		t.Fatalf("SetPromoCode failed: %v", err)
	}

	view, err := s.RemoveItem(ctx, "p1", "")
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}

	if len(view.Items) != 0 {
		t.Errorf("items = %d, want 0 (gifts cleared with last regular item)", len(view.Items))
	}
	if view.Shipping != nil {
		t.Error("shipping survived cart reset")
	}
	if view.PromoCode != "" {
		t.Error("promo code survived cart reset")
	}
	if view.Totals != nil {
		t.Error("totals survived cart reset")
	}
	if view.EstimatedTotal != 0 {
		t.Errorf("EstimatedTotal = %v, want 0", view.EstimatedTotal)
	}
}

func TestUpdateQuantityBelowOneIsNoOp(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 2}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	for _, qty := range []int{0, -1} {
		view, err := s.UpdateQuantity(ctx, "p1", "", qty)
		if err != nil {
			t.Fatalf("UpdateQuantity(%d) failed: %v", qty, err)
		}
		if view.IsEmpty() {
			t.Fatalf("UpdateQuantity(%d) removed the line", qty)
		}
		if view.Items[0].Quantity != 2 {
			t.Errorf("UpdateQuantity(%d): quantity = %d, want 2 unchanged", qty, view.Items[0].Quantity)
		}
	}
}

func TestUpdateUnknownItemIsNoOp(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	view, err := s.UpdateQuantity(ctx, "nope", "", 3)
	if err != nil {
		t.Fatalf("UpdateQuantity failed: %v", err)
	}
	if len(view.Items) == 0 || view.Items[0].Quantity != 1 {
		t.Error("UpdateQuantity for unknown item changed the cart")
	}

	view, err = s.RemoveItem(ctx, "nope", "")
	if err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if view.IsEmpty() {
		t.Error("RemoveItem for unknown item changed the cart")
	}
}

func TestReconcileAppliesAuthoritativeTotals(t *testing.T) {
	pricer := &fakePricer{fn: func(req *pricing.Request) (*pricing.Totals, error) {
		// Gifts must have been stripped by issuance or the client.
		for _, it := range req.Items {
			if it.IsGift {
				continue
			}
			if it.ProductID != "p1" {
				return nil, errors.New("unexpected item")
			}
		}
		t := &pricing.Totals{
			Subtotal:     20.00,
			ShippingCost: 4.95,
			Currency:     "EUR",
		}
		t.Normalize()
		return t, nil
	}}
	s := newTestStore(pricer)

	view, err := s.AddItem(context.Background(), AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 2})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if view.Totals == nil {
		t.Fatal("no totals after successful reconciliation")
	}
	if view.Totals.Total != 24.95 {
		t.Errorf("Total = %v, want 24.95", view.Totals.Total)
	}
	if view.PricingError != "" {
		t.Errorf("PricingError = %q, want empty", view.PricingError)
	}
}

func TestReconcileFailureKeepsLastKnownGood(t *testing.T) {
	good := &pricing.Totals{Subtotal: 20.00, ShippingCost: 4.95}
	good.Normalize()

	healthy := true
	pricer := &fakePricer{fn: func(req *pricing.Request) (*pricing.Totals, error) {
		if !healthy {
			return nil, errors.New("pricing offline")
		}
		cp := *good
		return &cp, nil
	}}
	s := newTestStore(pricer)
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 2}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	healthy = false
	view, err := s.AddItem(ctx, AddInput{ProductID: "p2", Name: "Infusion", UnitPrice: "8.00", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	if view.Totals == nil || view.Totals.Total != 24.95 {
		t.Error("last-known-good totals lost on reconcile failure")
	}
	if view.PricingError == "" {
		t.Error("no advisory error after reconcile failure")
	}
	if view.Subtotal != 28.00 {
		t.Errorf("Subtotal = %v, want 28 (cart stays usable)", view.Subtotal)
	}
}

func TestStaleResponseDropped(t *testing.T) {
	s := newTestStore(failingPricer())
	ctx := context.Background()

	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	// Two reconciliations issued in order A, B.
	s.mu.Lock()
	seqA, _ := s.issueLocked()
	seqB, _ := s.issueLocked()
	s.mu.Unlock()

	totalsA := &pricing.Totals{Subtotal: 10.00, Total: 10.00}
	totalsB := &pricing.Totals{Subtotal: 10.00, ShippingCost: 4.95, Total: 14.95}

	// B arrives first and is applied; A arrives late and must be
	// discarded even though it arrived last.
	s.applyResult(ctx, seqB, totalsB, nil, time.Now())
	s.applyResult(ctx, seqA, totalsA, nil, time.Now())

	view := s.View()
	if view.Totals == nil || view.Totals.Total != 14.95 {
		t.Errorf("Totals = %+v, want the later-issued breakdown (14.95)", view.Totals)
	}
}

func TestServerGiftsReplaceLocalDerivation(t *testing.T) {
	pricer := &fakePricer{fn: func(req *pricing.Request) (*pricing.Totals, error) {
		return &pricing.Totals{
			Subtotal: 90.00,
			Total:    90.00,
			AutomaticGifts: []pricing.GiftRef{
				{ID: "gift-sample-20g", Quantity: 1},
				{ID: "gift-unknown-xyz", Quantity: 1}, // skipped
			},
		}, nil
	}}
	s := newTestStore(pricer)

	view, err := s.AddItem(context.Background(), AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "90.00", Quantity: 1})
	if err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	var giftIDs []string
	for _, it := range view.Items {
		if it.IsGift {
			giftIDs = append(giftIDs, it.ProductID)
		}
	}
	if len(giftIDs) != 1 || giftIDs[0] != "gift-sample-20g" {
		t.Errorf("gift lines = %v, want [gift-sample-20g]", giftIDs)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	storage := snapshot.NewMemoryStorage()
	ctx := context.Background()

	s1 := NewStore(Options{SessionID: "sess-rt", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if _, err := s1.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "12.90", Quantity: 2}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s1.SetPromoCode(ctx, "ETE2026"); err != nil {
		t.Fatalf("SetPromoCode failed: %v", err)
	}
	if _, err := s1.SetCountry(ctx, "BE"); err != nil {
		t.Fatalf("SetCountry failed: %v", err)
	}

	s2 := NewStore(Options{SessionID: "sess-rt", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if err := s2.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}

	view := s2.View()
	if view.IsEmpty() {
		t.Fatal("rehydrated cart is empty")
	}
	if view.Subtotal != 25.80 {
		t.Errorf("Subtotal = %v, want 25.8", view.Subtotal)
	}
	if view.PromoCode != "ETE2026" {
		t.Errorf("PromoCode = %q, want ETE2026", view.PromoCode)
	}
	if view.Country != "BE" {
		t.Errorf("Country = %q, want BE", view.Country)
	}
}

// jsonStrictStorage rejects values that are not valid JSON documents,
// matching what the jsonb-backed SQL store accepts.
type jsonStrictStorage struct {
	*snapshot.MemoryStorage
}

func (s *jsonStrictStorage) Set(ctx context.Context, sessionID, key string, value []byte) error {
	if !json.Valid(value) {
		return fmt.Errorf("invalid input syntax for type json: %q", value)
	}
	return s.MemoryStorage.Set(ctx, sessionID, key, value)
}

func TestSnapshotsSurviveJSONStrictBackend(t *testing.T) {
	storage := &jsonStrictStorage{MemoryStorage: snapshot.NewMemoryStorage()}
	ctx := context.Background()

	s1 := NewStore(Options{SessionID: "sess-json", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if _, err := s1.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s1.SetPromoCode(ctx, "ETE2026"); err != nil {
		t.Fatalf("SetPromoCode failed: %v", err)
	}
	if _, err := s1.SetCountry(ctx, "BE"); err != nil {
		t.Fatalf("SetCountry failed: %v", err)
	}

	// All three keys must hold valid JSON documents.
	for _, key := range []string{snapshot.KeyCart, snapshot.KeyPromo, snapshot.KeyCountry} {
		raw, err := storage.Get(ctx, "sess-json", key)
		if err != nil {
			t.Fatalf("snapshot %q was rejected by the JSON-strict backend: %v", key, err)
		}
		if !json.Valid(raw) {
			t.Errorf("snapshot %q is not valid JSON: %q", key, raw)
		}
	}

	s2 := NewStore(Options{SessionID: "sess-json", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if err := s2.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	view := s2.View()
	if view.PromoCode != "ETE2026" {
		t.Errorf("PromoCode = %q, want ETE2026", view.PromoCode)
	}
	if view.Country != "BE" {
		t.Errorf("Country = %q, want BE", view.Country)
	}
}

func TestRehydrateMalformedSnapshotStartsEmpty(t *testing.T) {
	storage := snapshot.NewMemoryStorage()
	ctx := context.Background()
	if err := storage.Set(ctx, "sess-bad", snapshot.KeyCart, []byte("{not json")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	s := NewStore(Options{SessionID: "sess-bad", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if err := s.Rehydrate(ctx); err != nil {
		t.Fatalf("Rehydrate failed: %v", err)
	}
	if !s.View().IsEmpty() {
		t.Error("malformed snapshot did not yield an empty cart")
	}
}

func TestClearDropsSnapshots(t *testing.T) {
	storage := snapshot.NewMemoryStorage()
	ctx := context.Background()

	s := NewStore(Options{SessionID: "sess-clear", Pricer: failingPricer(), Snapshots: storage, Country: "FR", SyncReconcile: true})
	if _, err := s.AddItem(ctx, AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if _, err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if _, err := storage.Get(ctx, "sess-clear", snapshot.KeyCart); err != snapshot.ErrNotFound {
		t.Errorf("cart snapshot survived Clear: %v", err)
	}
	if !s.View().IsEmpty() {
		t.Error("cart not empty after Clear")
	}
}

func TestOnUpdateNotified(t *testing.T) {
	updates := 0
	s := NewStore(Options{
		SessionID:     "sess-n",
		Pricer:        failingPricer(),
		Snapshots:     snapshot.NewMemoryStorage(),
		Country:       "FR",
		SyncReconcile: true,
		OnUpdate:      func(view *View) { updates++ },
	})
	if _, err := s.AddItem(context.Background(), AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}
	if updates == 0 {
		t.Error("no update notifications delivered")
	}
}
