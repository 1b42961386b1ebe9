package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cartstore "encore.app/pkg/cart"
	"encore.app/pkg/pricing"
	"encore.app/pkg/snapshot"
)

type offlinePricer struct{}

func (offlinePricer) Calculate(ctx context.Context, req *pricing.Request) (*pricing.Totals, error) {
	return nil, errors.New("pricing offline")
}

func TestManagerReturnsSameStorePerSession(t *testing.T) {
	m := NewManager(ManagerOptions{Pricer: offlinePricer{}, Snapshots: snapshot.NewMemoryStorage()})
	ctx := context.Background()

	s1, err := m.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	s2, err := m.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s1 != s2 {
		t.Error("same session produced distinct stores")
	}

	other, err := m.Get(ctx, "sess-2")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if other == s1 {
		t.Error("distinct sessions share a store")
	}
}

func TestManagerConcurrentFirstAccess(t *testing.T) {
	m := NewManager(ManagerOptions{Pricer: offlinePricer{}, Snapshots: snapshot.NewMemoryStorage()})
	ctx := context.Background()

	const n = 16
	stores := make([]*cartstore.Store, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Get(ctx, "sess-c")
			if err != nil {
				t.Errorf("Get failed: %v", err)
				return
			}
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if stores[i] != stores[0] {
			t.Fatal("concurrent first access created multiple stores")
		}
	}
	if m.Count() != 1 {
		t.Errorf("live stores = %d, want 1", m.Count())
	}
}

func TestManagerRehydratesFromSnapshots(t *testing.T) {
	storage := snapshot.NewMemoryStorage()
	ctx := context.Background()

	seed := cartstore.NewStore(cartstore.Options{
		SessionID:     "sess-r",
		Pricer:        offlinePricer{},
		Snapshots:     storage,
		Country:       "FR",
		SyncReconcile: true,
	})
	if _, err := seed.AddItem(ctx, cartstore.AddInput{ProductID: "p1", Name: "Thé", UnitPrice: "10.00", Quantity: 1}); err != nil {
		t.Fatalf("AddItem failed: %v", err)
	}

	m := NewManager(ManagerOptions{Pricer: offlinePricer{}, Snapshots: storage})
	store, err := m.Get(ctx, "sess-r")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if store.View().IsEmpty() {
		t.Error("rehydrated store is empty")
	}
}

func TestManagerEvictIdle(t *testing.T) {
	m := NewManager(ManagerOptions{Pricer: offlinePricer{}, Snapshots: snapshot.NewMemoryStorage()})
	ctx := context.Background()

	if _, err := m.Get(ctx, "sess-idle"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Nothing is older than an hour yet.
	if evicted := m.EvictIdle(time.Hour); evicted != 0 {
		t.Errorf("evicted %d stores, want 0", evicted)
	}

	// With a zero threshold everything is idle.
	time.Sleep(5 * time.Millisecond)
	if evicted := m.EvictIdle(0); evicted != 1 {
		t.Errorf("evicted %d stores, want 1", evicted)
	}
	if m.Count() != 0 {
		t.Errorf("live stores = %d, want 0", m.Count())
	}
}
