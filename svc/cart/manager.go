package cart

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	cartstore "encore.app/pkg/cart"
	"encore.app/pkg/config"
	"encore.app/pkg/gifts"
	"encore.app/pkg/logger"
	"encore.app/pkg/snapshot"
)

// ManagerOptions configures a session store manager.
type ManagerOptions struct {
	Pricer    cartstore.Pricer
	Snapshots snapshot.Storage
	OnUpdate  cartstore.UpdateFunc
}

// Manager owns the live per-session cart stores. Stores are created
// lazily, rehydrated from durable snapshots, and evicted after idling.
// Concurrent first requests for the same session share one rehydration.
type Manager struct {
	mu     sync.RWMutex
	stores map[string]*cartstore.Store
	group  singleflight.Group

	pricer    cartstore.Pricer
	snapshots snapshot.Storage
	onUpdate  cartstore.UpdateFunc
}

// NewManager creates an empty manager.
func NewManager(opts ManagerOptions) *Manager {
	return &Manager{
		stores:    make(map[string]*cartstore.Store),
		pricer:    opts.Pricer,
		snapshots: opts.Snapshots,
		onUpdate:  opts.OnUpdate,
	}
}

// Get returns the live store for a session, creating and rehydrating it
// when absent.
func (m *Manager) Get(ctx context.Context, sessionID string) (*cartstore.Store, error) {
	m.mu.RLock()
	store := m.stores[sessionID]
	m.mu.RUnlock()
	if store != nil {
		return store, nil
	}

	v, err, _ := m.group.Do(sessionID, func() (any, error) {
		m.mu.RLock()
		existing := m.stores[sessionID]
		m.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		country := "FR"
		table := gifts.TableClassic
		if settings := config.GetSettings(); settings != nil {
			country = settings.CartDefaultCountry
			table = gifts.TableByName(settings.GiftTableVariant)
		}

		store := cartstore.NewStore(cartstore.Options{
			SessionID: sessionID,
			Pricer:    m.pricer,
			Snapshots: m.snapshots,
			GiftTable: table,
			Catalog:   gifts.DefaultCatalog,
			Country:   country,
			OnUpdate:  m.onUpdate,
		})
		if err := store.Rehydrate(ctx); err != nil {
			logger.Warn(ctx, "cart rehydration failed, starting empty", logger.Fields{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		if !store.View().IsEmpty() {
			// Rehydrated carts get fresh authoritative totals.
			store.Refresh(ctx)
		}

		m.mu.Lock()
		m.stores[sessionID] = store
		m.mu.Unlock()
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*cartstore.Store), nil
}

// Peek returns the live store without creating one.
func (m *Manager) Peek(sessionID string) *cartstore.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stores[sessionID]
}

// Remove drops a session's live store. Durable snapshots are untouched.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, sessionID)
}

// EvictIdle drops stores untouched for longer than maxIdle and returns
// how many were evicted. Their state survives in snapshots.
func (m *Manager) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for sessionID, store := range m.stores {
		if store.LastTouched().Before(cutoff) {
			delete(m.stores, sessionID)
			evicted++
		}
	}
	return evicted
}

// Count returns the number of live stores.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.stores)
}
