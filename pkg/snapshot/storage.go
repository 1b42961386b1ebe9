// Package snapshot provides durable keyed snapshot storage for
// storefront sessions. Three well-known keys exist per session: the
// cart contents, the applied promo code and the pricing country. Writes
// are best effort; callers log failures and never roll back in-memory
// state.
package snapshot

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Well-known snapshot keys.
const (
	KeyCart    = "cart"
	KeyPromo   = "promo"
	KeyCountry = "country"
)

// Storage errors
var (
	ErrNotFound = errors.New("snapshot not found")
)

// Storage defines the interface for snapshot storage backends
type Storage interface {
	// Get retrieves a snapshot value for a session key
	Get(ctx context.Context, sessionID, key string) ([]byte, error)

	// Set stores a snapshot value for a session key
	Set(ctx context.Context, sessionID, key string, value []byte) error

	// Delete removes one snapshot key for a session
	Delete(ctx context.Context, sessionID, key string) error

	// DeleteSession removes all snapshots for a session
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpired removes snapshots idle longer than maxAge
	CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error)

	// Close closes the storage backend
	Close() error
}

type memoryEntry struct {
	value     []byte
	updatedAt time.Time
}

// MemoryStorage implements in-memory snapshot storage
type MemoryStorage struct {
	entries map[string]map[string]memoryEntry // sessionID -> key -> entry
	mutex   sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]map[string]memoryEntry),
	}
}

// Get retrieves a snapshot value for a session key
func (ms *MemoryStorage) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	keys, exists := ms.entries[sessionID]
	if !exists {
		return nil, ErrNotFound
	}
	entry, exists := keys[key]
	if !exists {
		return nil, ErrNotFound
	}

	// Return a copy to prevent external modification
	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a snapshot value for a session key
func (ms *MemoryStorage) Set(ctx context.Context, sessionID, key string, value []byte) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	keys, exists := ms.entries[sessionID]
	if !exists {
		keys = make(map[string]memoryEntry)
		ms.entries[sessionID] = keys
	}
	keys[key] = memoryEntry{value: stored, updatedAt: time.Now().UTC()}
	return nil
}

// Delete removes one snapshot key for a session
func (ms *MemoryStorage) Delete(ctx context.Context, sessionID, key string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	keys, exists := ms.entries[sessionID]
	if !exists {
		return ErrNotFound
	}
	if _, exists := keys[key]; !exists {
		return ErrNotFound
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(ms.entries, sessionID)
	}
	return nil
}

// DeleteSession removes all snapshots for a session
func (ms *MemoryStorage) DeleteSession(ctx context.Context, sessionID string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	delete(ms.entries, sessionID)
	return nil
}

// CleanupExpired removes snapshots idle longer than maxAge
func (ms *MemoryStorage) CleanupExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	cleaned := 0

	for sessionID, keys := range ms.entries {
		for key, entry := range keys {
			if entry.updatedAt.Before(cutoff) {
				delete(keys, key)
				cleaned++
			}
		}
		if len(keys) == 0 {
			delete(ms.entries, sessionID)
		}
	}

	return cleaned, nil
}

// Close clears the storage (no-op for memory storage otherwise)
func (ms *MemoryStorage) Close() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.entries = make(map[string]map[string]memoryEntry)
	return nil
}
