package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Storage defines the interface for rate limit storage backends.
type Storage interface {
	GetRecord(ctx context.Context, key string) (*AttemptRecord, error)
	SetRecord(ctx context.Context, key string, record *AttemptRecord) error
	DeleteRecord(ctx context.Context, key string) error
	CleanupExpired(ctx context.Context, window time.Duration) error
	Close() error
}

// MemoryStorage implements in-memory storage for rate limiting.
type MemoryStorage struct {
	attempts map[string]*AttemptRecord
	mutex    sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		attempts: make(map[string]*AttemptRecord),
	}
}

// GetRecord retrieves an attempt record, nil when absent.
func (ms *MemoryStorage) GetRecord(ctx context.Context, key string) (*AttemptRecord, error) {
	ms.mutex.RLock()
	defer ms.mutex.RUnlock()

	record, exists := ms.attempts[key]
	if !exists {
		return nil, nil
	}

	// Return a copy to prevent external modification.
	recordCopy := *record
	if record.BlockedAt != nil {
		blockedAtCopy := *record.BlockedAt
		recordCopy.BlockedAt = &blockedAtCopy
	}
	return &recordCopy, nil
}

// SetRecord stores an attempt record.
func (ms *MemoryStorage) SetRecord(ctx context.Context, key string, record *AttemptRecord) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	recordCopy := *record
	if record.BlockedAt != nil {
		blockedAtCopy := *record.BlockedAt
		recordCopy.BlockedAt = &blockedAtCopy
	}
	ms.attempts[key] = &recordCopy
	return nil
}

// DeleteRecord removes an attempt record.
func (ms *MemoryStorage) DeleteRecord(ctx context.Context, key string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	delete(ms.attempts, key)
	return nil
}

// CleanupExpired removes records outside the window.
func (ms *MemoryStorage) CleanupExpired(ctx context.Context, window time.Duration) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	now := time.Now().UTC()
	for key, record := range ms.attempts {
		if record.BlockedAt == nil && now.Sub(record.FirstSeen) > window {
			delete(ms.attempts, key)
		}
		if record.BlockedAt != nil && now.Sub(*record.BlockedAt) > window {
			delete(ms.attempts, key)
		}
	}
	return nil
}

// Close clears all records.
func (ms *MemoryStorage) Close() error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()

	ms.attempts = make(map[string]*AttemptRecord)
	return nil
}
