// Package ratelimit provides per-session rate limiting for checkout
// submissions.
package ratelimit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"strings"
	"time"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Config defines a sliding-window rate limit.
type Config struct {
	MaxAttempts int           `json:"max_attempts"`
	Window      time.Duration `json:"window"`
	BlockTime   time.Duration `json:"block_time,omitempty"` // optional block after the limit is hit
}

// CheckoutRateLimit caps submission attempts per session.
var CheckoutRateLimit = Config{
	MaxAttempts: 5,
	Window:      time.Minute,
	BlockTime:   2 * time.Minute,
}

// AttemptRecord tracks attempts for a specific key.
type AttemptRecord struct {
	Key       string     `json:"key"`
	Count     int        `json:"count"`
	FirstSeen time.Time  `json:"first_seen"`
	LastSeen  time.Time  `json:"last_seen"`
	BlockedAt *time.Time `json:"blocked_at,omitempty"`
}

// RateLimiter enforces a Config against a storage backend.
type RateLimiter struct {
	config        Config
	storage       Storage
	cleanupTicker *time.Ticker
	cleanupStop   chan struct{}
}

// NewRateLimiter creates a rate limiter backed by memory storage.
func NewRateLimiter(config Config) *RateLimiter {
	return NewRateLimiterWithStorage(config, NewMemoryStorage())
}

// NewRateLimiterWithStorage creates a rate limiter with a custom backend.
func NewRateLimiterWithStorage(config Config, storage Storage) *RateLimiter {
	return &RateLimiter{
		config:      config,
		storage:     storage,
		cleanupStop: make(chan struct{}),
	}
}

// EnableAutoCleanup starts periodic eviction of expired records.
func (rl *RateLimiter) EnableAutoCleanup(interval time.Duration) {
	if rl.cleanupTicker != nil {
		return
	}
	rl.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				if err := rl.storage.CleanupExpired(ctx, rl.config.Window); err != nil {
					log.Printf("RateLimiter cleanup failed: %v", err)
				}
				cancel()
			case <-rl.cleanupStop:
				return
			}
		}
	}()
}

// hashKey hashes a key for logging so session identifiers never reach
// log files verbatim.
func hashKey(key string) string {
	if key == "" {
		return "empty-key"
	}
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:4])
}

// IsAllowed checks and records one attempt for the key.
func (rl *RateLimiter) IsAllowed(key string) bool {
	if key == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	record, err := rl.storage.GetRecord(ctx, key)
	if err != nil {
		// Fail open: a broken limiter must not block checkouts.
		log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
		return true
	}

	if record == nil {
		record = &AttemptRecord{Key: key, Count: 1, FirstSeen: now, LastSeen: now}
		if err := rl.storage.SetRecord(ctx, key, record); err != nil {
			log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
		}
		return true
	}

	if record.BlockedAt != nil && rl.config.BlockTime > 0 {
		if now.Sub(*record.BlockedAt) < rl.config.BlockTime {
			return false
		}
		record.BlockedAt = nil
		record.Count = 0
		record.FirstSeen = now
	}

	if now.Sub(record.FirstSeen) >= rl.config.Window {
		record.Count = 1
		record.FirstSeen = now
		record.LastSeen = now
		if err := rl.storage.SetRecord(ctx, key, record); err != nil {
			log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
		}
		return true
	}

	if record.Count >= rl.config.MaxAttempts {
		if rl.config.BlockTime > 0 && record.BlockedAt == nil {
			record.BlockedAt = &now
		}
		if err := rl.storage.SetRecord(ctx, key, record); err != nil {
			log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
		}
		return false
	}

	record.Count++
	record.LastSeen = now
	if err := rl.storage.SetRecord(ctx, key, record); err != nil {
		log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
	}
	return true
}

// RecordAttempt records an attempt, returning ErrRateLimitExceeded when
// the key is over its limit.
func (rl *RateLimiter) RecordAttempt(key string) error {
	if !rl.IsAllowed(key) {
		return ErrRateLimitExceeded
	}
	return nil
}

// GetTimeUntilReset returns how long until the key's limit resets.
func (rl *RateLimiter) GetTimeUntilReset(key string) time.Duration {
	if key == "" {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record, err := rl.storage.GetRecord(ctx, key)
	if err != nil || record == nil {
		return 0
	}

	now := time.Now().UTC()
	if record.BlockedAt != nil && rl.config.BlockTime > 0 {
		blockExpiry := record.BlockedAt.Add(rl.config.BlockTime)
		if now.Before(blockExpiry) {
			return blockExpiry.Sub(now)
		}
	}

	windowExpiry := record.FirstSeen.Add(rl.config.Window)
	if now.Before(windowExpiry) {
		return windowExpiry.Sub(now)
	}
	return 0
}

// Reset clears the limit for the given key.
func (rl *RateLimiter) Reset(key string) {
	if key == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rl.storage.DeleteRecord(ctx, key); err != nil {
		log.Printf("RateLimiter storage error for key hash %s: %v", hashKey(key), err)
	}
}

// Close stops cleanup and closes the backend.
func (rl *RateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
		close(rl.cleanupStop)
		rl.cleanupTicker = nil
	}
	if rl.storage != nil {
		return rl.storage.Close()
	}
	return nil
}

// SessionKey builds a rate limit key for a session-scoped action.
func SessionKey(action, sessionID string) string {
	return strings.Join([]string{"session", action, sessionID}, ":")
}
