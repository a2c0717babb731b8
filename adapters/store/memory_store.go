package store

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// MemoryCache is an in-memory implementation of the attestation cache,
// suitable for tests and single-instance deployments.
type MemoryCache struct {
	entries map[common.Address]cacheEntry
	mu      sync.RWMutex
}

type cacheEntry struct {
	att       core.Attestation
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory attestation cache.
func NewMemoryCache() ports.AttestationCache {
	return &MemoryCache{
		entries: make(map[common.Address]cacheEntry),
	}
}

// Put stores an attestation with an expiry.
func (c *MemoryCache) Put(ctx context.Context, subject common.Address, att core.Attestation, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[subject] = cacheEntry{att: att, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Get retrieves a cached attestation, or ports.ErrCacheMiss.
func (c *MemoryCache) Get(ctx context.Context, subject common.Address) (core.Attestation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[subject]
	if !exists || time.Now().After(entry.expiresAt) {
		return core.Attestation{}, ports.ErrCacheMiss
	}
	return entry.att, nil
}

// Drop removes any cached attestation for the subject.
func (c *MemoryCache) Drop(ctx context.Context, subject common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, subject)
	return nil
}
