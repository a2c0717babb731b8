package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// RedisCache is a Redis implementation of the attestation cache, shared
// across service instances.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// cachedAttestation is the serialized cache entry. The subject is keyed, not
// stored.
type cachedAttestation struct {
	Verified       bool   `json:"verified"`
	ExpirationTime uint64 `json:"expiration_time"`
	RevocationTime uint64 `json:"revocation_time"`
	Synthetic      bool   `json:"synthetic"`
	Provider       string `json:"provider"`
}

// NewRedisCache creates a new Redis attestation cache.
func NewRedisCache(client *redis.Client) ports.AttestationCache {
	return &RedisCache{
		client: client,
		prefix: "garuda:attestation:",
	}
}

// Put stores an attestation with an expiry.
func (c *RedisCache) Put(ctx context.Context, subject common.Address, att core.Attestation, ttl time.Duration) error {
	payload, err := json.Marshal(cachedAttestation{
		Verified:       att.Verified,
		ExpirationTime: att.ExpirationTime,
		RevocationTime: att.RevocationTime,
		Synthetic:      att.Synthetic,
		Provider:       att.Provider,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal attestation: %w", err)
	}

	if err := c.client.Set(ctx, c.key(subject), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache attestation: %w", err)
	}
	return nil
}

// Get retrieves a cached attestation, or ports.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, subject common.Address) (core.Attestation, error) {
	payload, err := c.client.Get(ctx, c.key(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Attestation{}, ports.ErrCacheMiss
		}
		return core.Attestation{}, fmt.Errorf("failed to read cached attestation: %w", err)
	}

	var entry cachedAttestation
	if err := json.Unmarshal(payload, &entry); err != nil {
		return core.Attestation{}, fmt.Errorf("failed to unmarshal cached attestation: %w", err)
	}

	return core.Attestation{
		Subject:        subject,
		Verified:       entry.Verified,
		ExpirationTime: entry.ExpirationTime,
		RevocationTime: entry.RevocationTime,
		Synthetic:      entry.Synthetic,
		Provider:       entry.Provider,
	}, nil
}

// Drop removes any cached attestation for the subject.
func (c *RedisCache) Drop(ctx context.Context, subject common.Address) error {
	if err := c.client.Del(ctx, c.key(subject)).Err(); err != nil {
		return fmt.Errorf("failed to drop cached attestation: %w", err)
	}
	return nil
}

func (c *RedisCache) key(subject common.Address) string {
	return c.prefix + subject.Hex()
}
