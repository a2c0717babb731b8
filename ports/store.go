package ports

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// ErrCacheMiss is returned when no cached attestation exists for a subject.
var ErrCacheMiss = errors.New("attestation not cached")

// AttestationCache holds recently resolved attestations for a short TTL so
// repeated runs do not hammer external credential providers. The cache is an
// optimization only; the pipeline is correct with a cache that never hits.
type AttestationCache interface {
	// Put stores an attestation for the subject with an expiry
	Put(ctx context.Context, subject common.Address, att core.Attestation, ttl time.Duration) error

	// Get retrieves a cached attestation, or ErrCacheMiss
	Get(ctx context.Context, subject common.Address) (core.Attestation, error)

	// Drop removes any cached attestation for the subject
	Drop(ctx context.Context, subject common.Address) error
}
