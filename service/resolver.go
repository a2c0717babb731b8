package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// DefaultCacheTTL bounds how long a resolved attestation may be reused
// before the providers are consulted again.
const DefaultCacheTTL = 5 * time.Minute

// Resolver queries configured credential providers in priority order and
// normalizes the first usable answer into a single attestation record.
type Resolver struct {
	providers []ports.CredentialProvider
	fallback  ports.CredentialProvider // Nil in production configuration
	cache     ports.AttestationCache   // Optional
	cacheTTL  time.Duration
	log       zerolog.Logger
}

// NewResolver creates a resolver over the given providers. Providers are
// tried in the order given; the first structurally valid answer wins.
func NewResolver(providers []ports.CredentialProvider, log zerolog.Logger) *Resolver {
	return &Resolver{
		providers: providers,
		cacheTTL:  DefaultCacheTTL,
		log:       log,
	}
}

// WithFallback installs the synthetic credential provider used when every
// real provider fails. It must never be installed in production wiring; the
// substitution is decided once at configuration time, not per call.
func (r *Resolver) WithFallback(fallback ports.CredentialProvider) *Resolver {
	r.fallback = fallback
	return r
}

// WithCache installs a short-TTL attestation cache.
func (r *Resolver) WithCache(cache ports.AttestationCache, ttl time.Duration) *Resolver {
	r.cache = cache
	if ttl > 0 {
		r.cacheTTL = ttl
	}
	return r
}

// Resolve returns the attestation for the subject. A revoked or expired
// record still resolves successfully - validation happens in the
// orchestrator so the failure reason can be reported precisely. When no
// provider yields a record the resolver fails closed, unless a non-production
// fallback is installed.
func (r *Resolver) Resolve(ctx context.Context, subject common.Address) (core.Attestation, error) {
	if r.cache != nil {
		if att, err := r.cache.Get(ctx, subject); err == nil {
			r.log.Debug().Str("subject", subject.Hex()).Str("provider", att.Provider).Msg("attestation cache hit")
			return att, nil
		}
	}

	var lastErr error
	for _, p := range r.providers {
		att, err := p.Fetch(ctx, subject)
		if err != nil {
			if !errors.Is(err, ports.ErrAttestationNotFound) {
				r.log.Warn().Err(err).Str("provider", p.Name()).Msg("credential provider failed")
				lastErr = err
			}
			continue
		}

		att.Subject = subject
		att.Provider = p.Name()

		if r.cache != nil {
			if cerr := r.cache.Put(ctx, subject, att, r.cacheTTL); cerr != nil {
				r.log.Warn().Err(cerr).Msg("failed to cache attestation")
			}
		}

		return att, nil
	}

	if r.fallback != nil {
		r.log.Warn().Str("subject", subject.Hex()).Msg("no real credential available, substituting synthetic attestation")
		att, err := r.fallback.Fetch(ctx, subject)
		if err != nil {
			return core.Attestation{}, &core.PipelineError{
				Kind:    core.KindCredentialUnavailable,
				Stage:   core.StageResolvingCredentials,
				Message: "synthetic credential fallback failed",
				Err:     err,
			}
		}
		att.Subject = subject
		att.Synthetic = true
		att.Provider = r.fallback.Name()
		return att, nil
	}

	return core.Attestation{}, &core.PipelineError{
		Kind:    core.KindCredentialUnavailable,
		Stage:   core.StageResolvingCredentials,
		Message: "unable to obtain compliance credentials",
		Err:     lastErr,
	}
}

// Invalidate drops any cached attestation for the subject so the next run
// consults the providers again.
func (r *Resolver) Invalidate(ctx context.Context, subject common.Address) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Drop(ctx, subject); err != nil {
		r.log.Warn().Err(err).Str("subject", subject.Hex()).Msg("failed to drop cached attestation")
	}
}
