package provider

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// SyntheticProvider fabricates verified attestations for development and
// test environments where no credential service is reachable. It must never
// be wired into a production configuration; attestations it produces are
// marked synthetic so downstream consumers can refuse to bill them.
type SyntheticProvider struct{}

// NewSyntheticProvider creates the non-production fallback provider.
func NewSyntheticProvider() ports.CredentialProvider {
	return &SyntheticProvider{}
}

// Name identifies the provider in logs and attestation records.
func (p *SyntheticProvider) Name() string {
	return "synthetic"
}

// Fetch returns a fabricated, clearly marked attestation.
func (p *SyntheticProvider) Fetch(_ context.Context, subject common.Address) (core.Attestation, error) {
	return core.Attestation{
		Subject:   subject,
		Verified:  true,
		Synthetic: true,
	}, nil
}
