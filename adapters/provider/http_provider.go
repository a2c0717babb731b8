package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// HTTPProvider queries a REST credential service for attestations.
type HTTPProvider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// attestationResponse is the wire shape served by credential providers.
type attestationResponse struct {
	Verified       bool   `json:"verified"`
	ExpirationTime uint64 `json:"expiration_time"`
	RevocationTime uint64 `json:"revocation_time"`
}

// NewHTTPProvider creates a provider against the given base URL. The API key
// is sent as a bearer token when non-empty.
func NewHTTPProvider(name, baseURL, apiKey string) ports.CredentialProvider {
	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Name identifies the provider in logs and attestation records.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Fetch retrieves the provider's attestation for the subject. A 404 means
// the provider holds no credential; any other failure is a provider error
// and the resolver moves on to the next provider.
func (p *HTTPProvider) Fetch(ctx context.Context, subject common.Address) (core.Attestation, error) {
	url := fmt.Sprintf("%s/attestations/%s", p.baseURL, subject.Hex())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return core.Attestation{}, fmt.Errorf("failed to build attestation request: %w", err)
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return core.Attestation{}, fmt.Errorf("attestation request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return core.Attestation{}, ports.ErrAttestationNotFound
	case resp.StatusCode != http.StatusOK:
		return core.Attestation{}, fmt.Errorf("attestation request returned status %d", resp.StatusCode)
	}

	var body attestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.Attestation{}, fmt.Errorf("failed to decode attestation response: %w", err)
	}

	return core.Attestation{
		Subject:        subject,
		Verified:       body.Verified,
		ExpirationTime: body.ExpirationTime,
		RevocationTime: body.RevocationTime,
	}, nil
}
