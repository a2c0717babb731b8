package ports

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// ErrAttestationNotFound is returned by a provider that answered but holds no
// credential for the subject. It is distinct from a provider transport error;
// the resolver treats both as "try the next provider".
var ErrAttestationNotFound = errors.New("no attestation found for subject")

// CredentialProvider queries one external credential source for a subject.
// A revoked or expired record is still a successful resolution - the caller
// needs it to report why compliance failed, not just that it failed.
type CredentialProvider interface {
	// Name identifies the provider in logs and attestation records
	Name() string

	// Fetch returns the provider's attestation for the subject, or
	// ErrAttestationNotFound when the provider holds none
	Fetch(ctx context.Context, subject common.Address) (core.Attestation, error)
}
