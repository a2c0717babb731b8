package core

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Attestation represents a compliance credential for one subject address.
// It is constructed fresh per verification attempt and never persisted.
type Attestation struct {
	Subject        common.Address // Address the credential is about
	Verified       bool           // True only if the credential is currently valid
	ExpirationTime uint64         // Unix seconds; zero means the credential does not expire
	RevocationTime uint64         // Unix seconds; nonzero means permanently invalid from that instant
	Synthetic      bool           // True for credentials produced by the non-production fallback
	Provider       string         // Name of the provider that resolved the credential
}

// Validate checks whether the attestation authorizes proceeding to proof
// generation. Revocation takes precedence over expiry, which takes precedence
// over the verified flag.
func (a Attestation) Validate(now time.Time) error {
	if a.RevocationTime != 0 {
		return &PipelineError{
			Kind:      KindCredentialRevoked,
			Stage:     StageResolvingCredentials,
			Message:   "compliance credential has been revoked",
			Timestamp: time.Unix(int64(a.RevocationTime), 0),
		}
	}

	if a.ExpirationTime != 0 && int64(a.ExpirationTime) < now.Unix() {
		return &PipelineError{
			Kind:      KindCredentialExpired,
			Stage:     StageResolvingCredentials,
			Message:   "compliance credential has expired",
			Timestamp: time.Unix(int64(a.ExpirationTime), 0),
		}
	}

	if !a.Verified {
		return &PipelineError{
			Kind:    KindCredentialNotVerified,
			Stage:   StageResolvingCredentials,
			Message: "compliance credential is not verified",
		}
	}

	return nil
}
