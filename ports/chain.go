package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// ChainVerifier performs the gas-free on-chain proof check. It must never
// submit a state-changing transaction.
type ChainVerifier interface {
	// VerifyProof returns the verifier contract's verdict. A false result is
	// an authoritative cryptographic rejection; transport failures are
	// returned as errors and must never be conflated with rejection.
	VerifyProof(ctx context.Context, artifact core.ProofArtifact) (bool, error)
}

// SessionReader observes the on-chain session ledger.
type SessionReader interface {
	// SessionState reads the current session for the subject
	SessionState(ctx context.Context, subject common.Address) (core.SessionState, error)

	// TxIncluded reports whether the referenced transaction has reached a
	// final state on-chain
	TxIncluded(ctx context.Context, txRef string) (bool, error)
}
