package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// RelayClient submits a verified proof to the privileged relay service that
// performs the state-changing session activation on the subject's behalf.
type RelayClient interface {
	// Activate submits the proof; the result disambiguates an already active
	// session from a freshly submitted transaction
	Activate(ctx context.Context, subject common.Address, artifact core.ProofArtifact) (core.ActivationResult, error)
}
