package ports

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// ProgressFunc receives staged progress from a CPU-bound proof computation.
// Implementations must be safe to call from the prover's worker goroutine.
type ProgressFunc func(percent int, message string)

// Prover computes the compliance proof for a subject and its attestation.
// The computation is CPU-bound and runs off the orchestration goroutine.
type Prover interface {
	// Generate builds the proof artifact, invoking onProgress at
	// implementation-defined checkpoints
	Generate(ctx context.Context, subject common.Address, att core.Attestation, onProgress ProgressFunc) (core.ProofArtifact, error)
}
