package core

import "time"

// ProofArtifact is the output of proof generation.
type ProofArtifact struct {
	// Proof is the opaque serialized proof
	Proof []byte

	// PublicSignals are the public inputs, ordered to match the on-chain
	// verifier's expected layout
	PublicSignals []string

	// GenerationTime is the wall-clock cost, for diagnostics only
	GenerationTime time.Duration
}

// CheckSignals verifies that the artifact carries the expected number of
// public signals. A mismatch is a generation defect, not a proof rejection,
// and is classified as such.
func (p ProofArtifact) CheckSignals(expected int) error {
	if len(p.PublicSignals) != expected {
		return &PipelineError{
			Kind:    KindProofInputInvalid,
			Stage:   StageGeneratingProof,
			Message: "proof artifact public signal layout does not match the verifier",
		}
	}
	return nil
}
