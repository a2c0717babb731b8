package prover

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/consensys/gnark-crypto/ecc"
	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/witness"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// AssignmentFunc builds the full witness assignment for the compliance
// circuit from the subject and its attestation. The circuit itself is
// supplied externally; this adapter only drives the proving system.
type AssignmentFunc func(subject common.Address, att core.Attestation) (frontend.Circuit, error)

// GnarkProver computes groth16 proofs over BN254 using a pre-compiled
// constraint system and proving key.
type GnarkProver struct {
	ccs    constraint.ConstraintSystem
	pk     groth16.ProvingKey
	assign AssignmentFunc
}

// NewGnarkProver creates a prover from an already loaded constraint system
// and proving key.
func NewGnarkProver(ccs constraint.ConstraintSystem, pk groth16.ProvingKey, assign AssignmentFunc) ports.Prover {
	return &GnarkProver{ccs: ccs, pk: pk, assign: assign}
}

// NewGnarkProverFromFiles loads the compiled circuit and proving key from
// disk. Both files are produced by the circuit build pipeline, which is
// external to this service.
func NewGnarkProverFromFiles(ccsPath, pkPath string, assign AssignmentFunc) (ports.Prover, error) {
	ccs := groth16.NewCS(ecc.BN254)
	ccsFile, err := os.Open(ccsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open constraint system: %w", err)
	}
	defer ccsFile.Close()
	if _, err := ccs.ReadFrom(ccsFile); err != nil {
		return nil, fmt.Errorf("failed to read constraint system: %w", err)
	}

	pk := groth16.NewProvingKey(ecc.BN254)
	pkFile, err := os.Open(pkPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open proving key: %w", err)
	}
	defer pkFile.Close()
	if _, err := pk.ReadFrom(pkFile); err != nil {
		return nil, fmt.Errorf("failed to read proving key: %w", err)
	}

	return NewGnarkProver(ccs, pk, assign), nil
}

// Generate computes the proof artifact. Witness construction failures are
// input defects; an unsatisfied circuit during proving is an assertion
// failure. The two are classified separately because only the former points
// at malformed caller data.
func (p *GnarkProver) Generate(ctx context.Context, subject common.Address, att core.Attestation, onProgress ports.ProgressFunc) (core.ProofArtifact, error) {
	started := time.Now()
	progress := func(percent int, message string) {
		if onProgress != nil {
			onProgress(percent, message)
		}
	}

	progress(0, "preparing circuit inputs")

	assignment, err := p.assign(subject, att)
	if err != nil {
		return core.ProofArtifact{}, &core.PipelineError{
			Kind:    core.KindProofInputInvalid,
			Stage:   core.StageGeneratingProof,
			Message: "circuit input encoding failed",
			Err:     err,
		}
	}

	fullWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return core.ProofArtifact{}, &core.PipelineError{
			Kind:    core.KindProofInputInvalid,
			Stage:   core.StageGeneratingProof,
			Message: "witness construction failed",
			Err:     err,
		}
	}

	if err := ctx.Err(); err != nil {
		return core.ProofArtifact{}, err
	}

	progress(20, "computing proof")

	proof, err := groth16.Prove(p.ccs, p.pk, fullWitness)
	if err != nil {
		return core.ProofArtifact{}, &core.PipelineError{
			Kind:    core.KindProofAssertionFailed,
			Stage:   core.StageGeneratingProof,
			Message: "private inputs do not satisfy the circuit",
			Err:     err,
		}
	}

	progress(85, "serializing proof")

	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return core.ProofArtifact{}, &core.PipelineError{
			Kind:    core.KindProofAssertionFailed,
			Stage:   core.StageGeneratingProof,
			Message: "proof serialization failed",
			Err:     err,
		}
	}

	signals, err := publicSignals(fullWitness)
	if err != nil {
		return core.ProofArtifact{}, &core.PipelineError{
			Kind:    core.KindProofInputInvalid,
			Stage:   core.StageGeneratingProof,
			Message: "public signal extraction failed",
			Err:     err,
		}
	}

	progress(100, "proof ready")

	return core.ProofArtifact{
		Proof:          buf.Bytes(),
		PublicSignals:  signals,
		GenerationTime: time.Since(started),
	}, nil
}

// publicSignals extracts the ordered public inputs as decimal strings, the
// layout the verifier contract and the relay both expect.
func publicSignals(w witness.Witness) ([]string, error) {
	pub, err := w.Public()
	if err != nil {
		return nil, fmt.Errorf("failed to split public witness: %w", err)
	}

	vector, ok := pub.Vector().(fr.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected witness vector type %T", pub.Vector())
	}

	signals := make([]string, len(vector))
	for i := range vector {
		signals[i] = vector[i].String()
	}
	return signals, nil
}
