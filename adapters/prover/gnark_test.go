package prover

import (
	"bytes"
	"context"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

var subject = common.HexToAddress("0xABC0000000000000000000000000000000000001")

func setupProver(t *testing.T) (ports.Prover, constraint.ConstraintSystem, groth16.VerifyingKey) {
	t.Helper()

	ccs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &EligibilityCircuit{})
	require.NoError(t, err)

	pk, vk, err := groth16.Setup(ccs)
	require.NoError(t, err)

	return NewGnarkProver(ccs, pk, EligibilityAssignment), ccs, vk
}

func TestGnarkProverGeneratesVerifiableProof(t *testing.T) {
	p, _, vk := setupProver(t)

	att := core.Attestation{Subject: subject, Verified: true}

	var checkpoints []int
	artifact, err := p.Generate(context.Background(), subject, att, func(percent int, _ string) {
		checkpoints = append(checkpoints, percent)
	})
	require.NoError(t, err)

	require.Len(t, artifact.PublicSignals, EligibilityPublicSignals)
	assert.Equal(t, new(big.Int).SetBytes(subject.Bytes()).String(), artifact.PublicSignals[0])
	assert.NotEmpty(t, artifact.Proof)
	assert.Greater(t, artifact.GenerationTime.Nanoseconds(), int64(0))

	// Checkpoints arrive in order and finish at 100
	require.NotEmpty(t, checkpoints)
	for i := 1; i < len(checkpoints); i++ {
		assert.GreaterOrEqual(t, checkpoints[i], checkpoints[i-1])
	}
	assert.Equal(t, 100, checkpoints[len(checkpoints)-1])

	// The serialized proof round-trips and verifies against the circuit key
	proof := groth16.NewProof(ecc.BN254)
	_, err = proof.ReadFrom(bytes.NewReader(artifact.Proof))
	require.NoError(t, err)

	assignment, err := EligibilityAssignment(subject, att)
	require.NoError(t, err)
	pubWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	require.NoError(t, err)

	require.NoError(t, groth16.Verify(proof, vk, pubWitness))
}

func TestGnarkProverUnverifiedAttestationFailsAssertion(t *testing.T) {
	p, _, _ := setupProver(t)

	att := core.Attestation{Subject: subject, Verified: false}

	_, err := p.Generate(context.Background(), subject, att, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindProofAssertionFailed, core.KindOf(err))
}

func TestGnarkProverRevokedAttestationFailsAssertion(t *testing.T) {
	// The orchestrator rejects revoked credentials before proving; the
	// circuit constraints refuse them independently.
	p, _, _ := setupProver(t)

	att := core.Attestation{Subject: subject, Verified: true, RevocationTime: 1700000000}

	_, err := p.Generate(context.Background(), subject, att, nil)
	require.Error(t, err)
	assert.Equal(t, core.KindProofAssertionFailed, core.KindOf(err))
}

func TestGnarkProverNilProgressCallback(t *testing.T) {
	p, _, _ := setupProver(t)

	_, err := p.Generate(context.Background(), subject, core.Attestation{Subject: subject, Verified: true}, nil)
	assert.NoError(t, err)
}
