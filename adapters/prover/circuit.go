package prover

import (
	"math/big"

	"github.com/consensys/gnark/frontend"
	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
)

// EligibilityCircuit mirrors the wire layout of the deployed compliance
// eligibility circuit. The proving and verifying keys are produced by the
// external circuit build pipeline; this binding only has to agree on the
// variable layout. Public inputs first, in declaration order.
type EligibilityCircuit struct {
	Subject frontend.Variable `gnark:",public"` // Subject address as a field element

	Verified       frontend.Variable // Credential verified flag, 0 or 1
	RevocationTime frontend.Variable // Unix seconds, must be zero
}

// EligibilityPublicSignals is the public input count the verifier expects
// for this circuit layout.
const EligibilityPublicSignals = 1

// Define declares the eligibility constraints: the credential must be
// verified, unrevoked, and bound to a nonzero subject.
func (c *EligibilityCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(c.Verified, 1)
	api.AssertIsEqual(c.RevocationTime, 0)
	api.AssertIsDifferent(c.Subject, 0)
	return nil
}

// EligibilityAssignment builds the witness assignment for the eligibility
// circuit from a subject and its attestation.
func EligibilityAssignment(subject common.Address, att core.Attestation) (frontend.Circuit, error) {
	verified := 0
	if att.Verified {
		verified = 1
	}
	return &EligibilityCircuit{
		Subject:        new(big.Int).SetBytes(subject.Bytes()),
		Verified:       verified,
		RevocationTime: new(big.Int).SetUint64(att.RevocationTime),
	}, nil
}
