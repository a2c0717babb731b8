package core

import "github.com/shopspring/decimal"

// SessionState is a read of the on-chain session ledger for one subject.
// The ledger is the sole owner of truth; this subsystem only observes it.
type SessionState struct {
	Active           bool   `json:"active"`
	RemainingSeconds uint64 `json:"remaining_seconds"` // Meaningful only while active
}

// ActivationResult is the outcome of a relay submission.
type ActivationResult struct {
	// TxRef is an opaque transaction identifier; empty when no
	// state-changing call was needed
	TxRef string

	// AlreadyActive is true when the session was valid before this run
	AlreadyActive bool

	// GasCost is an informational cost metric reported by the relay
	GasCost decimal.Decimal
}
