package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a pipeline failure. Every error leaving a component
// boundary carries exactly one kind; raw transport errors are never surfaced
// to callers directly.
type ErrorKind string

const (
	// KindCredentialUnavailable - no provider returned a usable credential (fail-closed)
	KindCredentialUnavailable ErrorKind = "credential_unavailable"

	// KindCredentialRevoked - the credential carries a nonzero revocation time
	KindCredentialRevoked ErrorKind = "credential_revoked"

	// KindCredentialExpired - the credential's expiration time is in the past
	KindCredentialExpired ErrorKind = "credential_expired"

	// KindCredentialNotVerified - the credential exists but is not verified
	KindCredentialNotVerified ErrorKind = "credential_not_verified"

	// KindProofInputInvalid - circuit inputs outside the expected encoding
	KindProofInputInvalid ErrorKind = "proof_input_invalid"

	// KindProofAssertionFailed - the private inputs do not satisfy the circuit
	KindProofAssertionFailed ErrorKind = "proof_assertion_failed"

	// KindOnChainRejected - the verifier contract rejected the proof; authoritative
	KindOnChainRejected ErrorKind = "onchain_rejected"

	// KindOnChainUnreachable - RPC transport failure, not a cryptographic rejection
	KindOnChainUnreachable ErrorKind = "onchain_unreachable"

	// KindOnChainThrottled - the RPC endpoint is rate limiting requests, callers should back off
	KindOnChainThrottled ErrorKind = "onchain_throttled"

	// KindRelayRejected - the relay refused to activate the session
	KindRelayRejected ErrorKind = "relay_rejected"

	// KindRelayUnavailable - relay transport failure (non-2xx, timeout, bad body)
	KindRelayUnavailable ErrorKind = "relay_unavailable"

	// KindRelayThrottled - provider-side rate limiting, callers should back off
	KindRelayThrottled ErrorKind = "relay_throttled"

	// KindConfirmationTimeout - proof and transaction accepted, but the session
	// was not observed active within the poll budget
	KindConfirmationTimeout ErrorKind = "confirmation_timeout"
)

// PipelineError is the classified failure for a pipeline run.
type PipelineError struct {
	Kind      ErrorKind
	Stage     Stage
	Message   string
	Timestamp time.Time // Revocation or expiry instant, when relevant
	TxRef     string    // Preserved for manual lookup after a confirmation timeout
	Err       error     // Underlying cause, if any
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is matches against another PipelineError by kind, so sentinel-style
// comparisons with errors.Is keep working.
func (e *PipelineError) Is(target error) bool {
	var pe *PipelineError
	if errors.As(target, &pe) {
		return pe.Kind == e.Kind
	}
	return false
}

// Retryable reports whether the caller may retry the whole run. Per-stage
// retries inside the pipeline are confined to the confirmation poller.
func (e *PipelineError) Retryable() bool {
	switch e.Kind {
	case KindOnChainUnreachable, KindOnChainThrottled, KindRelayUnavailable, KindRelayThrottled, KindConfirmationTimeout:
		return true
	}
	return false
}

// KindOf extracts the error kind from any error in the chain. The empty
// string is returned for unclassified errors, which indicates a bug in the
// component that let one escape.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
