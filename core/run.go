package core

import "time"

// Stage identifies where a pipeline run currently is.
type Stage string

const (
	// StageIdle is the initial state before Verify is called
	StageIdle Stage = "idle"

	// StageResolvingCredentials is the attestation lookup stage
	StageResolvingCredentials Stage = "resolving_credentials"

	// StageGeneratingProof is the zero-knowledge proof computation stage
	StageGeneratingProof Stage = "generating_proof"

	// StageVerifyingOnChain is the gas-free on-chain verification stage
	StageVerifyingOnChain Stage = "verifying_on_chain"

	// StageActivatingSession is the relay submission stage
	StageActivatingSession Stage = "activating_session"

	// StageConfirmingActivation is the bounded confirmation polling stage
	StageConfirmingActivation Stage = "confirming_activation"

	// StageSucceeded is the terminal success state
	StageSucceeded Stage = "succeeded"

	// StageFailed is the terminal failure state
	StageFailed Stage = "failed"
)

// Terminal reports whether the stage is one of the two terminal states.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// ProgressEvent is a single progress update emitted during a run.
type ProgressEvent struct {
	Stage   Stage  `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// PipelineRun is the transient orchestration state for one Verify invocation.
// It is mutated only by the orchestrator and discarded once the run reaches a
// terminal state; callers must capture results before starting a new run.
type PipelineRun struct {
	ID        string    // Unique run identifier
	Subject   string    // Subject address being verified, hex-encoded
	Stage     Stage     // Current state-machine state
	Progress  int       // 0-100, monotonically non-decreasing within a run
	Message   string    // Human-readable current-activity string
	Err       error     // Set only in the terminal failed state
	StartedAt time.Time // When Verify was called
}

// advance moves the run forward, clamping progress so it never regresses.
func (r *PipelineRun) advance(stage Stage, percent int, message string) {
	if percent < r.Progress {
		percent = r.Progress
	}
	if percent > 100 {
		percent = 100
	}
	r.Stage = stage
	r.Progress = percent
	r.Message = message
}

// Advance records a stage transition and returns the matching progress event.
func (r *PipelineRun) Advance(stage Stage, percent int, message string) ProgressEvent {
	r.advance(stage, percent, message)
	return ProgressEvent{Stage: r.Stage, Percent: r.Progress, Message: r.Message}
}

// Fail moves the run to the terminal failed state, preserving progress.
func (r *PipelineRun) Fail(err error) ProgressEvent {
	r.Err = err
	r.advance(StageFailed, r.Progress, err.Error())
	return ProgressEvent{Stage: r.Stage, Percent: r.Progress, Message: r.Message}
}
