package service

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// Progress checkpoints per stage. Proof generation owns the widest slice of
// the budget since it dominates wall-clock time.
const (
	progressResolved   = 5
	proofFloor         = 10
	proofCeiling       = 60
	progressVerified   = 75
	progressSubmitted  = 85
	progressConfirming = 90
	progressDone       = 100
)

// ProgressSink receives ordered progress events for one run. A nil sink is
// allowed and ignored.
type ProgressSink func(core.ProgressEvent)

// Pipeline drives a subject address through credential resolution, proof
// generation, on-chain verification, relay activation and confirmation. One
// Verify call is one strictly sequential run; concurrent runs for the same
// subject are not deduplicated here.
type Pipeline struct {
	resolver *Resolver
	prover   ports.Prover
	verifier ports.ChainVerifier
	reader   ports.SessionReader
	relay    ports.RelayClient
	poller   *Poller
	events   ports.EventPublisher // Optional

	expectedSignals int
	log             zerolog.Logger
}

// NewPipeline wires the pipeline from its stage implementations.
// expectedSignals is the public signal count the on-chain verifier expects; a
// generated artifact with a different layout is a generation defect and never
// reaches the chain.
func NewPipeline(
	resolver *Resolver,
	prover ports.Prover,
	verifier ports.ChainVerifier,
	reader ports.SessionReader,
	relay ports.RelayClient,
	poller *Poller,
	expectedSignals int,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:        resolver,
		prover:          prover,
		verifier:        verifier,
		reader:          reader,
		relay:           relay,
		poller:          poller,
		expectedSignals: expectedSignals,
		log:             log,
	}
}

// WithEvents installs a publisher for terminal pipeline events.
func (p *Pipeline) WithEvents(events ports.EventPublisher) *Pipeline {
	p.events = events
	return p
}

// Verify runs the full pipeline for the subject and returns the resulting
// session state. Progress events, if wanted, go through VerifyWithProgress.
func (p *Pipeline) Verify(ctx context.Context, subject common.Address) (core.SessionState, error) {
	return p.VerifyWithProgress(ctx, subject, nil)
}

// VerifyWithProgress runs the full pipeline, delivering ordered progress
// events to sink. The sink is called from the orchestration goroutine only.
func (p *Pipeline) VerifyWithProgress(ctx context.Context, subject common.Address, sink ProgressSink) (core.SessionState, error) {
	run := &core.PipelineRun{
		ID:        uuid.New().String(),
		Subject:   subject.Hex(),
		Stage:     core.StageIdle,
		StartedAt: time.Now(),
	}
	emit := func(ev core.ProgressEvent) {
		if sink != nil {
			sink(ev)
		}
	}

	log := p.log.With().Str("run_id", run.ID).Str("subject", run.Subject).Logger()

	state, err := p.verify(ctx, run, subject, emit, log)
	if err != nil {
		emit(run.Fail(err))
		log.Error().Err(err).Str("stage", string(run.Stage)).Msg("verification pipeline failed")
		p.publishFailed(subject, err)
		return core.SessionState{}, err
	}

	emit(run.Advance(core.StageSucceeded, progressDone, "session active"))
	log.Info().Dur("elapsed", time.Since(run.StartedAt)).Msg("verification pipeline succeeded")
	return state, nil
}

// verify executes the six stages in order. Each stage starts only after the
// previous one returned successfully; there is no speculative execution.
func (p *Pipeline) verify(ctx context.Context, run *core.PipelineRun, subject common.Address, emit ProgressSink, log zerolog.Logger) (core.SessionState, error) {
	// Stage 1: credential resolution, fail-closed.
	emit(run.Advance(core.StageResolvingCredentials, 0, "resolving compliance credentials"))

	att, err := p.resolver.Resolve(ctx, subject)
	if err != nil {
		return core.SessionState{}, err
	}

	if err := att.Validate(time.Now()); err != nil {
		p.resolver.Invalidate(ctx, subject)
		return core.SessionState{}, err
	}
	emit(run.Advance(core.StageResolvingCredentials, progressResolved, "compliance credentials resolved"))

	// Stage 2: proof generation, off the orchestration goroutine.
	emit(run.Advance(core.StageGeneratingProof, proofFloor, "generating zero-knowledge proof"))

	artifact, err := p.generateProof(ctx, run, subject, att, emit)
	if err != nil {
		return core.SessionState{}, err
	}
	if err := artifact.CheckSignals(p.expectedSignals); err != nil {
		return core.SessionState{}, err
	}
	log.Debug().Dur("proving_time", artifact.GenerationTime).Int("signals", len(artifact.PublicSignals)).Msg("proof generated")

	// Stage 3: gas-free on-chain verification. A false verdict is
	// authoritative and terminal; the relay is never consulted after one.
	emit(run.Advance(core.StageVerifyingOnChain, proofCeiling, "verifying proof on-chain"))

	ok, err := p.verifier.VerifyProof(ctx, artifact)
	if err != nil {
		return core.SessionState{}, p.classify(err, core.KindOnChainUnreachable, core.StageVerifyingOnChain, "on-chain verification call failed")
	}
	if !ok {
		return core.SessionState{}, &core.PipelineError{
			Kind:    core.KindOnChainRejected,
			Stage:   core.StageVerifyingOnChain,
			Message: "on-chain verification rejected this proof",
		}
	}
	emit(run.Advance(core.StageVerifyingOnChain, progressVerified, "proof verified on-chain"))

	// Stage 4: relay activation.
	emit(run.Advance(core.StageActivatingSession, progressVerified, "submitting proof to session relay"))

	result, err := p.relay.Activate(ctx, subject, artifact)
	if err != nil {
		return core.SessionState{}, p.classify(err, core.KindRelayUnavailable, core.StageActivatingSession, "relay submission failed")
	}
	emit(run.Advance(core.StageActivatingSession, progressSubmitted, "session activation submitted"))

	// Stage 5: confirmation. An already active session skips the wait.
	if !result.AlreadyActive {
		emit(run.Advance(core.StageConfirmingActivation, progressConfirming, "waiting for session activation"))
		if err := p.poller.AwaitActivation(ctx, subject, result.TxRef); err != nil {
			return core.SessionState{}, err
		}
	}

	state, err := p.reader.SessionState(ctx, subject)
	if err != nil {
		// The session is active at this point; a failed final read only
		// loses the remaining-seconds detail.
		log.Warn().Err(err).Msg("final session state read failed")
		state = core.SessionState{Active: true}
	}

	p.publishActivated(subject, att.Synthetic, result)
	return state, nil
}

// generateProof runs the prover on a worker goroutine and drains its progress
// into the run's overall budget. Communication is message-passing only.
func (p *Pipeline) generateProof(ctx context.Context, run *core.PipelineRun, subject common.Address, att core.Attestation, emit ProgressSink) (core.ProofArtifact, error) {
	type proofResult struct {
		artifact core.ProofArtifact
		err      error
	}

	progressCh := make(chan core.ProgressEvent, 16)
	resultCh := make(chan proofResult, 1)

	go func() {
		artifact, err := p.prover.Generate(ctx, subject, att, func(percent int, message string) {
			ev := core.ProgressEvent{Stage: core.StageGeneratingProof, Percent: percent, Message: message}
			select {
			case progressCh <- ev:
			default: // Never block the prover on a slow consumer
			}
		})
		resultCh <- proofResult{artifact: artifact, err: err}
		close(progressCh)
	}()

	for {
		select {
		case ev, ok := <-progressCh:
			if !ok {
				res := <-resultCh
				if res.err != nil {
					return core.ProofArtifact{}, p.classify(res.err, core.KindProofAssertionFailed, core.StageGeneratingProof, "proof generation failed")
				}
				return res.artifact, nil
			}
			emit(run.Advance(core.StageGeneratingProof, rescale(ev.Percent, proofFloor, proofCeiling), ev.Message))

		case <-ctx.Done():
			// The worker finishes in the background; its buffered result
			// is dropped.
			return core.ProofArtifact{}, ctx.Err()
		}
	}
}

// classify wraps an error that escaped a component without classification.
// Already classified errors pass through untouched, as do context
// cancellations from an abandoned run.
func (p *Pipeline) classify(err error, kind core.ErrorKind, stage core.Stage, msg string) error {
	if core.KindOf(err) != "" {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &core.PipelineError{Kind: kind, Stage: stage, Message: msg, Err: err}
}

// rescale maps a component-local 0-100 percentage into a slice of the
// overall run budget.
func rescale(percent, floor, ceiling int) int {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return floor + percent*(ceiling-floor)/100
}

func (p *Pipeline) publishActivated(subject common.Address, synthetic bool, result core.ActivationResult) {
	if p.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.events.PublishActivated(ctx, subject.Hex(), synthetic, result); err != nil {
		p.log.Warn().Err(err).Msg("failed to publish activation event")
	}
}

func (p *Pipeline) publishFailed(subject common.Address, err error) {
	if p.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if perr := p.events.PublishFailed(ctx, subject.Hex(), core.KindOf(err)); perr != nil {
		p.log.Warn().Err(perr).Msg("failed to publish failure event")
	}
}
