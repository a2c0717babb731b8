package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

var pipelineSubject = common.HexToAddress("0xABC0000000000000000000000000000000000003")

type pipelineFixture struct {
	provider *fakeProvider
	prover   *fakeProver
	verifier *fakeVerifier
	reader   *fakeReader
	relay    *fakeRelay
	events   *fakeEvents
	pipeline *Pipeline
}

// newFixture wires a pipeline whose default path succeeds end to end.
func newFixture() *pipelineFixture {
	f := &pipelineFixture{
		provider: &fakeProvider{name: "test", att: core.Attestation{Verified: true}},
		prover: &fakeProver{
			artifact: core.ProofArtifact{Proof: []byte{0x01}, PublicSignals: []string{"42"}},
			progress: []int{25, 50, 100},
		},
		verifier: &fakeVerifier{verdict: true},
		reader:   &fakeReader{included: true, states: []core.SessionState{{Active: true, RemainingSeconds: 3600}}},
		relay:    &fakeRelay{result: core.ActivationResult{TxRef: "0xfeed"}},
		events:   &fakeEvents{},
	}

	resolver := NewResolver([]ports.CredentialProvider{f.provider}, zerolog.Nop())
	poller := NewPoller(f.reader, PollPolicy{MaxAttempts: 3, Interval: 0}, zerolog.Nop())

	f.pipeline = NewPipeline(resolver, f.prover, f.verifier, f.reader, f.relay, poller, 1, zerolog.Nop()).
		WithEvents(f.events)
	return f
}

func TestPipelineSucceeds(t *testing.T) {
	// Scenario: a clean attestation carries all the way to an active session.
	f := newFixture()

	var events []core.ProgressEvent
	state, err := f.pipeline.VerifyWithProgress(context.Background(), pipelineSubject, func(ev core.ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.EqualValues(t, 3600, state.RemainingSeconds)

	// Progress is monotonically non-decreasing and ends at 100
	require.NotEmpty(t, events)
	last := -1
	for _, ev := range events {
		assert.GreaterOrEqual(t, ev.Percent, last, "progress regressed at %s", ev.Message)
		last = ev.Percent
	}
	final := events[len(events)-1]
	assert.Equal(t, core.StageSucceeded, final.Stage)
	assert.Equal(t, 100, final.Percent)

	assert.Equal(t, []string{pipelineSubject.Hex()}, f.events.activated)
}

func TestPipelineRevokedCredentialStopsBeforeProof(t *testing.T) {
	f := newFixture()
	f.provider.att = core.Attestation{Verified: false, RevocationTime: 1700000000}

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindCredentialRevoked, core.KindOf(err))
	assert.Equal(t, 0, f.prover.calls, "proof generation must never start for a revoked credential")
	assert.Equal(t, 0, f.relay.calls)
	assert.Equal(t, []core.ErrorKind{core.KindCredentialRevoked}, f.events.failed)
}

func TestPipelineExpiredCredential(t *testing.T) {
	f := newFixture()
	f.provider.att = core.Attestation{Verified: true, ExpirationTime: 1}

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindCredentialExpired, core.KindOf(err))
	assert.Equal(t, 0, f.prover.calls)
}

func TestPipelineOnChainRejectionNeverReachesRelay(t *testing.T) {
	f := newFixture()
	f.verifier.verdict = false

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindOnChainRejected, core.KindOf(err))
	assert.Equal(t, 0, f.relay.calls, "a rejected proof must never be submitted to the relay")
}

func TestPipelineAlreadyActiveSkipsPoller(t *testing.T) {
	f := newFixture()
	f.relay.result = core.ActivationResult{AlreadyActive: true}

	state, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, 0, f.reader.includedCalls, "already active bypasses the inclusion wait")
	assert.Equal(t, 1, f.reader.stateCalls, "only the final state read happens")
}

func TestPipelineConfirmationTimeoutKeepsTxRef(t *testing.T) {
	f := newFixture()
	f.reader.states = []core.SessionState{{Active: false}}

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)

	assert.Equal(t, core.KindConfirmationTimeout, core.KindOf(err))
	var pe *core.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "0xfeed", pe.TxRef, "the tx reference survives for manual lookup")
}

func TestPipelineSecondRunSkipsInclusionWait(t *testing.T) {
	// First run activates via a transaction; the relay reports the session
	// already active on the second run, so no inclusion wait happens again.
	f := newFixture()

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.NoError(t, err)
	inclusionWaits := f.reader.includedCalls
	require.Greater(t, inclusionWaits, 0)

	f.relay.result = core.ActivationResult{AlreadyActive: true}
	state, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.NoError(t, err)
	assert.True(t, state.Active)
	assert.Equal(t, inclusionWaits, f.reader.includedCalls, "an already active session skips the inclusion wait")
}

func TestPipelineSignalLayoutMismatchIsGenerationDefect(t *testing.T) {
	f := newFixture()
	f.prover.artifact.PublicSignals = []string{"1", "2"}

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindProofInputInvalid, core.KindOf(err))
	assert.Equal(t, 0, f.verifier.calls, "a defective artifact never reaches the chain")
}

func TestPipelineClassifiesRawVerifierError(t *testing.T) {
	f := newFixture()
	f.verifier.err = assert.AnError

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindOnChainUnreachable, core.KindOf(err), "transport failure is never conflated with rejection")
}

func TestPipelineRelayRejection(t *testing.T) {
	f := newFixture()
	f.relay.err = &core.PipelineError{Kind: core.KindRelayRejected, Stage: core.StageActivatingSession, Message: "refused"}

	_, err := f.pipeline.Verify(context.Background(), pipelineSubject)
	require.Error(t, err)
	assert.Equal(t, core.KindRelayRejected, core.KindOf(err))
	assert.Equal(t, 0, f.reader.includedCalls)
}

func TestPipelineProofProgressRescaled(t *testing.T) {
	f := newFixture()

	var proofEvents []core.ProgressEvent
	_, err := f.pipeline.VerifyWithProgress(context.Background(), pipelineSubject, func(ev core.ProgressEvent) {
		if ev.Stage == core.StageGeneratingProof {
			proofEvents = append(proofEvents, ev)
		}
	})
	require.NoError(t, err)

	// Prover checkpoints land inside the proof stage's slice of the budget
	require.NotEmpty(t, proofEvents)
	for _, ev := range proofEvents {
		assert.GreaterOrEqual(t, ev.Percent, 10)
		assert.LessOrEqual(t, ev.Percent, 60)
	}
}

func TestPipelineCancelledDuringProofReturnsPromptly(t *testing.T) {
	// An abandoned run returns without waiting for the prover, which keeps
	// computing in the background.
	f := newFixture()
	prover := &blockingProver{started: make(chan struct{}), release: make(chan struct{})}
	t.Cleanup(func() { close(prover.release) })
	f.pipeline.prover = prover

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		_, err := f.pipeline.Verify(ctx, pipelineSubject)
		errCh <- err
	}()

	<-prover.started
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, f.verifier.calls)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not return while the prover was still running")
	}
}

func TestPipelineSyntheticAttestationFlaggedInEvent(t *testing.T) {
	f := newFixture()
	f.provider.err = ports.ErrAttestationNotFound

	fallback := &fakeProvider{name: "synthetic", att: core.Attestation{Verified: true}}
	resolver := NewResolver([]ports.CredentialProvider{f.provider}, zerolog.Nop()).WithFallback(fallback)
	poller := NewPoller(f.reader, PollPolicy{MaxAttempts: 3, Interval: 0}, zerolog.Nop())

	events := &syntheticRecorder{}
	pipeline := NewPipeline(resolver, f.prover, f.verifier, f.reader, f.relay, poller, 1, zerolog.Nop()).
		WithEvents(events)

	_, err := pipeline.Verify(context.Background(), pipelineSubject)
	require.NoError(t, err)
	require.Len(t, events.synthetic, 1)
	assert.True(t, events.synthetic[0], "synthetic runs must be flagged so they are never billed")
}

// syntheticRecorder captures the synthetic flag on activation events.
type syntheticRecorder struct {
	synthetic []bool
}

func (e *syntheticRecorder) PublishActivated(_ context.Context, _ string, synthetic bool, _ core.ActivationResult) error {
	e.synthetic = append(e.synthetic, synthetic)
	return nil
}

func (e *syntheticRecorder) PublishFailed(_ context.Context, _ string, _ core.ErrorKind) error {
	return nil
}
