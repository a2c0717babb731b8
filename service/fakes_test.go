package service

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// fakeProvider returns a fixed attestation or error.
type fakeProvider struct {
	name string
	att  core.Attestation
	err  error

	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Fetch(_ context.Context, subject common.Address) (core.Attestation, error) {
	p.calls++
	if p.err != nil {
		return core.Attestation{}, p.err
	}
	att := p.att
	att.Subject = subject
	return att, nil
}

// fakeProver returns a fixed artifact, optionally emitting progress first.
type fakeProver struct {
	artifact core.ProofArtifact
	err      error
	progress []int

	calls int
}

func (p *fakeProver) Generate(_ context.Context, _ common.Address, _ core.Attestation, onProgress ports.ProgressFunc) (core.ProofArtifact, error) {
	p.calls++
	for _, pct := range p.progress {
		onProgress(pct, "proving")
	}
	if p.err != nil {
		return core.ProofArtifact{}, p.err
	}
	return p.artifact, nil
}

// blockingProver ignores cancellation and runs until released, standing in
// for a long proving computation that cannot be interrupted.
type blockingProver struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingProver) Generate(_ context.Context, _ common.Address, _ core.Attestation, onProgress ports.ProgressFunc) (core.ProofArtifact, error) {
	onProgress(10, "proving")
	close(p.started)
	<-p.release
	return core.ProofArtifact{}, errors.New("abandoned")
}

// fakeVerifier returns a fixed verdict.
type fakeVerifier struct {
	verdict bool
	err     error

	calls int
}

func (v *fakeVerifier) VerifyProof(_ context.Context, _ core.ProofArtifact) (bool, error) {
	v.calls++
	return v.verdict, v.err
}

// fakeReader serves scripted session states; after the script is exhausted
// the last state repeats.
type fakeReader struct {
	states   []core.SessionState
	included bool
	readErr  error

	mu            sync.Mutex
	stateCalls    int
	includedCalls int
}

func (r *fakeReader) SessionState(_ context.Context, _ common.Address) (core.SessionState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stateCalls++
	if r.readErr != nil {
		return core.SessionState{}, r.readErr
	}
	if len(r.states) == 0 {
		return core.SessionState{}, nil
	}
	idx := r.stateCalls - 1
	if idx >= len(r.states) {
		idx = len(r.states) - 1
	}
	return r.states[idx], nil
}

func (r *fakeReader) TxIncluded(_ context.Context, _ string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.includedCalls++
	return r.included, nil
}

// fakeRelay returns a fixed activation result.
type fakeRelay struct {
	result core.ActivationResult
	err    error

	calls int
}

func (r *fakeRelay) Activate(_ context.Context, _ common.Address, _ core.ProofArtifact) (core.ActivationResult, error) {
	r.calls++
	if r.err != nil {
		return core.ActivationResult{}, r.err
	}
	return r.result, nil
}

// fakeEvents records published terminal events.
type fakeEvents struct {
	activated []string
	failed    []core.ErrorKind
}

func (e *fakeEvents) PublishActivated(_ context.Context, subject string, _ bool, _ core.ActivationResult) error {
	e.activated = append(e.activated, subject)
	return nil
}

func (e *fakeEvents) PublishFailed(_ context.Context, _ string, kind core.ErrorKind) error {
	e.failed = append(e.failed, kind)
	return nil
}
