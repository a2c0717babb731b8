package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// PollPolicy bounds the confirmation poller. Tests inject zero-delay
// policies; production wiring uses DefaultPollPolicy.
type PollPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollPolicy waits up to one minute for an activation to propagate.
var DefaultPollPolicy = PollPolicy{MaxAttempts: 20, Interval: 3 * time.Second}

// Poller waits for a submitted activation to become observable on-chain.
type Poller struct {
	reader ports.SessionReader
	policy PollPolicy
	log    zerolog.Logger
}

// NewPoller creates a confirmation poller.
func NewPoller(reader ports.SessionReader, policy PollPolicy, log zerolog.Logger) *Poller {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPollPolicy
	}
	return &Poller{reader: reader, policy: policy, log: log}
}

// AwaitActivation blocks until the subject's session is observably active or
// the poll budget is exhausted. When a transaction reference is given, its
// inclusion is awaited first - polling session state before the transaction
// lands is wasted work and a source of false negatives.
func (p *Poller) AwaitActivation(ctx context.Context, subject common.Address, txRef string) error {
	if txRef != "" {
		if err := p.awaitInclusion(ctx, txRef); err != nil {
			return err
		}
	}

	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		state, err := p.reader.SessionState(ctx, subject)
		if err != nil {
			// Transient read failures consume an attempt; the transaction
			// was already accepted so there is nothing better to do.
			p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("session state read failed during confirmation")
		} else if state.Active {
			return nil
		}

		if err := p.sleep(ctx); err != nil {
			return err
		}
	}

	return p.timeout(txRef, "session did not become active within the poll budget")
}

func (p *Poller) awaitInclusion(ctx context.Context, txRef string) error {
	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		included, err := p.reader.TxIncluded(ctx, txRef)
		if err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt+1).Msg("inclusion lookup failed during confirmation")
		} else if included {
			return nil
		}

		if err := p.sleep(ctx); err != nil {
			return err
		}
	}

	return p.timeout(txRef, "activation transaction was not included within the poll budget")
}

func (p *Poller) sleep(ctx context.Context) error {
	if p.policy.Interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.policy.Interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Poller) timeout(txRef, msg string) error {
	return &core.PipelineError{
		Kind:    core.KindConfirmationTimeout,
		Stage:   core.StageConfirmingActivation,
		Message: msg,
		TxRef:   txRef,
	}
}
