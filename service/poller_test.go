package service

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layer-3/garuda/core"
)

var pollerSubject = common.HexToAddress("0xABC0000000000000000000000000000000000002")

// zeroDelay keeps poller tests instantaneous.
var zeroDelay = PollPolicy{MaxAttempts: 3, Interval: 0}

func TestPollerSucceedsWhenSessionActivates(t *testing.T) {
	reader := &fakeReader{
		included: true,
		states: []core.SessionState{
			{Active: false},
			{Active: true, RemainingSeconds: 3600},
		},
	}
	p := NewPoller(reader, zeroDelay, zerolog.Nop())

	err := p.AwaitActivation(context.Background(), pollerSubject, "0xdeadbeef")
	require.NoError(t, err)
	assert.Equal(t, 2, reader.stateCalls)
	assert.GreaterOrEqual(t, reader.includedCalls, 1, "inclusion is awaited before session polling")
}

func TestPollerSkipsInclusionWithoutTxRef(t *testing.T) {
	reader := &fakeReader{states: []core.SessionState{{Active: true}}}
	p := NewPoller(reader, zeroDelay, zerolog.Nop())

	require.NoError(t, p.AwaitActivation(context.Background(), pollerSubject, ""))
	assert.Equal(t, 0, reader.includedCalls)
}

func TestPollerTimeoutPreservesTxRef(t *testing.T) {
	reader := &fakeReader{included: true, states: []core.SessionState{{Active: false}}}
	p := NewPoller(reader, zeroDelay, zerolog.Nop())

	err := p.AwaitActivation(context.Background(), pollerSubject, "0xfeed")
	require.Error(t, err)

	var pe *core.PipelineError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, core.KindConfirmationTimeout, pe.Kind)
	assert.Equal(t, "0xfeed", pe.TxRef)
	assert.Equal(t, zeroDelay.MaxAttempts, reader.stateCalls)
}

func TestPollerInclusionTimeout(t *testing.T) {
	reader := &fakeReader{included: false}
	p := NewPoller(reader, zeroDelay, zerolog.Nop())

	err := p.AwaitActivation(context.Background(), pollerSubject, "0xfeed")
	require.Error(t, err)
	assert.Equal(t, core.KindConfirmationTimeout, core.KindOf(err))
	assert.Equal(t, 0, reader.stateCalls, "session polling never starts before inclusion")
}

func TestPollerToleratesTransientReadErrors(t *testing.T) {
	reader := &fakeReader{readErr: errors.New("rpc hiccup")}
	p := NewPoller(reader, zeroDelay, zerolog.Nop())

	err := p.AwaitActivation(context.Background(), pollerSubject, "")
	require.Error(t, err)
	assert.Equal(t, core.KindConfirmationTimeout, core.KindOf(err))
	assert.Equal(t, zeroDelay.MaxAttempts, reader.stateCalls, "read errors consume attempts, not abort")
}

func TestPollerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reader := &fakeReader{states: []core.SessionState{{Active: false}}}
	p := NewPoller(reader, PollPolicy{MaxAttempts: 100, Interval: 1}, zerolog.Nop())

	err := p.AwaitActivation(ctx, pollerSubject, "")
	assert.ErrorIs(t, err, context.Canceled)
}
