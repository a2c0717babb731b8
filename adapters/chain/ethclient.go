package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/layer-3/garuda/core"
)

// compliance verifier + session manager read surface
const contractABI = `[
	{"name":"verifyComplianceProof","type":"function","stateMutability":"view","inputs":[{"name":"proof","type":"bytes"},{"name":"publicSignals","type":"uint256[]"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"isSessionActive","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"name":"sessionRemaining","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// ContractCaller is the slice of the Ethereum RPC client this adapter needs.
// *ethclient.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client performs gas-free reads against the compliance verifier and session
// manager contracts. It never submits a state-changing transaction; the
// privileged relay owns all writes.
type Client struct {
	caller   ContractCaller
	verifier common.Address // Compliance verifier contract
	sessions common.Address // Session manager contract
	abi      abi.ABI
}

// NewClient creates a read-only chain adapter.
func NewClient(caller ContractCaller, verifier, sessions common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(contractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}
	return &Client{caller: caller, verifier: verifier, sessions: sessions, abi: parsed}, nil
}

// VerifyProof checks the proof against the on-chain verifying key via
// eth_call. A false verdict is a cryptographic rejection and is returned as
// such; transport failures are classified unreachable so the caller never
// mistakes an outage for an invalid proof.
func (c *Client) VerifyProof(ctx context.Context, artifact core.ProofArtifact) (bool, error) {
	signals, err := parseSignals(artifact.PublicSignals)
	if err != nil {
		return false, &core.PipelineError{
			Kind:    core.KindProofInputInvalid,
			Stage:   core.StageVerifyingOnChain,
			Message: "public signals are not valid field elements",
			Err:     err,
		}
	}

	data, err := c.abi.Pack("verifyComplianceProof", artifact.Proof, signals)
	if err != nil {
		return false, &core.PipelineError{
			Kind:    core.KindProofInputInvalid,
			Stage:   core.StageVerifyingOnChain,
			Message: "failed to encode verification call",
			Err:     err,
		}
	}

	out, err := c.call(ctx, c.verifier, data)
	if err != nil {
		return false, c.unreachable("verification call failed", err)
	}

	results, err := c.abi.Unpack("verifyComplianceProof", out)
	if err != nil {
		return false, c.unreachable("malformed verification response", err)
	}
	verdict, ok := results[0].(bool)
	if !ok {
		return false, c.unreachable("malformed verification response", fmt.Errorf("unexpected output type %T", results[0]))
	}

	return verdict, nil
}

// SessionState reads the subject's current session.
func (c *Client) SessionState(ctx context.Context, subject common.Address) (core.SessionState, error) {
	data, err := c.abi.Pack("isSessionActive", subject)
	if err != nil {
		return core.SessionState{}, fmt.Errorf("failed to encode session call: %w", err)
	}

	out, err := c.call(ctx, c.sessions, data)
	if err != nil {
		return core.SessionState{}, c.unreachable("session state call failed", err)
	}

	results, err := c.abi.Unpack("isSessionActive", out)
	if err != nil {
		return core.SessionState{}, c.unreachable("malformed session state response", err)
	}
	active, ok := results[0].(bool)
	if !ok {
		return core.SessionState{}, c.unreachable("malformed session state response", fmt.Errorf("unexpected output type %T", results[0]))
	}
	if !active {
		return core.SessionState{}, nil
	}

	remaining, err := c.sessionRemaining(ctx, subject)
	if err != nil {
		return core.SessionState{}, err
	}
	return core.SessionState{Active: true, RemainingSeconds: remaining}, nil
}

// TxIncluded reports whether the activation transaction has a successful
// receipt. A missing receipt is not an error, just "not yet".
func (c *Client) TxIncluded(ctx context.Context, txRef string) (bool, error) {
	receipt, err := c.caller.TransactionReceipt(ctx, common.HexToHash(txRef))
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return false, nil
		}
		return false, c.unreachable("receipt lookup failed", err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

func (c *Client) sessionRemaining(ctx context.Context, subject common.Address) (uint64, error) {
	data, err := c.abi.Pack("sessionRemaining", subject)
	if err != nil {
		return 0, fmt.Errorf("failed to encode session call: %w", err)
	}

	out, err := c.call(ctx, c.sessions, data)
	if err != nil {
		return 0, c.unreachable("session remaining call failed", err)
	}

	results, err := c.abi.Unpack("sessionRemaining", out)
	if err != nil {
		return 0, c.unreachable("malformed session remaining response", err)
	}
	remaining, ok := results[0].(*big.Int)
	if !ok {
		return 0, c.unreachable("malformed session remaining response", fmt.Errorf("unexpected output type %T", results[0]))
	}
	return remaining.Uint64(), nil
}

func (c *Client) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
}

// unreachable classifies an RPC failure. Rate limiting gets its own kind so
// callers can back off instead of treating the endpoint as down.
func (c *Client) unreachable(msg string, err error) error {
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return &core.PipelineError{
			Kind:    core.KindOnChainThrottled,
			Stage:   core.StageVerifyingOnChain,
			Message: "rpc endpoint is rate limiting requests",
			Err:     err,
		}
	}
	return &core.PipelineError{
		Kind:    core.KindOnChainUnreachable,
		Stage:   core.StageVerifyingOnChain,
		Message: msg,
		Err:     err,
	}
}

// parseSignals converts the decimal public signal strings to the uint256
// layout the contract expects.
func parseSignals(signals []string) ([]*big.Int, error) {
	out := make([]*big.Int, len(signals))
	for i, s := range signals {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("public signal %d is not a decimal integer", i)
		}
		out[i] = v
	}
	return out, nil
}
