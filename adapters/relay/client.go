package relay

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
)

// DefaultTokenTTL is the lifetime of a relay request token.
const DefaultTokenTTL = 2 * time.Minute

// Client submits verified proofs to the privileged session relay. Requests
// carry a short-lived ES256 bearer token; the relay holds the on-chain
// authority to activate sessions, the calling service never does.
type Client struct {
	baseURL string
	signKey *ecdsa.PrivateKey
	issuer  string
	client  *http.Client
}

// verifyRequest is the relay's POST /verify body.
type verifyRequest struct {
	SubjectAddress string   `json:"subjectAddress"`
	ProofBytes     string   `json:"proofBytes"`
	PublicSignals  []string `json:"publicSignals"`
}

// verifyResponse is the relay's success body. Exactly one of AlreadyActive
// or TransactionRef is meaningful.
type verifyResponse struct {
	AlreadyActive  bool            `json:"alreadyActive"`
	TransactionRef string          `json:"transactionRef"`
	GasCost        decimal.Decimal `json:"gasCost"` // Accepts JSON numbers and numeric strings
}

// errorResponse carries the relay's machine-readable rejection reason.
type errorResponse struct {
	Reason string `json:"reason"`
}

// NewClient creates a relay client. The signing key authenticates this
// service to the relay.
func NewClient(baseURL string, signKey *ecdsa.PrivateKey, issuer string) ports.RelayClient {
	return &Client{
		baseURL: baseURL,
		signKey: signKey,
		issuer:  issuer,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Activate submits the proof to the relay. Relay-side rejections are
// terminal; transport failures and throttling are classified separately so
// callers can decide whether retrying the run is worthwhile.
func (c *Client) Activate(ctx context.Context, subject common.Address, artifact core.ProofArtifact) (core.ActivationResult, error) {
	body, err := json.Marshal(verifyRequest{
		SubjectAddress: subject.Hex(),
		ProofBytes:     hexutil.Encode(artifact.Proof),
		PublicSignals:  artifact.PublicSignals,
	})
	if err != nil {
		return core.ActivationResult{}, c.unavailable("failed to encode relay request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return core.ActivationResult{}, c.unavailable("failed to build relay request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.requestToken(subject)
	if err != nil {
		return core.ActivationResult{}, c.unavailable("failed to sign relay request token", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return core.ActivationResult{}, c.unavailable("relay request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return c.decodeResult(resp)

	case resp.StatusCode == http.StatusTooManyRequests:
		return core.ActivationResult{}, &core.PipelineError{
			Kind:    core.KindRelayThrottled,
			Stage:   core.StageActivatingSession,
			Message: "relay is rate limiting requests",
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The relay validated the proof itself and refused it.
		var reason errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&reason)
		return core.ActivationResult{}, &core.PipelineError{
			Kind:    core.KindRelayRejected,
			Stage:   core.StageActivatingSession,
			Message: rejectionMessage(reason.Reason),
		}

	default:
		return core.ActivationResult{}, c.unavailable(fmt.Sprintf("relay returned status %d", resp.StatusCode), nil)
	}
}

func (c *Client) decodeResult(resp *http.Response) (core.ActivationResult, error) {
	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return core.ActivationResult{}, c.unavailable("malformed relay response", err)
	}

	return core.ActivationResult{
		TxRef:         body.TransactionRef,
		AlreadyActive: body.AlreadyActive,
		GasCost:       body.GasCost,
	}, nil
}

// requestToken signs a short-lived token binding the request to the subject.
// ES256 is defined over P-256; the jwt library only checks the key's bit
// size, so a key on another 256-bit curve would sign a token no verifier
// accepts.
func (c *Client) requestToken(subject common.Address) (string, error) {
	if c.signKey.Curve != elliptic.P256() {
		return "", fmt.Errorf("signing key is on curve %s, ES256 requires P-256", c.signKey.Curve.Params().Name)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   subject.Hex(),
		Audience:  jwt.ClaimStrings{"session-relay"},
		ExpiresAt: jwt.NewNumericDate(now.Add(DefaultTokenTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.signKey)
}

func (c *Client) unavailable(msg string, err error) error {
	return &core.PipelineError{
		Kind:    core.KindRelayUnavailable,
		Stage:   core.StageActivatingSession,
		Message: msg,
		Err:     err,
	}
}

func rejectionMessage(reason string) string {
	if reason == "" {
		return "relay refused to activate session"
	}
	return "relay refused to activate session: " + reason
}
