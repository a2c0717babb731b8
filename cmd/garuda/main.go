package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/layer-3/garuda/adapters/chain"
	"github.com/layer-3/garuda/adapters/events"
	"github.com/layer-3/garuda/adapters/provider"
	"github.com/layer-3/garuda/adapters/prover"
	"github.com/layer-3/garuda/adapters/relay"
	"github.com/layer-3/garuda/adapters/store"
	"github.com/layer-3/garuda/ports"
	"github.com/layer-3/garuda/service"
	transport "github.com/layer-3/garuda/transport/http"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	production := getenv("GARUDA_ENV", "development") == "production"

	// Ethereum RPC and contract addresses
	rpcURL := getenv("ETH_RPC_URL", "http://localhost:8545")
	ethClient, err := ethclient.Dial(rpcURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to dial Ethereum RPC")
	}

	chainClient, err := chain.NewClient(
		ethClient,
		common.HexToAddress(mustGetenv(log, "VERIFIER_CONTRACT")),
		common.HexToAddress(mustGetenv(log, "SESSION_CONTRACT")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create chain client")
	}

	// Credential providers, tried in the order configured
	var providers []ports.CredentialProvider
	apiKey := os.Getenv("CREDENTIAL_PROVIDER_API_KEY")
	for i, url := range splitList(os.Getenv("CREDENTIAL_PROVIDER_URLS")) {
		name := "provider-" + string(rune('a'+i))
		providers = append(providers, provider.NewHTTPProvider(name, url, apiKey))
	}
	if len(providers) == 0 && production {
		log.Fatal().Msg("CREDENTIAL_PROVIDER_URLS is required in production")
	}

	resolver := service.NewResolver(providers, log)
	if !production {
		// Synthetic credentials are a development convenience only; the
		// fallback cannot be wired in a production configuration.
		resolver.WithFallback(provider.NewSyntheticProvider())
	}

	// Optional Redis: attestation cache + event publishing
	var pipelineEvents ports.EventPublisher
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse Redis URL")
		}
		redisClient := redis.NewClient(opts)

		resolver.WithCache(store.NewRedisCache(redisClient), service.DefaultCacheTTL)

		publisher, err := redisstream.NewPublisher(
			redisstream.PublisherConfig{Client: redisClient},
			watermill.NewStdLogger(false, false),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Redis publisher")
		}
		pipelineEvents = events.NewWatermillPublisher(publisher)
	} else {
		resolver.WithCache(store.NewMemoryCache(), service.DefaultCacheTTL)
	}

	// Prover over the externally compiled eligibility circuit
	zkProver, err := prover.NewGnarkProverFromFiles(
		mustGetenv(log, "CIRCUIT_CCS_PATH"),
		mustGetenv(log, "CIRCUIT_PK_PATH"),
		prover.EligibilityAssignment,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load proving artifacts")
	}

	// Relay client, authenticated with our service key. The relay verifies
	// ES256 tokens, so the key must be a P-256 scalar.
	relayKey, err := parseES256Key(mustGetenv(log, "RELAY_SIGNING_KEY"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse relay signing key")
	}
	relayClient := relay.NewClient(mustGetenv(log, "RELAY_URL"), relayKey, "garuda")

	poller := service.NewPoller(chainClient, service.DefaultPollPolicy, log)

	pipeline := service.NewPipeline(
		resolver,
		zkProver,
		chainClient,
		chainClient,
		relayClient,
		poller,
		prover.EligibilityPublicSignals,
		log,
	)
	if pipelineEvents != nil {
		pipeline.WithEvents(pipelineEvents)
	}

	// HTTP surface
	handlers := transport.NewComplianceHandlers(pipeline, chainClient, log)
	router := transport.SetupRouter(handlers, os.Getenv("API_TOKEN"))

	addr := getenv("LISTEN_ADDR", ":9000")
	server := &http.Server{Addr: addr, Handler: router}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", addr).Bool("production", production).Msg("starting compliance service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server exited")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
}

// parseES256Key decodes a hex-encoded P-256 private scalar.
func parseES256Key(hexKey string) (*ecdsa.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("key is not valid hex: %w", err)
	}

	curve := elliptic.P256()
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(curve.Params().N) >= 0 {
		return nil, errors.New("key is not a valid P-256 scalar")
	}

	key := &ecdsa.PrivateKey{D: d}
	key.Curve = curve
	key.X, key.Y = curve.ScalarBaseMult(d.Bytes())
	return key, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustGetenv(log zerolog.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal().Str("key", key).Msg("required environment variable is not set")
	}
	return v
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
