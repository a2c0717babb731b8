package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/layer-3/garuda/core"
	"github.com/layer-3/garuda/ports"
	"github.com/layer-3/garuda/service"
)

// DefaultRunTimeout bounds a single verification run started over HTTP.
const DefaultRunTimeout = 10 * time.Minute

// ComplianceHandlers contains HTTP handlers for the verification pipeline.
type ComplianceHandlers struct {
	pipeline *service.Pipeline
	reader   ports.SessionReader
	runs     *runRegistry
	log      zerolog.Logger
}

// NewComplianceHandlers creates new compliance handlers.
func NewComplianceHandlers(pipeline *service.Pipeline, reader ports.SessionReader, log zerolog.Logger) *ComplianceHandlers {
	return &ComplianceHandlers{
		pipeline: pipeline,
		reader:   reader,
		runs:     newRunRegistry(),
		log:      log,
	}
}

// Verify starts a verification run for the requested address and returns the
// run id for progress tracking. The run continues even if the client
// disconnects; a fresh status read observes the resulting session state.
func (h *ComplianceHandlers) Verify(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !common.IsHexAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}
	subject := common.HexToAddress(req.Address)

	runID := uuid.New().String()
	h.runs.create(runID, subject.Hex())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultRunTimeout)
		defer cancel()

		// The terminal event is withheld from update and recorded through
		// finish together with the error, so polling clients never see a
		// terminal stage without its error kind.
		var terminal core.ProgressEvent
		_, err := h.pipeline.VerifyWithProgress(ctx, subject, func(ev core.ProgressEvent) {
			if ev.Stage.Terminal() {
				terminal = ev
				return
			}
			h.runs.update(runID, ev)
		})
		h.runs.finish(runID, terminal, err)
	}()

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// Run returns the current snapshot of a verification run.
func (h *ComplianceHandlers) Run(c *gin.Context) {
	subject, last, runErr, err := h.runs.snapshot(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	body := gin.H{
		"subject": subject,
		"stage":   last.Stage,
		"percent": last.Percent,
		"message": last.Message,
	}
	if runErr != nil {
		body["error_kind"] = core.KindOf(runErr)
		body["retryable"] = isRetryable(runErr)
	}
	c.JSON(http.StatusOK, body)
}

// RunEvents streams a run's progress events over SSE until the run reaches a
// terminal state or the client disconnects.
func (h *ComplianceHandlers) RunEvents(c *gin.Context) {
	events, cancel, err := h.runs.subscribe(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev := <-events:
			c.SSEvent("progress", ev)
			return !ev.Stage.Terminal()
		}
	})
}

// Status returns the subject's current on-chain session state.
func (h *ComplianceHandlers) Status(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	state, err := h.reader.SessionState(c.Request.Context(), common.HexToAddress(address))
	if err != nil {
		h.log.Warn().Err(err).Str("address", address).Msg("session state read failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read session state"})
		return
	}

	c.JSON(http.StatusOK, state)
}

func isRetryable(err error) bool {
	var pe *core.PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}
