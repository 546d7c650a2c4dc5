package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/service"
)

// maxBatchSize caps the batch size accepted over HTTP.
const maxBatchSize = 200

// ProcessingHandler triggers enrichment batches and reports queue state.
type ProcessingHandler struct {
	runner  BatchRunner
	counter ProcessingCounter
	log     *logrus.Logger
}

// NewProcessingHandler creates a ProcessingHandler.
func NewProcessingHandler(runner BatchRunner, counter ProcessingCounter, log *logrus.Logger) *ProcessingHandler {
	return &ProcessingHandler{runner: runner, counter: counter, log: log}
}

type runBatchRequest struct {
	Size int `json:"size"`
}

// Run handles POST /processing/run. An empty body uses the configured size.
func (h *ProcessingHandler) Run(c *gin.Context) {
	var req runBatchRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	report, err := h.runner.RunBatch(c.Request.Context(), service.BatchOptions{Size: min(max(req.Size, 0), maxBatchSize)})
	if err != nil {
		respondServiceError(c, h.log, err, "running enrichment batch")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":    "processing.run",
		"scanned":   report.Scanned,
		"processed": report.Processed,
		"errored":   report.Errored,
	}).Info("audit")

	c.JSON(http.StatusOK, report)
}

// Stats handles GET /processing/stats.
func (h *ProcessingHandler) Stats(c *gin.Context) {
	counts, err := h.counter.CountByState(c.Request.Context())
	if err != nil {
		respondServiceError(c, h.log, err, "counting processing states")
		return
	}

	c.JSON(http.StatusOK, gin.H{"states": counts})
}
