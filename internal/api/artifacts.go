package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/models"
)

// ArtifactHandler lists artifacts and triggers intake scans.
type ArtifactHandler struct {
	reader    ArtifactReader
	ingester  DirIngester
	intakeDir string
	log       *logrus.Logger
}

// NewArtifactHandler creates an ArtifactHandler. Ingest only scans intakeDir;
// callers cannot name arbitrary server paths.
func NewArtifactHandler(reader ArtifactReader, ingester DirIngester, intakeDir string, log *logrus.Logger) *ArtifactHandler {
	return &ArtifactHandler{reader: reader, ingester: ingester, intakeDir: intakeDir, log: log}
}

// List handles GET /artifacts?status=&limit=&offset=.
func (h *ArtifactHandler) List(c *gin.Context) {
	status := models.IngestStatus(c.Query("status"))

	switch status {
	case "", models.IngestParsed, models.IngestLinked, models.IngestError:
	default:
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, "unknown ingest status")
		return
	}

	limit := parseInt(c.DefaultQuery("limit", "50"), 50)

	artifacts, err := h.reader.ListArtifacts(c.Request.Context(), status, limit, parseOffset(c.Query("offset")))
	if err != nil {
		respondServiceError(c, h.log, err, "listing artifacts")
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts, "has_more": len(artifacts) == limit})
}

// Get handles GET /artifacts/:id.
func (h *ArtifactHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	artifact, err := h.reader.GetArtifact(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "getting artifact")
		return
	}

	c.JSON(http.StatusOK, artifact)
}

type ingestRequest struct {
	SourceType string `json:"source_type"`
}

// Ingest handles POST /artifacts/ingest, scanning the configured intake dir.
func (h *ArtifactHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if !bindJSON(c, &req) {
		return
	}

	if strings.TrimSpace(req.SourceType) == "" {
		respondError(c, http.StatusBadRequest, httputil.CodeValidationError, "source_type is required")
		return
	}

	report, err := h.ingester.IngestDir(c.Request.Context(), h.intakeDir, req.SourceType)
	if err != nil {
		respondServiceError(c, h.log, err, "ingesting intake directory")
		return
	}

	h.log.WithFields(logrus.Fields{
		"action":      "artifact.ingest",
		"source_type": req.SourceType,
		"created":     report.Created,
		"errored":     report.Errored,
	}).Info("audit")

	c.JSON(http.StatusOK, report)
}
