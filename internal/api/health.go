// Package api provides the HTTP handlers and router for mua.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/ws"
)

const (
	livenessPingTimeout = 2 * time.Second
	readinessTimeout    = 3 * time.Second
)

var errNoDatabase = errors.New("database not configured")

// HealthConfig describes what the health endpoints report on.
type HealthConfig struct {
	Pool                *dbpool.Pool
	Hub                 *ws.Hub
	Version             string
	OllamaURL           string
	EmbeddingModel      string
	EmbeddingDimensions int
}

// probe is one readiness check. A failed optional probe degrades readiness
// without failing it. Probes naming a prerequisite are skipped as "unknown"
// unless that probe passed.
type probe struct {
	name     string
	optional bool
	requires string
	run      func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness.
type HealthHandler struct {
	cfg        HealthConfig
	log        *logrus.Logger
	httpClient *http.Client
	started    time.Time
	probes     []probe
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg HealthConfig, log *logrus.Logger) *HealthHandler {
	h := &HealthHandler{
		cfg:        cfg,
		log:        log,
		httpClient: &http.Client{Timeout: 2 * time.Second},
		started:    time.Now(),
	}

	h.probes = []probe{
		{name: "database", run: h.pingDatabase},
		{name: "schema", requires: "database", run: h.checkSchema},
		{name: "ollama", optional: true, run: h.checkOllama},
	}

	return h
}

type healthResponse struct {
	Status              string  `json:"status"`
	Version             string  `json:"version"`
	Database            string  `json:"database"`
	Embeddings          string  `json:"embeddings"`
	EmbeddingDimensions int     `json:"embedding_dimensions"`
	SchemaVersion       int     `json:"schema_version"`
	WSClients           int     `json:"ws_clients"`
	UptimeSeconds       float64 `json:"uptime_seconds"`
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Liveness handles GET /health. It always answers 200; the database field is
// informational.
func (h *HealthHandler) Liveness(c *gin.Context) {
	resp := healthResponse{
		Status:              "ok",
		Version:             h.cfg.Version,
		Database:            "connected",
		Embeddings:          "unavailable",
		EmbeddingDimensions: h.cfg.EmbeddingDimensions,
		SchemaVersion:       db.SchemaVersion(),
		UptimeSeconds:       time.Since(h.started).Seconds(),
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), livenessPingTimeout)
	defer cancel()

	switch err := h.pingDatabase(ctx); {
	case h.cfg.Pool == nil:
		resp.Database = "not_configured"
	case err != nil:
		resp.Database = "disconnected"
	}

	if h.cfg.EmbeddingModel != "" {
		resp.Embeddings = h.cfg.EmbeddingModel
	}

	if h.cfg.Hub != nil {
		resp.WSClients = h.cfg.Hub.ClientCount()
	}

	c.JSON(http.StatusOK, resp)
}

// Readiness handles GET /ready.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.probes))
	ready := true

	for _, p := range h.probes {
		if p.requires != "" && checks[p.requires] != "ok" {
			checks[p.name] = "unknown"
			continue
		}

		err := p.run(ctx)

		switch {
		case err == nil:
			checks[p.name] = "ok"
		case p.optional:
			h.log.WithError(err).WithField("check", p.name).Warn("readiness check degraded")
			checks[p.name] = "degraded"
		default:
			h.log.WithError(err).WithField("check", p.name).Error("readiness check failed")
			checks[p.name] = "error"
			ready = false
		}
	}

	if h.cfg.Pool == nil {
		checks["database"] = "not_configured"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, readinessResponse{Status: "not_ready", Checks: checks})
		return
	}

	c.JSON(http.StatusOK, readinessResponse{Status: "ready", Checks: checks})
}

func (h *HealthHandler) pingDatabase(ctx context.Context) error {
	if h.cfg.Pool == nil {
		return errNoDatabase
	}

	return h.cfg.Pool.HealthCheck(ctx)
}

// checkSchema reports an error until every embedded migration has run.
func (h *HealthHandler) checkSchema(ctx context.Context) error {
	var version int64

	err := h.cfg.Pool.QueryRow(ctx, "SELECT COALESCE(MAX(version_id), 0) FROM goose_db_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if want := int64(db.SchemaVersion()); version < want {
		return fmt.Errorf("schema at version %d, want %d", version, want)
	}

	return nil
}

func (h *HealthHandler) checkOllama(ctx context.Context) error {
	if h.cfg.OllamaURL == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.cfg.OllamaURL+"/api/version", http.NoBody)
	if err != nil {
		return fmt.Errorf("building ollama request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama returned status %d", resp.StatusCode)
	}

	return nil
}
