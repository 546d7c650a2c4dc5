package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/middleware"
	"github.com/muahq/mua/internal/service"
	"github.com/muahq/mua/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log            *logrus.Logger
	Pool           *dbpool.Pool
	Hub            *ws.Hub
	Blocks         BlockService
	Search         SearchService
	Clarifications ClarificationService
	CRM            CRMService
	Entities       EntitySearcher
	Batches        BatchRunner
	Processing     ProcessingCounter
	Artifacts      ArtifactReader
	Ingest         DirIngester
	StaleBlocks    service.StaleBlockLister
	EmbedWorker    EmbedBackfiller
	APIKey         string
	CORSOrigins    []string
	IntakeDir      string
	ServiceName    string
	Version        string
	OllamaURL      string
	ProfileID      string
	EmbeddingModel string
	EmbeddingDims  int
	TracingEnabled bool
}

// Router-level limits.
const (
	maxBodySize = 10 << 20 // 10 MB
	rateLimit   = 50       // requests per second per IP
	rateBurst   = 100
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.

	if deps.TracingEnabled {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}

	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst).Handler())
	r.Use(middleware.Metrics())
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(HealthConfig{
		Pool:                deps.Pool,
		Hub:                 deps.Hub,
		Version:             deps.Version,
		OllamaURL:           deps.OllamaURL,
		EmbeddingModel:      deps.EmbeddingModel,
		EmbeddingDimensions: deps.EmbeddingDims,
	}, log)
	blocks := NewBlockHandler(deps.Blocks, log)
	search := NewSearchHandler(deps.Search, log)
	clar := NewClarificationHandler(deps.Clarifications, log)
	crm := NewCRMHandler(deps.CRM, deps.Entities, log)
	processing := NewProcessingHandler(deps.Batches, deps.Processing, log)
	artifacts := NewArtifactHandler(deps.Artifacts, deps.Ingest, deps.IntakeDir, log)
	admin := NewAdminHandler(deps.StaleBlocks, deps.EmbedWorker, log)
	stats := NewStatsHandler(deps.Pool, deps.ProfileID, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	api.Use(middleware.APIKeyAuth(deps.APIKey, log, middleware.NewLockout(ctx, log)))

	// Blocks.
	api.GET("/blocks", blocks.List)
	api.POST("/blocks", blocks.Create)
	api.GET("/blocks/:id", blocks.Get)
	api.PUT("/blocks/:id", blocks.Update)
	api.GET("/blocks/:id/versions", blocks.Versions)
	api.POST("/mua-blocks", blocks.CreateMua)
	api.GET("/mua-blocks/:id", blocks.GetMua)

	// Retrieval.
	api.GET("/search", search.Query)
	api.POST("/search", search.Post)

	// Clarifications.
	api.GET("/clarifications", clar.List)
	api.POST("/clarifications/digest", clar.Digest)
	api.POST("/clarifications/:id/answer", clar.Answer)

	// People.
	api.GET("/crm", crm.Summary)
	api.GET("/entities", crm.SearchEntities)
	api.GET("/entities/:id", crm.GetEntity)

	// Enrichment.
	api.POST("/processing/run", processing.Run)
	api.GET("/processing/stats", processing.Stats)

	// Artifacts.
	api.GET("/artifacts", artifacts.List)
	api.GET("/artifacts/:id", artifacts.Get)
	api.POST("/artifacts/ingest", artifacts.Ingest)

	api.GET("/stats", stats.GetStats)
	api.POST("/admin/backfill-embeddings", admin.BackfillEmbeddings)

	// WebSocket endpoint.
	api.GET("/ws", wsHandler(ctx, log, deps.Hub, deps.CORSOrigins))
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}

// NewMetricsHandler serves the Prometheus registry. It is mounted on the
// metrics listener, never on the API port.
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}
