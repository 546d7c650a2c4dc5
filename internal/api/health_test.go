package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/muahq/mua/internal/api"
)

func TestLiveness_ReturnsOK(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(api.HealthConfig{Version: "test-v1", EmbeddingModel: "qwen3-embedding:0.6b", EmbeddingDimensions: 1024}, testLogger())

	r := gin.New()
	r.GET("/health", h.Liveness)

	w := doRequest(r, http.MethodGet, "/health", "")
	expectStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)

	if body["status"] != "ok" || body["version"] != "test-v1" {
		t.Errorf("body = %v", body)
	}

	if body["database"] != "not_configured" {
		t.Errorf("database = %v", body["database"])
	}

	if body["embeddings"] != "qwen3-embedding:0.6b" {
		t.Errorf("embeddings = %v", body["embeddings"])
	}

	if v, _ := body["schema_version"].(float64); v < 1 {
		t.Errorf("schema_version = %v", body["schema_version"])
	}
}

func TestReadiness_NoDatabase(t *testing.T) {
	t.Parallel()

	h := api.NewHealthHandler(api.HealthConfig{Version: "test-v1"}, testLogger())

	r := gin.New()
	r.GET("/ready", h.Readiness)

	w := doRequest(r, http.MethodGet, "/ready", "")
	expectStatus(t, w, http.StatusServiceUnavailable)

	checks, _ := decodeBody(t, w)["checks"].(map[string]any)
	if checks["database"] != "not_configured" || checks["schema"] != "unknown" {
		t.Errorf("checks = %v", checks)
	}
}

func TestReadiness_OllamaDegradedIsReported(t *testing.T) {
	t.Parallel()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ollama.Close()

	h := api.NewHealthHandler(api.HealthConfig{OllamaURL: ollama.URL}, testLogger())

	r := gin.New()
	r.GET("/ready", h.Readiness)

	w := doRequest(r, http.MethodGet, "/ready", "")
	expectStatus(t, w, http.StatusServiceUnavailable)

	checks, _ := decodeBody(t, w)["checks"].(map[string]any)
	if checks["ollama"] != "degraded" {
		t.Errorf("ollama = %v, want degraded", checks["ollama"])
	}
}
