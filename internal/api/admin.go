package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/service"
)

// defaultBackfillLimit bounds one backfill request.
const defaultBackfillLimit = 1000

// AdminHandler serves administrative endpoints.
type AdminHandler struct {
	stale  service.StaleBlockLister
	worker EmbedBackfiller
	log    *logrus.Logger
}

// NewAdminHandler creates an AdminHandler. A nil worker disables backfill.
func NewAdminHandler(stale service.StaleBlockLister, worker EmbedBackfiller, log *logrus.Logger) *AdminHandler {
	return &AdminHandler{stale: stale, worker: worker, log: log}
}

// BackfillEmbeddings handles POST /admin/backfill-embeddings?limit=. It
// queues blocks whose embedding is missing or was made by another profile.
func (h *AdminHandler) BackfillEmbeddings(c *gin.Context) {
	if h.worker == nil {
		respondError(c, http.StatusServiceUnavailable, httputil.CodeInternalError, "embedding worker not available")
		return
	}

	queued, err := h.worker.Backfill(c.Request.Context(), h.stale, parseInt(c.Query("limit"), defaultBackfillLimit))
	if err != nil {
		respondServiceError(c, h.log, err, "backfilling embeddings")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "admin.backfill_embeddings", "queued": queued}).Info("audit")

	c.JSON(http.StatusOK, gin.H{"queued": queued})
}
