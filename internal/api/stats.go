package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/httputil"
)

// StatsHandler serves aggregate store counts.
type StatsHandler struct {
	pool      *dbpool.Pool
	profileID string
	log       *logrus.Logger
}

// NewStatsHandler creates a StatsHandler. profileID selects which embedding
// profile counts as complete.
func NewStatsHandler(pool *dbpool.Pool, profileID string, log *logrus.Logger) *StatsHandler {
	return &StatsHandler{pool: pool, profileID: profileID, log: log}
}

type statsResponse struct {
	UserBlocks         int `json:"user_blocks"`
	MuaBlocks          int `json:"mua_blocks"`
	Entities           int `json:"entities"`
	Links              int `json:"links"`
	Artifacts          int `json:"artifacts"`
	OpenClarifications int `json:"open_clarifications"`
	EmbeddingsComplete int `json:"embeddings_complete"`
}

// GetStats handles GET /stats.
func (h *StatsHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		h.log.WithError(err).Error("stats: begin tx")
		respondError(c, http.StatusInternalServerError, httputil.CodeInternalError, "internal error")

		return
	}
	defer tx.Rollback(ctx) //nolint:errcheck // read-only tx, rollback is cleanup.

	var resp statsResponse

	if err := tx.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM user_blocks),
			(SELECT COUNT(*) FROM mua_blocks),
			(SELECT COUNT(*) FROM entities),
			(SELECT COUNT(*) FROM links),
			(SELECT COUNT(*) FROM artifacts),
			(SELECT COUNT(*) FROM clarification_items WHERE status IN ('pending', 'asked')),
			(SELECT COUNT(*) FROM block_embeddings WHERE profile_id = $1)`,
		h.profileID,
	).Scan(
		&resp.UserBlocks, &resp.MuaBlocks, &resp.Entities, &resp.Links,
		&resp.Artifacts, &resp.OpenClarifications, &resp.EmbeddingsComplete,
	); err != nil {
		h.log.WithError(err).Error("stats: consolidated query")
		respondError(c, http.StatusInternalServerError, httputil.CodeInternalError, "internal error")

		return
	}

	c.JSON(http.StatusOK, resp)
}
