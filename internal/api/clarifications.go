package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
)

// ClarificationHandler serves the clarification queue.
type ClarificationHandler struct {
	svc ClarificationService
	log *logrus.Logger
}

// NewClarificationHandler creates a ClarificationHandler.
func NewClarificationHandler(svc ClarificationService, log *logrus.Logger) *ClarificationHandler {
	return &ClarificationHandler{svc: svc, log: log}
}

// List handles GET /clarifications. It returns open items without changing
// their status.
func (h *ClarificationHandler) List(c *gin.Context) {
	items, err := h.svc.ListOpen(c.Request.Context(), parseInt(c.Query("limit"), 0))
	if err != nil {
		respondServiceError(c, h.log, err, "listing clarifications")
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Digest handles POST /clarifications/digest. Pending items move to asked.
func (h *ClarificationHandler) Digest(c *gin.Context) {
	digest, err := h.svc.Digest(c.Request.Context(), parseInt(c.Query("limit"), 0))
	if err != nil {
		respondServiceError(c, h.log, err, "building clarification digest")
		return
	}

	c.JSON(http.StatusOK, digest)
}

type answerRequest struct {
	Option int `json:"option"`
}

// Answer handles POST /clarifications/:id/answer with a 1-based option.
func (h *ClarificationHandler) Answer(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	var req answerRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.svc.Resolve(c.Request.Context(), id, req.Option)
	if err != nil {
		respondServiceError(c, h.log, err, "answering clarification")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "clarification.answer", "clarification_id": id, "option": req.Option}).Info("audit")

	c.JSON(http.StatusOK, item)
}
