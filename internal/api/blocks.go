package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/models"
)

// BlockHandler serves user and mua block endpoints.
type BlockHandler struct {
	svc BlockService
	log *logrus.Logger
}

// NewBlockHandler creates a BlockHandler.
func NewBlockHandler(svc BlockService, log *logrus.Logger) *BlockHandler {
	return &BlockHandler{svc: svc, log: log}
}

// List handles GET /blocks.
func (h *BlockHandler) List(c *gin.Context) {
	limit := parseInt(c.DefaultQuery("limit", "50"), 50)
	offset := parseOffset(c.DefaultQuery("offset", "0"))

	blocks, err := h.svc.ListUserBlocks(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, h.log, err, "listing blocks")
		return
	}

	c.JSON(http.StatusOK, gin.H{"blocks": blocks, "has_more": len(blocks) == limit})
}

// Create handles POST /blocks.
func (h *BlockHandler) Create(c *gin.Context) {
	var req models.CreateUserBlockRequest
	if !bindJSON(c, &req) {
		return
	}

	block, err := h.svc.CreateUserBlock(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "creating block")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "block.create", "block_id": block.ID}).Info("audit")

	c.JSON(http.StatusCreated, block)
}

// Get handles GET /blocks/:id.
func (h *BlockHandler) Get(c *gin.Context) {
	h.get(c, models.AuthorUser)
}

// GetMua handles GET /mua-blocks/:id.
func (h *BlockHandler) GetMua(c *gin.Context) {
	h.get(c, models.AuthorMua)
}

func (h *BlockHandler) get(c *gin.Context, author models.AuthorType) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	block, err := h.svc.GetBlock(c.Request.Context(), author, id)
	if err != nil {
		respondServiceError(c, h.log, err, "getting block")
		return
	}

	c.JSON(http.StatusOK, block)
}

// Update handles PUT /blocks/:id.
func (h *BlockHandler) Update(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	var req models.UpdateUserBlockRequest
	if !bindJSON(c, &req) {
		return
	}

	block, err := h.svc.UpdateUserBlock(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, h.log, err, "updating block")
		return
	}

	h.log.WithFields(logrus.Fields{"action": "block.update", "block_id": id, "reason": req.Reason}).Info("audit")

	c.JSON(http.StatusOK, block)
}

// Versions handles GET /blocks/:id/versions.
func (h *BlockHandler) Versions(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	versions, err := h.svc.ListVersions(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "listing block versions")
		return
	}

	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

// CreateMua handles POST /mua-blocks. A repeated dedupe key returns the
// existing block with 200.
func (h *BlockHandler) CreateMua(c *gin.Context) {
	var req models.CreateMuaBlockRequest
	if !bindJSON(c, &req) {
		return
	}

	block, created, err := h.svc.CreateMuaBlock(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "creating mua block")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.log.WithFields(logrus.Fields{"action": "mua_block.create", "block_id": block.ID}).Info("audit")
	}

	c.JSON(status, block)
}
