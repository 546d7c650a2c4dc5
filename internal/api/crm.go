package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/models"
)

// CRMHandler serves person summaries and entity lookup.
type CRMHandler struct {
	svc      CRMService
	entities EntitySearcher
	log      *logrus.Logger
}

// NewCRMHandler creates a CRMHandler.
func NewCRMHandler(svc CRMService, entities EntitySearcher, log *logrus.Logger) *CRMHandler {
	return &CRMHandler{svc: svc, entities: entities, log: log}
}

// Summary handles GET /crm?name=&topic=&limit=.
func (h *CRMHandler) Summary(c *gin.Context) {
	req := models.CRMRequest{
		Name:  c.Query("name"),
		Topic: c.Query("topic"),
		Limit: parseInt(c.Query("limit"), models.DefaultCRMLimit),
	}

	people, err := h.svc.Summary(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "building crm summary")
		return
	}

	c.JSON(http.StatusOK, gin.H{"people": people})
}

// SearchEntities handles GET /entities?type=&name=&limit=.
func (h *CRMHandler) SearchEntities(c *gin.Context) {
	entityType := c.DefaultQuery("type", models.EntityPerson)
	limit := parseInt(c.Query("limit"), 20)

	entities, err := h.entities.SearchEntities(c.Request.Context(), entityType, c.Query("name"), limit)
	if err != nil {
		respondServiceError(c, h.log, err, "searching entities")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entities": entities})
}

// GetEntity handles GET /entities/:id.
func (h *CRMHandler) GetEntity(c *gin.Context) {
	id := c.Param("id")
	if err := validatePathID(id); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, err.Error())
		return
	}

	entity, err := h.entities.GetEntity(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, h.log, err, "getting entity")
		return
	}

	c.JSON(http.StatusOK, entity)
}
