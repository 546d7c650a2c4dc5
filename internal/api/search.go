package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/models"
)

// SearchHandler serves hybrid retrieval.
type SearchHandler struct {
	svc SearchService
	log *logrus.Logger
}

// NewSearchHandler creates a SearchHandler.
func NewSearchHandler(svc SearchService, log *logrus.Logger) *SearchHandler {
	return &SearchHandler{svc: svc, log: log}
}

// Query handles GET /search?q=&scope=&limit=&offset=&exclude=a,b.
func (h *SearchHandler) Query(c *gin.Context) {
	req := models.SearchRequest{
		Query:  c.Query("q"),
		Scope:  models.SearchScope(c.Query("scope")),
		Limit:  parseInt(c.Query("limit"), models.DefaultSearchLimit),
		Offset: parseOffset(c.Query("offset")),
	}

	if ex := c.Query("exclude"); ex != "" {
		req.ExcludeKeys = strings.Split(ex, ",")
	}

	h.search(c, req)
}

// Post handles POST /search with a JSON SearchRequest body.
func (h *SearchHandler) Post(c *gin.Context) {
	var req models.SearchRequest
	if !bindJSON(c, &req) {
		return
	}

	h.search(c, req)
}

func (h *SearchHandler) search(c *gin.Context, req models.SearchRequest) {
	if strings.TrimSpace(req.Query) == "" {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, "query is required")
		return
	}

	results, err := h.svc.Search(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, h.log, err, "searching blocks")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results, "total": len(results)})
}
