package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/httputil"
	"github.com/muahq/mua/internal/metrics"
)

// respondError writes a standardized JSON error response and counts it by code.
func respondError(c *gin.Context, status int, code, message string) {
	metrics.ErrorsTotal.WithLabelValues(code).Inc()
	httputil.RespondError(c, status, code, message)
}

// respondServiceError maps a service error to its status code. Server-side
// failures are logged with op as the message.
func respondServiceError(c *gin.Context, log *logrus.Logger, err error, op string) {
	status, code, message := httputil.Classify(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error(op)
	}

	respondError(c, status, code, message)
}

// bindJSON decodes the request body, responding 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		respondError(c, http.StatusBadRequest, httputil.CodeInvalidRequest, "invalid request body")
		return false
	}

	return true
}
