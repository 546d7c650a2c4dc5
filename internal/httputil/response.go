// Package httputil provides shared HTTP response helpers.
package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/muahq/mua/internal/models"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeValidationError = "validation_error"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeUpstreamError   = "upstream_error"
	CodeInternalError   = "internal_error"
	CodeUnauthorized    = "unauthorized"
	CodeRateLimited     = "rate_limited"
)

// RespondError writes a standardized JSON error response and aborts the request.
func RespondError(c *gin.Context, status int, code, message string) {
	resp := gin.H{
		"code":    code,
		"message": message,
	}

	if rid := c.GetString("request_id"); rid != "" {
		resp["request_id"] = rid
	}

	c.AbortWithStatusJSON(status, resp)
}

// Classify maps a domain error to an HTTP status, an error code and a
// client-safe message. Unknown errors become 500 with a generic message.
func Classify(err error) (int, string, string) {
	var (
		ve  *models.ValidationError
		ext *models.ExternalServiceError
	)

	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, CodeValidationError, ve.Error()
	case errors.Is(err, models.ErrEmptyFile):
		return http.StatusBadRequest, CodeValidationError, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, "not found"
	case errors.Is(err, models.ErrAlreadyAnswered),
		errors.Is(err, models.ErrClarificationExpired),
		errors.Is(err, models.ErrConflict),
		errors.Is(err, models.ErrDuplicateKey):
		return http.StatusConflict, CodeConflict, err.Error()
	case errors.As(err, &ext):
		return http.StatusBadGateway, CodeUpstreamError, ext.Service + " unavailable"
	default:
		return http.StatusInternalServerError, CodeInternalError, "internal error"
	}
}
