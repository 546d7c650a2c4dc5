package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/muahq/mua/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", models.NewValidationError("content", models.ErrEmptyContent), http.StatusBadRequest, CodeValidationError},
		{"wrapped validation", fmt.Errorf("creating block: %w", models.NewValidationError("kind", models.ErrInvalidKind)), http.StatusBadRequest, CodeValidationError},
		{"empty file", models.ErrEmptyFile, http.StatusBadRequest, CodeValidationError},
		{"not found", fmt.Errorf("getting block: %w", models.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"already answered", models.ErrAlreadyAnswered, http.StatusConflict, CodeConflict},
		{"expired", models.ErrClarificationExpired, http.StatusConflict, CodeConflict},
		{"revision conflict", models.ErrConflict, http.StatusConflict, CodeConflict},
		{"duplicate", models.ErrDuplicateKey, http.StatusConflict, CodeConflict},
		{"external", &models.ExternalServiceError{Service: "ollama", Op: "embed", Err: errors.New("timeout")}, http.StatusBadGateway, CodeUpstreamError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, msg := Classify(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("Classify() = %d %s, want %d %s", status, code, tt.status, tt.code)
			}

			if msg == "" {
				t.Error("empty message")
			}
		})
	}
}

func TestClassify_HidesInternalDetail(t *testing.T) {
	_, _, msg := Classify(errors.New("dial tcp 10.0.0.1:5432: refused"))
	if msg != "internal error" {
		t.Errorf("message = %q, leaked internal detail", msg)
	}
}

func TestRespondError_IncludesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "rid-1")

	RespondError(c, http.StatusNotFound, CodeNotFound, "not found")

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}

	if body["request_id"] != "rid-1" || body["code"] != CodeNotFound {
		t.Errorf("body = %v", body)
	}

	if !c.IsAborted() {
		t.Error("context not aborted")
	}
}
