package api_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/muahq/mua/internal/api"
	"github.com/muahq/mua/internal/models"
)

func clarificationRouter(svc *mockClarificationService) *gin.Engine {
	r := gin.New()
	h := api.NewClarificationHandler(svc, testLogger())
	r.GET("/clarifications", h.List)
	r.POST("/clarifications/digest", h.Digest)
	r.POST("/clarifications/:id/answer", h.Answer)

	return r
}

func TestClarificationAnswer_Resolves(t *testing.T) {
	t.Parallel()

	var gotID string

	var gotIndex int

	svc := &mockClarificationService{
		resolveFn: func(_ context.Context, id string, idx int) (*models.ClarificationItem, error) {
			gotID, gotIndex = id, idx
			value := "e2"

			return &models.ClarificationItem{ID: id, Status: models.ClarificationAnswered, AnswerIndex: &idx, AnswerValue: &value}, nil
		},
	}

	w := doRequest(clarificationRouter(svc), http.MethodPost, "/clarifications/c1/answer", `{"option":2}`)
	expectStatus(t, w, http.StatusOK)

	if gotID != "c1" || gotIndex != 2 {
		t.Errorf("resolved %s/%d", gotID, gotIndex)
	}

	if body := decodeBody(t, w); body["status"] != "answered" || body["answer_value"] != "e2" {
		t.Errorf("body = %v", body)
	}
}

func TestClarificationAnswer_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"already answered", models.ErrAlreadyAnswered, http.StatusConflict},
		{"expired", models.ErrClarificationExpired, http.StatusConflict},
		{"out of range", models.NewValidationError("option", models.ErrOptionOutOfRange), http.StatusBadRequest},
		{"missing", models.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := &mockClarificationService{
				resolveFn: func(context.Context, string, int) (*models.ClarificationItem, error) {
					return nil, tt.err
				},
			}

			w := doRequest(clarificationRouter(svc), http.MethodPost, "/clarifications/c1/answer", `{"option":9}`)
			expectStatus(t, w, tt.want)
		})
	}
}

func TestClarificationDigest(t *testing.T) {
	t.Parallel()

	svc := &mockClarificationService{
		digestFn: func(_ context.Context, limit int) (*models.ClarificationDigest, error) {
			if limit != 5 {
				t.Errorf("limit = %d", limit)
			}

			return &models.ClarificationDigest{
				Items: []models.ClarificationItem{{ID: "c1", Question: "Which Sam?"}},
				Text:  "1. Which Sam?\n",
			}, nil
		},
	}

	w := doRequest(clarificationRouter(svc), http.MethodPost, "/clarifications/digest?limit=5", "")
	expectStatus(t, w, http.StatusOK)

	if body := decodeBody(t, w); body["text"] != "1. Which Sam?\n" {
		t.Errorf("text = %v", body["text"])
	}
}

func TestClarificationList_DefaultLimit(t *testing.T) {
	t.Parallel()

	svc := &mockClarificationService{
		listFn: func(_ context.Context, limit int) ([]models.ClarificationItem, error) {
			if limit != 0 {
				t.Errorf("limit = %d, want service default", limit)
			}

			return []models.ClarificationItem{}, nil
		},
	}

	expectStatus(t, doRequest(clarificationRouter(svc), http.MethodGet, "/clarifications", ""), http.StatusOK)
}
