package api_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/muahq/mua/internal/api"
	"github.com/muahq/mua/internal/models"
)

func blockRouter(svc *mockBlockService) *gin.Engine {
	r := gin.New()
	h := api.NewBlockHandler(svc, testLogger())
	r.GET("/blocks", h.List)
	r.POST("/blocks", h.Create)
	r.GET("/blocks/:id", h.Get)
	r.PUT("/blocks/:id", h.Update)
	r.GET("/blocks/:id/versions", h.Versions)
	r.POST("/mua-blocks", h.CreateMua)
	r.GET("/mua-blocks/:id", h.GetMua)

	return r
}

func TestBlockCreate_Valid(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		createFn: func(_ context.Context, req models.CreateUserBlockRequest) (*models.Block, error) {
			return &models.Block{ID: "b1", AuthorType: models.AuthorUser, Content: req.Content, CreatedAt: time.Now()}, nil
		},
	}

	w := doRequest(blockRouter(svc), http.MethodPost, "/blocks", `{"content":"call alice"}`)
	expectStatus(t, w, http.StatusCreated)

	if body := decodeBody(t, w); body["id"] != "b1" || body["content"] != "call alice" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestBlockCreate_EmptyContentIs400(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		createFn: func(context.Context, models.CreateUserBlockRequest) (*models.Block, error) {
			return nil, models.NewValidationError("content", models.ErrEmptyContent)
		},
	}

	w := doRequest(blockRouter(svc), http.MethodPost, "/blocks", `{"content":"---\ntags: [x]\n---\n"}`)
	expectStatus(t, w, http.StatusBadRequest)

	if body := decodeBody(t, w); body["code"] != "validation_error" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestBlockCreate_MalformedBody(t *testing.T) {
	t.Parallel()

	w := doRequest(blockRouter(&mockBlockService{}), http.MethodPost, "/blocks", `{"content":`)
	expectStatus(t, w, http.StatusBadRequest)
}

func TestBlockGet_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		getFn: func(_ context.Context, author models.AuthorType, _ string) (*models.Block, error) {
			if author != models.AuthorUser {
				t.Errorf("author = %s", author)
			}

			return nil, fmt.Errorf("getting block: %w", models.ErrNotFound)
		},
	}

	w := doRequest(blockRouter(svc), http.MethodGet, "/blocks/missing", "")
	expectStatus(t, w, http.StatusNotFound)
}

func TestBlockGetMua_UsesMuaAuthor(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		getFn: func(_ context.Context, author models.AuthorType, id string) (*models.Block, error) {
			return &models.Block{ID: id, AuthorType: author}, nil
		},
	}

	w := doRequest(blockRouter(svc), http.MethodGet, "/mua-blocks/m1", "")
	expectStatus(t, w, http.StatusOK)

	if body := decodeBody(t, w); body["author_type"] != "mua" {
		t.Errorf("author_type = %v", body["author_type"])
	}
}

func TestBlockUpdate_ConflictIs409(t *testing.T) {
	t.Parallel()

	var got models.UpdateUserBlockRequest

	svc := &mockBlockService{
		updateFn: func(_ context.Context, _ string, req models.UpdateUserBlockRequest) (*models.Block, error) {
			got = req
			return nil, models.ErrConflict
		},
	}

	w := doRequest(blockRouter(svc), http.MethodPut, "/blocks/b1", `{"content":"x","reason":"finalize"}`)
	expectStatus(t, w, http.StatusConflict)

	if got.Reason != models.ReasonFinalize {
		t.Errorf("reason = %q", got.Reason)
	}
}

func TestBlockUpdate_InternalErrorHidesDetail(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		updateFn: func(context.Context, string, models.UpdateUserBlockRequest) (*models.Block, error) {
			return nil, errors.New("pg: connection reset")
		},
	}

	w := doRequest(blockRouter(svc), http.MethodPut, "/blocks/b1", `{"content":"x"}`)
	expectStatus(t, w, http.StatusInternalServerError)

	if body := decodeBody(t, w); body["message"] != "internal error" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestBlockList_PassesPaging(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		listFn: func(_ context.Context, limit, offset int) ([]models.Block, error) {
			if limit != 2 || offset != 4 {
				t.Errorf("limit=%d offset=%d", limit, offset)
			}

			return []models.Block{{ID: "a"}, {ID: "b"}}, nil
		},
	}

	w := doRequest(blockRouter(svc), http.MethodGet, "/blocks?limit=2&offset=4", "")
	expectStatus(t, w, http.StatusOK)

	if body := decodeBody(t, w); body["has_more"] != true {
		t.Errorf("has_more = %v", body["has_more"])
	}
}

func TestBlockVersions(t *testing.T) {
	t.Parallel()

	svc := &mockBlockService{
		versionsFn: func(_ context.Context, id string) ([]models.UserBlockVersion, error) {
			return []models.UserBlockVersion{{BlockID: id, VersionNo: 2}, {BlockID: id, VersionNo: 1}}, nil
		},
	}

	w := doRequest(blockRouter(svc), http.MethodGet, "/blocks/b1/versions", "")
	expectStatus(t, w, http.StatusOK)

	versions, _ := decodeBody(t, w)["versions"].([]any)
	if len(versions) != 2 {
		t.Fatalf("versions = %v", versions)
	}
}

func TestBlockCreateMua_DedupeReturns200(t *testing.T) {
	t.Parallel()

	created := true
	svc := &mockBlockService{
		createMuaFn: func(_ context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
			return &models.Block{ID: "m1", AuthorType: models.AuthorMua, Content: req.Content}, created, nil
		},
	}

	r := blockRouter(svc)
	body := `{"content":"follow up","confidence":0.5,"dedupe_key":"k"}`

	expectStatus(t, doRequest(r, http.MethodPost, "/mua-blocks", body), http.StatusCreated)

	created = false
	expectStatus(t, doRequest(r, http.MethodPost, "/mua-blocks", body), http.StatusOK)
}
