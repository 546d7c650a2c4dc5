package service

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/muahq/mua/internal/models"
)

func searchBlock(author models.AuthorType, id, content string, created time.Time) models.Block {
	return models.Block{ID: id, AuthorType: author, Content: content, CreatedAt: created}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("Jane, jane! a budget-review Q3 x the and more words here")
	want := []string{"jane", "budget", "review", "q3", "the", "and"}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestLexicalScore(t *testing.T) {
	if got := lexicalScore(Tokenize("jane budget"), "call Jane about the budget review"); got != 0.5 {
		t.Errorf("lexicalScore = %v, want 0.5", got)
	}

	if got := lexicalScore([]string{"a1", "a2", "a3", "a4", "a5"}, "a1 a2 a3 a4 a5"); got != 1 {
		t.Errorf("lexicalScore should cap at 1, got %v", got)
	}
}

func TestRetrievalService_FusesScores(t *testing.T) {
	now := time.Now()
	b1 := searchBlock(models.AuthorUser, "u1", "call Jane about the budget review", now)
	b2 := searchBlock(models.AuthorMua, "m1", "quarterly planning", now.Add(-time.Hour))

	store := &mockSearchStore{
		lexical: []models.Block{b1},
		vector: []models.ScoredBlock{
			{Block: b1, Score: 0.8},
			{Block: b2, Score: 0.65},
		},
	}

	svc := NewRetrievalService(store, &mockEmbedder{vec: []float32{1}}, "p1", testLogger())

	results, err := svc.Search(context.Background(), models.SearchRequest{Query: "jane budget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	if results[0].Key != "user:u1" || math.Abs(results[0].Score-0.665) > 1e-9 {
		t.Errorf("top result %s score %v, want user:u1 0.665", results[0].Key, results[0].Score)
	}

	if results[1].Key != "mua:m1" || results[1].Score != 0.65 || results[1].LexicalScore != nil {
		t.Errorf("second result = %+v", results[1])
	}
}

func TestRetrievalService_VectorFailureFallsBackToLexical(t *testing.T) {
	store := &mockSearchStore{
		lexical:   []models.Block{searchBlock(models.AuthorUser, "u1", "jane budget", time.Now())},
		vectorErr: errors.New("pgvector down"),
	}

	svc := NewRetrievalService(store, &mockEmbedder{vec: []float32{1}}, "p1", testLogger())

	results, err := svc.Search(context.Background(), models.SearchRequest{Query: "jane budget"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 1 || results[0].VectorScore != nil || results[0].Score != 0.5 {
		t.Errorf("results = %+v", results)
	}
}

func TestRetrievalService_LexicalFailureIsReturned(t *testing.T) {
	store := &mockSearchStore{lexicalErr: errors.New("db down")}
	svc := NewRetrievalService(store, nil, "p1", testLogger())

	if _, err := svc.Search(context.Background(), models.SearchRequest{Query: "x"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRetrievalService_ExcludesAndPages(t *testing.T) {
	now := time.Now()
	store := &mockSearchStore{lexical: []models.Block{
		searchBlock(models.AuthorUser, "a", "jane", now),
		searchBlock(models.AuthorUser, "b", "jane", now.Add(-time.Minute)),
		searchBlock(models.AuthorUser, "c", "jane", now.Add(-2*time.Minute)),
	}}

	svc := NewRetrievalService(store, nil, "p1", testLogger())

	results, err := svc.Search(context.Background(), models.SearchRequest{
		Query:       "jane",
		Limit:       1,
		Offset:      1,
		ExcludeKeys: []string{"user:a"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(results) != 1 || results[0].Key != "user:c" {
		t.Errorf("page = %+v", results)
	}

	results, err = svc.Search(context.Background(), models.SearchRequest{Query: "jane", Offset: 10})
	if err != nil || len(results) != 0 {
		t.Errorf("offset past end: %v %v", results, err)
	}
}

func TestRetrievalService_CandidateWindowCoversPageEnd(t *testing.T) {
	store := &mockSearchStore{}
	svc := NewRetrievalService(store, &mockEmbedder{vec: []float32{1, 0, 0}}, "p1", testLogger())

	if _, err := svc.Search(context.Background(), models.SearchRequest{Query: "jane", Limit: 5, Offset: 20}); err != nil {
		t.Fatal(err)
	}

	want := (20 + 5) * candidateFactor
	if store.lexicalLimit != want || store.vectorLimit != want {
		t.Errorf("candidate limits = %d/%d, want %d", store.lexicalLimit, store.vectorLimit, want)
	}
}

func TestRetrievalService_RejectsBadScope(t *testing.T) {
	svc := NewRetrievalService(&mockSearchStore{}, nil, "p1", testLogger())

	if _, err := svc.Search(context.Background(), models.SearchRequest{Query: "x", Scope: "everything"}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
