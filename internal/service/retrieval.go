package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/muahq/mua/internal/metrics"
	"github.com/muahq/mua/internal/models"
)

const (
	maxQueryTokens     = 6
	minTokenRunes      = 2
	candidateFactor    = 8
	lexicalTokenWeight = 0.25
	vectorThreshold    = 0.68
	lexicalWeight      = 0.45
	vectorWeight       = 0.55
)

// SearchStore defines the data access methods RetrievalService depends on.
type SearchStore interface {
	LexicalCandidates(ctx context.Context, tokens []string, includeMua bool, limit int) ([]models.Block, error)
	MatchBlocks(
		ctx context.Context,
		embedding []float32,
		profileID string,
		includeMua bool,
		threshold float64,
		limit int,
	) ([]models.ScoredBlock, error)
}

// RetrievalService fuses a lexical and a vector pass over all blocks.
type RetrievalService struct {
	store     SearchStore
	embedder  Embedder
	profileID string
	log       *logrus.Logger
}

// NewRetrievalService creates a RetrievalService. A nil embedder disables
// the vector pass.
func NewRetrievalService(store SearchStore, embedder Embedder, profileID string, log *logrus.Logger) *RetrievalService {
	return &RetrievalService{store: store, embedder: embedder, profileID: profileID, log: log}
}

// Tokenize lower-cases text, splits on anything that is not a letter or
// digit, drops tokens shorter than two runes and returns at most six
// distinct tokens in order of appearance.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, maxQueryTokens)

	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes || slices.Contains(tokens, f) {
			continue
		}

		tokens = append(tokens, f)
		if len(tokens) == maxQueryTokens {
			break
		}
	}

	return tokens
}

// Search runs both passes concurrently and returns the fused page. Only a
// lexical failure is returned; vector failures degrade to lexical results.
func (s *RetrievalService) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	includeMua := req.Scope.IncludeMua()
	fetch := (req.Offset + req.Limit) * candidateFactor
	tokens := Tokenize(req.Query)

	var (
		lexical []models.Block
		vector  []models.ScoredBlock
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		lexical, err = s.store.LexicalCandidates(gctx, tokens, includeMua, fetch)

		return err
	})

	if s.embedder != nil && strings.TrimSpace(req.Query) != "" {
		g.Go(func() error {
			vector = s.vectorPass(gctx, req.Query, includeMua, fetch)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := fuse(tokens, lexical, vector, req.ExcludeKeys)

	return page(results, req.Offset, req.Limit), nil
}

func (s *RetrievalService) vectorPass(ctx context.Context, query string, includeMua bool, fetch int) []models.ScoredBlock {
	embedding, err := s.embedder.Generate(ctx, query)
	if err == nil {
		var scored []models.ScoredBlock

		scored, err = s.store.MatchBlocks(ctx, embedding, s.profileID, includeMua, vectorThreshold, fetch)
		if err == nil {
			return scored
		}
	}

	if ctx.Err() == nil {
		metrics.RetrievalVectorFailures.Inc()
		s.log.WithError(err).Warn("vector retrieval failed, using lexical results only")
	}

	return nil
}

// lexicalScore is min(0.25 × tokens contained in content, 1).
func lexicalScore(tokens []string, content string) float64 {
	lower := strings.ToLower(content)
	hits := 0

	for _, t := range tokens {
		if strings.Contains(lower, t) {
			hits++
		}
	}

	return min(lexicalTokenWeight*float64(hits), 1.0)
}

func fuse(tokens []string, lexical []models.Block, vector []models.ScoredBlock, exclude []string) []models.SearchResult {
	byKey := make(map[string]*models.SearchResult, len(lexical)+len(vector))
	skip := make(map[string]bool, len(exclude))

	for _, k := range exclude {
		skip[k] = true
	}

	for _, b := range lexical {
		key := b.Key()
		if skip[key] {
			continue
		}

		score := lexicalScore(tokens, b.Content)
		byKey[key] = &models.SearchResult{Key: key, Block: b, Score: score, LexicalScore: &score}
	}

	for _, sb := range vector {
		key := sb.Block.Key()
		if skip[key] {
			continue
		}

		vec := sb.Score

		if r, ok := byKey[key]; ok {
			r.VectorScore = &vec
			r.Score = *r.LexicalScore*lexicalWeight + vec*vectorWeight

			continue
		}

		byKey[key] = &models.SearchResult{Key: key, Block: sb.Block, Score: vec, VectorScore: &vec}
	}

	results := make([]models.SearchResult, 0, len(byKey))
	for _, r := range byKey {
		results = append(results, *r)
	}

	slices.SortFunc(results, func(a, b models.SearchResult) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}

		if c := b.Block.CreatedAt.Compare(a.Block.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.Key, b.Key)
	})

	return results
}

func page(results []models.SearchResult, offset, limit int) []models.SearchResult {
	if offset >= len(results) {
		return []models.SearchResult{}
	}

	end := min(offset+limit, len(results))

	return results[offset:end]
}
