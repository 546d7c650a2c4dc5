package store

import (
	"context"
	"fmt"

	"github.com/muahq/mua/internal/models"
)

// SearchStore serves the lexical and vector passes of hybrid retrieval.
type SearchStore struct {
	Base
}

// NewSearchStore creates a new SearchStore.
func NewSearchStore(base Base) *SearchStore {
	return &SearchStore{Base: base}
}

// LexicalCandidates returns blocks whose lower-cased content contains any of
// the tokens, newest first. Mua blocks are included only when includeMua.
func (s *SearchStore) LexicalCandidates(
	ctx context.Context,
	tokens []string,
	includeMua bool,
	limit int,
) ([]models.Block, error) {
	if len(tokens) == 0 {
		return []models.Block{}, nil
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	patterns := make([]string, len(tokens))
	for i, t := range tokens {
		patterns[i] = likePattern(t)
	}

	rows, err := s.Pool.Query(ctx,
		`SELECT `+blockColumns+` FROM all_blocks
		 WHERE lower(content) LIKE ANY($1::text[])
		   AND (author_type = 'user' OR $2)
		 ORDER BY created_at DESC, id
		 LIMIT $3`,
		patterns, includeMua, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("executing lexical search: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

// MatchBlocks returns blocks whose embedding under profileID has cosine
// similarity of at least threshold with embedding, most similar first.
func (s *SearchStore) MatchBlocks(
	ctx context.Context,
	embedding []float32,
	profileID string,
	includeMua bool,
	threshold float64,
	limit int,
) ([]models.ScoredBlock, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+blockColumns+`, similarity
		 FROM match_blocks($1::vector, $2, true, $3, $4, $5)`,
		formatEmbedding(embedding), profileID, includeMua, threshold, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("executing vector search: %w", err)
	}
	defer rows.Close()

	scored := make([]models.ScoredBlock, 0, limit)

	for rows.Next() {
		var score float64

		b, err := scanBlock(rows.Scan, &score)
		if err != nil {
			return nil, fmt.Errorf("scanning vector result: %w", err)
		}

		scored = append(scored, models.ScoredBlock{Block: *b, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector rows: %w", err)
	}

	return scored, nil
}
