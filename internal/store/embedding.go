package store

import (
	"context"
	"fmt"

	"github.com/muahq/mua/internal/models"
)

// EmbeddingStore handles block embeddings under the active profile.
type EmbeddingStore struct {
	Base
}

// NewEmbeddingStore creates a new EmbeddingStore.
func NewEmbeddingStore(base Base) *EmbeddingStore {
	return &EmbeddingStore{Base: base}
}

// UpsertBlockEmbedding stores the embedding of a block for a profile.
func (s *EmbeddingStore) UpsertBlockEmbedding(
	ctx context.Context,
	author models.AuthorType,
	blockID, profileID string,
	embedding []float32,
	contentHash string,
) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`INSERT INTO block_embeddings (author_type, block_id, profile_id, embedding, content_hash)
		 VALUES ($1, $2, $3, $4::vector, $5)
		 ON CONFLICT (author_type, block_id, profile_id) DO UPDATE
		 SET embedding = EXCLUDED.embedding, content_hash = EXCLUDED.content_hash, updated_at = now()`,
		author, blockID, profileID, formatEmbedding(embedding), contentHash,
	)
	if err != nil {
		return fmt.Errorf("upserting block embedding: %w", err)
	}

	return nil
}

// ListStaleBlocks returns blocks with no embedding for the profile, or whose
// embedding was computed from different content, oldest first.
func (s *EmbeddingStore) ListStaleBlocks(ctx context.Context, profileID string, limit int) ([]models.Block, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+blockColumns+` FROM all_blocks b
		 WHERE NOT EXISTS (
		     SELECT 1 FROM block_embeddings e
		     WHERE e.author_type = b.author_type AND e.block_id = b.id
		       AND e.profile_id = $1 AND e.content_hash = b.content_hash
		 )
		 ORDER BY b.created_at, b.id
		 LIMIT $2`,
		profileID, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing stale blocks: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}
