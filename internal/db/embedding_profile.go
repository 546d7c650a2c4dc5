package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/dbpool"
)

// ProfileID builds the stable identifier of an embedding profile.
func ProfileID(provider, model string, dimensions int) string {
	return fmt.Sprintf("%s:%s:%d", provider, model, dimensions)
}

// EnsureEmbeddingProfile registers the configured embedding profile and marks
// it as the only active one. Embeddings stored under other profiles are kept
// so that switching back does not require regeneration.
func EnsureEmbeddingProfile(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, provider, model string, dimensions int) (string, error) {
	if dimensions < 1 || dimensions > 4096 {
		return "", fmt.Errorf("embedding dimensions must be between 1 and 4096, got %d", dimensions)
	}

	id := ProfileID(provider, model, dimensions)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("beginning profile tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var previous string

	err = tx.QueryRow(ctx, `SELECT COALESCE((SELECT id FROM embedding_profiles WHERE active), '')`).Scan(&previous)
	if err != nil {
		return "", fmt.Errorf("reading active profile: %w", err)
	}

	if previous == id {
		log.WithField("profile", id).Debug("embedding profile already active")

		return id, nil
	}

	if _, err := tx.Exec(ctx, `UPDATE embedding_profiles SET active = false WHERE active`); err != nil {
		return "", fmt.Errorf("deactivating embedding profiles: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO embedding_profiles (id, provider, model, dimensions, active)
		 VALUES ($1, $2, $3, $4, true)
		 ON CONFLICT (id) DO UPDATE SET active = true`,
		id, provider, model, dimensions,
	)
	if err != nil {
		return "", fmt.Errorf("activating embedding profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing embedding profile: %w", err)
	}

	log.WithFields(logrus.Fields{
		"previous": previous,
		"profile":  id,
	}).Info("embedding profile activated")

	return id, nil
}
