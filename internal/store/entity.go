package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// EntityStore handles resolved and candidate entities.
type EntityStore struct {
	Base
}

// NewEntityStore creates a new EntityStore.
func NewEntityStore(base Base) *EntityStore {
	return &EntityStore{Base: base}
}

// ListEntities returns up to limit entities of a type, most recently updated first.
func (s *EntityStore) ListEntities(ctx context.Context, entityType string, limit int) ([]models.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE entity_type = $1
		 ORDER BY updated_at DESC, id
		 LIMIT $2`,
		entityType, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// SearchEntities returns entities of a type whose canonical name or any alias
// contains name, case-insensitively. An empty name matches everything.
func (s *EntityStore) SearchEntities(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE entity_type = $1
		   AND ($2 = '' OR canonical_name ILIKE $3
		        OR EXISTS (SELECT 1 FROM unnest(aliases) a WHERE a ILIKE $3))
		 ORDER BY updated_at DESC, id
		 LIMIT $4`,
		entityType, name, likePattern(name), clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("searching entities: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows)
}

// GetEntity returns an entity by id.
func (s *EntityStore) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e, err := scanEntity(s.Pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("getting entity: %w", err)
	}

	return e, nil
}

// CreateEntity inserts a new entity with no aliases.
func (s *EntityStore) CreateEntity(
	ctx context.Context,
	entityType, name string,
	verified bool,
	confidence float64,
) (*models.Entity, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e, err := scanEntity(s.Pool.QueryRow(ctx,
		`INSERT INTO entities (entity_type, canonical_name, verified, confidence)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+entityColumns,
		entityType, name, verified, confidence,
	).Scan)
	if err != nil {
		return nil, fmt.Errorf("creating entity: %w", err)
	}

	s.notify("entity.created", map[string]any{"id": e.ID, "verified": e.Verified})

	return e, nil
}

// CreateEntityOnce inserts an entity keyed by originKey. A repeated call with
// the same key returns the entity created by the first one.
func (s *EntityStore) CreateEntityOnce(
	ctx context.Context,
	originKey, entityType, name string,
	verified bool,
	confidence float64,
) (*models.Entity, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	e, err := scanEntity(s.Pool.QueryRow(ctx,
		`INSERT INTO entities (entity_type, canonical_name, verified, confidence, origin_key)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (origin_key) DO NOTHING
		 RETURNING `+entityColumns,
		entityType, name, verified, confidence, originKey,
	).Scan)
	if err == nil {
		s.notify("entity.created", map[string]any{"id": e.ID, "verified": e.Verified})
		return e, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("creating entity: %w", err)
	}

	e, err = scanEntity(s.Pool.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE origin_key = $1`, originKey).Scan)
	if err != nil {
		return nil, false, fmt.Errorf("reading entity by origin: %w", err)
	}

	return e, false, nil
}

// AddAlias appends alias when it is not already present (case-insensitive,
// canonical name included) and the alias set has room. Reports whether the
// alias was added.
func (s *EntityStore) AddAlias(ctx context.Context, id, alias string) (bool, error) {
	if !validID(id) {
		return false, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE entities
		 SET aliases = array_append(aliases, $2), updated_at = now()
		 WHERE id = $1
		   AND lower(canonical_name) <> lower($2)
		   AND NOT EXISTS (SELECT 1 FROM unnest(aliases) a WHERE lower(a) = lower($2))
		   AND cardinality(aliases) < $3`,
		id, alias, models.MaxAliases,
	)
	if err != nil {
		return false, fmt.Errorf("adding alias: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Confirm marks an entity verified and raises its confidence to at least confidence.
func (s *EntityStore) Confirm(ctx context.Context, id string, confidence float64) error {
	return s.updateConfidence(ctx, id,
		`UPDATE entities SET verified = true, confidence = GREATEST(confidence, $2), updated_at = now()
		 WHERE id = $1`, confidence)
}

// Decay lowers an entity's confidence to at most confidence.
func (s *EntityStore) Decay(ctx context.Context, id string, confidence float64) error {
	return s.updateConfidence(ctx, id,
		`UPDATE entities SET confidence = LEAST(confidence, $2), updated_at = now()
		 WHERE id = $1`, confidence)
}

// Touch bumps updated_at so the entity stays within the resolver window.
func (s *EntityStore) Touch(ctx context.Context, id string) error {
	if !validID(id) {
		return models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := s.Pool.Exec(ctx, `UPDATE entities SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touching entity: %w", err)
	}

	return nil
}

func (s *EntityStore) updateConfidence(ctx context.Context, id, query string, confidence float64) error {
	if !validID(id) {
		return models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx, query, id, confidence)
	if err != nil {
		return fmt.Errorf("updating entity confidence: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
