package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// ArtifactStore handles ingested artifacts.
type ArtifactStore struct {
	Base
}

// NewArtifactStore creates a new ArtifactStore.
func NewArtifactStore(base Base) *ArtifactStore {
	return &ArtifactStore{Base: base}
}

// FindByChecksum returns the artifact with the given source type and checksum.
func (s *ArtifactStore) FindByChecksum(ctx context.Context, sourceType, checksum string) (*models.Artifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	a, err := scanArtifact(s.Pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE source_type = $1 AND checksum = $2`,
		sourceType, checksum,
	).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("finding artifact: %w", err)
	}

	return a, nil
}

// GetArtifact returns an artifact by id.
func (s *ArtifactStore) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	a, err := scanArtifact(s.Pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("getting artifact: %w", err)
	}

	return a, nil
}

// CreateArtifact inserts an artifact. A concurrent insert of the same
// (source_type, checksum) yields the existing row with created=false.
func (s *ArtifactStore) CreateArtifact(ctx context.Context, a *models.Artifact) (*models.Artifact, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metaJSON, err := marshalMap(a.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("creating artifact: %w", err)
	}

	row := s.Pool.QueryRow(ctx,
		`INSERT INTO artifacts (source_type, title, mime_type, text_content, object_key, checksum,
		                        size_bytes, original_path, ingest_status, description, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (source_type, checksum) DO NOTHING
		 RETURNING `+artifactColumns,
		a.SourceType, a.Title, a.MimeType, a.TextContent, a.ObjectKey, a.Checksum,
		a.SizeBytes, a.OriginalPath, a.IngestStatus, a.Description, metaJSON,
	)

	created, err := scanArtifact(row.Scan)
	if err == nil {
		s.notify("artifact.created", map[string]any{"id": created.ID, "status": created.IngestStatus})
		return created, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting artifact: %w", err)
	}

	existing, err := s.FindByChecksum(ctx, a.SourceType, a.Checksum)
	if err != nil {
		return nil, false, err
	}

	return existing, false, nil
}

// MarkLinked records the enrichment description and sets status linked.
func (s *ArtifactStore) MarkLinked(ctx context.Context, id, description string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE artifacts SET ingest_status = 'linked', description = $2, updated_at = now()
		 WHERE id = $1 AND ingest_status <> 'error'`,
		id, description,
	)
	if err != nil {
		return fmt.Errorf("marking artifact linked: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ListArtifacts returns artifacts newest first, optionally filtered by status.
func (s *ArtifactStore) ListArtifacts(ctx context.Context, status models.IngestStatus, limit, offset int) ([]models.Artifact, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM artifacts
		 WHERE ($1 = '' OR ingest_status = $1)
		 ORDER BY created_at DESC, id
		 LIMIT $2 OFFSET $3`,
		string(status), clampLimit(limit), max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	artifacts := make([]models.Artifact, 0, 16)

	for rows.Next() {
		a, err := scanArtifact(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact row: %w", err)
		}

		artifacts = append(artifacts, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating artifact rows: %w", err)
	}

	return artifacts, nil
}
