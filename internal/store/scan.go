package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// blockColumns selects the all_blocks view shape; userBlockColumns and
// muaBlockColumns project the base tables into the same shape so that
// scanBlock serves every block query.
const blockColumns = `author_type, id::text, content, visibility, source, source_ref, metadata,
	block_kind, confidence, dedupe_key, content_hash, revision, created_at, updated_at`

const prefixedBlockColumns = `b.author_type, b.id::text, b.content, b.visibility, b.source, b.source_ref, b.metadata,
	b.block_kind, b.confidence, b.dedupe_key, b.content_hash, b.revision, b.created_at, b.updated_at`

const userBlockColumns = `'user', id::text, content, visibility, source, source_ref, metadata,
	NULL::text, 1.0::float8, NULL::text, content_hash, revision, created_at, updated_at`

const muaBlockColumns = `'mua', id::text, content, visibility, source, source_ref, metadata,
	block_kind, confidence, dedupe_key, content_hash, 0, created_at, updated_at`

const versionColumns = `block_id::text, version_no, content, content_hash, capture_reason, created_at`

const artifactColumns = `id::text, source_type, title, mime_type, text_content, object_key, checksum,
	size_bytes, original_path, ingest_status, description, metadata, created_at, updated_at`

const entityColumns = `id::text, entity_type, canonical_name, aliases, verified, confidence, created_at, updated_at`

const linkColumns = `from_type, from_id::text, to_type, to_id::text, link_type, confidence, created_at`

const clarificationColumns = `id::text, question, options, context, status, dedupe_key,
	answer_index, answer_value, asked_at, answered_at, created_at, updated_at`

const processingColumns = `subject_type, subject_id::text, state, attempts, input_hash, last_processed_hash,
	last_error, last_analysis, claim_token::text, claimed_at, created_at, updated_at`

// scanBlock scans a single row into a models.Block.
func scanBlock(scan func(dest ...any) error, extra ...any) (*models.Block, error) {
	var b models.Block
	var sourceRef, metadata []byte
	var kind *string

	dest := []any{
		&b.AuthorType,
		&b.ID,
		&b.Content,
		&b.Visibility,
		&b.Source,
		&sourceRef,
		&metadata,
		&kind,
		&b.Confidence,
		&b.DedupeKey,
		&b.ContentHash,
		&b.Revision,
		&b.CreatedAt,
		&b.UpdatedAt,
	}

	if err := scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if kind != nil {
		b.Kind = models.BlockKind(*kind)
	}

	if len(sourceRef) > 0 {
		var ref models.SourceRef
		if err := json.Unmarshal(sourceRef, &ref); err != nil {
			return nil, fmt.Errorf("unmarshalling source ref: %w", err)
		}
		b.SourceRef = &ref
	}

	if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling block metadata: %w", err)
	}

	return &b, nil
}

// collectBlocks scans all rows into a block slice.
func collectBlocks(rows pgx.Rows) ([]models.Block, error) {
	blocks := make([]models.Block, 0, 16)

	for rows.Next() {
		b, err := scanBlock(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning block row: %w", err)
		}

		blocks = append(blocks, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating block rows: %w", err)
	}

	return blocks, nil
}

// scanVersion scans a single row into a models.UserBlockVersion.
func scanVersion(scan func(dest ...any) error) (*models.UserBlockVersion, error) {
	var v models.UserBlockVersion

	err := scan(&v.BlockID, &v.VersionNo, &v.Content, &v.ContentHash, &v.CaptureReason, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &v, nil
}

// scanArtifact scans a single row into a models.Artifact.
func scanArtifact(scan func(dest ...any) error) (*models.Artifact, error) {
	var a models.Artifact
	var metadata []byte

	err := scan(
		&a.ID,
		&a.SourceType,
		&a.Title,
		&a.MimeType,
		&a.TextContent,
		&a.ObjectKey,
		&a.Checksum,
		&a.SizeBytes,
		&a.OriginalPath,
		&a.IngestStatus,
		&a.Description,
		&metadata,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshalling artifact metadata: %w", err)
	}

	return &a, nil
}

// scanEntity scans a single row into a models.Entity.
func scanEntity(scan func(dest ...any) error) (*models.Entity, error) {
	var e models.Entity

	err := scan(&e.ID, &e.EntityType, &e.CanonicalName, &e.Aliases, &e.Verified, &e.Confidence, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if e.Aliases == nil {
		e.Aliases = []string{}
	}

	return &e, nil
}

// collectEntities scans all rows into an entity slice.
func collectEntities(rows pgx.Rows) ([]models.Entity, error) {
	entities := make([]models.Entity, 0, 16)

	for rows.Next() {
		e, err := scanEntity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning entity row: %w", err)
		}

		entities = append(entities, *e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entity rows: %w", err)
	}

	return entities, nil
}

// scanLink scans a single row into a models.Link.
func scanLink(scan func(dest ...any) error) (*models.Link, error) {
	var l models.Link

	err := scan(&l.FromType, &l.FromID, &l.ToType, &l.ToID, &l.LinkType, &l.Confidence, &l.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &l, nil
}

// scanClarification scans a single row into a models.ClarificationItem.
func scanClarification(scan func(dest ...any) error) (*models.ClarificationItem, error) {
	var c models.ClarificationItem
	var options, context []byte

	err := scan(
		&c.ID,
		&c.Question,
		&options,
		&context,
		&c.Status,
		&c.DedupeKey,
		&c.AnswerIndex,
		&c.AnswerValue,
		&c.AskedAt,
		&c.AnsweredAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(options, &c.Options); err != nil {
		return nil, fmt.Errorf("unmarshalling clarification options: %w", err)
	}

	if err := json.Unmarshal(context, &c.Context); err != nil {
		return nil, fmt.Errorf("unmarshalling clarification context: %w", err)
	}

	return &c, nil
}

// collectClarifications scans all rows into a clarification slice.
func collectClarifications(rows pgx.Rows) ([]models.ClarificationItem, error) {
	items := make([]models.ClarificationItem, 0, 16)

	for rows.Next() {
		c, err := scanClarification(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning clarification row: %w", err)
		}

		items = append(items, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clarification rows: %w", err)
	}

	return items, nil
}

// scanProcessing scans a single row into a models.ProcessingState.
func scanProcessing(scan func(dest ...any) error) (*models.ProcessingState, error) {
	var p models.ProcessingState
	var claimedAt *time.Time

	err := scan(
		&p.SubjectType,
		&p.SubjectID,
		&p.State,
		&p.Attempts,
		&p.InputHash,
		&p.LastProcessedHash,
		&p.LastError,
		&p.LastAnalysis,
		&p.ClaimToken,
		&claimedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.ClaimedAt = claimedAt

	return &p, nil
}
