package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// BlockStore handles user blocks, their versions, and mua blocks.
type BlockStore struct {
	Base
}

// NewBlockStore creates a new BlockStore.
func NewBlockStore(base Base) *BlockStore {
	return &BlockStore{Base: base}
}

// CreateUserBlock inserts a user block together with version 1.
func (s *BlockStore) CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metaJSON, err := marshalMap(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("creating user block: %w", err)
	}

	refJSON, err := marshalNullable(req.SourceRef)
	if err != nil {
		return nil, fmt.Errorf("creating user block: %w", err)
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating user block: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	hash := models.ContentHash(req.Content)

	row := tx.QueryRow(ctx,
		`INSERT INTO user_blocks (content, visibility, source, source_ref, metadata, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+userBlockColumns,
		req.Content, req.Visibility, req.Source, refJSON, metaJSON, hash,
	)

	b, err := scanBlock(row.Scan)
	if err != nil {
		return nil, fmt.Errorf("scanning created user block: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_block_versions (block_id, version_no, content, content_hash, capture_reason)
		 VALUES ($1, 1, $2, $3, $4)`,
		b.ID, b.Content, hash, models.ReasonCreate,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting initial version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing create user block: %w", err)
	}

	s.notify("block.created", map[string]any{"key": b.Key()})

	return b, nil
}

// GetUserBlock returns a user block by id.
func (s *BlockStore) GetUserBlock(ctx context.Context, id string) (*models.Block, error) {
	return s.GetBlock(ctx, models.AuthorUser, id)
}

// GetBlock returns a block of either author type.
func (s *BlockStore) GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userBlockColumns + ` FROM user_blocks WHERE id = $1`
	if author == models.AuthorMua {
		query = `SELECT ` + muaBlockColumns + ` FROM mua_blocks WHERE id = $1`
	}

	b, err := scanBlock(s.Pool.QueryRow(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("getting block: %w", err)
	}

	return b, nil
}

// ListUserBlocks returns user blocks, newest first.
func (s *BlockStore) ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+userBlockColumns+` FROM user_blocks
		 ORDER BY created_at DESC, id
		 LIMIT $1 OFFSET $2`,
		clampLimit(limit), max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("listing user blocks: %w", err)
	}
	defer rows.Close()

	return collectBlocks(rows)
}

// UpdateUserBlock rewrites a user block if its revision still matches
// upd.ExpectedRevision, bumping the revision. checkpoint runs with the row
// locked and decides whether a version is appended. The second return value
// reports whether a version was written.
func (s *BlockStore) UpdateUserBlock(
	ctx context.Context,
	id string,
	upd models.BlockUpdate,
	checkpoint models.CheckpointFunc,
) (*models.Block, bool, error) {
	if !validID(id) {
		return nil, false, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var metaJSON []byte
	if upd.Metadata != nil {
		var err error
		if metaJSON, err = marshalMap(upd.Metadata); err != nil {
			return nil, false, fmt.Errorf("updating user block: %w", err)
		}
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("updating user block: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var revision int

	err = tx.QueryRow(ctx, `SELECT revision FROM user_blocks WHERE id = $1 FOR UPDATE`, id).Scan(&revision)
	if err != nil {
		return nil, false, translateErr(err)
	}

	if revision != upd.ExpectedRevision {
		return nil, false, models.ErrConflict
	}

	latest, err := latestVersion(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}

	hash := models.ContentHash(upd.Content)

	row := tx.QueryRow(ctx,
		`UPDATE user_blocks
		 SET content = $2, content_hash = $3, metadata = COALESCE($4, metadata),
		     revision = revision + 1, updated_at = now()
		 WHERE id = $1
		 RETURNING `+userBlockColumns,
		id, upd.Content, hash, metaJSON,
	)

	b, err := scanBlock(row.Scan)
	if err != nil {
		return nil, false, fmt.Errorf("scanning updated user block: %w", err)
	}

	versioned := checkpoint != nil && checkpoint(latest, hash)
	if versioned {
		next := 1
		if latest != nil {
			next = latest.VersionNo + 1
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO user_block_versions (block_id, version_no, content, content_hash, capture_reason)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, next, upd.Content, hash, upd.Reason,
		)
		if err != nil {
			return nil, false, fmt.Errorf("inserting version: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("committing update user block: %w", err)
	}

	s.notify("block.updated", map[string]any{"key": b.Key(), "revision": b.Revision})

	return b, versioned, nil
}

// CheckpointUserBlock records the block's current content as a version when
// it differs from the latest version. Reports whether a version was written.
func (s *BlockStore) CheckpointUserBlock(ctx context.Context, id string, reason models.CaptureReason) (bool, error) {
	if !validID(id) {
		return false, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return false, fmt.Errorf("checkpointing user block: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var content, hash string

	err = tx.QueryRow(ctx, `SELECT content, content_hash FROM user_blocks WHERE id = $1 FOR UPDATE`, id).Scan(&content, &hash)
	if err != nil {
		return false, translateErr(err)
	}

	latest, err := latestVersion(ctx, tx, id)
	if err != nil {
		return false, err
	}

	if latest != nil && latest.ContentHash == hash {
		return false, nil
	}

	next := 1
	if latest != nil {
		next = latest.VersionNo + 1
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO user_block_versions (block_id, version_no, content, content_hash, capture_reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, next, content, hash, reason,
	)
	if err != nil {
		return false, fmt.Errorf("inserting checkpoint version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing checkpoint: %w", err)
	}

	s.notify("block.versioned", map[string]any{"key": string(models.AuthorUser) + ":" + id, "version": next})

	return true, nil
}

func latestVersion(ctx context.Context, tx pgx.Tx, blockID string) (*models.UserBlockVersion, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM user_block_versions
		 WHERE block_id = $1
		 ORDER BY version_no DESC
		 LIMIT 1`, blockID)

	v, err := scanVersion(row.Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading latest version: %w", err)
	}

	return v, nil
}

// ListVersions returns every version of a user block, oldest first.
func (s *BlockStore) ListVersions(ctx context.Context, blockID string) ([]models.UserBlockVersion, error) {
	if !validID(blockID) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+versionColumns+` FROM user_block_versions
		 WHERE block_id = $1
		 ORDER BY version_no`, blockID)
	if err != nil {
		return nil, fmt.Errorf("listing versions: %w", err)
	}
	defer rows.Close()

	versions := make([]models.UserBlockVersion, 0, 8)

	for rows.Next() {
		v, err := scanVersion(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning version row: %w", err)
		}

		versions = append(versions, *v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}

	if len(versions) == 0 {
		if _, err := s.GetUserBlock(ctx, blockID); err != nil {
			return nil, err
		}
	}

	return versions, nil
}

// CreateMuaBlock inserts a system block. When the dedupe key already exists
// the existing block is returned with created=false.
func (s *BlockStore) CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	metaJSON, err := marshalMap(req.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("creating mua block: %w", err)
	}

	refJSON, err := marshalNullable(req.SourceRef)
	if err != nil {
		return nil, false, fmt.Errorf("creating mua block: %w", err)
	}

	var dedupe *string
	if req.DedupeKey != "" {
		dedupe = &req.DedupeKey
	}

	row := s.Pool.QueryRow(ctx,
		`INSERT INTO mua_blocks (content, visibility, source, source_ref, metadata, block_kind, confidence, dedupe_key, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (dedupe_key) DO NOTHING
		 RETURNING `+muaBlockColumns,
		req.Content, req.Visibility, req.Source, refJSON, metaJSON,
		req.Kind, req.Confidence, dedupe, models.ContentHash(req.Content),
	)

	b, err := scanBlock(row.Scan)
	if err == nil {
		s.notify("block.created", map[string]any{"key": b.Key()})
		return b, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) || dedupe == nil {
		return nil, false, fmt.Errorf("inserting mua block: %w", err)
	}

	existing, err := scanBlock(s.Pool.QueryRow(ctx,
		`SELECT `+muaBlockColumns+` FROM mua_blocks WHERE dedupe_key = $1`, *dedupe).Scan)
	if err != nil {
		return nil, false, fmt.Errorf("reading deduplicated mua block: %w", err)
	}

	return existing, false, nil
}
