package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// ClarificationStore handles the clarification queue.
type ClarificationStore struct {
	Base
}

// NewClarificationStore creates a new ClarificationStore.
func NewClarificationStore(base Base) *ClarificationStore {
	return &ClarificationStore{Base: base}
}

// Enqueue inserts a pending item unless one with the same dedupe key exists,
// in which case the existing item is returned with created=false.
func (s *ClarificationStore) Enqueue(ctx context.Context, item models.ClarificationItem) (*models.ClarificationItem, bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	options, err := json.Marshal(item.Options)
	if err != nil {
		return nil, false, fmt.Errorf("marshalling options: %w", err)
	}

	contextJSON, err := json.Marshal(item.Context)
	if err != nil {
		return nil, false, fmt.Errorf("enqueueing clarification: %w", err)
	}

	created, err := scanClarification(s.Pool.QueryRow(ctx,
		`INSERT INTO clarification_items (question, options, context, status, dedupe_key)
		 VALUES ($1, $2, $3, 'pending', $4)
		 ON CONFLICT (dedupe_key) DO NOTHING
		 RETURNING `+clarificationColumns,
		item.Question, options, contextJSON, item.DedupeKey,
	).Scan)
	if err == nil {
		s.notify("clarification.created", map[string]any{"id": created.ID})
		return created, true, nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting clarification: %w", err)
	}

	existing, err := scanClarification(s.Pool.QueryRow(ctx,
		`SELECT `+clarificationColumns+` FROM clarification_items WHERE dedupe_key = $1`,
		item.DedupeKey,
	).Scan)
	if err != nil {
		return nil, false, fmt.Errorf("reading deduplicated clarification: %w", err)
	}

	return existing, false, nil
}

// GetClarification returns an item by id.
func (s *ClarificationStore) GetClarification(ctx context.Context, id string) (*models.ClarificationItem, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	c, err := scanClarification(s.Pool.QueryRow(ctx,
		`SELECT `+clarificationColumns+` FROM clarification_items WHERE id = $1`, id).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("getting clarification: %w", err)
	}

	return c, nil
}

// ListOpen returns pending and asked items, oldest first.
func (s *ClarificationStore) ListOpen(ctx context.Context, limit int) ([]models.ClarificationItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+clarificationColumns+` FROM clarification_items
		 WHERE status IN ('pending', 'asked')
		 ORDER BY created_at, id
		 LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing open clarifications: %w", err)
	}
	defer rows.Close()

	return collectClarifications(rows)
}

// MarkAsked moves up to limit pending items to asked and returns them,
// oldest first.
func (s *ClarificationStore) MarkAsked(ctx context.Context, limit int) ([]models.ClarificationItem, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`UPDATE clarification_items
		 SET status = 'asked', asked_at = now(), updated_at = now()
		 WHERE id IN (
		     SELECT id FROM clarification_items
		     WHERE status = 'pending'
		     ORDER BY created_at, id
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+clarificationColumns, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("marking clarifications asked: %w", err)
	}
	defer rows.Close()

	items, err := collectClarifications(rows)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b models.ClarificationItem) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	return items, nil
}

// ClaimAnswer atomically moves an open item to answered, recording the
// chosen option. It returns the status the item had before the claim.
func (s *ClarificationStore) ClaimAnswer(
	ctx context.Context,
	id string,
	index int,
	value string,
) (models.ClarificationStatus, error) {
	if !validID(id) {
		return "", models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.beginTx(ctx)
	if err != nil {
		return "", fmt.Errorf("claiming clarification: %w", err)
	}

	defer tx.Rollback(ctx) //nolint:errcheck // best-effort rollback after commit.

	var prev models.ClarificationStatus

	err = tx.QueryRow(ctx, `SELECT status FROM clarification_items WHERE id = $1 FOR UPDATE`, id).Scan(&prev)
	if err != nil {
		return "", translateErr(err)
	}

	switch prev {
	case models.ClarificationAnswered:
		return "", models.ErrAlreadyAnswered
	case models.ClarificationExpired:
		return "", models.ErrClarificationExpired
	}

	_, err = tx.Exec(ctx,
		`UPDATE clarification_items
		 SET status = 'answered', answer_index = $2, answer_value = $3, answered_at = now(), updated_at = now()
		 WHERE id = $1`,
		id, index, value,
	)
	if err != nil {
		return "", fmt.Errorf("recording answer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("committing clarification claim: %w", err)
	}

	return prev, nil
}

// Reopen reverts an answered item to status, clearing the recorded answer.
func (s *ClarificationStore) Reopen(ctx context.Context, id string, status models.ClarificationStatus) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.Pool.Exec(ctx,
		`UPDATE clarification_items
		 SET status = $2, answer_index = NULL, answer_value = NULL, answered_at = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'answered'`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("reopening clarification: %w", err)
	}

	return nil
}

// NotifyAnswered publishes the answered event after side effects succeed.
func (s *ClarificationStore) NotifyAnswered(id string) {
	s.notify("clarification.answered", map[string]any{"id": id})
}
