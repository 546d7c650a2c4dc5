package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/muahq/mua/internal/models"
)

// ProcessingStore tracks enrichment state per subject.
type ProcessingStore struct {
	Base
}

// NewProcessingStore creates a new ProcessingStore.
func NewProcessingStore(base Base) *ProcessingStore {
	return &ProcessingStore{Base: base}
}

// Now returns the database clock. Batch boundaries compare against
// updated_at, which is always written by the database.
func (s *ProcessingStore) Now(ctx context.Context) (time.Time, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var now time.Time
	if err := s.Pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("reading database clock: %w", err)
	}

	return now, nil
}

// QueueProcessing marks a subject pending for inputHash. It is a no-op when
// the subject was already processed with the same hash or is already queued
// or running for it. Attempts reset when the hash changes. Reports whether
// the subject was (re)queued.
func (s *ProcessingStore) QueueProcessing(
	ctx context.Context,
	subjectType models.SubjectType,
	subjectID, inputHash string,
) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var state models.ProcessingStatus

	err := s.Pool.QueryRow(ctx,
		`INSERT INTO processing_state (subject_type, subject_id, state, input_hash)
		 VALUES ($1, $2, 'pending', $3)
		 ON CONFLICT (subject_type, subject_id) DO UPDATE
		 SET state = 'pending',
		     attempts = CASE WHEN processing_state.input_hash = EXCLUDED.input_hash
		                     THEN processing_state.attempts ELSE 0 END,
		     input_hash = EXCLUDED.input_hash,
		     claim_token = NULL,
		     claimed_at = NULL,
		     updated_at = now()
		 WHERE NOT (
		     (processing_state.state = 'processed' AND processing_state.last_processed_hash = EXCLUDED.input_hash)
		     OR (processing_state.state IN ('pending', 'processing') AND processing_state.input_hash = EXCLUDED.input_hash)
		 )
		 RETURNING state`,
		subjectType, subjectID, inputHash,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}

		return false, fmt.Errorf("queueing processing: %w", err)
	}

	s.notify("processing.queued", map[string]any{"subject_type": subjectType, "subject_id": subjectID})

	return true, nil
}

// ClaimNext claims the oldest eligible subject last updated before before:
// pending or error rows under maxAttempts (0 means unlimited), or processing
// rows whose claim is older than staleAfter. It returns nil when nothing is
// eligible.
func (s *ProcessingStore) ClaimNext(
	ctx context.Context,
	before time.Time,
	maxAttempts int,
	staleAfter time.Duration,
) (*models.ProcessingState, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanProcessing(s.Pool.QueryRow(ctx,
		`UPDATE processing_state
		 SET state = 'processing', attempts = attempts + 1, last_error = NULL,
		     claim_token = gen_random_uuid(), claimed_at = now(), updated_at = now()
		 WHERE (subject_type, subject_id) IN (
		     SELECT subject_type, subject_id FROM processing_state
		     WHERE updated_at < $1
		       AND ($2::int <= 0 OR attempts < $2::int)
		       AND (state IN ('pending', 'error')
		            OR (state = 'processing' AND claimed_at < now() - make_interval(secs => $3::float8)))
		     ORDER BY updated_at, subject_id
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+processingColumns,
		before, maxAttempts, staleAfter.Seconds(),
	).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("claiming processing subject: %w", err)
	}

	return p, nil
}

// MarkProcessed completes a claimed subject. ErrNotClaimed means the claim
// was lost, typically to a re-queue.
func (s *ProcessingStore) MarkProcessed(
	ctx context.Context,
	subjectType models.SubjectType,
	subjectID, claimToken, inputHash, analysis string,
) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var analysisArg *string
	if analysis != "" {
		analysisArg = &analysis
	}

	tag, err := s.Pool.Exec(ctx,
		`UPDATE processing_state
		 SET state = 'processed', last_processed_hash = $4, last_analysis = $5, last_error = NULL,
		     claim_token = NULL, claimed_at = NULL, updated_at = now()
		 WHERE subject_type = $1 AND subject_id = $2 AND claim_token = $3::uuid AND state = 'processing'`,
		subjectType, subjectID, claimToken, inputHash, analysisArg,
	)
	if err != nil {
		return fmt.Errorf("marking processed: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotClaimed
	}

	s.notify("processing.processed", map[string]any{"subject_type": subjectType, "subject_id": subjectID})

	return nil
}

// MarkError records a failure for a claimed subject.
func (s *ProcessingStore) MarkError(
	ctx context.Context,
	subjectType models.SubjectType,
	subjectID, claimToken, message string,
) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tag, err := s.Pool.Exec(ctx,
		`UPDATE processing_state
		 SET state = 'error', last_error = $4, claim_token = NULL, claimed_at = NULL, updated_at = now()
		 WHERE subject_type = $1 AND subject_id = $2 AND claim_token = $3::uuid AND state = 'processing'`,
		subjectType, subjectID, claimToken, message,
	)
	if err != nil {
		return fmt.Errorf("marking error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return models.ErrNotClaimed
	}

	return nil
}

// GetState returns the processing row for a subject.
func (s *ProcessingStore) GetState(ctx context.Context, subjectType models.SubjectType, subjectID string) (*models.ProcessingState, error) {
	if !validID(subjectID) {
		return nil, models.ErrNotFound
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanProcessing(s.Pool.QueryRow(ctx,
		`SELECT `+processingColumns+` FROM processing_state WHERE subject_type = $1 AND subject_id = $2`,
		subjectType, subjectID,
	).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}

		return nil, fmt.Errorf("getting processing state: %w", err)
	}

	return p, nil
}

// CountByState returns the number of rows in each processing state.
func (s *ProcessingStore) CountByState(ctx context.Context) (map[models.ProcessingStatus]int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT state, count(*) FROM processing_state GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("counting processing states: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ProcessingStatus]int, 4)

	for rows.Next() {
		var state models.ProcessingStatus
		var n int

		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("scanning processing count: %w", err)
		}

		counts[state] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating processing counts: %w", err)
	}

	return counts, nil
}
