package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

const (
	// versionMinInterval spaces out autosave checkpoints.
	versionMinInterval = 60 * time.Second
	maxUpdateAttempts  = 3
)

// BlockStore is the data-access interface BlockService depends on.
type BlockStore interface {
	CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error)
	GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error)
	ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error)
	UpdateUserBlock(
		ctx context.Context,
		id string,
		upd models.BlockUpdate,
		checkpoint models.CheckpointFunc,
	) (*models.Block, bool, error)
	ListVersions(ctx context.Context, blockID string) ([]models.UserBlockVersion, error)
	CheckpointUserBlock(ctx context.Context, id string, reason models.CaptureReason) (bool, error)
	CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error)
}

// ProcessingQueuer marks subjects for enrichment.
type ProcessingQueuer interface {
	QueueProcessing(ctx context.Context, subjectType models.SubjectType, subjectID, inputHash string) (bool, error)
}

// EmbedEnqueuer enqueues embedding generation jobs.
type EmbedEnqueuer interface {
	Enqueue(job EmbedJob)
}

// TaskSubmitter accepts background tasks.
type TaskSubmitter interface {
	Submit(task Task) bool
}

// MentionScanner links entity mentions found in a user block.
type MentionScanner interface {
	Scan(ctx context.Context, block *models.Block) error
}

// BlockService owns the block write path and schedules its side effects.
type BlockService struct {
	store      BlockStore
	processing ProcessingQueuer
	embed      EmbedEnqueuer
	tasks      TaskSubmitter
	scanner    MentionScanner
	log        *logrus.Logger
	now        func() time.Time
}

// NewBlockService creates a BlockService. embed, tasks and scanner may be nil.
func NewBlockService(
	store BlockStore,
	processing ProcessingQueuer,
	embed EmbedEnqueuer,
	tasks TaskSubmitter,
	scanner MentionScanner,
	log *logrus.Logger,
) *BlockService {
	return &BlockService{
		store:      store,
		processing: processing,
		embed:      embed,
		tasks:      tasks,
		scanner:    scanner,
		log:        log,
		now:        time.Now,
	}
}

// CreateUserBlock parses frontmatter, persists the block with version 1 and
// schedules its side effects.
func (s *BlockService) CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	parsed, body, err := ParseFrontmatter(req.Content)
	if err != nil {
		return nil, models.NewValidationError("content", err)
	}

	if body == "" {
		return nil, models.NewValidationError("content", models.ErrEmptyContent)
	}

	req.Content = body
	req.Metadata = mergeMetadata(parsed, req.Metadata)

	b, err := s.store.CreateUserBlock(ctx, req)
	if err != nil {
		return nil, err
	}

	s.scheduleUserSideEffects(b)

	return b, nil
}

// UpdateUserBlock re-saves a user block. Concurrent writers are resolved by
// reloading and retrying on revision conflicts.
func (s *BlockService) UpdateUserBlock(ctx context.Context, id string, req models.UpdateUserBlockRequest) (*models.Block, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	parsed, body, err := ParseFrontmatter(req.Content)
	if err != nil {
		return nil, models.NewValidationError("content", err)
	}

	if body == "" {
		return nil, models.NewValidationError("content", models.ErrEmptyContent)
	}

	for attempt := range maxUpdateAttempts {
		current, err := s.store.GetBlock(ctx, models.AuthorUser, id)
		if err != nil {
			return nil, err
		}

		merged, err := normalizeMetadata(mergeMetadata(current.Metadata, parsed, req.Metadata))
		if err != nil {
			return nil, err
		}

		if body == current.Content && reflect.DeepEqual(merged, current.Metadata) {
			// A throttled autosave may have left the latest version behind
			// the stored content; finalize records it.
			if req.Reason == models.ReasonFinalize {
				versioned, err := s.store.CheckpointUserBlock(ctx, id, req.Reason)
				if err != nil {
					return nil, err
				}

				s.log.WithFields(logrus.Fields{"block_id": id, "versioned": versioned}).Debug("user block finalized")
			}

			return current, nil
		}

		upd := models.BlockUpdate{
			Content:          body,
			Metadata:         merged,
			Reason:           req.Reason,
			ExpectedRevision: current.Revision,
		}

		b, versioned, err := s.store.UpdateUserBlock(ctx, id, upd, s.checkpointer(req.Reason))
		if errors.Is(err, models.ErrConflict) {
			s.log.WithFields(logrus.Fields{"block_id": id, "attempt": attempt + 1}).Debug("revision conflict, retrying")
			continue
		}

		if err != nil {
			return nil, err
		}

		s.log.WithFields(logrus.Fields{
			"block_id":  id,
			"revision":  b.Revision,
			"versioned": versioned,
			"reason":    req.Reason,
		}).Debug("user block saved")

		s.scheduleUserSideEffects(b)

		return b, nil
	}

	return nil, models.ErrConflict
}

// checkpointer returns the versioning rule for a save with the given reason:
// a version is written only when the content hash changed and the save is a
// finalize, any non-autosave reason, or an autosave at least
// versionMinInterval after the previous version.
func (s *BlockService) checkpointer(reason models.CaptureReason) models.CheckpointFunc {
	return func(latest *models.UserBlockVersion, newHash string) bool {
		return shouldCheckpoint(latest, newHash, reason, s.now())
	}
}

func shouldCheckpoint(latest *models.UserBlockVersion, newHash string, reason models.CaptureReason, now time.Time) bool {
	if latest == nil {
		return true
	}

	if latest.ContentHash == newHash {
		return false
	}

	if reason != models.ReasonAutosave {
		return true
	}

	return now.Sub(latest.CreatedAt) >= versionMinInterval
}

// GetBlock returns a block by author type and id (pass-through).
func (s *BlockService) GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error) {
	return s.store.GetBlock(ctx, author, id)
}

// ListUserBlocks returns user blocks newest first (pass-through).
func (s *BlockService) ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error) {
	return s.store.ListUserBlocks(ctx, limit, offset)
}

// ListVersions returns a user block's version history (pass-through).
func (s *BlockService) ListVersions(ctx context.Context, id string) ([]models.UserBlockVersion, error) {
	return s.store.ListVersions(ctx, id)
}

// CreateMuaBlock inserts a system block. Existing dedupe keys return the
// stored block with created=false and schedule nothing.
func (s *BlockService) CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
	if err := req.Validate(); err != nil {
		return nil, false, err
	}

	b, created, err := s.store.CreateMuaBlock(ctx, req)
	if err != nil {
		return nil, false, err
	}

	if created && s.embed != nil {
		s.embed.Enqueue(EmbedJobFor(b))
	}

	return b, created, nil
}

func (s *BlockService) scheduleUserSideEffects(b *models.Block) {
	if s.embed != nil {
		s.embed.Enqueue(EmbedJobFor(b))
	}

	if s.tasks == nil {
		return
	}

	fields := logrus.Fields{"block_id": b.ID}
	snapshot := *b

	s.tasks.Submit(Task{
		Name:   TaskQueueProcessing,
		Fields: fields,
		Run: func(ctx context.Context) error {
			_, err := s.processing.QueueProcessing(ctx, models.SubjectUserBlock, snapshot.ID, snapshot.ContentHash)
			return err
		},
	})

	if s.scanner != nil {
		s.tasks.Submit(Task{
			Name:   TaskDisambiguate,
			Fields: fields,
			Run: func(ctx context.Context) error {
				return s.scanner.Scan(ctx, &snapshot)
			},
		})
	}
}

// normalizeMetadata round-trips m through JSON so it compares equal to
// metadata read back from the database.
func normalizeMetadata(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, models.NewValidationError("metadata", fmt.Errorf("unencodable metadata: %w", err))
	}

	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalizing metadata: %w", err)
	}

	return out, nil
}
