package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

const (
	chosenPersonConfidence = 0.95
	answeredConfidence     = 0.9
	dismissedConfidence    = 0.1
	defaultDigestLimit     = 20
)

// ClarificationStore is the data-access interface ClarificationService depends on.
type ClarificationStore interface {
	Enqueue(ctx context.Context, item models.ClarificationItem) (*models.ClarificationItem, bool, error)
	GetClarification(ctx context.Context, id string) (*models.ClarificationItem, error)
	ListOpen(ctx context.Context, limit int) ([]models.ClarificationItem, error)
	MarkAsked(ctx context.Context, limit int) ([]models.ClarificationItem, error)
	ClaimAnswer(ctx context.Context, id string, index int, value string) (models.ClarificationStatus, error)
	Reopen(ctx context.Context, id string, status models.ClarificationStatus) error
	NotifyAnswered(id string)
}

// ClarificationService manages the question queue and applies answers.
type ClarificationService struct {
	store    ClarificationStore
	entities EntityStore
	links    LinkStore
	log      *logrus.Logger
}

// NewClarificationService creates a ClarificationService.
func NewClarificationService(store ClarificationStore, entities EntityStore, links LinkStore, log *logrus.Logger) *ClarificationService {
	return &ClarificationService{store: store, entities: entities, links: links, log: log}
}

// Enqueue adds an item unless its dedupe key is already queued.
func (s *ClarificationService) Enqueue(ctx context.Context, item models.ClarificationItem) (*models.ClarificationItem, bool, error) {
	if strings.TrimSpace(item.DedupeKey) == "" {
		return nil, false, models.NewValidationError("dedupe_key", models.ErrMissingID)
	}

	if len(item.Options) == 0 {
		return nil, false, models.NewValidationError("options", models.ErrValidation)
	}

	return s.store.Enqueue(ctx, item)
}

// ListOpen returns pending and asked items, oldest first.
func (s *ClarificationService) ListOpen(ctx context.Context, limit int) ([]models.ClarificationItem, error) {
	if limit <= 0 {
		limit = defaultDigestLimit
	}

	return s.store.ListOpen(ctx, limit)
}

// Digest moves pending items to asked and renders them as a numbered list.
func (s *ClarificationService) Digest(ctx context.Context, limit int) (*models.ClarificationDigest, error) {
	if limit <= 0 {
		limit = defaultDigestLimit
	}

	items, err := s.store.MarkAsked(ctx, limit)
	if err != nil {
		return nil, err
	}

	return &models.ClarificationDigest{Items: items, Text: RenderDigest(items)}, nil
}

// RenderDigest formats items as "1. question" followed by "   1) label" lines.
func RenderDigest(items []models.ClarificationItem) string {
	var b strings.Builder

	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}

		fmt.Fprintf(&b, "%d. %s\n", i+1, item.Question)

		for j, opt := range item.Options {
			fmt.Fprintf(&b, "   %d) %s\n", j+1, opt.Label)
		}
	}

	return b.String()
}

// Resolve answers item id with the 1-based option index and applies the
// answer's side effects. Failed side effects revert the claim.
func (s *ClarificationService) Resolve(ctx context.Context, id string, optionIndex int) (*models.ClarificationItem, error) {
	item, err := s.store.GetClarification(ctx, id)
	if err != nil {
		return nil, err
	}

	switch item.Status {
	case models.ClarificationAnswered:
		return nil, models.ErrAlreadyAnswered
	case models.ClarificationExpired:
		return nil, models.ErrClarificationExpired
	}

	option, err := item.Option(optionIndex)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.ClaimAnswer(ctx, id, optionIndex, option.Value)
	if err != nil {
		return nil, err
	}

	if err := s.apply(ctx, item, option); err != nil {
		if rerr := s.store.Reopen(context.WithoutCancel(ctx), id, prev); rerr != nil {
			s.log.WithError(rerr).WithField("clarification_id", id).Error("reverting clarification claim")
		}

		return nil, fmt.Errorf("applying clarification answer: %w", err)
	}

	s.store.NotifyAnswered(id)

	s.log.WithFields(logrus.Fields{
		"clarification_id": id,
		"context":          item.Context.Value.ContextType(),
		"answer":           option.Value,
	}).Info("clarification answered")

	answered := *item
	answered.Status = models.ClarificationAnswered
	answered.AnswerIndex = &optionIndex
	answered.AnswerValue = &option.Value

	return &answered, nil
}

func (s *ClarificationService) apply(ctx context.Context, item *models.ClarificationItem, option models.ClarificationOption) error {
	switch c := item.Context.Value.(type) {
	case models.PersonDisambiguation:
		return s.applyDisambiguation(ctx, item.ID, c, option.Value)
	case models.PersonNewConfirm:
		return s.applyNewConfirm(ctx, c, option.Value)
	case nil:
		return errors.New("clarification has no context")
	default:
		return fmt.Errorf("unsupported clarification context %s", c.ContextType())
	}
}

func (s *ClarificationService) applyDisambiguation(
	ctx context.Context,
	itemID string,
	c models.PersonDisambiguation,
	value string,
) error {
	for _, id := range c.CandidateIDs {
		if err := s.links.DeleteLink(ctx, c.BlockType, c.BlockID, models.NodeEntity, id, models.LinkCandidateMatch); err != nil {
			return err
		}
	}

	name := NormalizeName(c.Mention)

	if value == models.OptionNewPerson {
		// Keyed by the question so a retry after a failed link write reuses
		// the entity.
		e, _, err := s.entities.CreateEntityOnce(ctx, "clarification:"+itemID, models.EntityPerson, name, true, answeredConfidence)
		if err != nil {
			return err
		}

		_, err = s.links.UpsertLink(ctx, entityLink(c.BlockType, c.BlockID, e.ID, models.LinkAbout, answeredConfidence))

		return err
	}

	if _, err := s.links.UpsertLink(ctx, entityLink(c.BlockType, c.BlockID, value, models.LinkAbout, chosenPersonConfidence)); err != nil {
		return err
	}

	if name == "" {
		return nil
	}

	_, err := s.entities.AddAlias(ctx, value, name)

	return err
}

func (s *ClarificationService) applyNewConfirm(ctx context.Context, c models.PersonNewConfirm, value string) error {
	switch value {
	case models.OptionConfirm:
		if err := s.entities.Confirm(ctx, c.EntityID, answeredConfidence); err != nil {
			return err
		}

		if err := s.links.DeleteLink(ctx, c.BlockType, c.BlockID, models.NodeEntity, c.EntityID, models.LinkCandidateMatch); err != nil {
			return err
		}

		_, err := s.links.UpsertLink(ctx, entityLink(c.BlockType, c.BlockID, c.EntityID, models.LinkAbout, answeredConfidence))

		return err

	case models.OptionDismiss:
		if err := s.entities.Decay(ctx, c.EntityID, dismissedConfidence); err != nil {
			return err
		}

		return s.links.DeleteLink(ctx, c.BlockType, c.BlockID, models.NodeEntity, c.EntityID, models.LinkCandidateMatch)
	}

	return fmt.Errorf("unknown confirmation answer %q", value)
}
