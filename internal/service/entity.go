package service

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

// resolverWindow bounds how many person rows a resolution considers.
const resolverWindow = 200

// EntityStore is the data-access interface EntityResolver depends on.
type EntityStore interface {
	ListEntities(ctx context.Context, entityType string, limit int) ([]models.Entity, error)
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
	CreateEntity(ctx context.Context, entityType, name string, verified bool, confidence float64) (*models.Entity, error)
	CreateEntityOnce(
		ctx context.Context,
		originKey, entityType, name string,
		verified bool,
		confidence float64,
	) (*models.Entity, bool, error)
	AddAlias(ctx context.Context, id, alias string) (bool, error)
	Confirm(ctx context.Context, id string, confidence float64) error
	Decay(ctx context.Context, id string, confidence float64) error
}

// EntityResolver maps free-text person names onto entities.
type EntityResolver struct {
	store EntityStore
	log   *logrus.Logger
}

// NewEntityResolver creates an EntityResolver.
func NewEntityResolver(store EntityStore, log *logrus.Logger) *EntityResolver {
	return &EntityResolver{store: store, log: log}
}

// NormalizeName trims, collapses whitespace and title-cases each word.
// Single-letter words are upper-cased.
func NormalizeName(name string) string {
	words := strings.Fields(name)

	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}

	return strings.Join(words, " ")
}

type resolveCandidate struct {
	entity   models.Entity
	exact    bool
	matchPos int
}

// Resolve returns the best entity whose canonical name or an alias contains
// name, recording the normalized name as an alias, or creates an unverified
// candidate with the given confidence.
func (r *EntityResolver) Resolve(ctx context.Context, name string, confidence float64) (*models.Entity, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return nil, models.NewValidationError("name", models.ErrEmptyContent)
	}

	entities, err := r.store.ListEntities(ctx, models.EntityPerson, resolverWindow)
	if err != nil {
		return nil, err
	}

	if best, ok := bestMatch(entities, normalized); ok {
		added, err := r.store.AddAlias(ctx, best.ID, normalized)
		if err != nil {
			return nil, err
		}

		if added {
			best.Aliases = append(best.Aliases, normalized)
		}

		return &best, nil
	}

	e, err := r.store.CreateEntity(ctx, models.EntityPerson, normalized, false, clamp01(confidence))
	if err != nil {
		return nil, err
	}

	r.log.WithFields(logrus.Fields{"entity_id": e.ID, "name": normalized}).Debug("created candidate entity")

	return e, nil
}

// bestMatch prefers an exact match, then verified entities, then higher
// confidence. Remaining ties keep store order (most recently updated).
func bestMatch(entities []models.Entity, normalized string) (models.Entity, bool) {
	needle := strings.ToLower(normalized)
	candidates := make([]resolveCandidate, 0, 4)

	for i, e := range entities {
		matched, exact := false, false

		for _, surface := range e.Surfaces() {
			s := strings.ToLower(surface)
			if s == needle {
				matched, exact = true, true
				break
			}

			if strings.Contains(s, needle) {
				matched = true
			}
		}

		if matched {
			candidates = append(candidates, resolveCandidate{entity: e, exact: exact, matchPos: i})
		}
	}

	if len(candidates) == 0 {
		return models.Entity{}, false
	}

	slices.SortStableFunc(candidates, func(a, b resolveCandidate) int {
		if a.exact != b.exact {
			return boolRank(a.exact, b.exact)
		}

		if a.entity.Verified != b.entity.Verified {
			return boolRank(a.entity.Verified, b.entity.Verified)
		}

		if c := cmp.Compare(b.entity.Confidence, a.entity.Confidence); c != 0 {
			return c
		}

		return cmp.Compare(a.matchPos, b.matchPos)
	})

	return candidates[0].entity, true
}

// boolRank orders true before false.
func boolRank(a, b bool) int {
	switch {
	case a && !b:
		return -1
	case !a && b:
		return 1
	}

	return 0
}

// Confirm marks an entity verified and raises its confidence.
func (r *EntityResolver) Confirm(ctx context.Context, id string, confidence float64) error {
	return r.store.Confirm(ctx, id, clamp01(confidence))
}

// Decay lowers an entity's confidence. Entities are never deleted.
func (r *EntityResolver) Decay(ctx context.Context, id string, confidence float64) error {
	return r.store.Decay(ctx, id, clamp01(confidence))
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
