package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/orsinium-labs/stopwords"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

const (
	crmEntityScan       = 1000
	topicCount          = 5
	minTopicRunes       = 4
	openLoopWeight      = 2.0
	maxRecencyScore     = 5.0
	neverContactedScore = 1.5
	activityBonus       = 0.6
)

// crmLinkTypes are the links that put a block on a person's timeline, in
// order of preference when a block carries several.
var crmLinkTypes = []models.LinkType{models.LinkAbout, models.LinkMentions, models.LinkCandidateMatch}

// PersonLister finds person entities.
type PersonLister interface {
	ListEntities(ctx context.Context, entityType string, limit int) ([]models.Entity, error)
	SearchEntities(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error)
}

// LinkedBlockReader returns blocks linked to entities.
type LinkedBlockReader interface {
	LinkedBlocks(ctx context.Context, entityIDs []string, linkTypes []models.LinkType) ([]models.LinkedBlock, error)
}

// CRMService aggregates per-person timelines and scores who to follow up with.
type CRMService struct {
	entities PersonLister
	blocks   LinkedBlockReader
	english  *stopwords.Stopwords
	log      *logrus.Logger
	now      func() time.Time
}

// NewCRMService creates a CRMService.
func NewCRMService(entities PersonLister, blocks LinkedBlockReader, log *logrus.Logger) *CRMService {
	return &CRMService{
		entities: entities,
		blocks:   blocks,
		english:  stopwords.MustGet("en"),
		log:      log,
		now:      time.Now,
	}
}

// Summary returns person summaries ranked by follow-up value.
func (s *CRMService) Summary(ctx context.Context, req models.CRMRequest) ([]models.PersonSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var (
		people []models.Entity
		err    error
	)

	if name := strings.TrimSpace(req.Name); name != "" {
		people, err = s.entities.SearchEntities(ctx, models.EntityPerson, name, crmEntityScan)
	} else {
		people, err = s.entities.ListEntities(ctx, models.EntityPerson, crmEntityScan)
	}

	if err != nil {
		return nil, fmt.Errorf("listing people: %w", err)
	}

	ids := make([]string, len(people))
	for i := range people {
		ids[i] = people[i].ID
	}

	linked, err := s.blocks.LinkedBlocks(ctx, ids, crmLinkTypes)
	if err != nil {
		return nil, fmt.Errorf("loading timelines: %w", err)
	}

	timelines := buildTimelines(linked)
	now := s.now()
	topic := strings.ToLower(strings.TrimSpace(req.Topic))

	summaries := make([]models.PersonSummary, 0, len(people))

	for _, p := range people {
		timeline := timelines[p.ID]
		if timeline == nil {
			timeline = []models.TimelineItem{}
		}

		if topic != "" && !timelineMentions(timeline, topic) {
			continue
		}

		summaries = append(summaries, s.summarize(p, timeline, now))
	}

	slices.SortFunc(summaries, func(a, b models.PersonSummary) int {
		if c := cmp.Compare(b.ROIScore, a.ROIScore); c != 0 {
			return c
		}

		return cmp.Compare(a.Entity.CanonicalName, b.Entity.CanonicalName)
	})

	if len(summaries) > req.Limit {
		summaries = summaries[:req.Limit]
	}

	return summaries, nil
}

// buildTimelines groups linked blocks per entity, keeping each block once
// with its most specific link type, newest first.
func buildTimelines(linked []models.LinkedBlock) map[string][]models.TimelineItem {
	byEntity := make(map[string][]models.TimelineItem)
	index := make(map[string]map[string]int)

	for _, lb := range linked {
		key := lb.Block.Key()

		seen, ok := index[lb.EntityID]
		if !ok {
			seen = make(map[string]int)
			index[lb.EntityID] = seen
		}

		if i, dup := seen[key]; dup {
			items := byEntity[lb.EntityID]
			if linkRank(lb.LinkType) < linkRank(items[i].LinkType) {
				items[i].LinkType = lb.LinkType
			}

			continue
		}

		seen[key] = len(byEntity[lb.EntityID])
		byEntity[lb.EntityID] = append(byEntity[lb.EntityID], models.TimelineItem{
			Key:        key,
			AuthorType: lb.Block.AuthorType,
			BlockID:    lb.Block.ID,
			Content:    lb.Block.Content,
			Kind:       lb.Block.Kind,
			LinkType:   lb.LinkType,
			CreatedAt:  lb.Block.CreatedAt,
		})
	}

	for _, items := range byEntity {
		slices.SortStableFunc(items, func(a, b models.TimelineItem) int {
			if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
				return c
			}

			return cmp.Compare(a.Key, b.Key)
		})
	}

	return byEntity
}

func linkRank(lt models.LinkType) int {
	if i := slices.Index(crmLinkTypes, lt); i >= 0 {
		return i
	}

	return len(crmLinkTypes)
}

func timelineMentions(timeline []models.TimelineItem, topic string) bool {
	for _, item := range timeline {
		if strings.Contains(strings.ToLower(item.Content), topic) {
			return true
		}
	}

	return false
}

func (s *CRMService) summarize(p models.Entity, timeline []models.TimelineItem, now time.Time) models.PersonSummary {
	sum := models.PersonSummary{Entity: p, Timeline: timeline}

	for _, item := range timeline {
		if item.AuthorType == models.AuthorMua && item.Kind == models.KindActionOpen {
			sum.OpenLoops++
		}
	}

	if len(timeline) > 0 {
		days := int(now.Sub(timeline[0].CreatedAt).Hours() / 24)
		days = max(days, 0)
		sum.DaysSinceContact = &days
	}

	sum.RecentTopics = s.topics(timeline)
	sum.ROIScore = ROIScore(sum.OpenLoops, sum.DaysSinceContact, len(timeline) > 0)

	return sum
}

// ROIScore weighs open loops, time since last contact and whether there
// has been any activity at all.
func ROIScore(openLoops int, daysSinceContact *int, active bool) float64 {
	score := float64(openLoops) * openLoopWeight

	if daysSinceContact == nil {
		score += neverContactedScore
	} else {
		score += min(float64(*daysSinceContact)/7, maxRecencyScore)
	}

	if active {
		score += activityBonus
	}

	return score
}

// topics returns the most frequent non-stopword words of at least four
// letters, ties broken alphabetically.
func (s *CRMService) topics(timeline []models.TimelineItem) []string {
	counts := make(map[string]int)

	for _, item := range timeline {
		words := strings.FieldsFunc(strings.ToLower(item.Content), func(r rune) bool {
			return !unicode.IsLetter(r)
		})

		for _, w := range words {
			if utf8.RuneCountInString(w) < minTopicRunes || s.english.Contains(w) {
				continue
			}

			counts[w]++
		}
	}

	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}

	slices.SortFunc(words, func(a, b string) int {
		if c := cmp.Compare(counts[b], counts[a]); c != 0 {
			return c
		}

		return cmp.Compare(a, b)
	})

	if len(words) > topicCount {
		words = words[:topicCount]
	}

	return words
}
