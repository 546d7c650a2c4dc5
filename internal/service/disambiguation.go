package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/models"
)

const (
	minSurfaceLen        = 3
	mentionConfidence    = 0.8
	candidateConfidence  = 0.5
	newPersonOptionLabel = "New person"
)

// EntityLister lists entities for the mention scanner.
type EntityLister interface {
	ListEntities(ctx context.Context, entityType string, limit int) ([]models.Entity, error)
}

// LinkStore is the link access used by the scanner and clarification answers.
type LinkStore interface {
	UpsertLink(ctx context.Context, l models.Link) (bool, error)
	DeleteLink(
		ctx context.Context,
		fromType models.NodeType, fromID string,
		toType models.NodeType, toID string,
		linkType models.LinkType,
	) error
	LinksFrom(ctx context.Context, fromType models.NodeType, fromID string, linkTypes ...models.LinkType) ([]models.Link, error)
}

// ClarificationEnqueuer queues a clarification question.
type ClarificationEnqueuer interface {
	Enqueue(ctx context.Context, item models.ClarificationItem) (*models.ClarificationItem, bool, error)
}

// Disambiguator finds known person names in a block and either links them or
// asks the user which person was meant.
type Disambiguator struct {
	entities       EntityLister
	links          LinkStore
	clarifications ClarificationEnqueuer
	log            *logrus.Logger
}

// NewDisambiguator creates a Disambiguator.
func NewDisambiguator(entities EntityLister, links LinkStore, clarifications ClarificationEnqueuer, log *logrus.Logger) *Disambiguator {
	return &Disambiguator{entities: entities, links: links, clarifications: clarifications, log: log}
}

// surfaceIndex maps lower-cased surface forms to the entities that carry them.
type surfaceIndex struct {
	ac       *ahocorasick.Automaton
	patterns []string
	owners   [][]int
	entities []models.Entity
}

func buildSurfaceIndex(entities []models.Entity) (*surfaceIndex, error) {
	idx := &surfaceIndex{entities: entities}
	byPattern := map[string]int{}

	for i, e := range entities {
		for _, surface := range e.Surfaces() {
			key := strings.ToLower(strings.Join(strings.Fields(surface), " "))
			if utf8.RuneCountInString(key) < minSurfaceLen {
				continue
			}

			p, ok := byPattern[key]
			if !ok {
				p = len(idx.patterns)
				byPattern[key] = p
				idx.patterns = append(idx.patterns, key)
				idx.owners = append(idx.owners, nil)
			}

			if !slices.Contains(idx.owners[p], i) {
				idx.owners[p] = append(idx.owners[p], i)
			}
		}
	}

	if len(idx.patterns) == 0 {
		return idx, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(idx.patterns).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, fmt.Errorf("building name automaton: %w", err)
	}

	idx.ac = ac

	return idx, nil
}

// mention is one matched surface form and the text it matched.
type mention struct {
	pattern int
	text    string
}

// find returns each distinct surface form found on word boundaries, in
// order of first occurrence. Overlapping matches resolve leftmost-longest, so
// "jane" inside "jane doe" is not reported on its own.
func (idx *surfaceIndex) find(content string) []mention {
	if idx.ac == nil {
		return nil
	}

	lower := strings.ToLower(content)
	sameLen := len(lower) == len(content)

	// The overlapping iterator ignores the match kind; word-boundary rejects
	// must not hide a shorter valid match, so selection happens here.
	var spans []ahocorasick.Match

	for _, m := range idx.ac.FindAllOverlapping([]byte(lower)) {
		if onWordBoundary(lower, m.Start, m.End) {
			spans = append(spans, m)
		}
	}

	slices.SortFunc(spans, func(a, b ahocorasick.Match) int {
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}

		return cmp.Compare(b.End, a.End)
	})

	seen := map[int]bool{}
	covered := 0

	var out []mention

	for _, m := range spans {
		if m.Start < covered {
			continue
		}

		covered = m.End

		if seen[m.PatternID] {
			continue
		}

		seen[m.PatternID] = true

		text := idx.patterns[m.PatternID]
		if sameLen {
			text = content[m.Start:m.End]
		}

		out = append(out, mention{pattern: m.PatternID, text: text})
	}

	return out
}

func onWordBoundary(s string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:start])
		if isWordRune(r) {
			return false
		}
	}

	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if isWordRune(r) {
			return false
		}
	}

	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Scan links or queues clarifications for every person mentioned in block.
func (d *Disambiguator) Scan(ctx context.Context, block *models.Block) error {
	entities, err := d.entities.ListEntities(ctx, models.EntityPerson, resolverWindow)
	if err != nil {
		return err
	}

	idx, err := buildSurfaceIndex(entities)
	if err != nil {
		return err
	}

	mentions := idx.find(block.Content)
	if len(mentions) == 0 {
		return nil
	}

	blockType := block.NodeType()

	about, err := d.links.LinksFrom(ctx, blockType, block.ID, models.LinkAbout)
	if err != nil {
		return err
	}

	linked := make(map[string]bool, len(about))
	for _, l := range about {
		linked[l.ToID] = true
	}

	for _, m := range mentions {
		var matched []models.Entity

		for _, i := range idx.owners[m.pattern] {
			if !linked[idx.entities[i].ID] {
				matched = append(matched, idx.entities[i])
			}
		}

		if err := d.handleMention(ctx, block, m.text, matched); err != nil {
			return err
		}
	}

	return nil
}

func (d *Disambiguator) handleMention(ctx context.Context, block *models.Block, text string, matched []models.Entity) error {
	blockType := block.NodeType()
	fields := logrus.Fields{"block_id": block.ID, "mention": text, "candidates": len(matched)}

	switch {
	case len(matched) == 0:
		return nil

	case len(matched) == 1 && matched[0].Verified:
		_, err := d.links.UpsertLink(ctx, entityLink(blockType, block.ID, matched[0].ID, models.LinkMentions, mentionConfidence))
		return err

	case len(matched) == 1:
		e := matched[0]
		if _, err := d.links.UpsertLink(ctx, entityLink(blockType, block.ID, e.ID, models.LinkCandidateMatch, candidateConfidence)); err != nil {
			return err
		}

		d.log.WithFields(fields).Debug("asking to confirm candidate person")

		_, _, err := d.clarifications.Enqueue(ctx, models.ClarificationItem{
			Question: fmt.Sprintf("Is %q (%s) a real person you know?", text, e.CanonicalName),
			Options: []models.ClarificationOption{
				{Label: "Confirm", Value: models.OptionConfirm},
				{Label: "Dismiss", Value: models.OptionDismiss},
			},
			Context: models.ContextEnvelope{Value: models.PersonNewConfirm{
				BlockType: blockType,
				BlockID:   block.ID,
				EntityID:  e.ID,
				Mention:   text,
			}},
			DedupeKey: fmt.Sprintf("%s:%s:%s:%s", models.ContextPersonNewConfirm, blockType, block.ID, e.ID),
		})

		return err
	}

	ids := make([]string, 0, len(matched))
	options := make([]models.ClarificationOption, 0, len(matched)+1)

	for _, e := range matched {
		if _, err := d.links.UpsertLink(ctx, entityLink(blockType, block.ID, e.ID, models.LinkCandidateMatch, candidateConfidence)); err != nil {
			return err
		}

		ids = append(ids, e.ID)
		options = append(options, models.ClarificationOption{Label: e.CanonicalName, Value: e.ID})
	}

	options = append(options, models.ClarificationOption{Label: newPersonOptionLabel, Value: models.OptionNewPerson})

	d.log.WithFields(fields).Debug("asking to disambiguate person")

	_, _, err := d.clarifications.Enqueue(ctx, models.ClarificationItem{
		Question: fmt.Sprintf("Which person does %q refer to?", text),
		Options:  options,
		Context: models.ContextEnvelope{Value: models.PersonDisambiguation{
			BlockType:    blockType,
			BlockID:      block.ID,
			Mention:      text,
			CandidateIDs: ids,
		}},
		DedupeKey: fmt.Sprintf("%s:%s:%s:%s", models.ContextPersonDisambiguation, blockType, block.ID, strings.ToLower(text)),
	})

	return err
}

func entityLink(fromType models.NodeType, fromID, entityID string, lt models.LinkType, confidence float64) models.Link {
	return models.Link{
		FromType:   fromType,
		FromID:     fromID,
		ToType:     models.NodeEntity,
		ToID:       entityID,
		LinkType:   lt,
		Confidence: confidence,
	}
}
