package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/muahq/mua/internal/llm"
	"github.com/muahq/mua/internal/metrics"
	"github.com/muahq/mua/internal/models"
)

const (
	enrichmentSource      = "enrichment"
	enrichmentCandidates  = 12
	maxDrafts             = 6
	maxRelated            = 10
	maxEntityNames        = 10
	enrichMentionConf     = 0.5
	referenceConfidence   = 0.6
	derivedConfidence     = 1.0
	aboutDraftConfidence  = 0.7
	relatedConfidence     = 0.6
	maxErrorRunes         = 500
	defaultBatchSize      = 25
	defaultMaxAttempts    = 8
	defaultStaleAfter     = 30 * time.Minute
	defaultProcessorVer   = "enrich-v1"
	defaultPromptBudget   = 6000
	enrichmentTracerScope = "github.com/muahq/mua/internal/service"
)

// Pipeline outcomes, used as metric labels.
const (
	outcomeProcessed = "processed"
	outcomeErrored   = "errored"
	outcomeSkipped   = "skipped"
)

// ProcessingStore is the processing-state access the pipeline needs.
type ProcessingStore interface {
	Now(ctx context.Context) (time.Time, error)
	ClaimNext(ctx context.Context, before time.Time, maxAttempts int, staleAfter time.Duration) (*models.ProcessingState, error)
	MarkProcessed(ctx context.Context, subjectType models.SubjectType, subjectID, token, hash, analysis string) error
	MarkError(ctx context.Context, subjectType models.SubjectType, subjectID, token, msg string) error
}

// SubjectBlockReader loads user blocks for enrichment.
type SubjectBlockReader interface {
	GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error)
}

// ArtifactLinker loads artifacts and records their analysis.
type ArtifactLinker interface {
	GetArtifact(ctx context.Context, id string) (*models.Artifact, error)
	MarkLinked(ctx context.Context, id, description string) error
}

// Retriever finds related blocks.
type Retriever interface {
	Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

// Completer returns a JSON document matching a schema.
type Completer interface {
	CompleteJSON(ctx context.Context, req llm.JSONRequest) (json.RawMessage, error)
}

// NameResolver maps a person name onto an entity.
type NameResolver interface {
	Resolve(ctx context.Context, name string, confidence float64) (*models.Entity, error)
}

// MuaBlockCreator persists derived blocks.
type MuaBlockCreator interface {
	CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error)
}

// LinkWriter upserts links.
type LinkWriter interface {
	UpsertLink(ctx context.Context, l models.Link) (bool, error)
}

// EnrichmentConfig tunes the pipeline. Zero values take defaults.
type EnrichmentConfig struct {
	MaxAttempts      int
	StaleAfter       time.Duration
	ProcessorVersion string
	TokenBudget      int
}

// BatchOptions controls one RunBatch call.
type BatchOptions struct {
	Size int
}

// EnrichmentDeps groups the collaborators of EnrichmentPipeline.
type EnrichmentDeps struct {
	Processing ProcessingStore
	Blocks     SubjectBlockReader
	Artifacts  ArtifactLinker
	Retriever  Retriever
	Completer  Completer
	Tokens     TokenCounter
	Resolver   NameResolver
	Creator    MuaBlockCreator
	Links      LinkWriter
}

// EnrichmentPipeline analyses queued subjects with a completion model and
// writes derived blocks and links.
type EnrichmentPipeline struct {
	deps   EnrichmentDeps
	cfg    EnrichmentConfig
	tracer trace.Tracer
	log    *logrus.Logger
}

// NewEnrichmentPipeline creates an EnrichmentPipeline.
func NewEnrichmentPipeline(deps EnrichmentDeps, cfg EnrichmentConfig, log *logrus.Logger) *EnrichmentPipeline {
	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	} else if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}

	if cfg.ProcessorVersion == "" {
		cfg.ProcessorVersion = defaultProcessorVer
	}

	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = defaultPromptBudget
	}

	return &EnrichmentPipeline{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer(enrichmentTracerScope),
		log:    log,
	}
}

// RunBatch claims and processes up to opts.Size subjects, one at a time.
// Only subjects last touched before the batch started are eligible, so a
// subject that fails is not retried within the same batch.
func (p *EnrichmentPipeline) RunBatch(ctx context.Context, opts BatchOptions) (models.BatchReport, error) {
	var report models.BatchReport

	size := opts.Size
	if size <= 0 {
		size = defaultBatchSize
	}

	batchStart, err := p.deps.Processing.Now(ctx)
	if err != nil {
		return report, fmt.Errorf("reading batch start: %w", err)
	}

	for range size {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		claim, err := p.deps.Processing.ClaimNext(ctx, batchStart, p.cfg.MaxAttempts, p.cfg.StaleAfter)
		if err != nil {
			return report, fmt.Errorf("claiming subject: %w", err)
		}

		if claim == nil {
			break
		}

		report.Scanned++

		switch p.processItem(ctx, claim) {
		case outcomeProcessed:
			report.Processed++
		case outcomeSkipped:
			report.Skipped++
		default:
			report.Errored++
		}
	}

	p.log.WithFields(logrus.Fields{
		"scanned":   report.Scanned,
		"processed": report.Processed,
		"errored":   report.Errored,
		"skipped":   report.Skipped,
	}).Info("enrichment batch finished")

	return report, nil
}

// subject is a loaded enrichment input.
type subject struct {
	Type models.SubjectType
	ID   string
	Key  string
	Text string
	Hash string
}

func (p *EnrichmentPipeline) processItem(ctx context.Context, claim *models.ProcessingState) string {
	ctx, span := p.tracer.Start(ctx, "enrichment.item", trace.WithAttributes(
		attribute.String("subject.type", string(claim.SubjectType)),
		attribute.String("subject.id", claim.SubjectID),
		attribute.Int("attempt", claim.Attempts),
	))
	defer span.End()

	log := p.log.WithFields(logrus.Fields{
		"subject_type": claim.SubjectType,
		"subject_id":   claim.SubjectID,
		"attempt":      claim.Attempts,
	})

	token := ""
	if claim.ClaimToken != nil {
		token = *claim.ClaimToken
	}

	outcome, err := p.enrich(ctx, claim, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		log.WithError(err).Warn("enrichment failed")

		if markErr := p.deps.Processing.MarkError(
			context.WithoutCancel(ctx), claim.SubjectType, claim.SubjectID, token, truncateRunes(err.Error(), maxErrorRunes),
		); markErr != nil {
			log.WithError(markErr).Warn("failed to record enrichment error")
		}

		outcome = outcomeErrored
	}

	span.SetAttributes(attribute.String("outcome", outcome))
	metrics.PipelineItems.WithLabelValues(outcome).Inc()

	return outcome
}

func (p *EnrichmentPipeline) enrich(ctx context.Context, claim *models.ProcessingState, token string) (string, error) {
	subj, err := p.loadSubject(ctx, claim)
	if errors.Is(err, models.ErrNotFound) {
		if err := p.deps.Processing.MarkProcessed(ctx, claim.SubjectType, claim.SubjectID, token, "", ""); err != nil {
			return "", fmt.Errorf("marking vanished subject: %w", err)
		}

		return outcomeSkipped, nil
	}

	if err != nil {
		return "", err
	}

	results, err := p.deps.Retriever.Search(ctx, models.SearchRequest{
		Query:       truncateRunes(subj.Text, queryRunes),
		Scope:       models.ScopeAll,
		Limit:       enrichmentCandidates,
		ExcludeKeys: []string{subj.Key},
	})
	if err != nil {
		return "", fmt.Errorf("retrieving candidates: %w", err)
	}

	candidates := make([]promptCandidate, 0, len(results))
	for _, r := range results {
		candidates = append(candidates, promptCandidate{Key: r.Key, Kind: string(r.Block.Kind), Content: r.Block.Content})
	}

	prompt, kept := buildEnrichmentPrompt(p.deps.Tokens, p.cfg.TokenBudget, subj.Type, subj.Text, candidates)

	raw, err := p.deps.Completer.CompleteJSON(ctx, llm.JSONRequest{
		System:     enrichmentSystemPrompt,
		User:       prompt,
		SchemaName: enrichmentSchemaName,
		Schema:     enrichmentSchema,
	})
	if err != nil {
		return "", err
	}

	var result enrichmentResult
	if err := llm.Decode(raw, &result, enrichmentRequired...); err != nil {
		return "", err
	}

	allowed := make(map[string]bool, len(kept))
	for _, c := range kept {
		allowed[c.Key] = true
	}

	result = sanitizeResult(result, allowed)

	if err := p.apply(ctx, subj, result); err != nil {
		return "", err
	}

	analysis := strings.TrimSpace(result.Summary)

	if err := p.deps.Processing.MarkProcessed(ctx, subj.Type, subj.ID, token, subj.Hash, analysis); err != nil {
		return "", fmt.Errorf("marking processed: %w", err)
	}

	if subj.Type == models.SubjectArtifact {
		if err := p.deps.Artifacts.MarkLinked(ctx, subj.ID, analysis); err != nil {
			return "", fmt.Errorf("marking artifact linked: %w", err)
		}
	}

	return outcomeProcessed, nil
}

func (p *EnrichmentPipeline) loadSubject(ctx context.Context, claim *models.ProcessingState) (*subject, error) {
	switch claim.SubjectType {
	case models.SubjectUserBlock:
		b, err := p.deps.Blocks.GetBlock(ctx, models.AuthorUser, claim.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("loading block: %w", err)
		}

		return &subject{Type: claim.SubjectType, ID: b.ID, Key: b.Key(), Text: b.Content, Hash: b.ContentHash}, nil
	case models.SubjectArtifact:
		a, err := p.deps.Artifacts.GetArtifact(ctx, claim.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("loading artifact: %w", err)
		}

		return &subject{
			Type: claim.SubjectType,
			ID:   a.ID,
			Key:  string(models.NodeArtifact) + ":" + a.ID,
			Text: a.EnrichmentText(),
			Hash: a.Checksum,
		}, nil
	default:
		return nil, fmt.Errorf("unknown subject type %q", claim.SubjectType)
	}
}

// sanitizeResult applies the output limits and drops ids that were not
// offered as candidates.
func sanitizeResult(r enrichmentResult, allowed map[string]bool) enrichmentResult {
	r.Entities = cleanNames(r.Entities, maxEntityNames)
	r.Related = allowedKeys(r.Related, allowed, maxRelated)

	if len(r.Drafts) > maxDrafts {
		r.Drafts = r.Drafts[:maxDrafts]
	}

	drafts := r.Drafts[:0]

	for _, d := range r.Drafts {
		d.Content = strings.TrimSpace(d.Content)
		if d.Content == "" {
			continue
		}

		if !models.BlockKind(d.Kind).Valid() {
			d.Kind = string(models.KindNote)
		}

		d.Confidence = clamp01(d.Confidence)
		d.Entities = cleanNames(d.Entities, maxEntityNames)
		d.Related = allowedKeys(d.Related, allowed, maxRelated)

		drafts = append(drafts, d)
	}

	r.Drafts = drafts

	return r
}

func cleanNames(names []string, limit int) []string {
	out := make([]string, 0, min(len(names), limit))
	seen := make(map[string]bool, len(names))

	for _, n := range names {
		n = strings.TrimSpace(n)
		norm := NormalizeName(n)

		if norm == "" || seen[norm] {
			continue
		}

		seen[norm] = true
		out = append(out, n)

		if len(out) == limit {
			break
		}
	}

	return out
}

func allowedKeys(keys []string, allowed map[string]bool, limit int) []string {
	out := make([]string, 0, min(len(keys), limit))

	for _, k := range keys {
		k = strings.TrimSpace(k)
		if !allowed[k] || slices.Contains(out, k) {
			continue
		}

		out = append(out, k)

		if len(out) == limit {
			break
		}
	}

	return out
}

func (p *EnrichmentPipeline) apply(ctx context.Context, subj *subject, r enrichmentResult) error {
	from := subj.Type.NodeType()

	resolved := make(map[string]*models.Entity, len(r.Entities))
	order := make([]*models.Entity, 0, len(r.Entities))

	for _, name := range r.Entities {
		e, err := p.deps.Resolver.Resolve(ctx, name, enrichMentionConf)
		if err != nil {
			return fmt.Errorf("resolving %q: %w", name, err)
		}

		resolved[NormalizeName(name)] = e
		if !containsEntity(order, e.ID) {
			order = append(order, e)
		}

		if err := p.link(ctx, entityLink(from, subj.ID, e.ID, models.LinkMentions, enrichMentionConf)); err != nil {
			return err
		}
	}

	for _, key := range r.Related {
		toType, toID, ok := parseBlockKey(key)
		if !ok {
			continue
		}

		if err := p.link(ctx, models.Link{
			FromType: from, FromID: subj.ID, ToType: toType, ToID: toID,
			LinkType: models.LinkReferences, Confidence: referenceConfidence,
		}); err != nil {
			return err
		}
	}

	for _, d := range r.Drafts {
		if err := p.applyDraft(ctx, subj, d, resolved, order); err != nil {
			return err
		}
	}

	return nil
}

func (p *EnrichmentPipeline) applyDraft(
	ctx context.Context,
	subj *subject,
	d draft,
	resolved map[string]*models.Entity,
	order []*models.Entity,
) error {
	kind := models.BlockKind(d.Kind)

	b, _, err := p.deps.Creator.CreateMuaBlock(ctx, models.CreateMuaBlockRequest{
		Content:    d.Content,
		Source:     enrichmentSource,
		SourceRef:  &models.SourceRef{V: 1, Type: string(subj.Type), ID: subj.ID},
		Metadata:   map[string]any{"processor_version": p.cfg.ProcessorVersion},
		Kind:       kind,
		Confidence: d.Confidence,
		DedupeKey:  DraftDedupeKey(subj.Type, subj.ID, p.cfg.ProcessorVersion, kind, d.Content),
	})
	if err != nil {
		return fmt.Errorf("creating draft block: %w", err)
	}

	from := b.NodeType()

	if err := p.link(ctx, models.Link{
		FromType: from, FromID: b.ID, ToType: subj.Type.NodeType(), ToID: subj.ID,
		LinkType: models.LinkDerivedFrom, Confidence: derivedConfidence,
	}); err != nil {
		return err
	}

	about := make([]*models.Entity, 0, len(d.Entities))

	if len(order) == 1 {
		about = append(about, order[0])
	} else {
		for _, name := range d.Entities {
			if e, ok := resolved[NormalizeName(name)]; ok && !containsEntity(about, e.ID) {
				about = append(about, e)
			}
		}
	}

	for _, e := range about {
		if err := p.link(ctx, entityLink(from, b.ID, e.ID, models.LinkAbout, aboutDraftConfidence)); err != nil {
			return err
		}
	}

	for _, key := range d.Related {
		toType, toID, ok := parseBlockKey(key)
		if !ok {
			continue
		}

		if err := p.link(ctx, models.Link{
			FromType: from, FromID: b.ID, ToType: toType, ToID: toID,
			LinkType: models.LinkRelated, Confidence: relatedConfidence,
		}); err != nil {
			return err
		}
	}

	return nil
}

func (p *EnrichmentPipeline) link(ctx context.Context, l models.Link) error {
	if _, err := p.deps.Links.UpsertLink(ctx, l); err != nil {
		return fmt.Errorf("linking %s %s -> %s %s: %w", l.FromType, l.FromID, l.ToType, l.ToID, err)
	}

	return nil
}

func containsEntity(list []*models.Entity, id string) bool {
	return slices.ContainsFunc(list, func(e *models.Entity) bool { return e.ID == id })
}

// parseBlockKey splits "user:<id>" or "mua:<id>" into a node reference.
func parseBlockKey(key string) (models.NodeType, string, bool) {
	author, id, ok := strings.Cut(key, ":")
	if !ok || id == "" {
		return "", "", false
	}

	switch models.AuthorType(author) {
	case models.AuthorUser:
		return models.NodeUserBlock, id, true
	case models.AuthorMua:
		return models.NodeMuaBlock, id, true
	}

	return "", "", false
}

// DraftDedupeKey derives the stable dedupe key of a derived block, so
// reprocessing identical input never duplicates drafts.
func DraftDedupeKey(subjectType models.SubjectType, subjectID, processorVersion string, kind models.BlockKind, content string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(subjectType), subjectID, processorVersion, string(kind), content,
	}, ":")))

	return hex.EncodeToString(sum[:])
}
