package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/muahq/mua/internal/models"
)

// recordingCreator stores mua blocks by dedupe key.
type recordingCreator struct {
	mu    sync.Mutex
	reqs  []models.CreateMuaBlockRequest
	byKey map[string]*models.Block
}

func (c *recordingCreator) CreateMuaBlock(_ context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.byKey == nil {
		c.byKey = map[string]*models.Block{}
	}

	if b, ok := c.byKey[req.DedupeKey]; ok {
		return b, false, nil
	}

	c.reqs = append(c.reqs, req)
	b := &models.Block{ID: "m-" + req.DedupeKey[:8], AuthorType: models.AuthorMua, Content: req.Content, Kind: req.Kind}
	c.byKey[req.DedupeKey] = b

	return b, true, nil
}

// wordCounter counts whitespace-separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

func (wordCounter) Truncate(text string, n int) string {
	words := strings.Fields(text)
	if len(words) <= n {
		return text
	}

	return strings.Join(words[:n], " ")
}

type enrichmentFixture struct {
	pipeline   *EnrichmentPipeline
	processing *mockProcessing
	blocks     *mockBlockStore
	artifacts  *mockArtifacts
	retriever  *mockRetriever
	completer  *mockCompleter
	entities   *memEntities
	links      *memLinks
	creator    *recordingCreator
}

func newEnrichmentFixture() *enrichmentFixture {
	f := &enrichmentFixture{
		processing: &mockProcessing{},
		blocks: &mockBlockStore{getBlock: func(_ context.Context, _ models.AuthorType, id string) (*models.Block, error) {
			return userBlock(id, "Met Jane Doe about the budget review. Need to send numbers.", 2, nil), nil
		}},
		artifacts: newMockArtifacts(),
		retriever: &mockRetriever{results: []models.SearchResult{
			{Key: "user:u2", Block: models.Block{ID: "u2", AuthorType: models.AuthorUser, Content: "budget draft v1"}},
			{Key: "mua:m9", Block: models.Block{ID: "m9", AuthorType: models.AuthorMua, Content: "Jane owns the budget", Kind: models.KindNote}},
		}},
		completer: &mockCompleter{},
		entities:  &memEntities{},
		links:     &memLinks{},
		creator:   &recordingCreator{},
	}

	f.pipeline = NewEnrichmentPipeline(EnrichmentDeps{
		Processing: f.processing,
		Blocks:     f.blocks,
		Artifacts:  f.artifacts,
		Retriever:  f.retriever,
		Completer:  f.completer,
		Tokens:     wordCounter{},
		Resolver:   NewEntityResolver(f.entities, testLogger()),
		Creator:    f.creator,
		Links:      f.links,
	}, EnrichmentConfig{}, testLogger())

	return f
}

func claim(st models.SubjectType, id string) *models.ProcessingState {
	token := "tok-" + id

	return &models.ProcessingState{SubjectType: st, SubjectID: id, State: models.StateProcessing, Attempts: 1, ClaimToken: &token}
}

const enrichmentResponse = `{
  "summary": "Budget review with Jane.",
  "entities": ["jane doe", "  "],
  "related": ["user:u2", "user:not-offered"],
  "drafts": [
    {"kind": "action_open", "content": "Send Jane the budget numbers", "confidence": 1.4, "entities": ["Jane Doe"], "related": ["mua:m9", "mua:zzz"]},
    {"kind": "reminder", "content": "Budget review happened", "confidence": -1, "entities": [], "related": []},
    {"kind": "note", "content": "   ", "confidence": 0.5, "entities": [], "related": []}
  ]
}`

func TestEnrichmentPipeline_ProcessesUserBlock(t *testing.T) {
	f := newEnrichmentFixture()
	f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1")}
	f.completer.response = enrichmentResponse

	var gotHash, gotAnalysis, gotToken string
	f.processing.markProcessed = func(_ models.SubjectType, _, token, hash, analysis string) error {
		gotToken, gotHash, gotAnalysis = token, hash, analysis
		return nil
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report != (models.BatchReport{Scanned: 1, Processed: 1}) {
		t.Fatalf("report = %+v", report)
	}

	if gotToken != "tok-b1" || gotAnalysis != "Budget review with Jane." {
		t.Errorf("mark processed token=%q analysis=%q", gotToken, gotAnalysis)
	}

	if gotHash != models.ContentHash("Met Jane Doe about the budget review. Need to send numbers.") {
		t.Errorf("processed hash = %q", gotHash)
	}

	if f.retriever.last.Limit != enrichmentCandidates || len(f.retriever.last.ExcludeKeys) != 1 || f.retriever.last.ExcludeKeys[0] != "user:b1" {
		t.Errorf("search request = %+v", f.retriever.last)
	}

	if f.entities.len() != 1 {
		t.Fatalf("entities = %d, want 1", f.entities.len())
	}

	jane := f.entities.entities[0]

	if m := f.links.ofType(models.LinkMentions); len(m) != 1 || m[0].FromID != "b1" || m[0].ToID != jane.ID {
		t.Errorf("mentions = %+v", m)
	}

	if r := f.links.ofType(models.LinkReferences); len(r) != 1 || r[0].ToID != "u2" || r[0].ToType != models.NodeUserBlock {
		t.Errorf("references = %+v", r)
	}

	if len(f.creator.reqs) != 2 {
		t.Fatalf("drafts created = %d, want 2", len(f.creator.reqs))
	}

	first, second := f.creator.reqs[0], f.creator.reqs[1]

	if first.Kind != models.KindActionOpen || first.Confidence != 1 || first.Source != enrichmentSource {
		t.Errorf("first draft = %+v", first)
	}

	if second.Kind != models.KindNote || second.Confidence != 0 {
		t.Errorf("second draft = %+v", second)
	}

	if first.SourceRef == nil || first.SourceRef.ID != "b1" || first.SourceRef.Type != string(models.SubjectUserBlock) {
		t.Errorf("source ref = %+v", first.SourceRef)
	}

	wantKey := DraftDedupeKey(models.SubjectUserBlock, "b1", defaultProcessorVer, models.KindActionOpen, "Send Jane the budget numbers")
	if first.DedupeKey != wantKey {
		t.Errorf("dedupe key = %q, want %q", first.DedupeKey, wantKey)
	}

	if d := f.links.ofType(models.LinkDerivedFrom); len(d) != 2 || d[0].ToID != "b1" {
		t.Errorf("derived_from = %+v", d)
	}

	// One resolved person: every draft is about them.
	if a := f.links.ofType(models.LinkAbout); len(a) != 2 {
		t.Errorf("about = %+v", a)
	}

	if r := f.links.ofType(models.LinkRelated); len(r) != 1 || r[0].ToID != "m9" || r[0].ToType != models.NodeMuaBlock {
		t.Errorf("related = %+v", r)
	}
}

func TestEnrichmentPipeline_ReprocessingDoesNotDuplicate(t *testing.T) {
	f := newEnrichmentFixture()
	f.completer.response = enrichmentResponse

	for range 2 {
		f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1")}
		if _, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1}); err != nil {
			t.Fatal(err)
		}
	}

	if len(f.creator.byKey) != 2 {
		t.Errorf("distinct drafts = %d, want 2", len(f.creator.byKey))
	}

	if n := len(f.links.ofType(models.LinkDerivedFrom)); n != 2 {
		t.Errorf("derived_from links = %d, want 2", n)
	}
}

func TestEnrichmentPipeline_CompletionFailureMarksError(t *testing.T) {
	f := newEnrichmentFixture()
	f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1"), claim(models.SubjectUserBlock, "b2")}
	f.completer.err = &models.ExternalServiceError{Service: "completion", Op: "chat", Err: errors.New(strings.Repeat("x", 900))}

	var messages []string
	f.processing.markError = func(_ models.SubjectType, _, _, msg string) error {
		messages = append(messages, msg)
		return nil
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 5})
	if err != nil {
		t.Fatal(err)
	}

	if report != (models.BatchReport{Scanned: 2, Errored: 2}) {
		t.Fatalf("report = %+v", report)
	}

	if len(messages) != 2 {
		t.Fatalf("error messages = %d, want 2", len(messages))
	}

	if n := len([]rune(messages[0])); n != maxErrorRunes {
		t.Errorf("error message length = %d, want %d", n, maxErrorRunes)
	}
}

func TestEnrichmentPipeline_UnparseableOutputMarksError(t *testing.T) {
	f := newEnrichmentFixture()
	f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1")}
	f.completer.response = `"just a string"`

	var msg string
	f.processing.markError = func(_ models.SubjectType, _, _, m string) error {
		msg = m
		return nil
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1})
	if err != nil {
		t.Fatal(err)
	}

	if report.Errored != 1 || !strings.Contains(msg, "parsing structured output") {
		t.Errorf("report=%+v msg=%q", report, msg)
	}
}

func TestEnrichmentPipeline_SchemaMismatchMarksError(t *testing.T) {
	for _, response := range []string{`{}`, `{"foo":1}`, `{"summary":"s","entities":[],"related":[]}`} {
		t.Run(response, func(t *testing.T) {
			f := newEnrichmentFixture()
			f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1")}
			f.completer.response = response

			processed := false
			f.processing.markProcessed = func(models.SubjectType, string, string, string, string) error {
				processed = true
				return nil
			}

			var msg string
			f.processing.markError = func(_ models.SubjectType, _, _, m string) error {
				msg = m
				return nil
			}

			report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1})
			if err != nil {
				t.Fatal(err)
			}

			if processed || report.Errored != 1 || !strings.Contains(msg, "parsing structured output") {
				t.Errorf("processed=%v report=%+v msg=%q", processed, report, msg)
			}

			if len(f.creator.reqs) != 0 || len(f.links.links) != 0 {
				t.Error("rejected output must not write blocks or links")
			}
		})
	}
}

func TestEnrichmentPipeline_VanishedSubjectIsSkipped(t *testing.T) {
	f := newEnrichmentFixture()
	f.processing.claims = []*models.ProcessingState{claim(models.SubjectArtifact, "gone")}

	hash := "unset"
	f.processing.markProcessed = func(_ models.SubjectType, _, _, h, _ string) error {
		hash = h
		return nil
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1})
	if err != nil {
		t.Fatal(err)
	}

	if report != (models.BatchReport{Scanned: 1, Skipped: 1}) || hash != "" {
		t.Errorf("report=%+v hash=%q", report, hash)
	}

	if len(f.completer.requests) != 0 {
		t.Error("completion should not run for a vanished subject")
	}
}

func TestEnrichmentPipeline_ArtifactIsLinked(t *testing.T) {
	f := newEnrichmentFixture()
	text := "Invoice from Acme"
	a, _, _ := f.artifacts.CreateArtifact(context.Background(), &models.Artifact{
		SourceType: "drive", Title: "invoice.pdf", TextContent: &text, Checksum: "abc123", IngestStatus: models.IngestParsed,
	})

	f.processing.claims = []*models.ProcessingState{claim(models.SubjectArtifact, a.ID)}
	f.completer.response = `{"summary":"An Acme invoice.","entities":[],"related":[],"drafts":[]}`

	var hash string
	f.processing.markProcessed = func(_ models.SubjectType, _, _, h, _ string) error {
		hash = h
		return nil
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1})
	if err != nil {
		t.Fatal(err)
	}

	if report.Processed != 1 || hash != "abc123" {
		t.Errorf("report=%+v hash=%q", report, hash)
	}

	if f.artifacts.linked[a.ID] != "An Acme invoice." {
		t.Errorf("artifact description = %q", f.artifacts.linked[a.ID])
	}

	if !strings.Contains(f.completer.requests[0].User, "invoice.pdf") {
		t.Error("artifact title missing from prompt")
	}
}

func TestEnrichmentPipeline_LostClaimCountsAsError(t *testing.T) {
	f := newEnrichmentFixture()
	f.processing.claims = []*models.ProcessingState{claim(models.SubjectUserBlock, "b1")}
	f.completer.response = `{"summary":"s","entities":[],"related":[],"drafts":[]}`
	f.processing.markProcessed = func(models.SubjectType, string, string, string, string) error {
		return models.ErrNotClaimed
	}

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 1})
	if err != nil {
		t.Fatal(err)
	}

	if report.Errored != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestEnrichmentPipeline_StopsWhenQueueEmpty(t *testing.T) {
	f := newEnrichmentFixture()

	report, err := f.pipeline.RunBatch(context.Background(), BatchOptions{Size: 10})
	if err != nil {
		t.Fatal(err)
	}

	if report != (models.BatchReport{}) {
		t.Errorf("report = %+v", report)
	}
}

func TestBuildEnrichmentPrompt_TrimsToBudget(t *testing.T) {
	candidates := []promptCandidate{
		{Key: "user:1", Content: strings.Repeat("alpha ", 20)},
		{Key: "user:2", Content: strings.Repeat("beta ", 20)},
		{Key: "user:3", Content: strings.Repeat("gamma ", 20)},
	}

	system := (wordCounter{}).Count(enrichmentSystemPrompt)

	prompt, kept := buildEnrichmentPrompt(wordCounter{}, system+40, models.SubjectUserBlock, "short subject text", candidates)

	if len(kept) != 1 || kept[0].Key != "user:1" {
		t.Fatalf("kept = %+v", kept)
	}

	if n := (wordCounter{}).Count(prompt); n > 40 {
		t.Errorf("prompt has %d tokens, budget 40", n)
	}

	prompt, kept = buildEnrichmentPrompt(wordCounter{}, system+5, models.SubjectUserBlock, strings.Repeat("word ", 100), nil)
	if n := (wordCounter{}).Count(prompt); len(kept) != 0 || n > 5 {
		t.Errorf("subject not truncated: %d tokens", n)
	}
}

func TestBuildEnrichmentPrompt_CapsPreviews(t *testing.T) {
	long := strings.Repeat("é", 2000)

	prompt, kept := buildEnrichmentPrompt(nil, 0, models.SubjectArtifact, long, []promptCandidate{{Key: "mua:1", Content: long}})

	if n := len([]rune(kept[0].Content)); n != candidatePreviewRunes {
		t.Errorf("candidate preview = %d runes", n)
	}

	if strings.Count(prompt, "é") != subjectPreviewRunes+candidatePreviewRunes {
		t.Errorf("prompt carries %d subject+candidate runes", strings.Count(prompt, "é"))
	}
}

func TestDraftDedupeKey(t *testing.T) {
	a := DraftDedupeKey(models.SubjectUserBlock, "b1", "v1", models.KindNote, "x")
	b := DraftDedupeKey(models.SubjectUserBlock, "b1", "v1", models.KindActionOpen, "x")
	c := DraftDedupeKey(models.SubjectUserBlock, "b1", "v2", models.KindNote, "x")

	if a == b || a == c || len(a) != 64 {
		t.Errorf("keys not distinct: %s %s %s", a, b, c)
	}

	if a != DraftDedupeKey(models.SubjectUserBlock, "b1", "v1", models.KindNote, "x") {
		t.Error("key not stable")
	}
}
