package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/muahq/mua/internal/extract"
	"github.com/muahq/mua/internal/llm"
	"github.com/muahq/mua/internal/models"
)

// mockBlockStore records calls and returns configured responses.
type mockBlockStore struct {
	mu    sync.Mutex
	calls []string

	createUserBlock func(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error)
	getBlock        func(ctx context.Context, author models.AuthorType, id string) (*models.Block, error)
	listUserBlocks  func(ctx context.Context, limit, offset int) ([]models.Block, error)
	updateUserBlock func(ctx context.Context, id string, upd models.BlockUpdate, cp models.CheckpointFunc) (*models.Block, bool, error)
	listVersions    func(ctx context.Context, blockID string) ([]models.UserBlockVersion, error)
	checkpoint      func(ctx context.Context, id string, reason models.CaptureReason) (bool, error)
	createMuaBlock  func(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error)
}

func (m *mockBlockStore) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockBlockStore) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}

	return n
}

func (m *mockBlockStore) CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error) {
	m.record("CreateUserBlock")
	return m.createUserBlock(ctx, req)
}

func (m *mockBlockStore) GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error) {
	m.record("GetBlock")
	return m.getBlock(ctx, author, id)
}

func (m *mockBlockStore) ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error) {
	m.record("ListUserBlocks")
	return m.listUserBlocks(ctx, limit, offset)
}

func (m *mockBlockStore) UpdateUserBlock(
	ctx context.Context,
	id string,
	upd models.BlockUpdate,
	cp models.CheckpointFunc,
) (*models.Block, bool, error) {
	m.record("UpdateUserBlock")
	return m.updateUserBlock(ctx, id, upd, cp)
}

func (m *mockBlockStore) ListVersions(ctx context.Context, blockID string) ([]models.UserBlockVersion, error) {
	m.record("ListVersions")
	return m.listVersions(ctx, blockID)
}

func (m *mockBlockStore) CheckpointUserBlock(ctx context.Context, id string, reason models.CaptureReason) (bool, error) {
	m.record("CheckpointUserBlock")
	return m.checkpoint(ctx, id, reason)
}

func (m *mockBlockStore) CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
	m.record("CreateMuaBlock")
	return m.createMuaBlock(ctx, req)
}

// queuedSubject is one QueueProcessing call.
type queuedSubject struct {
	Type models.SubjectType
	ID   string
	Hash string
}

// mockProcessing records queue calls and delegates claim handling to funcs.
type mockProcessing struct {
	mu     sync.Mutex
	queued []queuedSubject
	marked []string

	queueResult   bool
	queueErr      error
	now           time.Time
	claims        []*models.ProcessingState
	markProcessed func(st models.SubjectType, id, token, hash, analysis string) error
	markError     func(st models.SubjectType, id, token, msg string) error
}

func (m *mockProcessing) QueueProcessing(_ context.Context, st models.SubjectType, id, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, queuedSubject{Type: st, ID: id, Hash: hash})

	return m.queueResult, m.queueErr
}

func (m *mockProcessing) Now(context.Context) (time.Time, error) {
	return m.now, nil
}

func (m *mockProcessing) ClaimNext(context.Context, time.Time, int, time.Duration) (*models.ProcessingState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.claims) == 0 {
		return nil, nil
	}

	c := m.claims[0]
	m.claims = m.claims[1:]

	return c, nil
}

func (m *mockProcessing) MarkProcessed(_ context.Context, st models.SubjectType, id, token, hash, analysis string) error {
	m.mu.Lock()
	m.marked = append(m.marked, "processed:"+id)
	m.mu.Unlock()

	if m.markProcessed != nil {
		return m.markProcessed(st, id, token, hash, analysis)
	}

	return nil
}

func (m *mockProcessing) MarkError(_ context.Context, st models.SubjectType, id, token, msg string) error {
	m.mu.Lock()
	m.marked = append(m.marked, "error:"+id)
	m.mu.Unlock()

	if m.markError != nil {
		return m.markError(st, id, token, msg)
	}

	return nil
}

// memEntities is an in-memory person store.
type memEntities struct {
	mu       sync.Mutex
	entities []*models.Entity
	byOrigin map[string]string
	nextID   int
	created  int
}

func (m *memEntities) add(name string, verified bool, confidence float64, aliases ...string) *models.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	e := &models.Entity{
		ID:            fmt.Sprintf("00000000-0000-0000-0000-%012d", m.nextID),
		EntityType:    models.EntityPerson,
		CanonicalName: name,
		Aliases:       append([]string{}, aliases...),
		Verified:      verified,
		Confidence:    confidence,
		UpdatedAt:     time.Now(),
	}
	m.entities = append(m.entities, e)

	return e
}

func (m *memEntities) get(id string) *models.Entity {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range m.entities {
		if e.ID == id {
			return e
		}
	}

	return nil
}

func (m *memEntities) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.entities)
}

func (m *memEntities) ListEntities(_ context.Context, _ string, limit int) ([]models.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, *e)
	}

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *memEntities) SearchEntities(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error) {
	all, err := m.ListEntities(ctx, entityType, len(m.entities)+1)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(name)
	out := make([]models.Entity, 0, len(all))

	for _, e := range all {
		for _, s := range e.Surfaces() {
			if strings.Contains(strings.ToLower(s), needle) {
				out = append(out, e)
				break
			}
		}
	}

	if len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (m *memEntities) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	if e := m.get(id); e != nil {
		cp := *e
		return &cp, nil
	}

	return nil, models.ErrNotFound
}

func (m *memEntities) CreateEntity(_ context.Context, _ string, name string, verified bool, confidence float64) (*models.Entity, error) {
	e := m.add(name, verified, confidence)

	m.mu.Lock()
	m.created++
	m.mu.Unlock()

	cp := *e

	return &cp, nil
}

func (m *memEntities) CreateEntityOnce(
	ctx context.Context,
	originKey, entityType, name string,
	verified bool,
	confidence float64,
) (*models.Entity, bool, error) {
	m.mu.Lock()
	id, ok := m.byOrigin[originKey]
	m.mu.Unlock()

	if ok {
		cp := *m.get(id)
		return &cp, false, nil
	}

	e, err := m.CreateEntity(ctx, entityType, name, verified, confidence)
	if err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	if m.byOrigin == nil {
		m.byOrigin = map[string]string{}
	}
	m.byOrigin[originKey] = e.ID
	m.mu.Unlock()

	return e, true, nil
}

func (m *memEntities) AddAlias(_ context.Context, id, alias string) (bool, error) {
	e := m.get(id)
	if e == nil {
		return false, models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.EqualFold(e.CanonicalName, alias) || len(e.Aliases) >= models.MaxAliases {
		return false, nil
	}

	for _, a := range e.Aliases {
		if strings.EqualFold(a, alias) {
			return false, nil
		}
	}

	e.Aliases = append(e.Aliases, alias)

	return true, nil
}

func (m *memEntities) Confirm(_ context.Context, id string, confidence float64) error {
	e := m.get(id)
	if e == nil {
		return models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e.Verified = true
	e.Confidence = max(e.Confidence, confidence)

	return nil
}

func (m *memEntities) Decay(_ context.Context, id string, confidence float64) error {
	e := m.get(id)
	if e == nil {
		return models.ErrNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	e.Confidence = min(e.Confidence, confidence)

	return nil
}

// memLinks is an in-memory link table keyed like the real primary key.
type memLinks struct {
	mu    sync.Mutex
	links []models.Link
	err   error
}

func sameLink(a, b models.Link) bool {
	return a.FromType == b.FromType && a.FromID == b.FromID &&
		a.ToType == b.ToType && a.ToID == b.ToID && a.LinkType == b.LinkType
}

func (m *memLinks) UpsertLink(_ context.Context, l models.Link) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return false, m.err
	}

	for _, existing := range m.links {
		if sameLink(existing, l) {
			return false, nil
		}
	}

	m.links = append(m.links, l)

	return true, nil
}

func (m *memLinks) DeleteLink(
	_ context.Context,
	fromType models.NodeType, fromID string,
	toType models.NodeType, toID string,
	linkType models.LinkType,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := models.Link{FromType: fromType, FromID: fromID, ToType: toType, ToID: toID, LinkType: linkType}
	m.links = slices.DeleteFunc(m.links, func(l models.Link) bool { return sameLink(l, key) })

	return nil
}

func (m *memLinks) LinksFrom(_ context.Context, fromType models.NodeType, fromID string, linkTypes ...models.LinkType) ([]models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Link

	for _, l := range m.links {
		if l.FromType == fromType && l.FromID == fromID && (len(linkTypes) == 0 || slices.Contains(linkTypes, l.LinkType)) {
			out = append(out, l)
		}
	}

	return out, nil
}

func (m *memLinks) ofType(lt models.LinkType) []models.Link {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Link

	for _, l := range m.links {
		if l.LinkType == lt {
			out = append(out, l)
		}
	}

	return out
}

// memClarifications is an in-memory clarification queue.
type memClarifications struct {
	mu       sync.Mutex
	items    []*models.ClarificationItem
	notified []string
	nextID   int
}

func (m *memClarifications) find(id string) *models.ClarificationItem {
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}

	return nil
}

func (m *memClarifications) Enqueue(_ context.Context, item models.ClarificationItem) (*models.ClarificationItem, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, it := range m.items {
		if it.DedupeKey == item.DedupeKey {
			cp := *it
			return &cp, false, nil
		}
	}

	m.nextID++
	item.ID = fmt.Sprintf("c-%d", m.nextID)
	item.Status = models.ClarificationPending
	item.CreatedAt = time.Now()
	m.items = append(m.items, &item)

	cp := item

	return &cp, true, nil
}

func (m *memClarifications) GetClarification(_ context.Context, id string) (*models.ClarificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if it := m.find(id); it != nil {
		cp := *it
		return &cp, nil
	}

	return nil, models.ErrNotFound
}

func (m *memClarifications) ListOpen(_ context.Context, limit int) ([]models.ClarificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ClarificationItem

	for _, it := range m.items {
		if it.Status.Open() && len(out) < limit {
			out = append(out, *it)
		}
	}

	return out, nil
}

func (m *memClarifications) MarkAsked(_ context.Context, limit int) ([]models.ClarificationItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ClarificationItem

	for _, it := range m.items {
		if it.Status == models.ClarificationPending && len(out) < limit {
			it.Status = models.ClarificationAsked
			out = append(out, *it)
		}
	}

	return out, nil
}

func (m *memClarifications) ClaimAnswer(_ context.Context, id string, index int, value string) (models.ClarificationStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	it := m.find(id)
	if it == nil {
		return "", models.ErrNotFound
	}

	switch it.Status {
	case models.ClarificationAnswered:
		return "", models.ErrAlreadyAnswered
	case models.ClarificationExpired:
		return "", models.ErrClarificationExpired
	}

	prev := it.Status
	it.Status = models.ClarificationAnswered
	it.AnswerIndex = &index
	it.AnswerValue = &value

	return prev, nil
}

func (m *memClarifications) Reopen(_ context.Context, id string, status models.ClarificationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if it := m.find(id); it != nil {
		it.Status = status
		it.AnswerIndex = nil
		it.AnswerValue = nil
	}

	return nil
}

func (m *memClarifications) NotifyAnswered(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified = append(m.notified, id)
}

func (m *memClarifications) status(id string) models.ClarificationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.find(id).Status
}

// mockSearchStore returns configured candidates.
type mockSearchStore struct {
	lexical     []models.Block
	lexicalErr  error
	vector      []models.ScoredBlock
	vectorErr   error
	lexicalArgs []string

	mu           sync.Mutex
	lexicalLimit int
	vectorLimit  int
}

func (m *mockSearchStore) LexicalCandidates(_ context.Context, tokens []string, _ bool, limit int) ([]models.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lexicalArgs = tokens
	m.lexicalLimit = limit

	return m.lexical, m.lexicalErr
}

func (m *mockSearchStore) MatchBlocks(_ context.Context, _ []float32, _ string, _ bool, _ float64, limit int) ([]models.ScoredBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectorLimit = limit

	return m.vector, m.vectorErr
}

// mockEmbedder returns a fixed vector or error.
type mockEmbedder struct {
	mu    sync.Mutex
	calls int
	vec   []float32
	err   error
	errN  int
}

func (m *mockEmbedder) Generate(context.Context, string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	if m.err != nil && (m.errN == 0 || m.calls <= m.errN) {
		return nil, m.err
	}

	return m.vec, nil
}

// mockEmbedQueue records enqueued jobs.
type mockEmbedQueue struct {
	mu   sync.Mutex
	jobs []EmbedJob
}

func (m *mockEmbedQueue) Enqueue(job EmbedJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// mockTasks records submitted tasks without running them.
type mockTasks struct {
	mu    sync.Mutex
	tasks []Task
}

func (m *mockTasks) Submit(task Task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, task)

	return true
}

func (m *mockTasks) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.tasks))
	for i, t := range m.tasks {
		out[i] = t.Name
	}

	return out
}

// mockCompleter returns a canned completion and captures the request.
type mockCompleter struct {
	mu       sync.Mutex
	requests []llm.JSONRequest
	response string
	err      error
}

func (m *mockCompleter) CompleteJSON(_ context.Context, req llm.JSONRequest) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if m.err != nil {
		return nil, m.err
	}

	return json.RawMessage(m.response), nil
}

// mockRetriever returns fixed search results.
type mockRetriever struct {
	results []models.SearchResult
	err     error
	last    models.SearchRequest
}

func (m *mockRetriever) Search(_ context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	m.last = req
	return m.results, m.err
}

// mockArtifacts is an in-memory artifact table.
type mockArtifacts struct {
	mu        sync.Mutex
	byID      map[string]*models.Artifact
	linked    map[string]string
	createErr error
	nextID    int
}

func newMockArtifacts() *mockArtifacts {
	return &mockArtifacts{byID: map[string]*models.Artifact{}, linked: map[string]string{}}
}

func (m *mockArtifacts) GetArtifact(_ context.Context, id string) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.byID[id]; ok {
		cp := *a
		return &cp, nil
	}

	return nil, models.ErrNotFound
}

func (m *mockArtifacts) MarkLinked(_ context.Context, id, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.byID[id]
	if !ok {
		return models.ErrNotFound
	}

	a.IngestStatus = models.IngestLinked
	a.Description = description
	m.linked[id] = description

	return nil
}

func (m *mockArtifacts) FindByChecksum(_ context.Context, sourceType, checksum string) (*models.Artifact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.byID {
		if a.SourceType == sourceType && a.Checksum == checksum {
			cp := *a
			return &cp, nil
		}
	}

	return nil, models.ErrNotFound
}

func (m *mockArtifacts) CreateArtifact(_ context.Context, a *models.Artifact) (*models.Artifact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return nil, false, m.createErr
	}

	m.nextID++
	cp := *a
	cp.ID = fmt.Sprintf("a-%d", m.nextID)
	m.byID[cp.ID] = &cp

	out := cp

	return &out, true, nil
}

func (m *mockArtifacts) all() []models.Artifact {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Artifact, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, *a)
	}

	return out
}

// mockObjects records uploads.
type mockObjects struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *mockObjects) Put(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return "", m.err
	}

	m.keys = append(m.keys, key)

	return "mem://" + key, nil
}

// mockExtractor returns canned text per MIME family.
type mockExtractor struct {
	text string
	err  error
	seen []extract.Input
}

func (m *mockExtractor) Extract(_ context.Context, in extract.Input) (*extract.Document, error) {
	m.seen = append(m.seen, in)

	if m.err != nil {
		return nil, m.err
	}

	text := m.text
	if text == "" {
		text = string(in.Data)
	}

	return &extract.Document{Text: text, Metadata: map[string]any{"extractor": "mock"}}, nil
}

// mockLinkedBlocks serves CRM timelines.
type mockLinkedBlocks struct {
	linked []models.LinkedBlock
}

func (m *mockLinkedBlocks) LinkedBlocks(_ context.Context, ids []string, _ []models.LinkType) ([]models.LinkedBlock, error) {
	out := make([]models.LinkedBlock, 0, len(m.linked))

	for _, lb := range m.linked {
		if slices.Contains(ids, lb.EntityID) {
			out = append(out, lb)
		}
	}

	return out, nil
}
