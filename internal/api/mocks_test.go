package api_test

import (
	"context"

	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/service"
)

type mockBlockService struct {
	createFn    func(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error)
	updateFn    func(ctx context.Context, id string, req models.UpdateUserBlockRequest) (*models.Block, error)
	getFn       func(ctx context.Context, author models.AuthorType, id string) (*models.Block, error)
	listFn      func(ctx context.Context, limit, offset int) ([]models.Block, error)
	versionsFn  func(ctx context.Context, id string) ([]models.UserBlockVersion, error)
	createMuaFn func(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error)
}

func (m *mockBlockService) CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error) {
	return m.createFn(ctx, req)
}

func (m *mockBlockService) UpdateUserBlock(ctx context.Context, id string, req models.UpdateUserBlockRequest) (*models.Block, error) {
	return m.updateFn(ctx, id, req)
}

func (m *mockBlockService) GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error) {
	return m.getFn(ctx, author, id)
}

func (m *mockBlockService) ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error) {
	return m.listFn(ctx, limit, offset)
}

func (m *mockBlockService) ListVersions(ctx context.Context, id string) ([]models.UserBlockVersion, error) {
	return m.versionsFn(ctx, id)
}

func (m *mockBlockService) CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error) {
	return m.createMuaFn(ctx, req)
}

type mockSearchService struct {
	searchFn func(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

func (m *mockSearchService) Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error) {
	return m.searchFn(ctx, req)
}

type mockClarificationService struct {
	listFn    func(ctx context.Context, limit int) ([]models.ClarificationItem, error)
	digestFn  func(ctx context.Context, limit int) (*models.ClarificationDigest, error)
	resolveFn func(ctx context.Context, id string, optionIndex int) (*models.ClarificationItem, error)
}

func (m *mockClarificationService) ListOpen(ctx context.Context, limit int) ([]models.ClarificationItem, error) {
	return m.listFn(ctx, limit)
}

func (m *mockClarificationService) Digest(ctx context.Context, limit int) (*models.ClarificationDigest, error) {
	return m.digestFn(ctx, limit)
}

func (m *mockClarificationService) Resolve(ctx context.Context, id string, optionIndex int) (*models.ClarificationItem, error) {
	return m.resolveFn(ctx, id, optionIndex)
}

type mockCRMService struct {
	summaryFn func(ctx context.Context, req models.CRMRequest) ([]models.PersonSummary, error)
}

func (m *mockCRMService) Summary(ctx context.Context, req models.CRMRequest) ([]models.PersonSummary, error) {
	return m.summaryFn(ctx, req)
}

type mockEntitySearcher struct {
	searchFn func(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error)
	getFn    func(ctx context.Context, id string) (*models.Entity, error)
}

func (m *mockEntitySearcher) SearchEntities(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error) {
	return m.searchFn(ctx, entityType, name, limit)
}

func (m *mockEntitySearcher) GetEntity(ctx context.Context, id string) (*models.Entity, error) {
	return m.getFn(ctx, id)
}

type mockBatchRunner struct {
	runFn func(ctx context.Context, opts service.BatchOptions) (models.BatchReport, error)
}

func (m *mockBatchRunner) RunBatch(ctx context.Context, opts service.BatchOptions) (models.BatchReport, error) {
	return m.runFn(ctx, opts)
}

type mockProcessingCounter struct {
	counts map[models.ProcessingStatus]int
	err    error
}

func (m *mockProcessingCounter) CountByState(_ context.Context) (map[models.ProcessingStatus]int, error) {
	return m.counts, m.err
}

type mockArtifactReader struct {
	listFn func(ctx context.Context, status models.IngestStatus, limit, offset int) ([]models.Artifact, error)
	getFn  func(ctx context.Context, id string) (*models.Artifact, error)
}

func (m *mockArtifactReader) ListArtifacts(ctx context.Context, status models.IngestStatus, limit, offset int) ([]models.Artifact, error) {
	return m.listFn(ctx, status, limit, offset)
}

func (m *mockArtifactReader) GetArtifact(ctx context.Context, id string) (*models.Artifact, error) {
	return m.getFn(ctx, id)
}

type mockDirIngester struct {
	ingestFn func(ctx context.Context, dir, sourceType string) (models.IngestReport, error)
}

func (m *mockDirIngester) IngestDir(ctx context.Context, dir, sourceType string) (models.IngestReport, error) {
	return m.ingestFn(ctx, dir, sourceType)
}

type mockBackfiller struct {
	backfillFn func(ctx context.Context, lister service.StaleBlockLister, limit int) (int, error)
}

func (m *mockBackfiller) Backfill(ctx context.Context, lister service.StaleBlockLister, limit int) (int, error) {
	return m.backfillFn(ctx, lister, limit)
}
