package api

import (
	"context"

	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/service"
)

// BlockService defines block operations used by BlockHandler.
type BlockService interface {
	CreateUserBlock(ctx context.Context, req models.CreateUserBlockRequest) (*models.Block, error)
	UpdateUserBlock(ctx context.Context, id string, req models.UpdateUserBlockRequest) (*models.Block, error)
	GetBlock(ctx context.Context, author models.AuthorType, id string) (*models.Block, error)
	ListUserBlocks(ctx context.Context, limit, offset int) ([]models.Block, error)
	ListVersions(ctx context.Context, id string) ([]models.UserBlockVersion, error)
	CreateMuaBlock(ctx context.Context, req models.CreateMuaBlockRequest) (*models.Block, bool, error)
}

// SearchService runs hybrid retrieval.
type SearchService interface {
	Search(ctx context.Context, req models.SearchRequest) ([]models.SearchResult, error)
}

// ClarificationService defines the question queue operations.
type ClarificationService interface {
	ListOpen(ctx context.Context, limit int) ([]models.ClarificationItem, error)
	Digest(ctx context.Context, limit int) (*models.ClarificationDigest, error)
	Resolve(ctx context.Context, id string, optionIndex int) (*models.ClarificationItem, error)
}

// CRMService summarizes people.
type CRMService interface {
	Summary(ctx context.Context, req models.CRMRequest) ([]models.PersonSummary, error)
}

// EntitySearcher finds entities by name.
type EntitySearcher interface {
	SearchEntities(ctx context.Context, entityType, name string, limit int) ([]models.Entity, error)
	GetEntity(ctx context.Context, id string) (*models.Entity, error)
}

// BatchRunner runs one enrichment batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, opts service.BatchOptions) (models.BatchReport, error)
}

// ProcessingCounter reports processing queue counts by state.
type ProcessingCounter interface {
	CountByState(ctx context.Context) (map[models.ProcessingStatus]int, error)
}

// ArtifactReader lists and fetches artifacts.
type ArtifactReader interface {
	ListArtifacts(ctx context.Context, status models.IngestStatus, limit, offset int) ([]models.Artifact, error)
	GetArtifact(ctx context.Context, id string) (*models.Artifact, error)
}

// DirIngester ingests a directory of files as artifacts.
type DirIngester interface {
	IngestDir(ctx context.Context, dir, sourceType string) (models.IngestReport, error)
}

// EmbedBackfiller queues embeddings for stale blocks.
type EmbedBackfiller interface {
	Backfill(ctx context.Context, lister service.StaleBlockLister, limit int) (int, error)
}
