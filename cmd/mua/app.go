package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/config"
	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/db/migrations"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/extract"
	"github.com/muahq/mua/internal/llm"
	"github.com/muahq/mua/internal/objectstore"
	"github.com/muahq/mua/internal/service"
	"github.com/muahq/mua/internal/store"
)

const embeddingProvider = "ollama"

// app holds the stores and services shared by serve and the batch commands.
type app struct {
	cfg       *config.Config
	log       *logrus.Logger
	pool      *dbpool.Pool
	profileID string

	blockStore      *store.BlockStore
	artifactStore   *store.ArtifactStore
	entityStore     *store.EntityStore
	processingStore *store.ProcessingStore
	embeddingStore  *store.EmbeddingStore

	embedder       *service.EmbeddingService
	embedWorker    *service.EmbedWorker
	tasks          *service.TaskQueue
	blocks         *service.BlockService
	retrieval      *service.RetrievalService
	clarifications *service.ClarificationService
	crm            *service.CRMService
	pipeline       *service.EnrichmentPipeline
	ingest         *service.IngestService

	closers []io.Closer
}

// newApp wires every component over an open pool. The schema must already
// be current.
func newApp(ctx context.Context, cfg *config.Config, log *logrus.Logger, pool *dbpool.Pool) (*app, error) {
	profileID, err := db.EnsureEmbeddingProfile(ctx, pool, log, embeddingProvider, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, pool: pool, profileID: profileID}

	base := store.Base{Pool: pool, Log: log}
	a.blockStore = store.NewBlockStore(base)
	a.artifactStore = store.NewArtifactStore(base)
	a.entityStore = store.NewEntityStore(base)
	a.processingStore = store.NewProcessingStore(base)
	a.embeddingStore = store.NewEmbeddingStore(base)
	links := store.NewLinkStore(base)

	a.embedder = service.NewEmbeddingService(service.EmbeddingConfig{
		URL:         cfg.OllamaURL,
		Model:       cfg.EmbeddingModel,
		Dimensions:  cfg.EmbeddingDimensions,
		AllowRemote: cfg.OllamaAllowRemote,
	})
	a.embedWorker = service.NewEmbedWorker(a.embedder, a.embeddingStore, profileID, log, cfg.TaskQueueSize, cfg.EmbedWorkers)
	a.tasks = service.NewTaskQueue(log, cfg.TaskQueueSize, cfg.TaskWorkers)

	a.clarifications = service.NewClarificationService(store.NewClarificationStore(base), a.entityStore, links, log)
	scanner := service.NewDisambiguator(a.entityStore, links, a.clarifications, log)
	a.blocks = service.NewBlockService(a.blockStore, a.processingStore, a.embedWorker, a.tasks, scanner, log)
	a.retrieval = service.NewRetrievalService(store.NewSearchStore(base), a.embedder, profileID, log)
	a.crm = service.NewCRMService(a.entityStore, store.NewCRMStore(base), log)

	a.pipeline = service.NewEnrichmentPipeline(service.EnrichmentDeps{
		Processing: a.processingStore,
		Blocks:     a.blockStore,
		Artifacts:  a.artifactStore,
		Retriever:  a.retrieval,
		Completer: llm.New(llm.Config{
			BaseURL: cfg.CompletionBaseURL,
			APIKey:  cfg.CompletionAPIKey.Value(),
			Model:   cfg.CompletionModel,
		}, log),
		Tokens:   llm.NewTokenizer(log),
		Resolver: service.NewEntityResolver(a.entityStore, log),
		Creator:  a.blocks,
		Links:    links,
	}, service.EnrichmentConfig{
		MaxAttempts:      cfg.ProcessMaxAttempts,
		StaleAfter:       cfg.ProcessStaleAfter,
		ProcessorVersion: cfg.ProcessorVersion,
		TokenBudget:      cfg.CompletionTokenBudget,
	}, log)

	if err := a.wireIngest(ctx); err != nil {
		return nil, errors.Join(err, a.Close())
	}

	return a, nil
}

func (a *app) wireIngest(ctx context.Context) error {
	objects, err := a.newObjectStore(ctx)
	if err != nil {
		return err
	}

	extractor, err := extract.NewRouter(ctx, extract.Config{
		GCPProjectID:          a.cfg.GCPProjectID,
		DocumentAILocation:    a.cfg.DocumentAILocation,
		DocumentAIProcessorID: a.cfg.DocumentAIProcessorID,
		SpeechLanguage:        a.cfg.SpeechLanguage,
		FFmpegPath:            a.cfg.FFmpegPath,
	}, a.log)
	if err != nil {
		return fmt.Errorf("creating extractors: %w", err)
	}
	a.closers = append(a.closers, extractor)

	a.ingest, err = service.NewIngestService(a.artifactStore, a.processingStore, objects, extractor, service.IngestConfig{
		Include: a.cfg.IntakeInclude,
		Exclude: a.cfg.IntakeExclude,
	}, a.log)

	return err
}

func (a *app) newObjectStore(ctx context.Context) (service.ObjectPutter, error) {
	if a.cfg.ObjectStore == config.ObjectStoreGCS {
		gcs, err := objectstore.NewGCS(ctx, a.cfg.GCSBucket, a.log, extract.ClientOptionsFromEnv()...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcs)

		return gcs, nil
	}

	return objectstore.NewLocal(a.cfg.LocalObjectDir)
}

// Close releases cloud clients. The pool is owned by the caller.
func (a *app) Close() error {
	errs := make([]error, 0, len(a.closers))
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	a.closers = nil

	return errors.Join(errs...)
}

// requireSchema fails when migrations are pending.
func requireSchema(ctx context.Context, pool *dbpool.Pool) error {
	current, latest, err := db.MigrationStatus(ctx, pool, migrations.FS)
	if err != nil {
		return err
	}

	if current < latest {
		return fmt.Errorf("database schema is at version %d, need %d: run mua migrate", current, latest)
	}

	return nil
}
