package service

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/metrics"
	"github.com/muahq/mua/internal/models"
)

// EmbedJob asks for a block's embedding under the active profile.
type EmbedJob struct {
	Author      models.AuthorType
	BlockID     string
	ContentHash string
	Text        string
}

// EmbedJobFor builds the embedding job for a block.
func EmbedJobFor(b *models.Block) EmbedJob {
	return EmbedJob{Author: b.AuthorType, BlockID: b.ID, ContentHash: b.ContentHash, Text: b.Content}
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingWriter stores a generated block embedding.
type EmbeddingWriter interface {
	UpsertBlockEmbedding(
		ctx context.Context,
		author models.AuthorType,
		blockID, profileID string,
		embedding []float32,
		contentHash string,
	) error
}

// StaleBlockLister lists blocks whose embedding is missing or outdated.
type StaleBlockLister interface {
	ListStaleBlocks(ctx context.Context, profileID string, limit int) ([]models.Block, error)
}

// EmbedWorker processes embedding jobs asynchronously with retry.
type EmbedWorker struct {
	embed       Embedder
	repo        EmbeddingWriter
	profileID   string
	log         *logrus.Logger
	jobs        chan EmbedJob
	concurrency int
}

// NewEmbedWorker creates a worker with the given queue capacity and concurrency.
func NewEmbedWorker(
	embed Embedder,
	repo EmbeddingWriter,
	profileID string,
	log *logrus.Logger,
	queueSize, concurrency int,
) *EmbedWorker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &EmbedWorker{
		embed:       embed,
		repo:        repo,
		profileID:   profileID,
		log:         log,
		jobs:        make(chan EmbedJob, queueSize),
		concurrency: concurrency,
	}
}

// Enqueue adds an embedding job. Non-blocking; drops the job if the queue is full.
func (w *EmbedWorker) Enqueue(job EmbedJob) {
	select {
	case w.jobs <- job:
		metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))
	default:
		metrics.ErrorsTotal.WithLabelValues("task_dropped").Inc()
		w.log.WithFields(jobFields(job)).Warn("embedding queue full, dropping job")
	}
}

// Backfill enqueues up to limit blocks whose embedding is missing or stale
// and returns how many were queued.
func (w *EmbedWorker) Backfill(ctx context.Context, lister StaleBlockLister, limit int) (int, error) {
	blocks, err := lister.ListStaleBlocks(ctx, w.profileID, limit)
	if err != nil {
		return 0, err
	}

	for i := range blocks {
		w.Enqueue(EmbedJobFor(&blocks[i]))
	}

	return len(blocks), nil
}

// Run spawns N worker goroutines and blocks until the context is cancelled
// and all workers have drained. Call in a goroutine.
func (w *EmbedWorker) Run(ctx context.Context) {
	var wg sync.WaitGroup

	w.log.WithFields(logrus.Fields{
		"concurrency": w.concurrency,
		"profile":     w.profileID,
	}).Info("starting embed workers")

	for i := range w.concurrency {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.runWorker(ctx, id)
		}(i)
	}

	wg.Wait()
	w.log.Info("all embed workers stopped")
}

func (w *EmbedWorker) runWorker(ctx context.Context, id int) {
	w.log.WithField("worker_id", id).Debug("embed worker started")
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.jobs:
			metrics.EmbedQueueDepth.Set(float64(len(w.jobs)))
			w.processWithRetry(ctx, job)
		}
	}
}

const (
	maxRetries     = 3
	baseRetryDelay = 2 * time.Second
)

// retryDelay is a variable so tests can shorten the backoff.
var retryDelay = baseRetryDelay

func (w *EmbedWorker) processWithRetry(ctx context.Context, job EmbedJob) {
	fields := jobFields(job)

	for attempt := range maxRetries {
		if ctx.Err() != nil {
			return
		}

		embedding, err := w.embed.Generate(ctx, job.Text)
		if err != nil {
			w.log.WithError(err).WithFields(fields).WithField("attempt", attempt+1).Warn("embedding generation failed")

			if attempt < maxRetries-1 {
				delay := retryDelay * (1 << attempt) // exponential backoff
				select {
				case <-ctx.Done():
					return
				case <-time.After(delay):
				}
			}

			continue
		}

		if err := w.repo.UpsertBlockEmbedding(ctx, job.Author, job.BlockID, w.profileID, embedding, job.ContentHash); err != nil {
			metrics.BackgroundTaskFailures.WithLabelValues(TaskEmbed).Inc()
			w.log.WithError(err).WithFields(fields).Error("storing embedding")
		} else {
			w.log.WithFields(fields).Debug("embedding stored")
		}

		return
	}

	metrics.BackgroundTaskFailures.WithLabelValues(TaskEmbed).Inc()
	w.log.WithFields(fields).Error("embedding failed after all retries")
}

func jobFields(job EmbedJob) logrus.Fields {
	return logrus.Fields{"author_type": job.Author, "block_id": job.BlockID}
}
