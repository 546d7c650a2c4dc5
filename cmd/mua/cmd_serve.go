package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/muahq/mua/internal/api"
	"github.com/muahq/mua/internal/config"
	"github.com/muahq/mua/internal/db"
	"github.com/muahq/mua/internal/db/migrations"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/observability"
	"github.com/muahq/mua/internal/service"
	"github.com/muahq/mua/internal/ws"
)

const (
	shutdownTimeout = 15 * time.Second
	startupBackfill = 1000
	taskFailedEvent = "task.failed"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, event stream and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cfg, newLogger(cfg.LogLevel, cfg.LogFormat))
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *logrus.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "mua",
		Version:     config.Version,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.WithError(err).Warn("flushing traces")
		}
	}()

	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), cfg.DBMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, log, pool)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck // shutdown path.

	hub := ws.NewHub(log)
	if err := db.NewNotifyBridge(log, pool, hub).Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { a.embedWorker.Run(gctx); return nil })
	g.Go(func() error { a.tasks.Run(gctx); return nil })
	g.Go(func() error { forwardTaskErrors(gctx, a.tasks.Errors(), hub); return nil })

	g.Go(func() error {
		queued, err := a.embedWorker.Backfill(gctx, a.embeddingStore, startupBackfill)
		if err != nil && gctx.Err() == nil {
			log.WithError(err).Warn("startup embedding backfill failed")
			return nil
		}
		if queued > 0 {
			log.WithField("queued", queued).Info("queued stale embeddings")
		}
		return nil
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: api.NewRouter(gctx, &api.RouterDeps{
			Log:            log,
			Pool:           pool,
			Hub:            hub,
			Blocks:         a.blocks,
			Search:         a.retrieval,
			Clarifications: a.clarifications,
			CRM:            a.crm,
			Entities:       a.entityStore,
			Batches:        a.pipeline,
			Processing:     a.processingStore,
			Artifacts:      a.artifactStore,
			Ingest:         a.ingest,
			StaleBlocks:    a.embeddingStore,
			EmbedWorker:    a.embedWorker,
			APIKey:         cfg.APIKey.Value(),
			CORSOrigins:    cfg.CORSOrigins,
			IntakeDir:      cfg.IntakeDir,
			ServiceName:    "mua",
			Version:        config.Version,
			OllamaURL:      cfg.OllamaURL,
			ProfileID:      a.profileID,
			EmbeddingModel: cfg.EmbeddingModel,
			EmbeddingDims:  cfg.EmbeddingDimensions,
			TracingEnabled: cfg.OTelEnabled,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr(),
		Handler:           api.NewMetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error { return listen(srv, log, "api") })
	g.Go(func() error { return listen(metricsSrv, log, "metrics") })

	g.Go(func() error {
		<-gctx.Done()

		log.Info("shutting down")
		hub.Shutdown()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		return errors.Join(srv.Shutdown(sctx), metricsSrv.Shutdown(sctx))
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server stopped")

	return nil
}

func listen(srv *http.Server, log *logrus.Logger, name string) error {
	log.WithFields(logrus.Fields{"listener": name, "addr": srv.Addr}).Info("listening")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s listener: %w", name, err)
	}

	return nil
}

// forwardTaskErrors publishes background task failures to event stream
// clients until ctx ends. The queue has already logged them.
func forwardTaskErrors(ctx context.Context, errs <-chan service.TaskError, hub *ws.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case te := <-errs:
			data, err := json.Marshal(map[string]string{"type": taskFailedEvent, "task": te.Task, "error": te.Err.Error()})
			if err != nil {
				continue
			}
			hub.BroadcastEvent(taskFailedEvent, data)
		}
	}
}
