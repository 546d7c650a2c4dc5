package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/muahq/mua/internal/config"
	"github.com/muahq/mua/internal/dbpool"
	"github.com/muahq/mua/internal/models"
	"github.com/muahq/mua/internal/service"
)

// maxDrainBatches bounds --drain so a subject that keeps failing cannot loop
// forever within one run.
const maxDrainBatches = 1000

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Run enrichment or intake in-process against the database",
		Long: "Batch commands run without a server, for cron or one-off jobs. " +
			"Embeddings they schedule are finished by the next serve startup backfill.",
	}
	cmd.AddCommand(batchProcessCmd())
	cmd.AddCommand(batchIngestCmd())
	return cmd
}

// runLocal wires the app, starts its background workers and calls fn.
// Workers stop when fn returns.
func runLocal(parent context.Context, fn func(context.Context, *app) error) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return withPool(ctx, func(ctx context.Context, cfg *config.Config, pool *dbpool.Pool) error {
		if err := requireSchema(ctx, pool); err != nil {
			return err
		}

		a, err := newApp(ctx, cfg, newLogger(cfg.LogLevel, cfg.LogFormat), pool)
		if err != nil {
			return err
		}
		defer a.Close() //nolint:errcheck // exit path.

		wctx, cancel := context.WithCancel(ctx)
		g := new(errgroup.Group)
		g.Go(func() error { a.embedWorker.Run(wctx); return nil })
		g.Go(func() error { a.tasks.Run(wctx); return nil })

		runErr := fn(ctx, a)

		cancel()
		_ = g.Wait()

		return runErr
	})
}

func batchProcessCmd() *cobra.Command {
	var size int
	var drain bool
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Enrich queued blocks and artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd.Context(), func(ctx context.Context, a *app) error {
				if size <= 0 {
					size = a.cfg.ProcessBatchSize
				}

				total, err := processBatches(ctx, a.pipeline, size, drain)
				if err != nil {
					return err
				}
				output(total, fmt.Sprintf("%d", total.Processed))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 0, "Batch size (PROCESS_BATCH_SIZE when 0)")
	cmd.Flags().BoolVar(&drain, "drain", false, "Repeat until a batch finds nothing to claim")
	return cmd
}

type batchRunner interface {
	RunBatch(ctx context.Context, opts service.BatchOptions) (models.BatchReport, error)
}

// processBatches runs one batch, or with drain repeats until a batch scans
// nothing, and returns the summed report.
func processBatches(ctx context.Context, runner batchRunner, size int, drain bool) (models.BatchReport, error) {
	var total models.BatchReport

	for range maxDrainBatches {
		report, err := runner.RunBatch(ctx, service.BatchOptions{Size: size})
		if err != nil {
			return total, err
		}

		total.Scanned += report.Scanned
		total.Processed += report.Processed
		total.Errored += report.Errored
		total.Skipped += report.Skipped

		if !drain || report.Scanned == 0 || ctx.Err() != nil {
			break
		}
	}

	return total, nil
}

func batchIngestCmd() *cobra.Command {
	var sourceType string
	var process bool
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Upload, extract and queue the files in a directory (INTAKE_DIR by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLocal(cmd.Context(), func(ctx context.Context, a *app) error {
				dir := a.cfg.IntakeDir
				if len(args) == 1 {
					dir = args[0]
				}

				report, err := a.ingest.IngestDir(ctx, dir, sourceType)
				if err != nil {
					return err
				}

				if !process {
					output(report, fmt.Sprintf("%d", report.Created))
					return nil
				}

				enriched, err := processBatches(ctx, a.pipeline, a.cfg.ProcessBatchSize, true)
				if err != nil {
					return err
				}
				output(map[string]any{"ingest": report, "process": enriched}, fmt.Sprintf("%d", report.Created))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceType, "source-type", "upload", "Source type recorded on new artifacts")
	cmd.Flags().BoolVar(&process, "process", false, "Enrich the queue after ingesting")
	return cmd
}
