package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/muahq/mua/internal/metrics"
)

// Task names used on the write path.
const (
	TaskEmbed           = "embed"
	TaskQueueProcessing = "queue_processing"
	TaskDisambiguate    = "disambiguate"
)

const drainTimeout = 10 * time.Second

// Task is a named unit of background work.
type Task struct {
	Name   string
	Fields logrus.Fields
	Run    func(ctx context.Context) error
}

// TaskError reports a failed background task.
type TaskError struct {
	Task string
	Err  error
}

func (e TaskError) Error() string { return e.Task + ": " + e.Err.Error() }

// TaskQueue runs background tasks on a fixed worker pool. Submission never
// blocks; a full queue drops the task.
type TaskQueue struct {
	log         *logrus.Logger
	tasks       chan Task
	errs        chan TaskError
	concurrency int
}

// NewTaskQueue creates a TaskQueue with the given capacity and worker count.
func NewTaskQueue(log *logrus.Logger, queueSize, concurrency int) *TaskQueue {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	return &TaskQueue{
		log:         log,
		tasks:       make(chan Task, queueSize),
		errs:        make(chan TaskError, 64),
		concurrency: concurrency,
	}
}

// Submit enqueues a task and reports whether it was accepted.
func (q *TaskQueue) Submit(task Task) bool {
	select {
	case q.tasks <- task:
		metrics.TaskQueueDepth.Set(float64(len(q.tasks)))
		return true
	default:
		metrics.ErrorsTotal.WithLabelValues("task_dropped").Inc()
		q.log.WithFields(task.Fields).WithField("task", task.Name).Warn("task queue full, dropping task")
		return false
	}
}

// Errors returns the channel on which task failures are published. Failures
// are dropped when nobody reads fast enough.
func (q *TaskQueue) Errors() <-chan TaskError {
	return q.errs
}

// Run starts the workers and blocks until ctx is cancelled. Tasks still
// queued at shutdown are drained with a bounded, uncancelled context.
func (q *TaskQueue) Run(ctx context.Context) {
	var wg sync.WaitGroup

	q.log.WithField("concurrency", q.concurrency).Info("starting task workers")

	for range q.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.runWorker(ctx)
		}()
	}

	wg.Wait()
	q.drain(ctx)
	q.log.Info("all task workers stopped")
}

func (q *TaskQueue) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-q.tasks:
			metrics.TaskQueueDepth.Set(float64(len(q.tasks)))

			if ctx.Err() != nil {
				dctx, cancel := drainContext(ctx)
				q.execute(dctx, task)
				cancel()

				return
			}

			q.execute(ctx, task)
		}
	}
}

func drainContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), drainTimeout)
}

func (q *TaskQueue) drain(parent context.Context) {
	ctx, cancel := drainContext(parent)
	defer cancel()

	for {
		select {
		case task := <-q.tasks:
			q.execute(ctx, task)
		default:
			metrics.TaskQueueDepth.Set(0)
			return
		}
	}
}

func (q *TaskQueue) execute(ctx context.Context, task Task) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		return task.Run(ctx)
	}()
	if err == nil {
		return
	}

	q.fail(task, err)
}

func (q *TaskQueue) fail(task Task, err error) {
	metrics.BackgroundTaskFailures.WithLabelValues(task.Name).Inc()
	q.log.WithError(err).WithFields(task.Fields).WithField("task", task.Name).Error("background task failed")

	select {
	case q.errs <- TaskError{Task: task.Name, Err: err}:
	default:
	}
}
