package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job.
type Handler func(ctx context.Context, job *Job) error

// popTimeout bounds each blocking pop so workers notice shutdown promptly.
const popTimeout = time.Second

// Worker runs a pool of goroutines popping jobs off one queue and
// dispatching them to type-registered handlers. A handler error or an
// unregistered job type sends the job to the failed list.
type Worker struct {
	queue       *Queue
	logger      *zap.Logger
	concurrency int

	mu       sync.RWMutex
	handlers map[string]Handler

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a worker pool over the queue.
func NewWorker(queue *Queue, logger *zap.Logger, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		queue:       queue,
		logger:      logger,
		concurrency: concurrency,
		handlers:    make(map[string]Handler),
		stopChan:    make(chan struct{}),
	}
}

// Register binds a handler to a job type.
func (w *Worker) Register(jobType string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

func (w *Worker) handler(jobType string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[jobType]
	return h, ok
}

// Start launches the pool.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting queue workers",
		zap.String("queue", w.queue.Name()),
		zap.Int("concurrency", w.concurrency))

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx, i)
	}
}

// Stop signals the pool and waits for in-flight jobs to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context, id int) {
	defer w.wg.Done()
	logger := w.logger.With(zap.String("queue", w.queue.Name()), zap.Int("worker", id))

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("pop failed", zap.Error(err))
			continue
		}
		if job == nil {
			continue
		}

		w.process(ctx, logger, job)
	}
}

func (w *Worker) process(ctx context.Context, logger *zap.Logger, job *Job) {
	logger = logger.With(zap.String("job_id", job.ID), zap.String("job_type", job.Type))

	h, ok := w.handler(job.Type)
	if !ok {
		logger.Warn("no handler registered")
		if err := w.queue.Fail(ctx, job, fmt.Errorf("no handler registered for job type %q", job.Type)); err != nil {
			logger.Error("recording failed job", zap.Error(err))
		}
		return
	}

	start := time.Now()
	if err := w.safeHandle(ctx, h, job); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
			logger.Error("recording failed job", zap.Error(failErr))
		}
		return
	}
	logger.Info("job completed", zap.Duration("elapsed", time.Since(start)))
}

// safeHandle converts a handler panic into a failure instead of taking the
// worker down.
func (w *Worker) safeHandle(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h(ctx, job)
}
