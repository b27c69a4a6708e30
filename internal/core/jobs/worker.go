package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNoJobsAvailable is returned when no jobs are available
var ErrNoJobsAvailable = errors.New("no jobs available")

// Worker processes the jobs of one lane.
type Worker struct {
	queue    *Queue
	config   WorkerConfig
	handlers map[string]JobHandler
	mu       sync.RWMutex
	started  bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a new job worker
func NewWorker(queue *Queue, config WorkerConfig) *Worker {
	def := DefaultWorkerConfig(config.Lane)
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	return &Worker{
		queue:    queue,
		config:   config,
		handlers: make(map[string]JobHandler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler registers a job handler for a specific job type
func (w *Worker) RegisterHandler(handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[handler.GetType()] = handler
	log.Debug().Str("lane", string(w.config.Lane)).Str("type", handler.GetType()).Msg("Registered job handler")
}

// Start starts the worker goroutines
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	select {
	case <-w.stopCh:
		return fmt.Errorf("worker for lane %s is stopped, cannot restart", w.config.Lane)
	default:
	}
	if w.started {
		return nil
	}
	w.started = true

	log.Info().
		Str("lane", string(w.config.Lane)).
		Int("concurrency", w.config.Concurrency).
		Msg("Starting lane worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}
	return nil
}

// Stop gracefully stops the worker; in-flight jobs finish first.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
	log.Info().Str("lane", string(w.config.Lane)).Msg("Lane worker stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx, workerID)
		}
	}
}

// drain keeps processing until the lane has nothing runnable.
func (w *Worker) drain(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		default:
		}

		err := w.ProcessNext(ctx)
		if errors.Is(err, ErrNoJobsAvailable) {
			return
		}
		if err != nil {
			log.Warn().Err(err).Str("lane", string(w.config.Lane)).Int("worker", workerID).Msg("Worker error")
			return
		}
	}
}

// ProcessNext claims and runs one job. Handler failures are recorded on the
// job and do not surface as errors.
func (w *Worker) ProcessNext(ctx context.Context) error {
	job, err := w.queue.Dequeue(ctx, w.config.Lane)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrNoJobsAvailable
	}

	logger := log.With().
		Str("lane", string(job.Lane)).
		Str("job_id", job.ID.String()).
		Str("type", job.Type).
		Str("partition", job.PartitionKey).
		Int("attempt", job.Attempts).
		Logger()

	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	if !exists {
		logger.Error().Msg("No handler registered for job type")
		w.fail(ctx, job, Permanent(fmt.Errorf("no handler registered for job type: %s", job.Type)))
		return nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	startTime := time.Now()
	err = runHandler(jobCtx, handler, job)
	duration := time.Since(startTime)

	if err != nil {
		logger.Warn().Err(err).Dur("duration", duration).Msg("Job failed")
		w.fail(ctx, job, err)
		return nil
	}

	logger.Debug().Dur("duration", duration).Msg("Job completed")
	if err := w.queue.MarkCompleted(context.WithoutCancel(ctx), job.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to mark job as completed")
	}
	return nil
}

func (w *Worker) fail(ctx context.Context, job *Job, cause error) {
	status, err := w.queue.MarkFailed(context.WithoutCancel(ctx), job.ID, cause)
	if err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("Failed to mark job as failed")
		return
	}
	if status == StatusDead {
		log.Error().
			Err(cause).
			Str("job_id", job.ID.String()).
			Str("lane", string(job.Lane)).
			Str("tenant_id", job.TenantID).
			Int("attempts", job.Attempts).
			Msg("Job moved to dead-letter lane")
	}
}

func runHandler(ctx context.Context, h JobHandler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}

// WorkerPool manages the workers of every lane
type WorkerPool struct {
	workers []*Worker
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool() *WorkerPool {
	return &WorkerPool{
		workers: make([]*Worker, 0),
	}
}

// AddWorker adds a worker to the pool
func (p *WorkerPool) AddWorker(worker *Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers = append(p.workers, worker)
}

// Start starts all workers in the pool
func (p *WorkerPool) Start(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, worker := range p.workers {
		if err := worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}
	return nil
}

// Stop stops all workers in the pool
func (p *WorkerPool) Stop() {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var wg sync.WaitGroup
	for _, worker := range p.workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(worker)
	}
	wg.Wait()
}
