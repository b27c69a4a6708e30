package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload interface{}, opts EnqueueOptions) (*Job, error)
}

// Service provides high-level job queue functionality
type Service struct {
	queue      *Queue
	workerPool *WorkerPool
}

// NewService creates a new job service
func NewService(db *gorm.DB, policy RetryPolicy) *Service {
	return &Service{
		queue:      NewQueue(db, policy),
		workerPool: NewWorkerPool(),
	}
}

// Enqueue adds a new job to the queue
func (s *Service) Enqueue(ctx context.Context, jobType string, payload interface{}, opts EnqueueOptions) (*Job, error) {
	return s.queue.Enqueue(ctx, jobType, payload, opts)
}

// RegisterWorker creates and registers a worker for a lane
func (s *Service) RegisterWorker(config WorkerConfig, handlers ...JobHandler) *Worker {
	worker := NewWorker(s.queue, config)
	for _, handler := range handlers {
		worker.RegisterHandler(handler)
	}
	s.workerPool.AddWorker(worker)
	return worker
}

// StartWorkers starts all registered workers
func (s *Service) StartWorkers(ctx context.Context) error {
	return s.workerPool.Start(ctx)
}

// StopWorkers stops all workers
func (s *Service) StopWorkers() {
	s.workerPool.Stop()
}

// Cancel withdraws a job that has not started, which also unblocks its
// partition.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) error {
	return s.queue.Cancel(ctx, jobID)
}

func (s *Service) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return s.queue.GetJob(ctx, jobID)
}

func (s *Service) ListDead(ctx context.Context, tenantID string, limit, offset int) ([]Job, int64, error) {
	return s.queue.ListDead(ctx, tenantID, limit, offset)
}

func (s *Service) Requeue(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return s.queue.Requeue(ctx, jobID)
}

func (s *Service) Stats(ctx context.Context, tenantID string) (*JobStats, error) {
	return s.queue.Stats(ctx, tenantID)
}

// RecoverStale requeues jobs whose worker disappeared mid-flight
func (s *Service) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.queue.RecoverStale(ctx, olderThan)
}

// Cleanup deletes old completed/cancelled jobs
func (s *Service) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.queue.DeleteOld(ctx, olderThan)
}
