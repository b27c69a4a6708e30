package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrJobNotFound is returned when a job does not exist or is not in the state
// the operation requires.
var ErrJobNotFound = errors.New("job not found")

var readyStatuses = []JobStatus{StatusPending, StatusRetrying}

// Queue manages job queue operations
type Queue struct {
	db      *gorm.DB
	policy  RetryPolicy
	now     func() time.Time
	lastSeq atomic.Int64
}

// NewQueue creates a new job queue
func NewQueue(db *gorm.DB, policy RetryPolicy) *Queue {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if policy.BaseBackoff <= 0 {
		policy.BaseBackoff = DefaultRetryPolicy().BaseBackoff
	}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = DefaultRetryPolicy().MaxBackoff
	}
	return &Queue{
		db:     db,
		policy: policy,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// nextSeq returns a process-wide strictly increasing sequence number.
func (q *Queue) nextSeq() int64 {
	for {
		last := q.lastSeq.Load()
		next := q.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if q.lastSeq.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload interface{}, opts EnqueueOptions) (*Job, error) {
	if opts.Lane == "" {
		return nil, fmt.Errorf("enqueue %s: lane is required", jobType)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = q.policy.MaxAttempts
	}
	if opts.Priority == 0 {
		opts.Priority = PriorityNormal
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize payload: %w", err)
	}

	job := &Job{
		Lane:         opts.Lane,
		Type:         jobType,
		TenantID:     opts.TenantID,
		PartitionKey: opts.PartitionKey,
		Seq:          q.nextSeq(),
		Payload:      payloadJSON,
		Status:       StatusPending,
		Priority:     opts.Priority,
		MaxAttempts:  opts.MaxAttempts,
	}
	// An empty partition key would serialize every keyless job of the lane.
	if job.PartitionKey == "" {
		job.PartitionKey = "job:" + uuid.NewString()
	}

	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

// Dequeue claims the next runnable job of a lane. A job is runnable when it
// is due and no other job of its partition is processing or waiting ahead of
// it. Returns nil when nothing is runnable.
func (q *Queue) Dequeue(ctx context.Context, lane Lane) (*Job, error) {
	var claimed *Job

	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A concurrent worker may win the claim; look again a few times.
		for i := 0; i < 3; i++ {
			now := q.now()
			var job Job
			err := tx.
				Where("lane = ? AND status IN ?", lane, readyStatuses).
				Where("scheduled_at IS NULL OR scheduled_at <= ?", now).
				Where(`NOT EXISTS (
					SELECT 1 FROM dispatch_jobs p
					WHERE p.lane = dispatch_jobs.lane
					  AND p.partition_key = dispatch_jobs.partition_key
					  AND (p.status = ? OR (p.status IN ? AND p.seq < dispatch_jobs.seq))
				)`, StatusProcessing, readyStatuses).
				Order("priority DESC, seq ASC").
				Limit(1).
				Find(&job).Error
			if err != nil {
				return err
			}
			if job.ID == uuid.Nil {
				return nil
			}

			res := tx.Model(&Job{}).
				Where("id = ? AND status IN ?", job.ID, readyStatuses).
				Updates(map[string]interface{}{
					"status":     StatusProcessing,
					"started_at": now,
					"attempts":   gorm.Expr("attempts + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 1 {
				job.Status = StatusProcessing
				job.StartedAt = &now
				job.Attempts++
				claimed = &job
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	return claimed, nil
}

// MarkCompleted marks a job as completed
func (q *Queue) MarkCompleted(ctx context.Context, jobID uuid.UUID) error {
	now := q.now()
	return q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusProcessing).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"completed_at": now,
			"error":        "",
		}).Error
}

// MarkFailed records a failed attempt. The job is retried with exponential
// backoff until it runs out of attempts or fails permanently, then it moves to
// the dead-letter lane.
func (q *Queue) MarkFailed(ctx context.Context, jobID uuid.UUID, cause error) (JobStatus, error) {
	var job Job
	if err := q.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrJobNotFound
		}
		return "", fmt.Errorf("failed to find job: %w", err)
	}

	now := q.now()
	updates := map[string]interface{}{
		"error":     cause.Error(),
		"failed_at": now,
	}

	status := StatusRetrying
	if IsPermanent(cause) || job.Attempts >= job.MaxAttempts {
		status = StatusDead
		updates["lane"] = LaneDeadLetter
		updates["origin_lane"] = job.Lane
		updates["scheduled_at"] = nil
	} else {
		next := now.Add(q.policy.Backoff(job.Attempts))
		updates["scheduled_at"] = next
	}
	updates["status"] = status

	err := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobID, StatusProcessing).
		Updates(updates).Error
	if err != nil {
		return "", fmt.Errorf("failed to mark job failed: %w", err)
	}
	return status, nil
}

// Requeue moves a dead job back to its origin lane with a fresh attempt
// budget. It is appended behind the jobs already queued for its partition.
func (q *Queue) Requeue(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var job Job
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ? AND status = ?", jobID, StatusDead).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobNotFound
			}
			return err
		}
		lane := job.OriginLane
		if lane == "" {
			lane = LaneInboundMessage
		}
		res := tx.Model(&Job{}).
			Where("id = ? AND status = ?", jobID, StatusDead).
			Updates(map[string]interface{}{
				"lane":         lane,
				"status":       StatusPending,
				"attempts":     0,
				"seq":          q.nextSeq(),
				"scheduled_at": nil,
				"error":        "",
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrJobNotFound
		}
		return tx.First(&job, "id = ?", jobID).Error
	})
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to requeue job: %w", err)
	}
	return &job, nil
}

// Cancel cancels a pending job
func (q *Queue) Cancel(ctx context.Context, jobID uuid.UUID) error {
	result := q.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status IN ?", jobID, readyStatuses).
		Update("status", StatusCancelled)

	if result.Error != nil {
		return fmt.Errorf("failed to cancel job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	var job Job
	if err := q.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs lists jobs with optional filters, newest first, plus the total
// count of matching jobs.
func (q *Queue) ListJobs(ctx context.Context, filter JobFilter) ([]Job, int64, error) {
	query := q.db.WithContext(ctx).Model(&Job{})

	if filter.Lane != "" {
		query = query.Where("lane = ?", filter.Lane)
	}
	if filter.TenantID != "" {
		query = query.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	var jobs []Job
	err := query.Session(&gorm.Session{}).Order("updated_at DESC").Limit(filter.Limit).Offset(filter.Offset).Find(&jobs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, total, nil
}

// ListDead lists dead-lettered jobs, optionally for one tenant.
func (q *Queue) ListDead(ctx context.Context, tenantID string, limit, offset int) ([]Job, int64, error) {
	return q.ListJobs(ctx, JobFilter{
		Lane:     LaneDeadLetter,
		Status:   StatusDead,
		TenantID: tenantID,
		Limit:    limit,
		Offset:   offset,
	})
}

// RecoverStale returns jobs stuck in processing (their worker died) to the
// retry state so another worker picks them up.
func (q *Queue) RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	res := q.db.WithContext(ctx).Model(&Job{}).
		Where("status = ? AND started_at < ?", StatusProcessing, now.Add(-olderThan)).
		Updates(map[string]interface{}{
			"status":       StatusRetrying,
			"scheduled_at": now,
			"error":        "recovered after worker timeout",
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover stale jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteOld deletes completed/cancelled jobs older than the specified
// duration. Dead jobs are kept for inspection.
func (q *Queue) DeleteOld(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := q.now().Add(-olderThan)

	result := q.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []JobStatus{StatusCompleted, StatusCancelled}, cutoff).
		Delete(&Job{})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Stats counts jobs per lane and status.
func (q *Queue) Stats(ctx context.Context, tenantID string) (*JobStats, error) {
	stats := &JobStats{ByLaneStatus: make(map[Lane]map[JobStatus]int64)}

	base := func() *gorm.DB {
		query := q.db.WithContext(ctx).Model(&Job{})
		if tenantID != "" {
			query = query.Where("tenant_id = ?", tenantID)
		}
		return query
	}

	var rows []struct {
		Lane   Lane
		Status JobStatus
		Count  int64
	}
	if err := base().Select("lane, status, COUNT(*) as count").Group("lane, status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	for _, r := range rows {
		if stats.ByLaneStatus[r.Lane] == nil {
			stats.ByLaneStatus[r.Lane] = make(map[JobStatus]int64)
		}
		stats.ByLaneStatus[r.Lane][r.Status] = r.Count
		stats.TotalJobs += r.Count
		if r.Status == StatusDead {
			stats.DeadJobs += r.Count
		}
	}

	var oldest []Job
	if err := base().Where("status = ?", StatusPending).Order("seq ASC").Limit(1).Find(&oldest).Error; err != nil {
		return nil, fmt.Errorf("failed to get oldest pending job: %w", err)
	}
	if len(oldest) == 1 {
		stats.OldestPendingS = q.now().Sub(oldest[0].CreatedAt).Seconds()
	}
	return stats, nil
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks a handler error as not worth retrying; the job goes to the
// dead-letter lane on its first failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}
