package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusRetrying   JobStatus = "retrying"
	StatusDead       JobStatus = "dead"
	StatusCancelled  JobStatus = "cancelled"
)

// Lane names a queue. Each lane has its own workers.
type Lane string

const (
	LaneInboundMessage Lane = "inbound_message"
	LaneStatusUpdate   Lane = "status_update"
	LaneDeadLetter     Lane = "dead_letter"
)

// JobPriority represents the priority of a job
type JobPriority int

const (
	PriorityLow    JobPriority = 0
	PriorityNormal JobPriority = 5
	PriorityHigh   JobPriority = 10
)

// Job is one unit of dispatch work. Jobs sharing a PartitionKey within a lane
// are handed out strictly in Seq order, one at a time.
type Job struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Lane         Lane           `gorm:"type:varchar(40);not null;index:idx_dispatch_jobs_ready,priority:1" json:"lane"`
	Type         string         `gorm:"type:varchar(100);not null" json:"type"`
	TenantID     string         `gorm:"type:varchar(64);index" json:"tenant_id"`
	PartitionKey string         `gorm:"type:varchar(255);not null;index" json:"partition_key"`
	Seq          int64          `gorm:"not null;index" json:"seq"`
	Payload      datatypes.JSON `json:"payload"`

	Status   JobStatus   `gorm:"type:varchar(20);not null;default:'pending';index:idx_dispatch_jobs_ready,priority:2" json:"status"`
	Priority JobPriority `gorm:"not null;default:5" json:"priority"`

	Attempts    int `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int `gorm:"not null;default:5" json:"max_attempts"`

	ScheduledAt *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`

	Error      string `gorm:"type:text" json:"error,omitempty"`
	OriginLane Lane   `gorm:"type:varchar(40)" json:"origin_lane,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string {
	return "dispatch_jobs"
}

func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// JobHandler is the interface that job handlers must implement
type JobHandler interface {
	Handle(ctx context.Context, job *Job) error
	GetType() string
}

// HandlerFunc adapts a function to JobHandler.
type HandlerFunc struct {
	JobType string
	Fn      func(ctx context.Context, job *Job) error
}

func (h HandlerFunc) Handle(ctx context.Context, job *Job) error { return h.Fn(ctx, job) }
func (h HandlerFunc) GetType() string { return h.JobType }

// EnqueueOptions contains options for enqueueing a job
type EnqueueOptions struct {
	Lane         Lane
	TenantID     string
	PartitionKey string
	Priority     JobPriority
	MaxAttempts  int
}

// RetryPolicy bounds redelivery of failing jobs.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseBackoff: 2 * time.Second,
		MaxBackoff:  5 * time.Minute,
	}
}

// Backoff is the delay before attempt+1, given that attempt has just failed.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// JobFilter contains options for filtering jobs
type JobFilter struct {
	Lane     Lane
	TenantID string
	Type     string
	Status   JobStatus
	Limit    int
	Offset   int
}

// JobStats represents statistics about jobs
type JobStats struct {
	TotalJobs      int64                        `json:"total_jobs"`
	ByLaneStatus   map[Lane]map[JobStatus]int64 `json:"by_lane_status"`
	DeadJobs       int64                        `json:"dead_jobs"`
	OldestPendingS float64                      `json:"oldest_pending_seconds"`
}

// WorkerConfig contains configuration for job workers
type WorkerConfig struct {
	Lane         Lane
	Concurrency  int
	PollInterval time.Duration
	Timeout      time.Duration
}

// DefaultWorkerConfig returns default worker configuration
func DefaultWorkerConfig(lane Lane) WorkerConfig {
	return WorkerConfig{
		Lane:         lane,
		Concurrency:  4,
		PollInterval: 500 * time.Millisecond,
		Timeout:      time.Minute,
	}
}
