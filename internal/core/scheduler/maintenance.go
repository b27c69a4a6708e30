package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type MemoryPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type QueueMaintainer interface {
	RecoverStale(ctx context.Context, olderThan time.Duration) (int64, error)
	Cleanup(ctx context.Context, olderThan time.Duration) (int64, error)
}

type WebhookEventPruner interface {
	DeleteOldWebhookEvents(ctx context.Context, daysToKeep int) (int64, error)
}

// Maintenance wires the housekeeping of each component. Nil members are
// skipped.
type Maintenance struct {
	Memory        MemoryPurger
	Queue         QueueMaintainer
	WebhookEvents WebhookEventPruner

	StaleJobAfter      time.Duration
	JobRetention       time.Duration
	EventRetentionDays int
}

// Register adds the maintenance tasks to s.
func (m Maintenance) Register(s *Scheduler) error {
	type spec struct {
		name     string
		schedule string
		task     Task
	}
	var specs []spec

	if m.Queue != nil {
		specs = append(specs,
			spec{"recover-stale-jobs", "30 * * * * *", func(ctx context.Context) error {
				n, err := m.Queue.RecoverStale(ctx, m.StaleJobAfter)
				logCount("recover-stale-jobs", n)
				return err
			}},
			spec{"cleanup-jobs", "0 15 3 * * *", func(ctx context.Context) error {
				n, err := m.Queue.Cleanup(ctx, m.JobRetention)
				logCount("cleanup-jobs", n)
				return err
			}},
		)
	}
	if m.Memory != nil {
		specs = append(specs, spec{"purge-agent-memory", "0 */10 * * * *", func(ctx context.Context) error {
			n, err := m.Memory.PurgeExpired(ctx)
			logCount("purge-agent-memory", n)
			return err
		}})
	}
	if m.WebhookEvents != nil && m.EventRetentionDays > 0 {
		specs = append(specs, spec{"prune-webhook-events", "0 45 3 * * *", func(ctx context.Context) error {
			n, err := m.WebhookEvents.DeleteOldWebhookEvents(ctx, m.EventRetentionDays)
			logCount("prune-webhook-events", n)
			return err
		}})
	}

	for _, sp := range specs {
		if err := s.AddTask(sp.name, sp.schedule, sp.task); err != nil {
			return err
		}
	}
	return nil
}

func logCount(task string, n int64) {
	if n > 0 {
		log.Info().Str("task", task).Int64("rows", n).Msg("Maintenance task cleaned up rows")
	}
}
