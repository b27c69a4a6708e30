// Package scheduler runs the hub's periodic housekeeping on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Task is a unit of periodic work.
type Task func(ctx context.Context) error

// Scheduler handles cron-based maintenance tasks
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration

	mu    sync.RWMutex
	tasks map[string]entry
}

type entry struct {
	id       cron.EntryID
	schedule string
	task     Task
}

// NewScheduler creates a scheduler whose tasks each run under timeout.
// Schedules accept seconds, e.g. "0 */5 * * * *".
func NewScheduler(timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
		tasks:   make(map[string]entry),
	}
}

func (s *Scheduler) Start() {
	log.Info().Int("tasks", len(s.Tasks())).Msg("Starting maintenance scheduler")
	s.cron.Start()
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	log.Info().Msg("Maintenance scheduler stopped")
}

// AddTask registers task under name, replacing any previous task of that name.
func (s *Scheduler) AddTask(name, schedule string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, exists := s.tasks[name]; exists {
		s.cron.Remove(old.id)
		delete(s.tasks, name)
	}

	id, err := s.cron.AddFunc(schedule, func() { s.run(name, task) })
	if err != nil {
		return fmt.Errorf("failed to add cron task %s: %w", name, err)
	}
	s.tasks[name] = entry{id: id, schedule: schedule, task: task}
	log.Debug().Str("task", name).Str("schedule", schedule).Msg("Scheduled task")
	return nil
}

func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, exists := s.tasks[name]; exists {
		s.cron.Remove(e.id)
		delete(s.tasks, name)
	}
}

// Tasks returns the registered task names, sorted.
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow executes a registered task synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	e, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown task %q", name)
	}
	return s.run(name, e.task)
}

func (s *Scheduler) run(name string, task Task) (err error) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panic: %v", name, r)
			log.Error().Err(err).Msg("Scheduled task panicked")
		}
	}()

	start := time.Now()
	if err = task(ctx); err != nil {
		log.Error().Err(err).Str("task", name).Msg("Scheduled task failed")
		return err
	}
	log.Debug().Str("task", name).Dur("duration", time.Since(start)).Msg("Scheduled task done")
	return nil
}
