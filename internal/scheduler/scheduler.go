// Package scheduler runs background jobs on cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of periodic work.
type Job interface {
	Name() string
	Schedule() string
	Run(ctx context.Context) error
}

// JobResult records one execution.
type JobResult struct {
	JobName   string        `json:"job"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.RWMutex
	jobs map[string]Job
	last map[string]JobResult
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
		jobs: make(map[string]Job),
		last: make(map[string]JobResult),
	}
}

// AddJob registers job on its schedule. Names must be unique.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already exists", name)
	}

	if _, err := s.cron.AddFunc(job.Schedule(), func() { s.runJob(context.Background(), job) }); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}
	s.jobs[name] = job

	s.log.Info().Str("job", name).Str("schedule", job.Schedule()).Msg("Job added to scheduler")
	return nil
}

func (s *Scheduler) Start() {
	s.log.Info().Msg("Starting scheduler")
	s.cron.Start()
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (JobResult, error) {
	s.mu.RLock()
	job, exists := s.jobs[name]
	s.mu.RUnlock()
	if !exists {
		return JobResult{}, fmt.Errorf("job %s not found", name)
	}
	return s.runJob(ctx, job), nil
}

// LastResult returns the most recent execution of name.
func (s *Scheduler) LastResult(name string) (JobResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.last[name]
	return r, ok
}

func (s *Scheduler) runJob(ctx context.Context, job Job) JobResult {
	name := job.Name()
	start := time.Now()

	err := job.Run(ctx)
	result := JobResult{
		JobName:   name,
		StartTime: start,
		Duration:  time.Since(start),
		Success:   err == nil,
	}
	if err != nil {
		result.Error = err.Error()
		s.log.Error().Err(err).Str("job", name).Dur("duration", result.Duration).Msg("Job failed")
	} else {
		s.log.Debug().Str("job", name).Dur("duration", result.Duration).Msg("Job completed")
	}

	s.mu.Lock()
	s.last[name] = result
	s.mu.Unlock()
	return result
}
