// Package scheduler runs registered jobs on cron schedules. A job never
// overlaps with itself; a tick that arrives while it is still running is
// dropped.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/canon/internal/common"
)

// Job is the work run on each tick
type Job func(ctx context.Context) error

// Status is a snapshot of a registered job
type Status struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	Runs      int        `json:"runs"`
	LastError string     `json:"last_error,omitempty"`
}

// jobEntry represents a registered job with metadata
type jobEntry struct {
	name      string
	schedule  string
	handler   Job
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	runs      int
	lastError string
}

// Service owns the cron instance and the registered jobs
type Service struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	jobMu   sync.Mutex // Protects jobs
	jobs    map[string]*jobEntry
	running bool
	logger  arbor.ILogger
}

// NewService creates a scheduler. Schedules use the standard five-field
// cron format.
func NewService(logger arbor.ILogger) *Service {
	cl := cronLogger{logger: logger}
	return &Service{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		ctx:    context.Background(),
		jobs:   make(map[string]*jobEntry),
		logger: logger,
	}
}

// RegisterJob adds a job under a unique name
func (s *Service) RegisterJob(name, schedule string, job Job) error {
	if err := common.ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &jobEntry{name: name, schedule: schedule, handler: job}
	cronID, err := s.cron.AddFunc(schedule, func() {
		s.executeJob(name)
	})
	if err != nil {
		return fmt.Errorf("failed to add job to cron: %w", err)
	}
	entry.cronID = cronID
	s.jobs[name] = entry

	s.logger.Info().
		Str("job_name", name).
		Str("schedule", schedule).
		Msg("Job registered")
	return nil
}

// Start begins dispatching ticks. Jobs receive a context derived from ctx
// that is cancelled by Stop.
func (s *Service) Start(ctx context.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish
func (s *Service) Stop() {
	s.jobMu.Lock()
	if !s.running {
		s.jobMu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.jobMu.Unlock()

	done := s.cron.Stop()
	if cancel != nil {
		cancel()
	}
	<-done.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether Start has been called without a matching Stop
func (s *Service) IsRunning() bool {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	return s.running
}

// RunNow executes a job immediately on the calling goroutine
func (s *Service) RunNow(name string) error {
	s.jobMu.Lock()
	_, exists := s.jobs[name]
	s.jobMu.Unlock()
	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	s.executeJob(name)

	status, err := s.GetJobStatus(name)
	if err != nil {
		return err
	}
	if status.LastError != "" {
		return fmt.Errorf("job %s failed: %s", name, status.LastError)
	}
	return nil
}

// GetJobStatus returns the status of a registered job
func (s *Service) GetJobStatus(name string) (*Status, error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	entry, exists := s.jobs[name]
	if !exists {
		return nil, fmt.Errorf("job %s not found", name)
	}

	var nextRun *time.Time
	if s.running {
		if next := s.cron.Entry(entry.cronID).Next; !next.IsZero() {
			nextRun = &next
		}
	}

	return &Status{
		Name:      entry.name,
		Schedule:  entry.schedule,
		LastRun:   entry.lastRun,
		NextRun:   nextRun,
		IsRunning: entry.isRunning,
		Runs:      entry.runs,
		LastError: entry.lastError,
	}, nil
}

// executeJob runs one job with panic recovery. A call that finds the job
// still running is dropped.
func (s *Service) executeJob(name string) {
	s.jobMu.Lock()
	entry, exists := s.jobs[name]
	if !exists {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job not found")
		return
	}
	if entry.isRunning {
		s.jobMu.Unlock()
		s.logger.Warn().Str("job_name", name).Msg("Job still running, tick skipped")
		return
	}
	entry.isRunning = true
	handler := entry.handler
	ctx := s.ctx
	s.jobMu.Unlock()

	start := time.Now()
	s.logger.Info().Str("job_name", name).Msg("Job execution started")

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error().
					Str("job_name", name).
					Str("panic", fmt.Sprintf("%v", r)).
					Msg("PANIC RECOVERED in job execution")
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		err = handler(ctx)
	}()

	completed := time.Now()
	s.jobMu.Lock()
	entry.isRunning = false
	entry.lastRun = &completed
	entry.runs++
	if err != nil {
		entry.lastError = err.Error()
	} else {
		entry.lastError = ""
	}
	s.jobMu.Unlock()

	if err != nil {
		s.logger.Error().
			Str("job_name", name).
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Job execution failed")
		return
	}
	s.logger.Info().
		Str("job_name", name).
		Dur("duration", time.Since(start)).
		Msg("Job execution completed")
}

// cronLogger routes cron's own messages through arbor
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("fields", fmt.Sprint(keysAndValues...)).Msg("cron: " + msg)
}
