// Package scheduler runs the flow engine's periodic background jobs.
// Schedules are cron expressions or fixed intervals; a job never overlaps
// with its own previous run.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Job defines the interface that all scheduled jobs must implement.
type Job interface {
	// Name returns the unique name of the job.
	Name() string

	// Run executes the job.
	// The context is cancelled when the scheduler is stopping.
	Run(ctx context.Context) error

	// Description returns a human-readable description of the job.
	Description() string
}

// Schedule defines when a job should run.
type Schedule interface {
	// Next returns the next time the job should run after the given time.
	Next(t time.Time) time.Time

	// String returns a human-readable representation of the schedule.
	String() string
}

// JobResult contains the result of a job execution.
type JobResult struct {
	JobName     string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Success     bool
	Error       error
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	ErrNilJob                  = errors.New("scheduler: job cannot be nil")
	ErrNilSchedule             = errors.New("scheduler: schedule cannot be nil")
	ErrJobAlreadyExists        = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrJobRunning              = errors.New("scheduler: job is already running")
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// ══════════════════════════════════════════════════════════════════════════════

// Scheduler manages and executes scheduled jobs.
type Scheduler struct {
	mu sync.RWMutex

	logger   *logger.Logger
	timezone *time.Location
	tick     time.Duration
	now      func() time.Time

	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

type scheduledJob struct {
	job       Job
	schedule  Schedule
	enabled   bool
	inFlight  bool
	lastRun   time.Time
	nextRun   time.Time
	last      *JobResult
	runCount  int64
	failCount int64
}

// Config contains configuration for the Scheduler.
type Config struct {
	Logger *logger.Logger

	// Timezone for schedule calculations (default: UTC).
	Timezone *time.Location

	// TickInterval is how often due jobs are checked (default: 1s).
	TickInterval time.Duration
}

// New creates a new Scheduler.
func New(config Config) *Scheduler {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.Timezone == nil {
		config.Timezone = time.UTC
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	return &Scheduler{
		logger:   config.Logger.With(logger.Component("scheduler")),
		timezone: config.Timezone,
		tick:     config.TickInterval,
		now:      time.Now,
		jobs:     make(map[string]*scheduledJob),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// JOB REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register adds a job to the scheduler with the given schedule.
func (s *Scheduler) Register(job Job, schedule Schedule) error {
	if job == nil {
		return ErrNilJob
	}
	if schedule == nil {
		return ErrNilSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyExists, name)
	}

	sj := &scheduledJob{
		job:      job,
		schedule: schedule,
		enabled:  true,
		nextRun:  schedule.Next(s.now().In(s.timezone)),
	}
	s.jobs[name] = sj

	s.logger.Info("job registered",
		logger.String("job", name),
		logger.String("schedule", schedule.String()),
		logger.Time("next_run", sj.nextRun),
	)
	return nil
}

// SetEnabled enables or disables a job by name.
func (s *Scheduler) SetEnabled(jobName string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sj, ok := s.jobs[jobName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	sj.enabled = enabled
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = s.now()
	jobs := len(s.jobs)
	s.mu.Unlock()

	s.logger.Info("scheduler started", logger.Int("jobs_count", jobs))

	s.wg.Add(1)
	go s.runLoop()
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()

	s.logger.Info("scheduler stopped", logger.Duration("uptime", time.Since(s.startedAt)))
	return nil
}

// IsRunning returns true if the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER LOOP
// ══════════════════════════════════════════════════════════════════════════════

func (s *Scheduler) runLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRunJobs()
		}
	}
}

func (s *Scheduler) checkAndRunJobs() {
	now := s.now().In(s.timezone)

	s.mu.Lock()
	var due []*scheduledJob
	for _, sj := range s.jobs {
		if !sj.enabled || sj.nextRun.IsZero() || now.Before(sj.nextRun) {
			continue
		}
		// Skip the slot if the previous run is still going.
		if sj.inFlight {
			sj.nextRun = sj.schedule.Next(now)
			s.logger.Warn("job still running, skipping", logger.String("job", sj.job.Name()))
			continue
		}
		sj.inFlight = true
		due = append(due, sj)
	}
	ctx := s.ctx
	s.mu.Unlock()

	for _, sj := range due {
		s.wg.Add(1)
		go func(sj *scheduledJob) {
			defer s.wg.Done()
			s.runJob(ctx, sj)
		}(sj)
	}
}

// runJob executes a job whose inFlight flag the caller has set.
func (s *Scheduler) runJob(ctx context.Context, sj *scheduledJob) *JobResult {
	jobName := sj.job.Name()
	startedAt := s.now()

	s.mu.Lock()
	sj.lastRun = startedAt
	sj.nextRun = sj.schedule.Next(startedAt.In(s.timezone))
	sj.runCount++
	s.mu.Unlock()

	err := s.safeRun(ctx, sj.job)
	completedAt := s.now()

	result := &JobResult{
		JobName:     jobName,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Duration:    completedAt.Sub(startedAt),
		Success:     err == nil,
		Error:       err,
	}

	s.mu.Lock()
	sj.inFlight = false
	sj.last = result
	if err != nil {
		sj.failCount++
	}
	s.mu.Unlock()

	metrics.RecordJobRun(jobName, result.Duration, err == nil)

	if err != nil {
		s.logger.Error("job failed",
			logger.String("job", jobName),
			logger.Duration("duration", result.Duration),
			logger.Err(err),
		)
	} else {
		s.logger.Info("job completed",
			logger.String("job", jobName),
			logger.Duration("duration", result.Duration),
		)
	}
	return result
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// ══════════════════════════════════════════════════════════════════════════════
// MANUAL EXECUTION
// ══════════════════════════════════════════════════════════════════════════════

// RunNow executes a job immediately, ignoring its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.Lock()
	sj, ok := s.jobs[jobName]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	if sj.inFlight {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrJobRunning, jobName)
	}
	sj.inFlight = true
	s.mu.Unlock()

	return s.runJob(ctx, sj), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS & INFO
// ══════════════════════════════════════════════════════════════════════════════

// JobInfo contains information about a registered job.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	Enabled     bool
	Running     bool
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	FailCount   int64
	LastResult  *JobResult
}

// ListJobs returns information about all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		out = append(out, JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Schedule:    sj.schedule.String(),
			Enabled:     sj.enabled,
			Running:     sj.inFlight,
			LastRun:     sj.lastRun,
			NextRun:     sj.nextRun,
			RunCount:    sj.runCount,
			FailCount:   sj.failCount,
			LastResult:  sj.last,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
