// Package jobs contains the scheduled jobs of the flow engine.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/flow-engine/internal/application/query"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DETECT OVERDUE JOB
// ══════════════════════════════════════════════════════════════════════════════

// DeadlineChecker evaluates one assignment and latches it as overdue when
// its deadline has passed. query.CheckDeadlineHandler implements it.
type DeadlineChecker interface {
	Handle(ctx context.Context, q query.CheckDeadlineQuery) (*query.DeadlineDTO, error)
}

// OnceGuard reports whether a notification for subject fires for the first
// time on the day of at.
type OnceGuard interface {
	First(ctx context.Context, kind, subject string, at time.Time) (bool, error)
}

// DetectOverdueJob scans running assignments that are close to or past
// their deadline. Past ones are latched overdue; the rest get at most one
// at-risk event per day.
type DetectOverdueJob struct {
	uow       assignment.UnitOfWorkFactory
	checker   DeadlineChecker
	guard     OnceGuard
	publisher shared.EventPublisher
	clock     timeutil.Clock
	logger    *logger.Logger
	config    DetectOverdueConfig

	lastRunStats atomic.Value // *DetectOverdueStats
}

// DetectOverdueConfig contains configuration for the job.
type DetectOverdueConfig struct {
	// BatchSize caps the assignments examined per run.
	BatchSize int

	// Concurrency is the number of assignments checked in parallel.
	Concurrency int

	// AtRiskWindow is how far ahead a deadline counts as at risk.
	AtRiskWindow time.Duration

	// Timeout is the maximum duration of one run.
	Timeout time.Duration
}

// DefaultDetectOverdueConfig returns sensible defaults.
func DefaultDetectOverdueConfig() DetectOverdueConfig {
	return DetectOverdueConfig{
		BatchSize:    500,
		Concurrency:  8,
		AtRiskWindow: 48 * time.Hour,
		Timeout:      2 * time.Minute,
	}
}

// DetectOverdueStats contains statistics from one run.
type DetectOverdueStats struct {
	StartedAt      time.Time
	Duration       time.Duration
	Checked        int
	LatchedOverdue int
	AtRiskEvents   int
	Failed         int
}

// DetectOverdueDeps groups the job's collaborators. Guard and Publisher are optional;
// without a guard no at-risk events are emitted.
type DetectOverdueDeps struct {
	UnitOfWork assignment.UnitOfWorkFactory
	Checker    DeadlineChecker
	Guard      OnceGuard
	Publisher  shared.EventPublisher
	Clock      timeutil.Clock
	Logger     *logger.Logger
}

// NewDetectOverdueJob creates the job.
func NewDetectOverdueJob(deps DetectOverdueDeps, config DetectOverdueConfig) *DetectOverdueJob {
	def := DefaultDetectOverdueConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = def.Concurrency
	}
	if config.AtRiskWindow <= 0 {
		config.AtRiskWindow = def.AtRiskWindow
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	return &DetectOverdueJob{
		uow:       deps.UnitOfWork,
		checker:   deps.Checker,
		guard:     deps.Guard,
		publisher: deps.Publisher,
		clock:     deps.Clock,
		logger:    deps.Logger.With(logger.Component("detect_overdue")),
		config:    config,
	}
}

// Name implements scheduler.Job.
func (j *DetectOverdueJob) Name() string {
	return "detect_overdue"
}

// Description implements scheduler.Job.
func (j *DetectOverdueJob) Description() string {
	return "Latches overdue assignments and emits at-risk reminders"
}

// Run implements scheduler.Job.
func (j *DetectOverdueJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	now := j.clock.Now()
	stats := &DetectOverdueStats{StartedAt: now}
	defer func() {
		stats.Duration = j.clock.Now().Sub(now)
		j.lastRunStats.Store(stats)
	}()

	due, err := j.findCandidates(ctx, now.Add(j.config.AtRiskWindow))
	if err != nil {
		metrics.RecordOverdueScan("error")
		return err
	}
	stats.Checked = len(due)

	var latched, atRisk, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)

	for _, a := range due {
		g.Go(func() error {
			wasOverdue, sentAtRisk, err := j.process(gctx, a, now)
			switch {
			case err != nil:
				failed.Add(1)
				j.logger.Warn("deadline check failed", logger.AssignmentID(a.ID), logger.Err(err))
			case wasOverdue:
				latched.Add(1)
			case sentAtRisk:
				atRisk.Add(1)
			}
			// One broken assignment must not stop the rest of the batch.
			return nil
		})
	}
	_ = g.Wait()

	stats.LatchedOverdue = int(latched.Load())
	stats.AtRiskEvents = int(atRisk.Load())
	stats.Failed = int(failed.Load())

	metrics.RecordOverdueScan("ok")
	j.logger.Info("overdue detection finished",
		logger.Int("checked", stats.Checked),
		logger.Int("overdue", stats.LatchedOverdue),
		logger.Int("at_risk", stats.AtRiskEvents),
		logger.Int("failed", stats.Failed),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("detect_overdue: %w", err)
	}
	return nil
}

// LastRunStats returns statistics of the previous run, or nil.
func (j *DetectOverdueJob) LastRunStats() *DetectOverdueStats {
	s, _ := j.lastRunStats.Load().(*DetectOverdueStats)
	return s
}

func (j *DetectOverdueJob) findCandidates(ctx context.Context, before time.Time) ([]*assignment.Assignment, error) {
	tx, err := j.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect_overdue: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	due, err := tx.Assignments().FindDueBefore(ctx, before, j.config.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("detect_overdue: find due: %w", err)
	}
	return due, nil
}

// process returns whether the assignment was latched overdue in this run
// and whether an at-risk event was sent.
func (j *DetectOverdueJob) process(ctx context.Context, a *assignment.Assignment, now time.Time) (bool, bool, error) {
	if !now.Before(a.Deadline) {
		st, err := j.checker.Handle(ctx, query.CheckDeadlineQuery{AssignmentID: a.ID})
		if err != nil {
			return false, false, err
		}
		return st.Latched, false, nil
	}

	if j.guard == nil || j.publisher == nil {
		return false, false, nil
	}
	first, err := j.guard.First(ctx, string(shared.EventAssignmentAtRisk), a.ID, now)
	if err != nil || !first {
		return false, false, err
	}

	st := a.EvaluateDeadline(now)
	e := shared.NewDeadlineEvent(shared.EventAssignmentAtRisk, a.ID, a.UserID, a.Deadline, st.DaysRemaining, now)
	if err := j.publisher.Publish(e); err != nil {
		return false, false, fmt.Errorf("publish at_risk: %w", err)
	}
	return false, true, nil
}
