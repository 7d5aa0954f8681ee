package jobs

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/application/apptest"
	"github.com/alem-hub/flow-engine/internal/application/query"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

type memGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (g *memGuard) First(_ context.Context, kind, subject string, at time.Time) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	key := fmt.Sprintf("%s:%s:%s", kind, subject, at.UTC().Format(time.DateOnly))
	if g.seen[key] {
		return false, nil
	}
	g.seen[key] = true
	return true, nil
}

type jobFixture struct {
	store *apptest.Store
	clock *apptest.Clock
	pub   *apptest.Publisher
	job   *DetectOverdueJob
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	fx := &jobFixture{store: apptest.NewStore(), clock: apptest.NewClock(apptest.T0), pub: &apptest.Publisher{}}
	checker := query.NewCheckDeadlineHandler(fx.store, fx.pub, fx.clock, nil)
	fx.job = NewDetectOverdueJob(DetectOverdueDeps{
		UnitOfWork: fx.store,
		Checker:    checker,
		Guard:      &memGuard{},
		Publisher:  fx.pub,
		Clock:      fx.clock,
	}, DetectOverdueConfig{Concurrency: 2})
	return fx
}

// add stores an assignment whose deadline is the given offset from T0.
func (fx *jobFixture) add(t *testing.T, id string, deadlineIn time.Duration, status assignment.Status) {
	t.Helper()
	deadline := apptest.T0.Add(deadlineIn)
	a, err := assignment.New(assignment.NewParams{
		ID: id, UserID: "u-" + id, FlowID: "flow-" + id, FlowSnapshotID: "snap-" + id,
		AssignedBy: "m1", BuddyIDs: []string{"m1"}, Deadline: &deadline,
	}, apptest.T0.Add(-time.Hour))
	require.NoError(t, err)
	a.Status = status
	fx.store.Assignments[id] = a
}

func countType(pub *apptest.Publisher, et shared.EventType) int {
	n := 0
	for _, t := range pub.Types() {
		if t == et {
			n++
		}
	}
	return n
}

func TestDetectOverdueJob_Run(t *testing.T) {
	fx := newJobFixture(t)
	fx.add(t, "late", time.Hour, assignment.StatusInProgress)
	fx.add(t, "soon", 40*time.Hour, assignment.StatusNotStarted)
	fx.add(t, "far", 10*24*time.Hour, assignment.StatusInProgress)
	fx.add(t, "paused", time.Hour, assignment.StatusPaused)

	fx.clock.Advance(2 * time.Hour)
	require.NoError(t, fx.job.Run(context.Background()))

	assert.True(t, fx.store.Assignment(t, "late").IsOverdue)
	assert.False(t, fx.store.Assignment(t, "soon").IsOverdue)
	assert.False(t, fx.store.Assignment(t, "paused").IsOverdue)
	assert.Equal(t, 1, countType(fx.pub, shared.EventAssignmentOverdue))
	assert.Equal(t, 1, countType(fx.pub, shared.EventAssignmentAtRisk))

	stats := fx.job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Checked)
	assert.Equal(t, 1, stats.LatchedOverdue)
	assert.Equal(t, 1, stats.AtRiskEvents)
	assert.Zero(t, stats.Failed)
}

func TestDetectOverdueJob_Idempotent(t *testing.T) {
	fx := newJobFixture(t)
	fx.add(t, "late", time.Hour, assignment.StatusInProgress)
	fx.add(t, "soon", 40*time.Hour, assignment.StatusInProgress)
	fx.clock.Advance(2 * time.Hour)

	require.NoError(t, fx.job.Run(context.Background()))
	fx.clock.Advance(time.Hour)
	require.NoError(t, fx.job.Run(context.Background()))

	// Overdue latches once; at-risk fires once per day.
	assert.Equal(t, 1, countType(fx.pub, shared.EventAssignmentOverdue))
	assert.Equal(t, 1, countType(fx.pub, shared.EventAssignmentAtRisk))

	fx.clock.Advance(40 * time.Hour)
	require.NoError(t, fx.job.Run(context.Background()))
	// "soon" is now past its deadline and gets latched instead.
	assert.Equal(t, 2, countType(fx.pub, shared.EventAssignmentOverdue))
	assert.True(t, fx.store.Assignment(t, "soon").IsOverdue)
}

func TestDetectOverdueJob_NoGuardNoAtRisk(t *testing.T) {
	fx := newJobFixture(t)
	fx.job.guard = nil
	fx.add(t, "soon", 40*time.Hour, assignment.StatusInProgress)

	require.NoError(t, fx.job.Run(context.Background()))
	assert.Empty(t, fx.pub.Types())
	assert.Equal(t, "detect_overdue", fx.job.Name())
}

// latchFirst simulates an interaction latching the assignment between the
// candidate scan and the deadline check.
type latchFirst struct {
	inner DeadlineChecker
}

func (c latchFirst) Handle(ctx context.Context, q query.CheckDeadlineQuery) (*query.DeadlineDTO, error) {
	if _, err := c.inner.Handle(ctx, q); err != nil {
		return nil, err
	}
	return c.inner.Handle(ctx, q)
}

func TestDetectOverdueJob_CountsOnlyOwnLatches(t *testing.T) {
	fx := newJobFixture(t)
	fx.job.checker = latchFirst{inner: fx.job.checker}
	fx.add(t, "late", time.Hour, assignment.StatusInProgress)
	fx.clock.Advance(2 * time.Hour)

	require.NoError(t, fx.job.Run(context.Background()))

	assert.True(t, fx.store.Assignment(t, "late").IsOverdue)
	assert.Equal(t, 1, countType(fx.pub, shared.EventAssignmentOverdue))
	stats := fx.job.LastRunStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.Checked)
	assert.Zero(t, stats.LatchedOverdue)
}
