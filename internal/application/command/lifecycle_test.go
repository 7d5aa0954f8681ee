package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/application/apptest"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

func TestLifecycle_PauseResumeShiftsDeadline(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment
	deadline := a.Deadline

	h.transition(t, a.ID, "u1", ActionStart)
	paused := h.transition(t, a.ID, "m1", ActionPause)
	assert.Equal(t, assignment.StatusPaused, paused.To)

	h.clock.Advance(36 * time.Hour)
	resumed := h.transition(t, a.ID, "u1", ActionResume)

	assert.Equal(t, assignment.StatusPaused, resumed.From)
	assert.Equal(t, assignment.StatusInProgress, resumed.To)
	assert.Equal(t, 2, resumed.DeadlineExtendedBy)

	stored := h.store.Assignment(t, a.ID)
	assert.Equal(t, deadline.AddDate(0, 0, 2), stored.Deadline)
	assert.Nil(t, stored.PausedAt)
	assert.Empty(t, stored.PausedByID)

	assert.Equal(t, []shared.EventType{
		shared.EventAssignmentCreated,
		shared.EventAssignmentStarted,
		shared.EventAssignmentPaused,
		shared.EventAssignmentResumed,
	}, h.pub.Types())
}

func TestLifecycle_Authorization(t *testing.T) {
	tests := []struct {
		name   string
		actor  string
		action LifecycleAction
		code   shared.Code
	}{
		{"owner starts", "u1", ActionStart, ""},
		{"mentor cannot start for learner", "m1", ActionStart, shared.CodeForbidden},
		{"stranger cannot start", "u2", ActionStart, shared.CodeForbidden},
		{"admin starts", "admin", ActionStart, ""},
		{"learner cannot complete", "u1", ActionComplete, shared.CodeForbidden},
		{"buddy completes", "m1", ActionComplete, ""},
		{"learner cannot cancel", "u1", ActionCancel, shared.CodeForbidden},
		{"assigner cancels", "m1", ActionCancel, ""},
		{"stranger cannot extend", "u2", ActionExtendDeadline, shared.CodeForbidden},
		{"unknown actor", "ghost", ActionStart, shared.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, apptest.OneArticleFlow(t))
			a := h.assignTo(t, "u1", "flow-1").Assignment

			_, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{
				AssignmentID: a.ID, ActorID: tt.actor, Action: tt.action,
			})
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, shared.CodeOf(err))
			assert.Equal(t, assignment.StatusNotStarted, h.store.Assignment(t, a.ID).Status)
		})
	}
}

func TestLifecycle_InactiveActor(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment
	h.store.Users["u1"].IsActive = false

	_, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{AssignmentID: a.ID, ActorID: "u1", Action: ActionStart})
	assert.Equal(t, shared.CodeUnauthorized, shared.CodeOf(err))
}

func TestLifecycle_InvalidTransition(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment

	_, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{AssignmentID: a.ID, ActorID: "u1", Action: ActionResume})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	h.transition(t, a.ID, "m1", ActionCancel)
	_, err = h.lifecycle.Handle(context.Background(), LifecycleCommand{AssignmentID: a.ID, ActorID: "m1", Action: ActionComplete})
	assert.True(t, shared.IsValidation(err))
}

func TestLifecycle_ExtendDeadlineClearsOverdue(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment
	h.transition(t, a.ID, "u1", ActionStart)

	h.clock.Advance(a.Deadline.Sub(apptest.T0) + time.Hour)
	_, err := h.interact.Handle(context.Background(), InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: "whatever", Action: "START_READING",
	})
	require.ErrorIs(t, err, ErrAssignmentOverdue)
	require.True(t, h.store.Assignment(t, a.ID).IsOverdue)

	res, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{
		AssignmentID: a.ID, ActorID: "m1", Action: ActionExtendDeadline, Days: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.DeadlineExtendedBy)
	assert.False(t, h.store.Assignment(t, a.ID).IsOverdue)
	assert.Contains(t, h.pub.Types(), shared.EventDeadlineExtended)
}

func TestLifecycle_ExtendDeadlineRange(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment

	_, err := h.lifecycle.Handle(context.Background(), LifecycleCommand{
		AssignmentID: a.ID, ActorID: "m1", Action: ActionExtendDeadline, Days: 0,
	})
	assert.True(t, shared.IsValidation(err))
}

func TestLifecycle_Delete(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	res := h.assignTo(t, "u1", "flow-1")
	ctx := context.Background()

	err := h.lifecycle.Delete(ctx, DeleteAssignmentCommand{AssignmentID: res.Assignment.ID, ActorID: "m1"})
	assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))

	require.NoError(t, h.lifecycle.Delete(ctx, DeleteAssignmentCommand{AssignmentID: res.Assignment.ID, ActorID: "admin"}))
	assert.True(t, h.store.Deleted[res.Assignment.ID])
	assert.Nil(t, h.store.Snapshots[res.Snapshot.ID].AssignmentID)

	_, err = h.lifecycle.Handle(ctx, LifecycleCommand{AssignmentID: res.Assignment.ID, ActorID: "u1", Action: ActionStart})
	assert.True(t, shared.IsNotFound(err))
}

func TestLifecycle_DeleteDetachesSnapshot(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	a := h.assignTo(t, "u1", "flow-1").Assignment
	require.NotNil(t, h.store.Snapshots[a.FlowSnapshotID].AssignmentID)

	err := h.lifecycle.Delete(context.Background(), DeleteAssignmentCommand{AssignmentID: a.ID, ActorID: "m1"})
	require.Error(t, err)
	assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))
	assert.False(t, h.store.Deleted[a.ID])

	require.NoError(t, h.lifecycle.Delete(context.Background(), DeleteAssignmentCommand{AssignmentID: a.ID, ActorID: "admin"}))
	assert.True(t, h.store.Deleted[a.ID])
	assert.Nil(t, h.store.Snapshots[a.FlowSnapshotID].AssignmentID)

	_, err = h.lifecycle.Handle(context.Background(), LifecycleCommand{AssignmentID: a.ID, ActorID: "u1", Action: ActionStart})
	assert.Equal(t, shared.CodeNotFound, shared.CodeOf(err))
}
