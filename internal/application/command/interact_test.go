package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/application/apptest"
	"github.com/alem-hub/flow-engine/internal/domain/achievement"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

func TestInteract_SingleArticleFlowCompletes(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	res := h.assignTo(t, "u1", "flow-1")
	a := res.Assignment
	cid := componentID(res, 0, 0)
	ctx := context.Background()

	started, err := h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: cid, Action: interaction.ActionStartReading, TimeSpent: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, progress.ComponentInProgress, started.Result.NewStatus)
	assert.Equal(t, assignment.StatusInProgress, started.AssignmentStatus)
	assert.False(t, started.FlowCompleted)
	require.Len(t, started.NextActions, 1)
	assert.Equal(t, cid, started.NextActions[0].ComponentID)

	h.clock.Advance(time.Minute)
	done, err := h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: cid,
		Action: interaction.ActionUpdateReadingProgress, Data: apptest.RawJSON(t, map[string]any{"readingProgress": 1}), TimeSpent: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, progress.ComponentCompleted, done.Result.NewStatus)
	assert.Equal(t, 100.0, done.Component.Progress)
	assert.True(t, done.StepCompleted)
	assert.True(t, done.FlowCompleted)
	assert.NotNil(t, done.UnlockedSteps)
	assert.Empty(t, done.UnlockedSteps)
	assert.Empty(t, done.NextActions)
	assert.Equal(t, assignment.StatusCompleted, done.AssignmentStatus)

	stored := h.store.Assignment(t, a.ID)
	assert.Equal(t, assignment.StatusCompleted, stored.Status)
	assert.Equal(t, int64(35), stored.TimeSpent)

	fp := h.store.FlowProgress(t, a.ID)
	assert.Equal(t, 100.0, fp.Percentage)
	assert.Equal(t, 1, fp.CompletedSteps)

	types := h.pub.Types()
	assert.Contains(t, types, shared.EventAssignmentStarted)
	assert.Contains(t, types, shared.EventFlowCompleted)
	assert.Contains(t, types, shared.EventAssignmentCompleted)

	require.Len(t, h.notifier.sent, 2)
	assert.True(t, h.notifier.sent[1].FlowCompleted)
	assert.Equal(t, 100.0, h.notifier.sent[1].FlowPercentage)

	_, err = h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: cid, Action: interaction.ActionStartReading,
	})
	assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))
}

func TestInteract_StepUnlocking(t *testing.T) {
	h := newHarness(t, apptest.TwoStepFlow(t))
	res := h.assignTo(t, "u1", "flow-2")
	a := res.Assignment
	article, task := componentID(res, 0, 0), componentID(res, 1, 0)
	ctx := context.Background()

	_, err := h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: task,
		Action: interaction.ActionSubmitAnswer, Data: apptest.RawJSON(t, map[string]any{"answer": "Paris"}),
	})
	require.Error(t, err)
	assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))

	out, err := h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: article, Action: interaction.ActionFinishReading,
	})
	require.NoError(t, err)
	assert.True(t, out.StepCompleted)
	assert.False(t, out.FlowCompleted)
	assert.Equal(t, []string{res.Snapshot.Steps[1].ID}, out.UnlockedSteps)
	assert.Equal(t, []string{task}, out.UnlockedComponents)
	assert.Equal(t, 2, out.Progress.CurrentStepOrder)
	assert.InDelta(t, 50.0, out.Progress.Percentage, 0.001)
	require.Len(t, out.NextActions, 1)
	assert.Equal(t, task, out.NextActions[0].ComponentID)
	assert.Contains(t, h.pub.Types(), shared.EventStepsUnlocked)

	final, err := h.interact.Handle(ctx, InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: task,
		Action: interaction.ActionSubmitAnswer, Data: apptest.RawJSON(t, map[string]any{"answer": " paris "}),
	})
	require.NoError(t, err)
	require.NotNil(t, final.Result.IsCorrect)
	assert.True(t, *final.Result.IsCorrect)
	assert.True(t, final.FlowCompleted)
	assert.Equal(t, assignment.StatusCompleted, final.AssignmentStatus)
}

func TestInteract_RejectedActionLeavesProgressUntouched(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	res := h.assignTo(t, "u1", "flow-1")
	a := res.Assignment
	before := h.store.FlowProgress(t, a.ID)

	_, err := h.interact.Handle(context.Background(), InteractCommand{
		AssignmentID: a.ID, UserID: "u1", ComponentID: componentID(res, 0, 0),
		Action: interaction.ActionUpdateReadingProgress, Data: apptest.RawJSON(t, map[string]any{"readingProgress": 2}),
	})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	after := h.store.FlowProgress(t, a.ID)
	assert.Equal(t, before, after)
	assert.Equal(t, assignment.StatusNotStarted, h.store.Assignment(t, a.ID).Status)
	assert.Empty(t, h.notifier.sent)
}

func TestInteract_Gates(t *testing.T) {
	ctx := context.Background()

	t.Run("other user", func(t *testing.T) {
		h := newHarness(t, apptest.OneArticleFlow(t))
		res := h.assignTo(t, "u1", "flow-1")
		_, err := h.interact.Handle(ctx, InteractCommand{
			AssignmentID: res.Assignment.ID, UserID: "u2", ComponentID: componentID(res, 0, 0), Action: interaction.ActionStartReading,
		})
		assert.ErrorIs(t, err, ErrNotAssignee)
	})

	t.Run("paused", func(t *testing.T) {
		h := newHarness(t, apptest.OneArticleFlow(t))
		res := h.assignTo(t, "u1", "flow-1")
		h.transition(t, res.Assignment.ID, "u1", ActionStart)
		h.transition(t, res.Assignment.ID, "u1", ActionPause)

		_, err := h.interact.Handle(ctx, InteractCommand{
			AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: componentID(res, 0, 0), Action: interaction.ActionStartReading,
		})
		assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))
	})

	t.Run("not started without auto start", func(t *testing.T) {
		h := newHarness(t, apptest.OneArticleFlow(t))
		h.interact.config.AutoStart = false
		res := h.assignTo(t, "u1", "flow-1")

		_, err := h.interact.Handle(ctx, InteractCommand{
			AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: componentID(res, 0, 0), Action: interaction.ActionStartReading,
		})
		assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))
	})

	t.Run("unknown component", func(t *testing.T) {
		h := newHarness(t, apptest.OneArticleFlow(t))
		res := h.assignTo(t, "u1", "flow-1")

		_, err := h.interact.Handle(ctx, InteractCommand{
			AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: "c1", Action: interaction.ActionStartReading,
		})
		assert.True(t, shared.IsNotFound(err))
	})

	t.Run("overdue is latched and rejected", func(t *testing.T) {
		h := newHarness(t, apptest.OneArticleFlow(t))
		res := h.assignTo(t, "u1", "flow-1")
		h.clock.Advance(res.Assignment.Deadline.Sub(apptest.T0) + time.Minute)

		_, err := h.interact.Handle(ctx, InteractCommand{
			AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: componentID(res, 0, 0), Action: interaction.ActionStartReading,
		})
		assert.ErrorIs(t, err, ErrAssignmentOverdue)
		assert.Equal(t, shared.CodeForbidden, shared.CodeOf(err))

		stored := h.store.Assignment(t, res.Assignment.ID)
		assert.True(t, stored.IsOverdue)
		assert.Equal(t, assignment.StatusNotStarted, stored.Status)
		assert.Contains(t, h.pub.Types(), shared.EventAssignmentOverdue)
	})
}

func TestInteract_SideChannels(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	res := h.assignTo(t, "u1", "flow-1")
	h.ach.award = []achievement.Type{achievement.FirstComponent}
	h.notifier.err = errors.New("redis down")

	out, err := h.interact.Handle(context.Background(), InteractCommand{
		AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: componentID(res, 0, 0), Action: interaction.ActionMarkCompleted,
	})
	require.NoError(t, err)

	require.Len(t, out.Achievements, 1)
	assert.Equal(t, achievement.FirstComponent, out.Achievements[0].Type)
	assert.Contains(t, h.pub.Types(), shared.EventAchievementUnlocked)

	require.Len(t, h.ach.got, 1)
	o := h.ach.got[0]
	assert.Equal(t, 1, o.CompletedComponents)
	assert.True(t, o.FlowCompleted)
	assert.Equal(t, interaction.ActionMarkCompleted, o.Action)

	assert.Equal(t, assignment.StatusCompleted, h.store.Assignment(t, res.Assignment.ID).Status)
}

func TestInteract_AchievementFailureIsIgnored(t *testing.T) {
	h := newHarness(t, apptest.OneArticleFlow(t))
	res := h.assignTo(t, "u1", "flow-1")
	h.ach.err = errors.New("boom")

	out, err := h.interact.Handle(context.Background(), InteractCommand{
		AssignmentID: res.Assignment.ID, UserID: "u1", ComponentID: componentID(res, 0, 0), Action: interaction.ActionMarkCompleted,
	})
	require.NoError(t, err)
	assert.Empty(t, out.Achievements)
	assert.True(t, out.FlowCompleted)
}
