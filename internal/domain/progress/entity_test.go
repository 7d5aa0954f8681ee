package progress

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

// twoStepSnapshot: step A(1) with required a1 and optional a2; step B(2) with required b1.
func twoStepSnapshot() *snapshot.FlowSnapshot {
	return &snapshot.FlowSnapshot{
		ID: "snap",
		Steps: []snapshot.StepSnapshot{
			{ID: "A", Order: 1, Components: []snapshot.ComponentSnapshot{
				{ID: "a1", Order: 1, IsRequired: true, Type: content.TypeArticle},
				{ID: "a2", Order: 2, IsRequired: false, Type: content.TypeVideo},
			}},
			{ID: "B", Order: 2, Components: []snapshot.ComponentSnapshot{
				{ID: "b1", Order: 1, IsRequired: true, Type: content.TypeTask},
			}},
		},
	}
}

func complete(t *testing.T, fp *FlowProgress, id string) {
	t.Helper()
	_, err := fp.ApplyComponentUpdate(id, ComponentUpdate{Status: ComponentCompleted, Progress: 100}, t0)
	require.NoError(t, err)
}

func TestInitialize(t *testing.T) {
	fp := Initialize("asg", twoStepSnapshot(), t0)

	assert.Equal(t, 1, fp.CurrentStepOrder)
	assert.Equal(t, 2, fp.TotalSteps)
	assert.Equal(t, StepUnlocked, fp.Steps[0].Status)
	assert.Equal(t, StepLocked, fp.Steps[1].Status)
	assert.Equal(t, ComponentUnlocked, fp.Steps[0].Components[0].Status)
	assert.Equal(t, ComponentLocked, fp.Steps[1].Components[0].Status)
}

func TestCanAccess(t *testing.T) {
	fp := Initialize("asg", twoStepSnapshot(), t0)

	assert.NoError(t, fp.CanAccess(1, "a1"))
	err := fp.CanAccess(2, "b1")
	assert.ErrorIs(t, err, shared.ErrForbidden)
	assert.True(t, shared.IsNotFound(fp.CanAccess(1, "zzz")))
}

func TestApplyComponentUpdate(t *testing.T) {
	fp := Initialize("asg", twoStepSnapshot(), t0)

	c, err := fp.ApplyComponentUpdate("a1", ComponentUpdate{
		Status:         ComponentInProgress,
		Progress:       140,
		ProgressData:   json.RawMessage(`{"readingProgress":0.5}`),
		TimeSpentDelta: 20,
	}, t0)
	require.NoError(t, err)

	assert.Equal(t, 100.0, c.Progress, "clamped")
	assert.Equal(t, int64(20), c.TimeSpent)
	require.NotNil(t, c.StartedAt)
	assert.Equal(t, StepInProgress, fp.Steps[0].Status)

	_, err = fp.ApplyComponentUpdate("a1", ComponentUpdate{Status: "BOGUS"}, t0)
	assert.True(t, shared.IsValidation(err))
	_, err = fp.ApplyComponentUpdate("a1", ComponentUpdate{Status: ComponentInProgress, TimeSpentDelta: -1}, t0)
	assert.True(t, shared.IsValidation(err))
}

func TestCompleteStepIfDone_UnlocksNextStep(t *testing.T) {
	snap := twoStepSnapshot()
	fp := Initialize("asg", snap, t0)

	res := fp.CompleteStepIfDone(snap, 1, t0)
	assert.False(t, res.Completed, "required a1 not done yet")

	complete(t, fp, "a1")
	res = fp.CompleteStepIfDone(snap, 1, t0)

	assert.True(t, res.Completed)
	assert.Equal(t, []string{"B"}, res.UnlockedStepIDs)
	assert.Equal(t, []string{"b1"}, res.UnlockedComponentIDs)
	assert.Equal(t, 2, fp.CurrentStepOrder)
	assert.Equal(t, 1, fp.CompletedSteps)
	assert.Equal(t, 50.0, fp.Percentage)
	assert.False(t, fp.IsFlowCompleted())
	assert.NoError(t, fp.CanAccess(2, "b1"))

	// repeated check is a no-op
	again := fp.CompleteStepIfDone(snap, 1, t0)
	assert.False(t, again.Completed)
	assert.Empty(t, again.UnlockedStepIDs)
}

func TestCompleteStepIfDone_LastStepCompletesFlow(t *testing.T) {
	snap := twoStepSnapshot()
	fp := Initialize("asg", snap, t0)
	complete(t, fp, "a1")
	fp.CompleteStepIfDone(snap, 1, t0)

	complete(t, fp, "b1")
	res := fp.CompleteStepIfDone(snap, 2, t0)

	assert.True(t, res.Completed)
	assert.Empty(t, res.UnlockedStepIDs)
	assert.True(t, fp.IsFlowCompleted())
	assert.Equal(t, 100.0, fp.Percentage)
}

func TestCompleteStepIfDone_CascadesThroughOptionalSteps(t *testing.T) {
	snap := &snapshot.FlowSnapshot{
		ID: "snap",
		Steps: []snapshot.StepSnapshot{
			{ID: "S1", Order: 1, Components: []snapshot.ComponentSnapshot{{ID: "c1", IsRequired: true}}},
			{ID: "S2", Order: 2, Components: []snapshot.ComponentSnapshot{{ID: "c2", IsRequired: false}}},
			{ID: "S3", Order: 3, Components: []snapshot.ComponentSnapshot{{ID: "c3", IsRequired: true}}},
		},
	}
	fp := Initialize("asg", snap, t0)
	complete(t, fp, "c1")

	res := fp.CompleteStepIfDone(snap, 1, t0)
	assert.Equal(t, []int{1, 2}, res.CompletedSteps)
	assert.Equal(t, []string{"S2", "S3"}, res.UnlockedStepIDs)
	assert.Equal(t, 3, fp.CurrentStepOrder)
	assert.InDelta(t, 66.67, fp.Percentage, 0.001)
}

func TestTotalTimeSpent(t *testing.T) {
	fp := Initialize("asg", twoStepSnapshot(), t0)
	_, err := fp.ApplyComponentUpdate("a1", ComponentUpdate{Status: ComponentInProgress, TimeSpentDelta: 30}, t0)
	require.NoError(t, err)
	_, err = fp.ApplyComponentUpdate("a2", ComponentUpdate{Status: ComponentInProgress, TimeSpentDelta: 15}, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(45), fp.TotalTimeSpent())
}
