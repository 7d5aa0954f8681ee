package snapshot

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func buildFlow(t *testing.T) *flow.Flow {
	t.Helper()
	f, err := flow.NewFlow(flow.NewFlowParams{ID: "flow-1", Title: "Onboarding"}, t0)
	require.NoError(t, err)
	require.NoError(t, f.AddStep(flow.Step{
		ID: "s1", Order: 1, Title: "Read",
		Components: []flow.ComponentDefinition{
			{ID: "c1", Order: 1, Type: content.TypeArticle, IsRequired: true, Data: json.RawMessage(`{"content":"hello","estimatedReadTime":2}`)},
			{ID: "c2", Order: 2, Type: "survey", Data: json.RawMessage(`{"anything":[1,2,3]}`)},
		},
	}, t0))
	require.NoError(t, f.AddStep(flow.Step{
		ID: "s2", Order: 2, Title: "Practice",
		Components: []flow.ComponentDefinition{
			{ID: "c3", Order: 1, Type: content.TypeTask, IsRequired: true, Data: json.RawMessage(`{"description":"d","correctAnswer":"paris"}`)},
		},
	}, t0))
	return f
}

func TestBuilder_Build(t *testing.T) {
	f := buildFlow(t)
	b := NewBuilder(seqIDs(), timeutil.FixedClock(t0))

	snap, stats, err := b.Build(f, BuildContext{AssignmentID: "asg-1", CreatedBy: "admin", Metadata: map[string]any{"source": "test"}})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalSteps)
	assert.Equal(t, 3, stats.TotalComponents)
	assert.Positive(t, stats.SnapshotSize)
	assert.GreaterOrEqual(t, stats.CreationTimeMs, int64(0))

	assert.Equal(t, "flow-1", snap.OriginalFlowID)
	assert.Equal(t, f.Version, snap.OriginalFlowVersion)
	assert.Equal(t, t0, snap.CreatedAt)
	require.NotNil(t, snap.AssignmentID)
	assert.Equal(t, "asg-1", *snap.AssignmentID)
	assert.JSONEq(t, `{"source":"test"}`, string(snap.Metadata))
	assert.Len(t, snap.Checksum, 64)

	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "s1", snap.Steps[0].OriginalStepID)
	assert.Equal(t, []int{1, 2}, []int{snap.Steps[0].Order, snap.Steps[1].Order})
	assert.Equal(t, content.Type("survey"), snap.Steps[0].Components[1].Type, "unknown types pass through")
	assert.JSONEq(t, `{"anything":[1,2,3]}`, string(snap.Steps[0].Components[1].Data))
}

func TestBuilder_SnapshotIsIndependentOfTemplate(t *testing.T) {
	f := buildFlow(t)
	snap, _, err := NewBuilder(seqIDs(), timeutil.FixedClock(t0)).Build(f, BuildContext{})
	require.NoError(t, err)

	f.Steps[0].Title = "Edited"
	f.Steps[0].Components[0].Data[2] = 'X'
	require.NoError(t, f.AddStep(flow.Step{ID: "s3", Order: 3, Title: "Late"}, t0))

	assert.Equal(t, "Read", snap.Steps[0].Title)
	assert.JSONEq(t, `{"content":"hello","estimatedReadTime":2}`, string(snap.Steps[0].Components[0].Data))
	assert.Len(t, snap.Steps, 2)

	ok, err := VerifyChecksum(snap)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuilder_NotReady(t *testing.T) {
	b := NewBuilder(seqIDs(), timeutil.FixedClock(t0))

	empty, err := flow.NewFlow(flow.NewFlowParams{ID: "f", Title: "Empty"}, t0)
	require.NoError(t, err)
	_, _, err = b.Build(empty, BuildContext{})
	assert.Equal(t, shared.CodeNotReady, shared.CodeOf(err))

	inactive := buildFlow(t)
	inactive.Deactivate(t0)
	_, _, err = b.Build(inactive, BuildContext{})
	assert.ErrorIs(t, err, shared.ErrNotReady)

	_, _, err = b.Build(nil, BuildContext{})
	assert.True(t, shared.IsValidation(err))
}

func TestFlowSnapshot_Navigation(t *testing.T) {
	snap, _, err := NewBuilder(seqIDs(), timeutil.FixedClock(t0)).Build(buildFlow(t), BuildContext{AssignmentID: "a"})
	require.NoError(t, err)

	comp := snap.Steps[1].Components[0]
	step, found, err := snap.FindComponent(comp.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, step.Order)
	assert.Equal(t, comp.ID, found.ID)

	_, _, err = snap.FindComponent("missing")
	assert.ErrorIs(t, err, ErrComponentNotFound)

	next, ok := snap.NextStep(1)
	assert.True(t, ok)
	assert.Equal(t, 2, next.Order)
	_, ok = snap.NextStep(2)
	assert.False(t, ok)

	assert.Len(t, snap.Steps[0].RequiredComponents(), 1)

	snap.Detach()
	assert.False(t, snap.IsAttached())
}
