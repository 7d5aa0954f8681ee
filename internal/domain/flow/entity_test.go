package flow

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

func newTestFlow(t *testing.T) *Flow {
	t.Helper()
	f, err := NewFlow(NewFlowParams{ID: "flow-1", Title: "Onboarding", DefaultDeadlineDays: 10}, t0)
	require.NoError(t, err)
	return f
}

func TestNewFlow(t *testing.T) {
	f := newTestFlow(t)
	assert.Equal(t, 1, f.Version)
	assert.True(t, f.IsActive)
	assert.False(t, f.IsReady(), "flow without steps is not ready")

	_, err := NewFlow(NewFlowParams{ID: "x", Title: "  "}, t0)
	assert.ErrorIs(t, err, ErrInvalidTitle)

	_, err = NewFlow(NewFlowParams{ID: "x", Title: "t", DefaultDeadlineDays: 400}, t0)
	assert.True(t, shared.IsValidation(err))
}

func TestFlow_AddStepKeepsOrderAndBumpsVersion(t *testing.T) {
	f := newTestFlow(t)

	require.NoError(t, f.AddStep(Step{ID: "s2", Order: 2, Title: "Second"}, t0))
	require.NoError(t, f.AddStep(Step{ID: "s1", Order: 1, Title: "First"}, t0.Add(time.Minute)))

	assert.Equal(t, 3, f.Version)
	assert.Equal(t, []string{"s1", "s2"}, []string{f.Steps[0].ID, f.Steps[1].ID})
	assert.Equal(t, t0.Add(time.Minute), f.UpdatedAt)

	err := f.AddStep(Step{ID: "dup", Order: 2, Title: "Dup"}, t0)
	assert.ErrorIs(t, err, ErrDuplicateStepOrder)
}

func TestFlow_AddComponent(t *testing.T) {
	f := newTestFlow(t)
	require.NoError(t, f.AddStep(Step{ID: "s1", Order: 1, Title: "First"}, t0))

	def := ComponentDefinition{ID: "c1", Order: 1, Type: content.TypeArticle, IsRequired: true, Data: json.RawMessage(`{"content":"x"}`)}
	require.NoError(t, f.AddComponent(1, def, t0))
	assert.Equal(t, 1, f.ComponentCount())
	assert.True(t, f.IsReady())

	err := f.AddComponent(1, ComponentDefinition{ID: "c2", Order: 1, Type: content.TypeTask}, t0)
	assert.ErrorIs(t, err, ErrDuplicateComponentOrder)

	err = f.AddComponent(9, def, t0)
	assert.True(t, shared.IsNotFound(err))
}

func TestFlow_Deactivate(t *testing.T) {
	f := newTestFlow(t)
	require.NoError(t, f.AddStep(Step{ID: "s1", Order: 1, Title: "First"}, t0))
	v := f.Version

	f.Deactivate(t0)
	assert.False(t, f.IsReady())
	assert.Equal(t, v+1, f.Version)

	f.Deactivate(t0)
	assert.Equal(t, v+1, f.Version, "no-op does not bump version")
}
