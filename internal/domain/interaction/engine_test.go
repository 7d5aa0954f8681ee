package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

func TestRegistry(t *testing.T) {
	r := DefaultRegistry(Rules{})
	assert.Equal(t, []content.Type{content.TypeArticle, content.TypeQuiz, content.TypeTask, content.TypeVideo}, r.Types())

	h, err := r.Get(content.TypeQuiz)
	require.NoError(t, err)
	assert.Equal(t, content.TypeQuiz, h.Type())

	_, err = r.Get("podcast")
	assert.True(t, shared.IsValidation(err))

	_, err = NewRegistry(NewTaskHandler(TaskRules{}), NewTaskHandler(TaskRules{}))
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
}

func TestEngineRejectsBeforeProcessing(t *testing.T) {
	e := testEngine()

	tests := []struct {
		name  string
		ic    func(t *testing.T) *Context
		check func(error) bool
	}{
		{
			name: "unknown component type",
			ic: func(t *testing.T) *Context {
				return newContext(t, "podcast", map[string]any{}, ActionStartReading, nil)
			},
			check: shared.IsValidation,
		},
		{
			name: "action of another type",
			ic: func(t *testing.T) *Context {
				return newContext(t, content.TypeArticle, article, ActionSubmitAnswer, nil)
			},
			check: shared.IsValidation,
		},
		{
			name: "negative time spent",
			ic: func(t *testing.T) *Context {
				ic := newContext(t, content.TypeArticle, article, ActionStartReading, nil)
				ic.TimeSpent = -5
				return ic
			},
			check: shared.IsValidation,
		},
		{
			name: "broken frozen payload",
			ic: func(t *testing.T) *Context {
				return newContext(t, content.TypeTask, content.TaskData{}, ActionStartTask, nil)
			},
			check: shared.IsValidation,
		},
		{
			name: "bad action data",
			ic: func(t *testing.T) *Context {
				return newContext(t, content.TypeArticle, article, ActionUpdateReadingProgress, map[string]any{"readingProgress": -1})
			},
			check: shared.IsValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := tt.ic(t)
			before := ic.Progress
			res, err := e.Process(ic)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error kind: %v", err)
			assert.Equal(t, before, ic.Progress)
		})
	}
}

func TestEngineSupportedActions(t *testing.T) {
	e := testEngine()
	ic := newContext(t, content.TypeTask, capitalTask, ActionStartTask, nil)
	assert.Equal(t, []Action{ActionStartTask, ActionSubmitAnswer, ActionRequestHint}, e.SupportedActions(ic))

	ic.Component.Type = "podcast"
	assert.Nil(t, e.SupportedActions(ic))
}

func TestRulesWithDefaults(t *testing.T) {
	r := Rules{Task: TaskRules{DefaultMaxAttempts: 5}}.WithDefaults()
	assert.Equal(t, 5, r.Task.DefaultMaxAttempts)
	assert.Equal(t, 60.0, r.Quiz.DefaultPassingScore)
	assert.Equal(t, 3.0, r.Video.DefaultMaxPlaybackRate)
}
