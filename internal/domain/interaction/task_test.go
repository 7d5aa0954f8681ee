package interaction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

var capitalTask = content.TaskData{
	Description:   "Capital of France?",
	CorrectAnswer: "Paris",
	Hint:          "City of light",
	Examples:      []string{"Berlin is the capital of Germany"},
}

func submit(answer string) map[string]string {
	return map[string]string{"answer": answer}
}

func TestCheckAnswer(t *testing.T) {
	f := false
	tests := []struct {
		name   string
		task   content.TaskData
		answer string
		want   bool
	}{
		{"trimmed and case-insensitive", capitalTask, " Paris ", true},
		{"lowercase", capitalTask, "paris", true},
		{"wrong", capitalTask, "London", false},
		{"case sensitive", content.TaskData{CorrectAnswer: "Paris", CaseSensitive: true}, "paris", false},
		{"no trim", content.TaskData{CorrectAnswer: "Paris", TrimWhitespace: &f}, " Paris", false},
		{"alternative", content.TaskData{CorrectAnswer: "4", AlternativeAnswers: []string{"four"}}, "Four", true},
		{"partial", content.TaskData{CorrectAnswer: "paris", AllowPartialMatch: true}, "it is paris", true},
		{"pattern", content.TaskData{Pattern: `^\d+$`}, "42", true},
		{"pattern miss", content.TaskData{Pattern: `^\d+$`}, "4x", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckAnswer(tt.task, tt.answer))
		})
	}
}

func TestTaskCorrectAnswer(t *testing.T) {
	ic := newContext(t, content.TypeTask, capitalTask, ActionSubmitAnswer, submit("  paris "))

	res, err := testEngine().Process(ic)
	require.NoError(t, err)

	assert.Equal(t, progress.ComponentCompleted, res.NewStatus)
	assert.Equal(t, 100.0, res.Progress)
	require.NotNil(t, res.IsCorrect)
	assert.True(t, *res.IsCorrect)
	assert.Equal(t, 2, *res.AttemptsLeft)
}

func TestTaskWrongAnswersRevealHintThenExamplesThenFail(t *testing.T) {
	e := testEngine()
	ic := newContext(t, content.TypeTask, capitalTask, ActionSubmitAnswer, submit("London"))

	res, err := e.Process(ic)
	require.NoError(t, err)
	assert.Equal(t, progress.ComponentInProgress, res.NewStatus)
	assert.False(t, *res.IsCorrect)
	assert.Empty(t, res.Hint)
	assert.InDelta(t, 50.0/3, res.Progress, 0.001)
	apply(ic, res)

	res, err = e.Process(ic)
	require.NoError(t, err)
	assert.Equal(t, "City of light", res.Hint)
	assert.Empty(t, res.Examples)
	apply(ic, res)

	res, err = e.Process(ic)
	require.NoError(t, err)
	assert.Equal(t, progress.ComponentFailed, res.NewStatus)
	assert.Equal(t, capitalTask.Examples, res.Examples)
	assert.Equal(t, 0, *res.AttemptsLeft)
	apply(ic, res)

	_, err = e.Process(ic)
	assert.ErrorIs(t, err, shared.ErrAttemptsExhausted)
	assert.True(t, shared.IsConflict(err))
}

func TestTaskAlreadyCompleted(t *testing.T) {
	ic := newContext(t, content.TypeTask, capitalTask, ActionSubmitAnswer, submit("Paris"))
	ic.Progress.Status = progress.ComponentCompleted

	_, err := testEngine().Process(ic)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestTaskHintRaisesProgress(t *testing.T) {
	ic := newContext(t, content.TypeTask, capitalTask, ActionRequestHint, nil)

	res, err := testEngine().Process(ic)
	require.NoError(t, err)
	assert.Equal(t, "City of light", res.Hint)
	assert.Equal(t, 10.0, res.Progress)
}

func TestTaskTimeLimit(t *testing.T) {
	task := capitalTask
	task.TimeLimit = 60
	ic := newContext(t, content.TypeTask, task, ActionSubmitAnswer, submit("Paris"))
	ic.Progress.ProgressData = raw(t, TaskProgressData{StartedAt: ptr(now.Add(-2 * time.Minute))})

	_, err := testEngine().Process(ic)
	assert.True(t, shared.IsValidation(err))
}

func TestTaskValidation(t *testing.T) {
	h := NewTaskHandler(DefaultRules().Task)

	assert.False(t, h.ValidateSchema(raw(t, content.TaskData{Description: "no answer"})).Valid)
	assert.False(t, h.ValidateSchema(raw(t, content.TaskData{Description: "bad", Pattern: "("})).Valid)
	assert.True(t, h.ValidateSchema(raw(t, capitalTask)).Valid)
	assert.False(t, h.ValidateActionData(ActionSubmitAnswer, raw(t, submit("   "))).Valid)
}
