package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

func twoQuestionQuiz() content.QuizData {
	return content.QuizData{
		Questions: []content.QuizQuestion{
			{ID: "q1", Text: "2+2?", Type: content.QuestionSingleChoice, Options: []content.QuizOption{
				{ID: "a", Text: "4", IsCorrect: true}, {ID: "b", Text: "5"},
			}},
			{ID: "q2", Text: "Primes?", Type: content.QuestionMultipleChoice, Options: []content.QuizOption{
				{ID: "a", Text: "2", IsCorrect: true}, {ID: "b", Text: "3", IsCorrect: true}, {ID: "c", Text: "4"},
			}},
		},
	}
}

func TestIsAnswerCorrect(t *testing.T) {
	q := twoQuestionQuiz()
	single, multi := q.Questions[0], q.Questions[1]

	assert.True(t, IsAnswerCorrect(single, []string{"a"}))
	assert.False(t, IsAnswerCorrect(single, []string{"a", "b"}))
	assert.False(t, IsAnswerCorrect(single, nil))

	assert.True(t, IsAnswerCorrect(multi, []string{"b", "a"}))
	assert.False(t, IsAnswerCorrect(multi, []string{"a"}))
	assert.False(t, IsAnswerCorrect(multi, []string{"a", "b", "c"}))
}

func TestQuizSubmitHalfCorrect(t *testing.T) {
	answers := map[string][]string{"q1": {"a"}, "q2": {"a"}}
	ic := newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionSubmitQuiz, map[string]any{"answers": answers})

	res, err := testEngine().Process(ic)
	require.NoError(t, err)

	assert.Equal(t, 1.0, *res.Score)
	assert.Equal(t, 2.0, *res.MaxScore)
	assert.Equal(t, 50.0, *res.Percentage)
	assert.False(t, *res.Passed)
	assert.Equal(t, progress.ComponentInProgress, res.NewStatus)
	assert.Zero(t, res.Progress)

	data, err := content.Decode[QuizProgressData](res.ProgressData)
	require.NoError(t, err)
	assert.Equal(t, 1, data.Attempts)
	assert.Empty(t, data.Answers)
}

func TestQuizAnswerThenSubmitPasses(t *testing.T) {
	e := testEngine()
	ic := newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionAnswerQuestion,
		map[string]any{"questionId": "q1", "selectedOptions": []string{"a"}})

	res, err := e.Process(ic)
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Progress)
	apply(ic, res)

	ic.Action = ActionSubmitQuiz
	ic.Data = raw(t, map[string]any{"answers": map[string][]string{"q2": {"a", "b"}}})
	res, err = e.Process(ic)
	require.NoError(t, err)

	assert.True(t, *res.Passed)
	assert.Equal(t, 100.0, *res.Percentage)
	assert.Equal(t, progress.ComponentCompleted, res.NewStatus)
	assert.Equal(t, 100.0, res.Progress)
	apply(ic, res)

	_, err = e.Process(ic)
	assert.ErrorIs(t, err, shared.ErrConflict)
}

func TestQuizAttemptsExhausted(t *testing.T) {
	quiz := twoQuestionQuiz()
	quiz.MaxAttempts = 1
	ic := newContext(t, content.TypeQuiz, quiz, ActionSubmitQuiz,
		map[string]any{"answers": map[string][]string{"q1": {"b"}}})

	res, err := testEngine().Process(ic)
	require.NoError(t, err)
	assert.Equal(t, progress.ComponentFailed, res.NewStatus)
	assert.Equal(t, 0, *res.AttemptsLeft)
	apply(ic, res)

	_, err = testEngine().Process(ic)
	assert.ErrorIs(t, err, shared.ErrAttemptsExhausted)
}

func TestQuizBusinessRules(t *testing.T) {
	e := testEngine()

	ic := newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionAnswerQuestion,
		map[string]any{"questionId": "q9", "selectedOptions": []string{"a"}})
	_, err := e.Process(ic)
	assert.True(t, shared.IsNotFound(err))

	ic = newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionAnswerQuestion,
		map[string]any{"questionId": "q1", "selectedOptions": []string{"z"}})
	_, err = e.Process(ic)
	assert.True(t, shared.IsNotFound(err))

	ic = newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionSubmitQuiz, map[string]any{})
	_, err = e.Process(ic)
	assert.True(t, shared.IsValidation(err))
}

func TestQuizSchema(t *testing.T) {
	h := NewQuizHandler(DefaultRules().Quiz)

	assert.True(t, h.ValidateSchema(raw(t, twoQuestionQuiz())).Valid)
	assert.False(t, h.ValidateSchema(raw(t, content.QuizData{})).Valid)

	noCorrect := twoQuestionQuiz()
	noCorrect.Questions[0].Options[0].IsCorrect = false
	assert.False(t, h.ValidateSchema(raw(t, noCorrect)).Valid)

	dup := twoQuestionQuiz()
	dup.Questions[1].ID = "q1"
	assert.False(t, h.ValidateSchema(raw(t, dup)).Valid)
}

func TestGradeWeighted(t *testing.T) {
	quiz := twoQuestionQuiz()
	quiz.Questions[0].Points = 3
	quiz.PassingScore = 70

	s := NewQuizHandler(DefaultRules().Quiz).Grade(quiz, map[string][]string{"q1": {"a"}})
	assert.Equal(t, 3.0, s.Score)
	assert.Equal(t, 4.0, s.MaxScore)
	assert.Equal(t, 75.0, s.Percentage)
	assert.True(t, s.Passed)
	assert.False(t, s.Correct["q2"])
}

func TestQuizRestartAfterAttemptsExhausted(t *testing.T) {
	quiz := twoQuestionQuiz()
	quiz.MaxAttempts = 1
	wrong := map[string][]string{"q1": {"b"}, "q2": {"c"}}
	ic := newContext(t, content.TypeQuiz, quiz, ActionSubmitQuiz, map[string]any{"answers": wrong})

	res, err := testEngine().Process(ic)
	require.NoError(t, err)
	require.Equal(t, progress.ComponentFailed, res.NewStatus)
	apply(ic, res)

	ic.Action, ic.Data = ActionStartQuiz, nil
	_, err = testEngine().Process(ic)
	assert.ErrorIs(t, err, shared.ErrAttemptsExhausted)

	right := map[string][]string{"q1": {"a"}, "q2": {"a", "b"}}
	ic.Action, ic.Data = ActionSubmitQuiz, raw(t, map[string]any{"answers": right})
	_, err = testEngine().Process(ic)
	assert.ErrorIs(t, err, shared.ErrAttemptsExhausted)
}

func TestQuizRestartKeepsPassedQuizCompleted(t *testing.T) {
	right := map[string][]string{"q1": {"a"}, "q2": {"a", "b"}}
	ic := newContext(t, content.TypeQuiz, twoQuestionQuiz(), ActionSubmitQuiz, map[string]any{"answers": right})

	res, err := testEngine().Process(ic)
	require.NoError(t, err)
	require.Equal(t, progress.ComponentCompleted, res.NewStatus)
	apply(ic, res)
	passedData := ic.Progress.ProgressData

	ic.Action, ic.Data = ActionStartQuiz, nil
	res, err = testEngine().Process(ic)
	require.NoError(t, err)
	assert.Equal(t, progress.ComponentCompleted, res.NewStatus)
	assert.Equal(t, 100.0, res.Progress)
	assert.Equal(t, &now, res.CompletedAt)
	assert.JSONEq(t, string(passedData), string(res.ProgressData))

	ic.Action, ic.Data = ActionSubmitQuiz, raw(t, map[string]any{"answers": right})
	_, err = testEngine().Process(ic)
	assert.ErrorIs(t, err, shared.ErrConflict)
}
