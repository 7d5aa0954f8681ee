package interaction

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Действия над квизом.
const (
	ActionStartQuiz      Action = "START_QUIZ"
	ActionAnswerQuestion Action = "ANSWER_QUESTION"
	ActionSubmitQuiz     Action = "SUBMIT_QUIZ"
)

// QuizProgressData - накопитель ответов и результатов попыток.
type QuizProgressData struct {
	Answers    map[string][]string `json:"answers,omitempty"`
	Attempts   int                 `json:"attempts"`
	StartedAt  *time.Time          `json:"startedAt,omitempty"`
	Score      float64             `json:"score,omitempty"`
	MaxScore   float64             `json:"maxScore,omitempty"`
	Percentage float64             `json:"percentage,omitempty"`
	Passed     bool                `json:"passed,omitempty"`
}

// QuizActionData - данные ANSWER_QUESTION и SUBMIT_QUIZ.
type QuizActionData struct {
	QuestionID      string   `json:"questionId,omitempty"`
	SelectedOptions []string `json:"selectedOptions,omitempty"`
	// Answers позволяет отправить все ответы вместе с SUBMIT_QUIZ.
	Answers map[string][]string `json:"answers,omitempty"`
}

// QuizScore - итог проверки квиза.
type QuizScore struct {
	Score      float64
	MaxScore   float64
	Percentage float64
	Passed     bool
	Correct    map[string]bool
}

// QuizHandler обрабатывает квизы.
type QuizHandler struct {
	rules QuizRules
}

// NewQuizHandler создаёт обработчик квизов.
func NewQuizHandler(rules QuizRules) *QuizHandler {
	return &QuizHandler{rules: rules}
}

// Type implements Handler.
func (h *QuizHandler) Type() content.Type { return content.TypeQuiz }

// SupportedActions implements Handler.
func (h *QuizHandler) SupportedActions() []Action {
	return []Action{ActionStartQuiz, ActionAnswerQuestion, ActionSubmitQuiz}
}

// ValidateSchema implements Handler.
func (h *QuizHandler) ValidateSchema(data json.RawMessage) ValidationResult {
	q, errs := decodeAction[content.QuizData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	errs = content.ValidateStruct(q)
	seen := make(map[string]struct{}, len(q.Questions))
	for _, qq := range q.Questions {
		if _, dup := seen[qq.ID]; dup {
			errs = append(errs, "duplicate question id "+qq.ID)
		}
		seen[qq.ID] = struct{}{}
		if len(qq.CorrectOptionIDs()) == 0 {
			errs = append(errs, "question "+qq.ID+" has no correct option")
		}
	}
	return fromErrors(errs)
}

// ValidateActionData implements Handler.
func (h *QuizHandler) ValidateActionData(action Action, data json.RawMessage) ValidationResult {
	if action == ActionStartQuiz {
		return Valid()
	}
	d, errs := decodeAction[QuizActionData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	if action == ActionAnswerQuestion {
		if d.QuestionID == "" {
			errs = append(errs, "questionId is required")
		}
		if len(d.SelectedOptions) == 0 {
			errs = append(errs, "selectedOptions must contain at least one option")
		}
	}
	for qid, opts := range d.Answers {
		if len(opts) == 0 {
			errs = append(errs, "answers["+qid+"] must contain at least one option")
		}
	}
	return fromErrors(errs)
}

func (h *QuizHandler) decode(ic *Context) (content.QuizData, QuizProgressData, QuizActionData, error) {
	var (
		prev QuizProgressData
		act  QuizActionData
	)
	q, err := content.Decode[content.QuizData](ic.Component.Data)
	if err != nil {
		return q, prev, act, err
	}
	if prev, err = content.Decode[QuizProgressData](ic.Progress.ProgressData); err != nil {
		return q, prev, act, err
	}
	if ic.Action != ActionStartQuiz {
		if act, err = content.Decode[QuizActionData](ic.Data); err != nil {
			return q, prev, act, err
		}
	}
	return q, prev, act, nil
}

func (h *QuizHandler) checkSelection(q content.QuizData, qid string, selected []string) error {
	question, ok := q.Question(qid)
	if !ok {
		return ruleError("AnswerQuestion", shared.ErrNotFound, "question %q not found", qid)
	}
	for _, opt := range selected {
		if !question.HasOption(opt) {
			return ruleError("AnswerQuestion", shared.ErrNotFound, "option %q not found in question %q", opt, qid)
		}
	}
	return nil
}

// ValidateBusinessRules implements Handler.
func (h *QuizHandler) ValidateBusinessRules(ic *Context) error {
	switch {
	case ic.Progress.Status == progress.ComponentFailed:
		return ruleError("Quiz", shared.ErrAttemptsExhausted, "no attempts left")
	case ic.Action == ActionStartQuiz:
		// повторный старт пройденного квиза ничего не меняет
		return nil
	case ic.Progress.Status == progress.ComponentCompleted:
		return ruleError("Quiz", shared.ErrConflict, "quiz is already passed")
	}
	q, prev, act, err := h.decode(ic)
	if err != nil {
		return err
	}

	if ic.Action == ActionAnswerQuestion {
		if err := h.checkSelection(q, act.QuestionID, act.SelectedOptions); err != nil {
			return err
		}
	}
	for qid, opts := range act.Answers {
		if err := h.checkSelection(q, qid, opts); err != nil {
			return err
		}
	}

	if ic.Action == ActionSubmitQuiz {
		if q.TimeLimit > 0 && prev.StartedAt != nil &&
			ic.Now.Sub(*prev.StartedAt) > time.Duration(q.TimeLimit)*time.Second {
			return ruleError("SubmitQuiz", shared.ErrValidation, "time limit of %d seconds exceeded", q.TimeLimit)
		}
		if len(mergeAnswers(prev.Answers, act)) == 0 {
			return ruleError("SubmitQuiz", shared.ErrValidation, "no answers to submit")
		}
	}
	return nil
}

func mergeAnswers(prev map[string][]string, act QuizActionData) map[string][]string {
	out := make(map[string][]string, len(prev)+len(act.Answers)+1)
	for k, v := range prev {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range act.Answers {
		out[k] = append([]string(nil), v...)
	}
	if act.QuestionID != "" && len(act.SelectedOptions) > 0 {
		out[act.QuestionID] = append([]string(nil), act.SelectedOptions...)
	}
	return out
}

// IsAnswerCorrect проверяет ответ на вопрос. Для multiple_choice выбранное
// множество должно в точности совпасть с множеством правильных вариантов;
// для всех остальных типов должен быть выбран ровно один правильный вариант.
func IsAnswerCorrect(q content.QuizQuestion, selected []string) bool {
	correct := q.CorrectOptionIDs()
	if q.Type == content.QuestionMultipleChoice {
		return sameSet(correct, selected)
	}
	if len(selected) != 1 {
		return false
	}
	for _, c := range correct {
		if c == selected[0] {
			return true
		}
	}
	return false
}

func sameSet(a, b []string) bool {
	as := uniqueSorted(a)
	bs := uniqueSorted(b)
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (h *QuizHandler) passingScore(q content.QuizData) float64 {
	if q.PassingScore > 0 {
		return q.PassingScore
	}
	return h.rules.DefaultPassingScore
}

// Grade вычисляет балл: сумма баллов правильно отвеченных вопросов,
// процент от максимума и признак прохождения.
func (h *QuizHandler) Grade(q content.QuizData, answers map[string][]string) QuizScore {
	s := QuizScore{MaxScore: q.MaxScore(), Correct: make(map[string]bool, len(q.Questions))}
	for _, qq := range q.Questions {
		ok := IsAnswerCorrect(qq, answers[qq.ID])
		s.Correct[qq.ID] = ok
		if ok {
			s.Score += qq.Weight()
		}
	}
	if s.MaxScore > 0 {
		s.Percentage = math.Round(s.Score/s.MaxScore*100*100) / 100
	}
	s.Passed = s.Percentage >= h.passingScore(q)
	return s
}

func answeredRatio(q content.QuizData, answers map[string][]string) float64 {
	if len(q.Questions) == 0 {
		return 0
	}
	answered := 0
	for _, qq := range q.Questions {
		if len(answers[qq.ID]) > 0 {
			answered++
		}
	}
	return float64(answered) / float64(len(q.Questions)) * 100
}

// CalculateProgress implements Handler: до отправки - доля отвеченных вопросов.
func (h *QuizHandler) CalculateProgress(ic *Context) (float64, error) {
	q, prev, act, err := h.decode(ic)
	if err != nil {
		return 0, err
	}
	if ic.Progress.Status == progress.ComponentCompleted {
		return 100, nil
	}
	answers := mergeAnswers(prev.Answers, act)
	if ic.Action == ActionSubmitQuiz && h.Grade(q, answers).Passed {
		return 100, nil
	}
	return answeredRatio(q, answers), nil
}

// IsCompleted implements Handler.
func (h *QuizHandler) IsCompleted(ic *Context) (bool, error) {
	if ic.Progress.Status == progress.ComponentCompleted {
		return true, nil
	}
	if ic.Action != ActionSubmitQuiz {
		return false, nil
	}
	q, prev, act, err := h.decode(ic)
	if err != nil {
		return false, err
	}
	return h.Grade(q, mergeAnswers(prev.Answers, act)).Passed, nil
}

// ProcessAction implements Handler.
func (h *QuizHandler) ProcessAction(ic *Context) (*Result, error) {
	if ic.Progress.Status == progress.ComponentCompleted {
		return &Result{
			NewStatus:    progress.ComponentCompleted,
			Progress:     100,
			ProgressData: ic.Progress.ProgressData,
			CompletedAt:  ic.Progress.CompletedAt,
			Feedback:     "quiz already passed",
		}, nil
	}
	q, data, act, err := h.decode(ic)
	if err != nil {
		return nil, err
	}
	if data.StartedAt == nil || (ic.Action == ActionStartQuiz && len(data.Answers) == 0) {
		data.StartedAt = ptr(ic.Now)
	}
	data.Answers = mergeAnswers(data.Answers, act)

	res := &Result{
		NewStatus: progress.ComponentInProgress,
		Progress:  answeredRatio(q, data.Answers),
	}

	if ic.Action == ActionSubmitQuiz {
		score := h.Grade(q, data.Answers)
		data.Score, data.MaxScore, data.Percentage, data.Passed = score.Score, score.MaxScore, score.Percentage, score.Passed
		res.Score = ptr(score.Score)
		res.MaxScore = ptr(score.MaxScore)
		res.Percentage = ptr(score.Percentage)
		res.Passed = ptr(score.Passed)

		if score.Passed {
			res.NewStatus = progress.ComponentCompleted
			res.Progress = 100
			res.CompletedAt = ptr(ic.Now)
			res.Feedback = "quiz passed"
		} else {
			data.Attempts++
			if q.MaxAttempts > 0 {
				res.AttemptsLeft = ptr(max(q.MaxAttempts-data.Attempts, 0))
			}
			if q.MaxAttempts > 0 && data.Attempts >= q.MaxAttempts {
				res.NewStatus = progress.ComponentFailed
				res.Feedback = "quiz failed, no attempts left"
			} else {
				data.Answers = nil
				data.StartedAt = nil
				res.Progress = 0
				res.Feedback = "quiz not passed, try again"
			}
		}
	}

	if res.ProgressData, err = encode(data); err != nil {
		return nil, err
	}
	return res, nil
}
