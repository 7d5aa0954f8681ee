package interaction

import (
	"encoding/json"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Действия над заданием.
const (
	ActionStartTask    Action = "START_TASK"
	ActionSubmitAnswer Action = "SUBMIT_ANSWER"
	ActionRequestHint  Action = "REQUEST_HINT"
)

// TaskProgressData - накопитель попыток.
type TaskProgressData struct {
	Attempts      int        `json:"attempts"`
	WrongAttempts int        `json:"wrongAttempts"`
	HintUsed      bool       `json:"hintUsed,omitempty"`
	LastAnswer    string     `json:"lastAnswer,omitempty"`
	IsCorrect     bool       `json:"isCorrect,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
}

// TaskActionData - данные SUBMIT_ANSWER.
type TaskActionData struct {
	Answer string `json:"answer" validate:"required"`
}

// TaskHandler обрабатывает задания с проверяемым ответом.
type TaskHandler struct {
	rules TaskRules
}

// NewTaskHandler создаёт обработчик заданий.
func NewTaskHandler(rules TaskRules) *TaskHandler {
	return &TaskHandler{rules: rules}
}

// Type implements Handler.
func (h *TaskHandler) Type() content.Type { return content.TypeTask }

// SupportedActions implements Handler.
func (h *TaskHandler) SupportedActions() []Action {
	return []Action{ActionStartTask, ActionSubmitAnswer, ActionRequestHint}
}

// ValidateSchema implements Handler.
func (h *TaskHandler) ValidateSchema(data json.RawMessage) ValidationResult {
	t, errs := decodeAction[content.TaskData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	errs = content.ValidateStruct(t)
	if !t.HasAnswer() {
		errs = append(errs, "task needs a correct answer, expected output, alternatives or a pattern")
	}
	if t.Pattern != "" {
		if _, err := regexp.Compile(t.Pattern); err != nil {
			errs = append(errs, "pattern is not a valid regular expression")
		}
	}
	return fromErrors(errs)
}

// ValidateActionData implements Handler.
func (h *TaskHandler) ValidateActionData(action Action, data json.RawMessage) ValidationResult {
	if action != ActionSubmitAnswer {
		return Valid()
	}
	d, errs := decodeAction[TaskActionData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	if strings.TrimSpace(d.Answer) == "" {
		return Invalid("answer is required")
	}
	return fromErrors(content.ValidateStruct(d))
}

func (h *TaskHandler) maxAttempts(t content.TaskData) int {
	if t.MaxAttempts > 0 {
		return t.MaxAttempts
	}
	return h.rules.DefaultMaxAttempts
}

// ValidateBusinessRules implements Handler.
func (h *TaskHandler) ValidateBusinessRules(ic *Context) error {
	if ic.Action != ActionSubmitAnswer {
		return nil
	}
	t, prev, err := h.decode(ic)
	if err != nil {
		return err
	}
	switch {
	case ic.Progress.Status == progress.ComponentCompleted:
		return ruleError("SubmitAnswer", shared.ErrConflict, "task is already completed")
	case ic.Progress.Status == progress.ComponentFailed || prev.Attempts >= h.maxAttempts(t):
		return ruleError("SubmitAnswer", shared.ErrAttemptsExhausted, "maximum of %d attempts reached", h.maxAttempts(t))
	}
	if t.TimeLimit > 0 && prev.StartedAt != nil {
		if ic.Now.Sub(*prev.StartedAt) > time.Duration(t.TimeLimit)*time.Second {
			return ruleError("SubmitAnswer", shared.ErrValidation, "time limit of %d seconds exceeded", t.TimeLimit)
		}
	}
	return nil
}

func (h *TaskHandler) decode(ic *Context) (content.TaskData, TaskProgressData, error) {
	t, err := content.Decode[content.TaskData](ic.Component.Data)
	if err != nil {
		return t, TaskProgressData{}, err
	}
	prev, err := content.Decode[TaskProgressData](ic.Progress.ProgressData)
	return t, prev, err
}

// CheckAnswer сравнивает ответ с эталонами по правилам задания.
func CheckAnswer(t content.TaskData, answer string) bool {
	norm := func(s string) string {
		if t.Trim() {
			s = strings.TrimSpace(s)
		}
		if !t.CaseSensitive {
			s = strings.ToLower(s)
		}
		return s
	}

	given := norm(answer)
	candidates := append([]string{t.CorrectAnswer, t.ExpectedOutput}, t.AlternativeAnswers...)
	for _, c := range candidates {
		if c == "" {
			continue
		}
		want := norm(c)
		if given == want {
			return true
		}
		if t.AllowPartialMatch && want != "" && strings.Contains(given, want) {
			return true
		}
	}

	if t.Pattern != "" {
		expr := t.Pattern
		if !t.CaseSensitive {
			expr = "(?i)" + expr
		}
		if re, err := regexp.Compile(expr); err == nil {
			subject := answer
			if t.Trim() {
				subject = strings.TrimSpace(subject)
			}
			if re.MatchString(subject) {
				return true
			}
		}
	}
	return false
}

// next вычисляет состояние после действия, не трогая вход.
func (h *TaskHandler) next(ic *Context) (content.TaskData, TaskProgressData, error) {
	t, data, err := h.decode(ic)
	if err != nil {
		return t, data, err
	}
	if data.StartedAt == nil {
		data.StartedAt = ptr(ic.Now)
	}
	switch ic.Action {
	case ActionRequestHint:
		data.HintUsed = true
	case ActionSubmitAnswer:
		d, err := content.Decode[TaskActionData](ic.Data)
		if err != nil {
			return t, data, err
		}
		data.Attempts++
		data.LastAnswer = d.Answer
		data.IsCorrect = CheckAnswer(t, d.Answer)
		if !data.IsCorrect {
			data.WrongAttempts++
		}
	}
	return t, data, nil
}

func (h *TaskHandler) progressOf(t content.TaskData, data TaskProgressData) float64 {
	if data.IsCorrect {
		return 100
	}
	p := float64(data.Attempts) / float64(h.maxAttempts(t)) * 50
	if data.HintUsed {
		p += 10
	}
	return math.Min(p, 99)
}

// CalculateProgress implements Handler: попытки/максимум×50 + 10 за подсказку,
// не больше 99 до правильного ответа.
func (h *TaskHandler) CalculateProgress(ic *Context) (float64, error) {
	t, data, err := h.next(ic)
	if err != nil {
		return 0, err
	}
	return h.progressOf(t, data), nil
}

// IsCompleted implements Handler.
func (h *TaskHandler) IsCompleted(ic *Context) (bool, error) {
	if ic.Progress.Status == progress.ComponentCompleted {
		return true, nil
	}
	_, data, err := h.next(ic)
	if err != nil {
		return false, err
	}
	return data.IsCorrect, nil
}

// ProcessAction implements Handler.
func (h *TaskHandler) ProcessAction(ic *Context) (*Result, error) {
	t, data, err := h.next(ic)
	if err != nil {
		return nil, err
	}

	maxAttempts := h.maxAttempts(t)
	res := &Result{
		NewStatus: progress.ComponentInProgress,
		Progress:  h.progressOf(t, data),
	}
	if ic.Progress.Status == progress.ComponentCompleted || ic.Progress.Status == progress.ComponentFailed {
		res.NewStatus = ic.Progress.Status
		res.Progress = ic.Progress.Progress
	}

	switch ic.Action {
	case ActionRequestHint:
		res.Hint = t.Hint
		if res.Hint == "" {
			res.Feedback = "no hint available for this task"
		}
	case ActionSubmitAnswer:
		res.IsCorrect = ptr(data.IsCorrect)
		res.AttemptsLeft = ptr(max(maxAttempts-data.Attempts, 0))
		switch {
		case data.IsCorrect:
			res.NewStatus = progress.ComponentCompleted
			res.Progress = 100
			res.CompletedAt = ptr(ic.Now)
			res.Feedback = "correct"
		case data.Attempts >= maxAttempts:
			res.NewStatus = progress.ComponentFailed
			res.Feedback = "no attempts left"
		default:
			res.Feedback = "incorrect, try again"
		}
		if !data.IsCorrect {
			if data.WrongAttempts >= h.rules.HintAfterWrong {
				res.Hint = t.Hint
			}
			if data.WrongAttempts >= h.rules.ExamplesAfterWrong {
				res.Examples = append([]string(nil), t.Examples...)
			}
		}
	}

	if res.ProgressData, err = encode(data); err != nil {
		return nil, err
	}
	return res, nil
}
