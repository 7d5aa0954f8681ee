// Package interaction содержит движок взаимодействий с компонентами.
// Каждый тип компонента обслуживается своим Handler; Registry сопоставляет
// тип и обработчик, Engine выполняет проверки в фиксированном порядке:
// схема → данные действия → бизнес-правила → обработка.
package interaction

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

const domainName = "interaction"

// Action - имя действия пользователя над компонентом.
type Action string

// Context - всё, что нужно обработчику для одного взаимодействия.
type Context struct {
	Component snapshot.ComponentSnapshot
	// Progress - текущее состояние компонента до взаимодействия.
	Progress progress.ComponentProgress
	Action   Action
	Data     json.RawMessage
	// TimeSpent - секунды, прошедшие с прошлого взаимодействия.
	TimeSpent int64
	Now       time.Time
}

// ValidationResult - результат структурной проверки.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Valid возвращает успешный результат.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid возвращает результат с ошибками.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

func fromErrors(errs []string) ValidationResult {
	if len(errs) == 0 {
		return Valid()
	}
	return Invalid(errs...)
}

// Err превращает результат в доменную ошибку валидации.
func (v ValidationResult) Err(op string) error {
	if v.Valid {
		return nil
	}
	return shared.NewDomainError(domainName, op, shared.ErrValidation, strings.Join(v.Errors, "; "))
}

// Result - результат обработки действия.
type Result struct {
	NewStatus    progress.ComponentStatus `json:"newStatus"`
	Progress     float64                  `json:"progress"`
	ProgressData json.RawMessage          `json:"progressData,omitempty"`
	CompletedAt  *time.Time               `json:"completedAt,omitempty"`

	IsCorrect    *bool    `json:"isCorrect,omitempty"`
	Score        *float64 `json:"score,omitempty"`
	MaxScore     *float64 `json:"maxScore,omitempty"`
	Percentage   *float64 `json:"percentage,omitempty"`
	Passed       *bool    `json:"passed,omitempty"`
	Hint         string   `json:"hint,omitempty"`
	Examples     []string `json:"examples,omitempty"`
	AttemptsLeft *int     `json:"attemptsLeft,omitempty"`
	Feedback     string   `json:"feedback,omitempty"`
}

// IsCompleted возвращает true, если действие завершило компонент.
func (r *Result) IsCompleted() bool {
	return r.NewStatus == progress.ComponentCompleted
}

// Handler - общий контракт обработчиков всех типов компонентов.
type Handler interface {
	// Type возвращает тип обслуживаемых компонентов.
	Type() content.Type

	// SupportedActions возвращает статический набор действий.
	SupportedActions() []Action

	// ValidateSchema проверяет замороженный payload компонента.
	ValidateSchema(data json.RawMessage) ValidationResult

	// ValidateActionData проверяет входные данные действия.
	ValidateActionData(action Action, data json.RawMessage) ValidationResult

	// ValidateBusinessRules выполняет контекстные проверки.
	ValidateBusinessRules(ic *Context) error

	// ProcessAction вычисляет новое состояние компонента.
	ProcessAction(ic *Context) (*Result, error)

	// IsCompleted - чистая функция: завершит ли действие компонент.
	IsCompleted(ic *Context) (bool, error)

	// CalculateProgress - чистая функция: процент [0,100] после действия.
	CalculateProgress(ic *Context) (float64, error)
}

// Supports проверяет, объявляет ли обработчик действие.
func Supports(h Handler, action Action) bool {
	for _, a := range h.SupportedActions() {
		if a == action {
			return true
		}
	}
	return false
}

// ─────────────────────────────────────────────────────────────────────────────
// Вспомогательные функции для обработчиков
// ─────────────────────────────────────────────────────────────────────────────

func decodeAction[T any](data json.RawMessage) (T, []string) {
	v, err := content.Decode[T](data)
	if err != nil {
		return v, []string{"malformed action data: " + err.Error()}
	}
	return v, nil
}

func encode(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, shared.WrapError(domainName, "Encode", shared.ErrInvalidInput, "cannot encode progress data", err)
	}
	return raw, nil
}

func ruleError(op string, kind error, format string, args ...any) error {
	return shared.Errorf(domainName, op, kind, format, args...)
}

func ptr[T any](v T) *T { return &v }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
