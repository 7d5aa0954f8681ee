// Package flow содержит шаблон обучающего потока: упорядоченные шаги
// и определения компонентов. Шаблон изменяемый; запущенные назначения
// никогда не ссылаются на него напрямую, только на снапшот.
package flow

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

const domainName = "flow"

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrFlowNotFound - поток не найден.
	ErrFlowNotFound = shared.NewDomainError(domainName, "Find", shared.ErrNotFound, "flow not found")

	// ErrStepNotFound - шаг не найден.
	ErrStepNotFound = shared.NewDomainError(domainName, "FindStep", shared.ErrNotFound, "step not found")

	// ErrDuplicateStepOrder - порядок шага должен быть уникален в пределах потока.
	ErrDuplicateStepOrder = shared.NewDomainError(domainName, "AddStep", shared.ErrValidation, "step order must be unique within a flow")

	// ErrDuplicateComponentOrder - порядок компонента должен быть уникален в пределах шага.
	ErrDuplicateComponentOrder = shared.NewDomainError(domainName, "AddComponent", shared.ErrValidation, "component order must be unique within a step")

	// ErrInvalidTitle - пустой или слишком длинный заголовок.
	ErrInvalidTitle = shared.NewDomainError(domainName, "Validate", shared.ErrValidation, "title must be 1-200 chars")

	// ErrInvalidOrder - порядок должен быть положительным.
	ErrInvalidOrder = shared.NewDomainError(domainName, "Validate", shared.ErrValueOutOfRange, "order must be positive")

	// ErrInvalidDeadlineDays - срок по умолчанию вне диапазона.
	ErrInvalidDeadlineDays = shared.NewDomainError(domainName, "Validate", shared.ErrValueOutOfRange, "default deadline days must be within 0..365")
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: FLOW
// ══════════════════════════════════════════════════════════════════════════════

// ComponentDefinition - определение компонента в шаблоне.
type ComponentDefinition struct {
	ID          string
	Order       int
	Type        content.Type
	TypeVersion int
	IsRequired  bool
	// Data - непрозрачный payload, форма которого определяется Type.
	Data json.RawMessage
}

// Step - шаг шаблона.
type Step struct {
	ID          string
	Order       int
	Title       string
	Description string
	Components  []ComponentDefinition
}

// Flow - шаблон обучающего пути.
type Flow struct {
	ID                  string
	Version             int
	Title               string
	Description         string
	IsActive            bool
	DefaultDeadlineDays int
	Steps               []Step
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewFlowParams содержит параметры для создания потока.
type NewFlowParams struct {
	ID                  string
	Title               string
	Description         string
	DefaultDeadlineDays int
	CreatedBy           string
}

// NewFlow создаёт пустой активный поток версии 1.
func NewFlow(params NewFlowParams, now time.Time) (*Flow, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, shared.NewDomainError(domainName, "New", shared.ErrInvalidID, "flow id is required")
	}
	title := strings.TrimSpace(params.Title)
	if title == "" || len(title) > 200 {
		return nil, ErrInvalidTitle
	}
	if params.DefaultDeadlineDays < 0 || params.DefaultDeadlineDays > 365 {
		return nil, ErrInvalidDeadlineDays
	}

	return &Flow{
		ID:                  params.ID,
		Version:             1,
		Title:               title,
		Description:         params.Description,
		IsActive:            true,
		DefaultDeadlineDays: params.DefaultDeadlineDays,
		CreatedBy:           params.CreatedBy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Производные значения (никогда не хранятся счётчиками)
// ─────────────────────────────────────────────────────────────────────────────

// StepCount возвращает количество шагов.
func (f *Flow) StepCount() int {
	return len(f.Steps)
}

// ComponentCount возвращает общее количество компонентов во всех шагах.
func (f *Flow) ComponentCount() int {
	n := 0
	for _, s := range f.Steps {
		n += len(s.Components)
	}
	return n
}

// IsReady сообщает, можно ли назначать поток.
func (f *Flow) IsReady() bool {
	return f.IsActive && len(f.Steps) > 0
}

// StepByOrder ищет шаг по порядку.
func (f *Flow) StepByOrder(order int) (*Step, bool) {
	for i := range f.Steps {
		if f.Steps[i].Order == order {
			return &f.Steps[i], true
		}
	}
	return nil, false
}

// ─────────────────────────────────────────────────────────────────────────────
// Мутаторы (каждое изменение повышает Version)
// ─────────────────────────────────────────────────────────────────────────────

// AddStep добавляет шаг, сохраняя сортировку по Order.
func (f *Flow) AddStep(step Step, now time.Time) error {
	if step.Order <= 0 {
		return ErrInvalidOrder
	}
	title := strings.TrimSpace(step.Title)
	if title == "" || len(title) > 200 {
		return ErrInvalidTitle
	}
	if _, exists := f.StepByOrder(step.Order); exists {
		return ErrDuplicateStepOrder
	}
	if err := validateComponents(step.Components); err != nil {
		return err
	}

	step.Title = title
	f.Steps = append(f.Steps, step)
	sort.SliceStable(f.Steps, func(i, j int) bool { return f.Steps[i].Order < f.Steps[j].Order })
	f.touch(now)
	return nil
}

// RemoveStep удаляет шаг по порядку.
func (f *Flow) RemoveStep(order int, now time.Time) error {
	for i := range f.Steps {
		if f.Steps[i].Order == order {
			f.Steps = append(f.Steps[:i], f.Steps[i+1:]...)
			f.touch(now)
			return nil
		}
	}
	return ErrStepNotFound
}

// AddComponent добавляет компонент в шаг с указанным порядком.
func (f *Flow) AddComponent(stepOrder int, def ComponentDefinition, now time.Time) error {
	step, ok := f.StepByOrder(stepOrder)
	if !ok {
		return ErrStepNotFound
	}
	next := append(append([]ComponentDefinition(nil), step.Components...), def)
	if err := validateComponents(next); err != nil {
		return err
	}
	sort.SliceStable(next, func(i, j int) bool { return next[i].Order < next[j].Order })
	step.Components = next
	f.touch(now)
	return nil
}

// UpdateDetails меняет заголовок, описание и срок по умолчанию.
func (f *Flow) UpdateDetails(title, description string, defaultDeadlineDays int, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" || len(title) > 200 {
		return ErrInvalidTitle
	}
	if defaultDeadlineDays < 0 || defaultDeadlineDays > 365 {
		return ErrInvalidDeadlineDays
	}
	f.Title = title
	f.Description = description
	f.DefaultDeadlineDays = defaultDeadlineDays
	f.touch(now)
	return nil
}

// Activate делает поток доступным для назначения.
func (f *Flow) Activate(now time.Time) {
	if !f.IsActive {
		f.IsActive = true
		f.touch(now)
	}
}

// Deactivate снимает поток с назначения. Существующие назначения не затрагиваются.
func (f *Flow) Deactivate(now time.Time) {
	if f.IsActive {
		f.IsActive = false
		f.touch(now)
	}
}

func (f *Flow) touch(now time.Time) {
	f.Version++
	f.UpdatedAt = now
}

func validateComponents(defs []ComponentDefinition) error {
	seen := make(map[int]struct{}, len(defs))
	for _, d := range defs {
		if d.Order <= 0 {
			return ErrInvalidOrder
		}
		if strings.TrimSpace(string(d.Type)) == "" {
			return shared.NewDomainError(domainName, "AddComponent", shared.ErrValidation, "component type is required")
		}
		if _, dup := seen[d.Order]; dup {
			return ErrDuplicateComponentOrder
		}
		seen[d.Order] = struct{}{}
	}
	return nil
}
