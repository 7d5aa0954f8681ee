// Package progress содержит агрегат прогресса по назначению:
// FlowProgress → StepProgress → ComponentProgress.
// Шаги открываются строго по порядку: следующий шаг открывается, когда
// все обязательные компоненты текущего завершены.
package progress

import (
	"encoding/json"
	"math"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

const domainName = "progress"

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// ComponentStatus - статус компонента.
type ComponentStatus string

const (
	ComponentLocked     ComponentStatus = "LOCKED"
	ComponentUnlocked   ComponentStatus = "UNLOCKED"
	ComponentNotStarted ComponentStatus = "NOT_STARTED"
	ComponentInProgress ComponentStatus = "IN_PROGRESS"
	ComponentCompleted  ComponentStatus = "COMPLETED"
	ComponentFailed     ComponentStatus = "FAILED"
)

// IsValid проверяет, что статус корректен.
func (s ComponentStatus) IsValid() bool {
	switch s {
	case ComponentLocked, ComponentUnlocked, ComponentNotStarted, ComponentInProgress, ComponentCompleted, ComponentFailed:
		return true
	default:
		return false
	}
}

// IsAccessible возвращает true, если с компонентом можно взаимодействовать.
func (s ComponentStatus) IsAccessible() bool {
	return s != ComponentLocked
}

// StepStatus - статус шага.
type StepStatus string

const (
	StepLocked     StepStatus = "LOCKED"
	StepUnlocked   StepStatus = "UNLOCKED"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
)

var (
	// ErrProgressNotFound - прогресс по назначению не найден.
	ErrProgressNotFound = shared.NewDomainError(domainName, "Find", shared.ErrNotFound, "flow progress not found")

	// ErrComponentNotTracked - компонент отсутствует в прогрессе.
	ErrComponentNotTracked = shared.NewDomainError(domainName, "FindComponent", shared.ErrNotFound, "component is not tracked by this progress")
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// ComponentProgress - прогресс по одному компоненту снапшота.
type ComponentProgress struct {
	ComponentSnapshotID string
	Status              ComponentStatus
	// Progress - процент выполнения [0, 100].
	Progress    float64
	StartedAt   *time.Time
	CompletedAt *time.Time
	// TimeSpent - секунды.
	TimeSpent int64
	// ProgressData - накопитель, форма которого определяется типом компонента.
	ProgressData json.RawMessage
	UpdatedAt    time.Time
}

// IsCompleted возвращает true для завершённого компонента.
func (c *ComponentProgress) IsCompleted() bool {
	return c.Status == ComponentCompleted
}

// StepProgress - прогресс по шагу.
type StepProgress struct {
	StepSnapshotID string
	Order          int
	Status         StepStatus
	CompletedAt    *time.Time
	Components     []ComponentProgress
}

// Component ищет прогресс компонента в шаге.
func (s *StepProgress) Component(componentID string) (*ComponentProgress, bool) {
	for i := range s.Components {
		if s.Components[i].ComponentSnapshotID == componentID {
			return &s.Components[i], true
		}
	}
	return nil, false
}

// FlowProgress - агрегированный прогресс по назначению (1:1).
type FlowProgress struct {
	AssignmentID     string
	SnapshotID       string
	CurrentStepOrder int
	CompletedSteps   int
	TotalSteps       int
	Percentage       float64
	Steps            []StepProgress
	// Version - версия для оптимистической блокировки.
	Version   int
	UpdatedAt time.Time
}

// Initialize создаёт прогресс для нового назначения: первый шаг и его
// компоненты открыты, остальные закрыты.
func Initialize(assignmentID string, snap *snapshot.FlowSnapshot, now time.Time) *FlowProgress {
	fp := &FlowProgress{
		AssignmentID: assignmentID,
		SnapshotID:   snap.ID,
		TotalSteps:   len(snap.Steps),
		Steps:        make([]StepProgress, 0, len(snap.Steps)),
		Version:      1,
		UpdatedAt:    now,
	}

	for i, st := range snap.Steps {
		stepStatus, compStatus := StepLocked, ComponentLocked
		if i == 0 {
			stepStatus, compStatus = StepUnlocked, ComponentUnlocked
			fp.CurrentStepOrder = st.Order
		}
		sp := StepProgress{
			StepSnapshotID: st.ID,
			Order:          st.Order,
			Status:         stepStatus,
			Components:     make([]ComponentProgress, 0, len(st.Components)),
		}
		for _, c := range st.Components {
			sp.Components = append(sp.Components, ComponentProgress{
				ComponentSnapshotID: c.ID,
				Status:              compStatus,
				UpdatedAt:           now,
			})
		}
		fp.Steps = append(fp.Steps, sp)
	}
	return fp
}

// ─────────────────────────────────────────────────────────────────────────────
// Навигация
// ─────────────────────────────────────────────────────────────────────────────

// Step ищет прогресс шага по порядку.
func (fp *FlowProgress) Step(order int) (*StepProgress, bool) {
	for i := range fp.Steps {
		if fp.Steps[i].Order == order {
			return &fp.Steps[i], true
		}
	}
	return nil, false
}

// Component ищет прогресс компонента и его шаг.
func (fp *FlowProgress) Component(componentID string) (*StepProgress, *ComponentProgress, error) {
	for i := range fp.Steps {
		if c, ok := fp.Steps[i].Component(componentID); ok {
			return &fp.Steps[i], c, nil
		}
	}
	return nil, nil, ErrComponentNotTracked
}

// IsFlowCompleted возвращает true, когда завершены все шаги.
func (fp *FlowProgress) IsFlowCompleted() bool {
	return fp.TotalSteps > 0 && fp.CompletedSteps >= fp.TotalSteps
}

// ─────────────────────────────────────────────────────────────────────────────
// Доступ
// ─────────────────────────────────────────────────────────────────────────────

// CanAccess проверяет гейтинг: шаг не дальше текущего и компонент открыт.
func (fp *FlowProgress) CanAccess(stepOrder int, componentID string) error {
	if stepOrder > fp.CurrentStepOrder {
		return shared.Errorf(domainName, "CanAccess", shared.ErrForbidden, "step %d is locked (current step is %d)", stepOrder, fp.CurrentStepOrder)
	}
	_, c, err := fp.Component(componentID)
	if err != nil {
		return err
	}
	if !c.Status.IsAccessible() {
		return shared.NewDomainError(domainName, "CanAccess", shared.ErrForbidden, "component is locked")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Мутации
// ─────────────────────────────────────────────────────────────────────────────

// ComponentUpdate - новое состояние компонента после взаимодействия.
type ComponentUpdate struct {
	Status       ComponentStatus
	Progress     float64
	ProgressData json.RawMessage
	// TimeSpentDelta - секунды, добавляемые к накопленному времени.
	TimeSpentDelta int64
	CompletedAt    *time.Time
}

// ApplyComponentUpdate записывает результат взаимодействия в прогресс компонента.
func (fp *FlowProgress) ApplyComponentUpdate(componentID string, u ComponentUpdate, now time.Time) (*ComponentProgress, error) {
	if !u.Status.IsValid() {
		return nil, shared.Errorf(domainName, "ApplyComponentUpdate", shared.ErrValidation, "invalid component status %q", u.Status)
	}
	if u.TimeSpentDelta < 0 {
		return nil, shared.NewDomainError(domainName, "ApplyComponentUpdate", shared.ErrNegativeValue, "time spent cannot be negative")
	}
	step, c, err := fp.Component(componentID)
	if err != nil {
		return nil, err
	}

	c.Status = u.Status
	c.Progress = clampPercent(u.Progress)
	if u.ProgressData != nil {
		c.ProgressData = u.ProgressData
	}
	c.TimeSpent += u.TimeSpentDelta
	if c.StartedAt == nil && u.Status != ComponentLocked && u.Status != ComponentUnlocked {
		c.StartedAt = &now
	}
	if u.Status == ComponentCompleted {
		at := now
		if u.CompletedAt != nil {
			at = *u.CompletedAt
		}
		if c.CompletedAt == nil {
			c.CompletedAt = &at
		}
		c.Progress = 100
	}
	c.UpdatedAt = now

	if step.Status == StepUnlocked {
		step.Status = StepInProgress
	}
	fp.UpdatedAt = now
	return c, nil
}

// IsStepCompleted проверяет, что все обязательные компоненты шага завершены.
// Шаг без обязательных компонентов считается завершённым.
func (fp *FlowProgress) IsStepCompleted(step snapshot.StepSnapshot) bool {
	sp, ok := fp.Step(step.Order)
	if !ok {
		return false
	}
	for _, req := range step.RequiredComponents() {
		c, ok := sp.Component(req.ID)
		if !ok || !c.IsCompleted() {
			return false
		}
	}
	return true
}

// StepCompletion - результат проверки шага.
type StepCompletion struct {
	// Completed - шаг (и, возможно, следующие) завершён этой проверкой.
	Completed bool
	// CompletedSteps - порядки шагов, завершённых этой проверкой.
	CompletedSteps []int
	// UnlockedStepIDs - идентификаторы открытых шагов снапшота.
	UnlockedStepIDs []string
	// UnlockedComponentIDs - идентификаторы открытых компонентов.
	UnlockedComponentIDs []string
}

// CompleteStepIfDone завершает шаг, если все его обязательные компоненты
// выполнены, и открывает следующий. Открытие каскадирует, пока следующий
// шаг тоже оказывается завершённым.
func (fp *FlowProgress) CompleteStepIfDone(snap *snapshot.FlowSnapshot, stepOrder int, now time.Time) StepCompletion {
	var res StepCompletion

	order := stepOrder
	for {
		step, ok := snap.StepByOrder(order)
		if !ok {
			break
		}
		sp, ok := fp.Step(order)
		if !ok || sp.Status == StepCompleted || sp.Status == StepLocked {
			break
		}
		if !fp.IsStepCompleted(step) {
			break
		}

		sp.Status = StepCompleted
		sp.CompletedAt = &now
		res.Completed = true
		res.CompletedSteps = append(res.CompletedSteps, order)

		next, ok := snap.NextStep(order)
		if !ok {
			break
		}
		nsp, ok := fp.Step(next.Order)
		if !ok {
			break
		}
		if nsp.Status == StepLocked {
			nsp.Status = StepUnlocked
			res.UnlockedStepIDs = append(res.UnlockedStepIDs, nsp.StepSnapshotID)
			for i := range nsp.Components {
				if nsp.Components[i].Status == ComponentLocked {
					nsp.Components[i].Status = ComponentUnlocked
					nsp.Components[i].UpdatedAt = now
					res.UnlockedComponentIDs = append(res.UnlockedComponentIDs, nsp.Components[i].ComponentSnapshotID)
				}
			}
		}
		if next.Order > fp.CurrentStepOrder {
			fp.CurrentStepOrder = next.Order
		}
		order = next.Order
	}

	fp.Recalculate(now)
	return res
}

// Recalculate пересчитывает агрегаты: число завершённых шагов и процент.
func (fp *FlowProgress) Recalculate(now time.Time) {
	completed := 0
	for _, sp := range fp.Steps {
		if sp.Status == StepCompleted {
			completed++
		}
	}
	fp.CompletedSteps = completed
	fp.TotalSteps = len(fp.Steps)
	if fp.TotalSteps == 0 {
		fp.Percentage = 0
	} else {
		fp.Percentage = roundPercent(float64(completed) / float64(fp.TotalSteps) * 100)
	}
	fp.UpdatedAt = now
}

// TotalTimeSpent суммирует время по всем компонентам.
func (fp *FlowProgress) TotalTimeSpent() int64 {
	var total int64
	for _, sp := range fp.Steps {
		for _, c := range sp.Components {
			total += c.TimeSpent
		}
	}
	return total
}

func clampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p) || p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func roundPercent(p float64) float64 {
	return math.Round(p*100) / 100
}
