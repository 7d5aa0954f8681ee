// Package snapshot содержит неизменяемую копию потока, замороженную
// в момент назначения. Последующие правки шаблона на снапшот не влияют.
package snapshot

import (
	"encoding/json"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

const domainName = "snapshot"

var (
	// ErrSnapshotNotFound - снапшот не найден.
	ErrSnapshotNotFound = shared.NewDomainError(domainName, "Find", shared.ErrNotFound, "snapshot not found")

	// ErrComponentNotFound - компонента нет в снапшоте.
	ErrComponentNotFound = shared.NewDomainError(domainName, "FindComponent", shared.ErrNotFound, "component not found in snapshot")

	// ErrFlowNotReady - поток неактивен или не содержит шагов.
	ErrFlowNotReady = shared.NewDomainError(domainName, "Build", shared.ErrNotReady, "flow is inactive or has no steps")
)

// ComponentSnapshot - замороженная копия компонента.
type ComponentSnapshot struct {
	ID                  string
	OriginalComponentID string
	Order               int
	IsRequired          bool
	Type                content.Type
	TypeVersion         int
	Data                json.RawMessage
}

// StepSnapshot - замороженная копия шага.
type StepSnapshot struct {
	ID             string
	OriginalStepID string
	Order          int
	Title          string
	Description    string
	Components     []ComponentSnapshot
}

// RequiredComponents возвращает обязательные компоненты шага.
func (s StepSnapshot) RequiredComponents() []ComponentSnapshot {
	var out []ComponentSnapshot
	for _, c := range s.Components {
		if c.IsRequired {
			out = append(out, c)
		}
	}
	return out
}

// FlowSnapshot - неизменяемая копия потока, привязанная к одному назначению.
type FlowSnapshot struct {
	ID                  string
	CreatedAt           time.Time
	Title               string
	Description         string
	OriginalFlowID      string
	OriginalFlowVersion int
	// AssignmentID становится nil, если назначение удалено.
	AssignmentID *string
	CreatedBy    string
	Metadata     json.RawMessage
	// Checksum - BLAKE2b-256 от канонического содержимого (hex).
	Checksum string
	Steps    []StepSnapshot
}

// TotalSteps возвращает количество шагов.
func (s *FlowSnapshot) TotalSteps() int {
	return len(s.Steps)
}

// ComponentCount возвращает количество компонентов.
func (s *FlowSnapshot) ComponentCount() int {
	n := 0
	for _, st := range s.Steps {
		n += len(st.Components)
	}
	return n
}

// StepByOrder ищет шаг по порядку.
func (s *FlowSnapshot) StepByOrder(order int) (StepSnapshot, bool) {
	for _, st := range s.Steps {
		if st.Order == order {
			return st, true
		}
	}
	return StepSnapshot{}, false
}

// NextStep возвращает шаг, следующий за order.
func (s *FlowSnapshot) NextStep(order int) (StepSnapshot, bool) {
	for _, st := range s.Steps {
		if st.Order > order {
			return st, true
		}
	}
	return StepSnapshot{}, false
}

// FindComponent находит компонент и содержащий его шаг.
func (s *FlowSnapshot) FindComponent(componentID string) (StepSnapshot, ComponentSnapshot, error) {
	for _, st := range s.Steps {
		for _, c := range st.Components {
			if c.ID == componentID {
				return st, c, nil
			}
		}
	}
	return StepSnapshot{}, ComponentSnapshot{}, ErrComponentNotFound
}

// Detach снимает обратную ссылку на удалённое назначение.
// Это единственная допустимая мутация снапшота.
func (s *FlowSnapshot) Detach() {
	s.AssignmentID = nil
}

// IsAttached сообщает, привязан ли снапшот к назначению.
func (s *FlowSnapshot) IsAttached() bool {
	return s.AssignmentID != nil
}
