package service

import (
	"encoding/json"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS SERVICE
// Writes interaction results into FlowProgress and drives step unlocking.
// It works on loaded aggregates; persistence belongs to the caller's unit of work.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressService coordinates component progress, step unlocking and flow completion.
type ProgressService struct {
	engine *interaction.Engine
}

// NewProgressService creates a ProgressService.
func NewProgressService(engine *interaction.Engine) *ProgressService {
	return &ProgressService{engine: engine}
}

// Outcome is what one applied interaction changed.
type Outcome struct {
	Component     progress.ComponentProgress
	Step          progress.StepCompletion
	FlowCompleted bool
	// CompletedNow reports whether this update moved the component to COMPLETED.
	CompletedNow bool
}

// UpdateComponentProgress writes the new status, progress data and time spent of a component.
func (s *ProgressService) UpdateComponentProgress(
	fp *progress.FlowProgress,
	componentID string,
	status progress.ComponentStatus,
	pct float64,
	data json.RawMessage,
	timeSpent int64,
	completedAt *time.Time,
	now time.Time,
) (*progress.ComponentProgress, error) {
	return fp.ApplyComponentUpdate(componentID, progress.ComponentUpdate{
		Status:         status,
		Progress:       pct,
		ProgressData:   data,
		TimeSpentDelta: timeSpent,
		CompletedAt:    completedAt,
	}, now)
}

// CheckStepCompletion completes the step if all its required components are
// done and unlocks the next one.
func (s *ProgressService) CheckStepCompletion(fp *progress.FlowProgress, snap *snapshot.FlowSnapshot, stepOrder int, now time.Time) progress.StepCompletion {
	return fp.CompleteStepIfDone(snap, stepOrder, now)
}

// CheckFlowCompletion reports whether every step is completed.
func (s *ProgressService) CheckFlowCompletion(fp *progress.FlowProgress) bool {
	return fp.IsFlowCompleted()
}

// Apply runs the whole coordination for one interaction result.
func (s *ProgressService) Apply(
	fp *progress.FlowProgress,
	snap *snapshot.FlowSnapshot,
	componentID string,
	res *interaction.Result,
	timeSpent int64,
	now time.Time,
) (*Outcome, error) {
	step, _, err := snap.FindComponent(componentID)
	if err != nil {
		return nil, err
	}
	_, before, err := fp.Component(componentID)
	if err != nil {
		return nil, err
	}
	wasCompleted := before.IsCompleted()

	c, err := s.UpdateComponentProgress(fp, componentID, res.NewStatus, res.Progress, res.ProgressData, timeSpent, res.CompletedAt, now)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Component:    *c,
		CompletedNow: !wasCompleted && c.IsCompleted(),
	}
	out.Step = s.CheckStepCompletion(fp, snap, step.Order, now)
	out.FlowCompleted = s.CheckFlowCompletion(fp)
	return out, nil
}

// CompletedComponents counts completed components across the flow.
func CompletedComponents(fp *progress.FlowProgress) int {
	n := 0
	for _, sp := range fp.Steps {
		for _, c := range sp.Components {
			if c.IsCompleted() {
				n++
			}
		}
	}
	return n
}

// AvailableAction lists what a learner can do next with one component.
type AvailableAction struct {
	StepOrder     int                      `json:"stepOrder"`
	ComponentID   string                   `json:"componentId"`
	ComponentType content.Type             `json:"componentType"`
	IsRequired    bool                     `json:"isRequired"`
	Status        progress.ComponentStatus `json:"status"`
	Actions       []interaction.Action     `json:"actions"`
}

// GetNextAvailableActions returns, for the current step, every accessible and
// not yet completed component with the actions its handler supports.
func (s *ProgressService) GetNextAvailableActions(fp *progress.FlowProgress, snap *snapshot.FlowSnapshot) []AvailableAction {
	step, ok := snap.StepByOrder(fp.CurrentStepOrder)
	if !ok {
		return nil
	}
	sp, ok := fp.Step(step.Order)
	if !ok || sp.Status == progress.StepLocked {
		return nil
	}

	var out []AvailableAction
	for _, comp := range step.Components {
		cp, ok := sp.Component(comp.ID)
		if !ok || !cp.Status.IsAccessible() || cp.IsCompleted() || cp.Status == progress.ComponentFailed {
			continue
		}
		actions := s.engine.SupportedActions(&interaction.Context{Component: comp})
		if len(actions) == 0 {
			continue
		}
		out = append(out, AvailableAction{
			StepOrder:     step.Order,
			ComponentID:   comp.ID,
			ComponentType: comp.Type,
			IsRequired:    comp.IsRequired,
			Status:        cp.Status,
			Actions:       actions,
		})
	}
	return out
}
