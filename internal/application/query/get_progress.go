// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ASSIGNMENT PROGRESS QUERY
// Полная картина назначения: статус, срок, прогресс по шагам и компонентам
// и список доступных следующих действий.
// ══════════════════════════════════════════════════════════════════════════════

// GetAssignmentProgressQuery содержит параметры запроса.
type GetAssignmentProgressQuery struct {
	// AssignmentID - ID назначения.
	AssignmentID string

	// ViewerID - кто смотрит. Видят ученик, бадди, назначивший и админы.
	ViewerID string
}

// Validate проверяет корректность параметров запроса.
func (q *GetAssignmentProgressQuery) Validate() error {
	var missing []string
	if strings.TrimSpace(q.AssignmentID) == "" {
		missing = append(missing, "assignment_id")
	}
	if strings.TrimSpace(q.ViewerID) == "" {
		missing = append(missing, "viewer_id")
	}
	if len(missing) > 0 {
		return shared.Errorf("query", "GetAssignmentProgress", shared.ErrValidation, "required: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DeadlineDTO - статус срока.
type DeadlineDTO struct {
	Deadline      time.Time `json:"deadline"`
	IsOverdue     bool      `json:"is_overdue"`
	DaysRemaining int       `json:"days_remaining"`
	IsAtRisk      bool      `json:"is_at_risk"`
	IsCritical    bool      `json:"is_critical"`
	// Latched - просрочка зафиксирована именно этим вызовом.
	Latched bool `json:"latched,omitempty"`
}

func newDeadlineDTO(a *assignment.Assignment, st assignment.DeadlineStatus) DeadlineDTO {
	return DeadlineDTO{
		Deadline:      a.Deadline,
		IsOverdue:     st.IsOverdue,
		DaysRemaining: st.DaysRemaining,
		IsAtRisk:      st.IsAtRisk,
		IsCritical:    st.IsCritical,
	}
}

// ComponentProgressDTO - прогресс по одному компоненту.
type ComponentProgressDTO struct {
	ComponentID  string                   `json:"component_id"`
	Type         content.Type             `json:"type"`
	Order        int                      `json:"order"`
	IsRequired   bool                     `json:"is_required"`
	Status       progress.ComponentStatus `json:"status"`
	Progress     float64                  `json:"progress"`
	TimeSpent    int64                    `json:"time_spent"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	CompletedAt  *time.Time               `json:"completed_at,omitempty"`
	ProgressData json.RawMessage          `json:"progress_data,omitempty"`
}

// StepProgressDTO - прогресс по шагу.
type StepProgressDTO struct {
	StepID      string                 `json:"step_id"`
	Order       int                    `json:"order"`
	Title       string                 `json:"title"`
	Status      progress.StepStatus    `json:"status"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Components  []ComponentProgressDTO `json:"components"`
}

// AssignmentProgressDTO - назначение вместе с прогрессом.
type AssignmentProgressDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Назначение
	// ─────────────────────────────────────────────────────────────────────────

	AssignmentID string            `json:"assignment_id"`
	UserID       string            `json:"user_id"`
	FlowID       string            `json:"flow_id"`
	SnapshotID   string            `json:"snapshot_id"`
	Title        string            `json:"title"`
	Status       assignment.Status `json:"status"`
	BuddyIDs     []string          `json:"buddy_ids"`
	AssignedAt   time.Time         `json:"assigned_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	TimeSpent    int64             `json:"time_spent"`
	Deadline     DeadlineDTO       `json:"deadline"`

	// ─────────────────────────────────────────────────────────────────────────
	// Прогресс
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStepOrder int                       `json:"current_step_order"`
	CompletedSteps   int                       `json:"completed_steps"`
	TotalSteps       int                       `json:"total_steps"`
	Percentage       float64                   `json:"percentage"`
	Steps            []StepProgressDTO         `json:"steps"`
	NextActions      []service.AvailableAction `json:"next_actions"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GetAssignmentProgressHandler обрабатывает запрос прогресса.
type GetAssignmentProgressHandler struct {
	uow      assignment.UnitOfWorkFactory
	progress *service.ProgressService
	cache    service.SnapshotCache
	clock    timeutil.Clock
}

// NewGetAssignmentProgressHandler создаёт обработчик. cache может быть nil.
func NewGetAssignmentProgressHandler(
	uow assignment.UnitOfWorkFactory,
	progressService *service.ProgressService,
	cache service.SnapshotCache,
	clock timeutil.Clock,
) *GetAssignmentProgressHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &GetAssignmentProgressHandler{uow: uow, progress: progressService, cache: cache, clock: clock}
}

// Handle выполняет запрос. Запрос ничего не изменяет: просрочка
// вычисляется, но не фиксируется (для этого есть CheckDeadline).
func (h *GetAssignmentProgressHandler) Handle(ctx context.Context, q GetAssignmentProgressQuery) (*AssignmentProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_progress: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := tx.Assignments().GetByID(ctx, q.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: load assignment: %w", err)
	}
	viewer, err := tx.Users().GetByID(ctx, q.ViewerID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: load viewer: %w", err)
	}
	if err := canView(a, viewer); err != nil {
		return nil, err
	}

	snap, err := loadSnapshot(ctx, tx, h.cache, a.FlowSnapshotID)
	if err != nil {
		return nil, err
	}
	fp, err := tx.Progress().GetByAssignmentID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("get_progress: load progress: %w", err)
	}

	dto := &AssignmentProgressDTO{
		AssignmentID:     a.ID,
		UserID:           a.UserID,
		FlowID:           a.FlowID,
		SnapshotID:       snap.ID,
		Title:            snap.Title,
		Status:           a.Status,
		BuddyIDs:         a.BuddyIDs,
		AssignedAt:       a.AssignedAt,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		TimeSpent:        a.TimeSpent,
		Deadline:         newDeadlineDTO(a, a.EvaluateDeadline(h.clock.Now())),
		CurrentStepOrder: fp.CurrentStepOrder,
		CompletedSteps:   fp.CompletedSteps,
		TotalSteps:       fp.TotalSteps,
		Percentage:       fp.Percentage,
		Steps:            stepDTOs(snap, fp),
		NextActions:      []service.AvailableAction{},
	}
	if a.IsInProgress() || a.Status == assignment.StatusNotStarted {
		if next := h.progress.GetNextAvailableActions(fp, snap); next != nil {
			dto.NextActions = next
		}
	}
	return dto, nil
}

func stepDTOs(snap *snapshot.FlowSnapshot, fp *progress.FlowProgress) []StepProgressDTO {
	out := make([]StepProgressDTO, 0, len(snap.Steps))
	for _, st := range snap.Steps {
		sp, ok := fp.Step(st.Order)
		if !ok {
			continue
		}
		dto := StepProgressDTO{
			StepID:      st.ID,
			Order:       st.Order,
			Title:       st.Title,
			Status:      sp.Status,
			CompletedAt: sp.CompletedAt,
			Components:  make([]ComponentProgressDTO, 0, len(st.Components)),
		}
		for _, c := range st.Components {
			cp, ok := sp.Component(c.ID)
			if !ok {
				continue
			}
			dto.Components = append(dto.Components, ComponentProgressDTO{
				ComponentID:  c.ID,
				Type:         c.Type,
				Order:        c.Order,
				IsRequired:   c.IsRequired,
				Status:       cp.Status,
				Progress:     cp.Progress,
				TimeSpent:    cp.TimeSpent,
				StartedAt:    cp.StartedAt,
				CompletedAt:  cp.CompletedAt,
				ProgressData: cp.ProgressData,
			})
		}
		out = append(out, dto)
	}
	return out
}

// canView: ученик, бадди, назначивший и админы.
func canView(a *assignment.Assignment, viewer *user.User) error {
	if !viewer.IsActive {
		return shared.NewDomainError("query", "View", shared.ErrUnauthorized, "viewer is not active")
	}
	if a.IsOwner(viewer.ID) || a.IsBuddy(viewer.ID) || a.AssignedBy == viewer.ID || viewer.IsAdmin() {
		return nil
	}
	return shared.NewDomainError("query", "View", shared.ErrForbidden, "viewer has no access to this assignment")
}

func loadSnapshot(ctx context.Context, tx assignment.UnitOfWork, cache service.SnapshotCache, id string) (*snapshot.FlowSnapshot, error) {
	if cache != nil {
		if s, ok := cache.Get(ctx, id); ok {
			return s, nil
		}
	}
	s, err := tx.Snapshots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query: load snapshot: %w", err)
	}
	if cache != nil {
		_ = cache.Set(ctx, s)
	}
	return s, nil
}
