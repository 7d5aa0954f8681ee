package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST USER ASSIGNMENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ListUserAssignmentsQuery содержит параметры запроса.
type ListUserAssignmentsQuery struct {
	UserID   string
	ViewerID string

	// Statuses - фильтр по статусам (пустой = все).
	Statuses []assignment.Status

	Limit  int
	Offset int
}

// Validate проверяет параметры и выставляет значения по умолчанию.
func (q *ListUserAssignmentsQuery) Validate() error {
	if strings.TrimSpace(q.UserID) == "" || strings.TrimSpace(q.ViewerID) == "" {
		return shared.NewDomainError("query", "ListUserAssignments", shared.ErrValidation, "user_id and viewer_id are required")
	}
	for _, s := range q.Statuses {
		if !s.IsValid() {
			return shared.Errorf("query", "ListUserAssignments", shared.ErrValidation, "unknown status %q", s)
		}
	}
	if q.Offset < 0 {
		return shared.NewDomainError("query", "ListUserAssignments", shared.ErrValidation, "offset cannot be negative")
	}
	if q.Limit <= 0 {
		q.Limit = assignment.DefaultListOptions().Limit
	}
	if q.Limit > 200 {
		q.Limit = 200
	}
	return nil
}

// AssignmentSummaryDTO - строка списка назначений.
type AssignmentSummaryDTO struct {
	AssignmentID string            `json:"assignment_id"`
	FlowID       string            `json:"flow_id"`
	Status       assignment.Status `json:"status"`
	AssignedAt   time.Time         `json:"assigned_at"`
	TimeSpent    int64             `json:"time_spent"`
	Percentage   float64           `json:"percentage"`
	Deadline     DeadlineDTO       `json:"deadline"`
}

// ListUserAssignmentsHandler обрабатывает запрос.
type ListUserAssignmentsHandler struct {
	uow   assignment.UnitOfWorkFactory
	clock timeutil.Clock
}

// NewListUserAssignmentsHandler создаёт обработчик.
func NewListUserAssignmentsHandler(uow assignment.UnitOfWorkFactory, clock timeutil.Clock) *ListUserAssignmentsHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	return &ListUserAssignmentsHandler{uow: uow, clock: clock}
}

// Handle выполняет запрос. Свои назначения видит каждый, чужие - менторы и админы.
func (h *ListUserAssignmentsHandler) Handle(ctx context.Context, q ListUserAssignmentsQuery) ([]AssignmentSummaryDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_assignments: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	viewer, err := tx.Users().GetByID(ctx, q.ViewerID)
	if err != nil {
		return nil, fmt.Errorf("list_assignments: load viewer: %w", err)
	}
	if q.ViewerID != q.UserID && !viewer.CanMentor() {
		return nil, shared.NewDomainError("query", "ListUserAssignments", shared.ErrForbidden, "only mentors and admins can list other users' assignments")
	}

	opts := assignment.ListOptions{Offset: q.Offset, Limit: q.Limit, Statuses: q.Statuses}
	list, err := tx.Assignments().ListByUser(ctx, q.UserID, opts)
	if err != nil {
		return nil, fmt.Errorf("list_assignments: list: %w", err)
	}

	now := h.clock.Now()
	out := make([]AssignmentSummaryDTO, 0, len(list))
	for _, a := range list {
		dto := AssignmentSummaryDTO{
			AssignmentID: a.ID,
			FlowID:       a.FlowID,
			Status:       a.Status,
			AssignedAt:   a.AssignedAt,
			TimeSpent:    a.TimeSpent,
			Deadline:     newDeadlineDTO(a, a.EvaluateDeadline(now)),
		}
		if fp, err := tx.Progress().GetByAssignmentID(ctx, a.ID); err == nil {
			dto.Percentage = fp.Percentage
		}
		out = append(out, dto)
	}
	return out, nil
}
