package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK DEADLINE QUERY
// Вычисляет статус срока. Если срок только что прошёл, просрочка фиксируется
// (best effort): ошибка сохранения не мешает вернуть статус.
// ══════════════════════════════════════════════════════════════════════════════

// CheckDeadlineQuery содержит параметры запроса.
type CheckDeadlineQuery struct {
	AssignmentID string
}

// CheckDeadlineHandler обрабатывает запрос.
type CheckDeadlineHandler struct {
	uow       assignment.UnitOfWorkFactory
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
}

// NewCheckDeadlineHandler создаёт обработчик.
func NewCheckDeadlineHandler(uow assignment.UnitOfWorkFactory, publisher shared.EventPublisher, clock timeutil.Clock, log *logger.Logger) *CheckDeadlineHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CheckDeadlineHandler{uow: uow, publisher: publisher, clock: clock, log: log}
}

// Handle выполняет запрос.
func (h *CheckDeadlineHandler) Handle(ctx context.Context, q CheckDeadlineQuery) (*DeadlineDTO, error) {
	if strings.TrimSpace(q.AssignmentID) == "" {
		return nil, shared.NewDomainError("query", "CheckDeadline", shared.ErrValidation, "assignment_id is required")
	}

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("check_deadline: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := tx.Assignments().GetByID(ctx, q.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("check_deadline: load assignment: %w", err)
	}

	now := h.clock.Now()
	st, latched := a.CheckDeadline(now)
	dto := newDeadlineDTO(a, st)
	if !latched {
		return &dto, nil
	}

	if err := h.persist(ctx, tx, a); err != nil {
		h.log.Warn("failed to persist overdue flag", logger.AssignmentID(a.ID), logger.Err(err))
		return &dto, nil
	}

	dto.Latched = true
	metrics.RecordOverdue(1)
	if h.publisher != nil {
		e := shared.NewDeadlineEvent(shared.EventAssignmentOverdue, a.ID, a.UserID, a.Deadline, st.DaysRemaining, now)
		if err := h.publisher.Publish(e); err != nil {
			metrics.RecordSideChannelFailure("events")
			h.log.Warn("failed to publish overdue event", logger.AssignmentID(a.ID), logger.Err(err))
		}
	}
	h.log.Info("assignment overdue", logger.AssignmentID(a.ID), logger.UserID(a.UserID), logger.Time("deadline", a.Deadline))
	return &dto, nil
}

func (h *CheckDeadlineHandler) persist(ctx context.Context, tx assignment.UnitOfWork, a *assignment.Assignment) error {
	if err := tx.Assignments().Update(ctx, a); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
