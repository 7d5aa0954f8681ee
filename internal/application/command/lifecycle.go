package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/user"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT LIFECYCLE COMMANDS
// Start, pause, resume, complete, cancel and extend an assignment.
// Every command: load, authorize, mutate, save with version check, publish.
// ══════════════════════════════════════════════════════════════════════════════

// LifecycleAction names a lifecycle transition.
type LifecycleAction string

const (
	ActionStart          LifecycleAction = "start"
	ActionPause          LifecycleAction = "pause"
	ActionResume         LifecycleAction = "resume"
	ActionComplete       LifecycleAction = "complete"
	ActionCancel         LifecycleAction = "cancel"
	ActionExtendDeadline LifecycleAction = "extend_deadline"
)

// LifecycleCommand contains the data for one transition.
type LifecycleCommand struct {
	AssignmentID string          `validate:"required"`
	ActorID      string          `validate:"required"`
	Action       LifecycleAction `validate:"required,oneof=start pause resume complete cancel extend_deadline"`

	// Reason is recorded for pause and cancel.
	Reason string `validate:"max=500"`

	// Days is the extension for extend_deadline.
	Days int `validate:"gte=0"`
}

// LifecycleResult describes the applied transition.
type LifecycleResult struct {
	Assignment *assignment.Assignment
	From       assignment.Status
	To         assignment.Status

	// DeadlineExtendedBy is set by resume and extend_deadline.
	DeadlineExtendedBy int
}

// role is the relation of an actor to an assignment.
type role int

const (
	roleOwner role = 1 << iota
	roleBuddy
	roleAssigner
	roleAdmin
)

// permissions lists who may perform each transition.
var permissions = map[LifecycleAction]role{
	ActionStart:          roleOwner | roleAdmin,
	ActionPause:          roleOwner | roleBuddy | roleAdmin,
	ActionResume:         roleOwner | roleBuddy | roleAdmin,
	ActionComplete:       roleBuddy | roleAdmin,
	ActionCancel:         roleAssigner | roleAdmin,
	ActionExtendDeadline: roleBuddy | roleAssigner | roleAdmin,
}

func rolesOf(a *assignment.Assignment, u *user.User) role {
	var r role
	if a.IsOwner(u.ID) {
		r |= roleOwner
	}
	if a.IsBuddy(u.ID) {
		r |= roleBuddy
	}
	if a.AssignedBy == u.ID {
		r |= roleAssigner
	}
	if u.IsAdmin() {
		r |= roleAdmin
	}
	return r
}

// authorize checks that actor is active and related to the assignment as required.
func authorize(action LifecycleAction, a *assignment.Assignment, actor *user.User) error {
	if !actor.IsActive {
		return shared.NewDomainError("assignment", string(action), shared.ErrUnauthorized, "actor is not active")
	}
	if rolesOf(a, actor)&permissions[action] == 0 {
		return shared.Errorf("assignment", string(action), shared.ErrForbidden, "user %s is not allowed to %s this assignment", actor.ID, action)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LifecycleHandler handles LifecycleCommand and assignment deletion.
type LifecycleHandler struct {
	uow       assignment.UnitOfWorkFactory
	locker    service.Locker
	publisher shared.EventPublisher
	clock     timeutil.Clock
	log       *logger.Logger
}

// NewLifecycleHandler creates a LifecycleHandler.
func NewLifecycleHandler(
	uow assignment.UnitOfWorkFactory,
	locker service.Locker,
	publisher shared.EventPublisher,
	clock timeutil.Clock,
	log *logger.Logger,
) *LifecycleHandler {
	if locker == nil {
		locker = service.NewLocalLocker()
	}
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LifecycleHandler{uow: uow, locker: locker, publisher: publisher, clock: clock, log: log}
}

// LockKey returns the serialization key of an assignment.
func LockKey(assignmentID string) string {
	return "assignment:" + assignmentID
}

// Handle applies one transition.
func (h *LifecycleHandler) Handle(ctx context.Context, cmd LifecycleCommand) (*LifecycleResult, error) {
	if err := validateCommand("Lifecycle", cmd); err != nil {
		return nil, err
	}

	unlock, err := h.locker.Lock(ctx, LockKey(cmd.AssignmentID))
	if err != nil {
		return nil, fmt.Errorf("lifecycle: lock: %w", err)
	}
	defer unlock()

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := tx.Assignments().GetByID(ctx, cmd.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load assignment: %w", err)
	}
	actor, err := tx.Users().GetByID(ctx, cmd.ActorID)
	if err != nil {
		return nil, fmt.Errorf("lifecycle: load actor: %w", err)
	}
	if err := authorize(cmd.Action, a, actor); err != nil {
		return nil, err
	}

	now := h.clock.Now()
	res := &LifecycleResult{Assignment: a, From: a.Status}

	switch cmd.Action {
	case ActionStart:
		err = a.Start(now)
	case ActionPause:
		err = a.Pause(cmd.ActorID, cmd.Reason, now)
	case ActionResume:
		res.DeadlineExtendedBy, err = a.Resume(cmd.ActorID, now)
	case ActionComplete:
		err = a.Complete(now)
	case ActionCancel:
		err = a.Cancel(cmd.ActorID, cmd.Reason, now)
	case ActionExtendDeadline:
		err = a.ExtendDeadline(cmd.Days, cmd.ActorID, now)
		res.DeadlineExtendedBy = cmd.Days
	}
	if err != nil {
		return nil, err
	}
	res.To = a.Status

	if err := tx.Assignments().Update(ctx, a); err != nil {
		return nil, fmt.Errorf("lifecycle: save assignment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("lifecycle: commit: %w", err)
	}

	h.afterCommit(cmd, res, now)
	return res, nil
}

func (h *LifecycleHandler) afterCommit(cmd LifecycleCommand, res *LifecycleResult, now time.Time) {
	a := res.Assignment
	if res.From != res.To {
		metrics.RecordTransition(string(res.From), string(res.To))
	}

	var event shared.Event
	switch cmd.Action {
	case ActionExtendDeadline:
		e := shared.NewDeadlineEvent(shared.EventDeadlineExtended, a.ID, a.UserID, a.Deadline, a.EvaluateDeadline(now).DaysRemaining, now)
		e.ExtendedBy = cmd.Days
		e.ActorID = cmd.ActorID
		event = e
	default:
		event = shared.NewAssignmentTransitionEvent(transitionEvents[cmd.Action], a.ID, a.UserID,
			string(res.From), string(res.To), cmd.ActorID, cmd.Reason, a.Deadline, now)
	}
	publish(h.publisher, h.log, event)

	h.log.Info("assignment transition",
		logger.AssignmentID(a.ID),
		logger.Action(string(cmd.Action)),
		logger.String("actor_id", cmd.ActorID),
		logger.String("from", string(res.From)),
		logger.String("to", string(res.To)),
		logger.Int("deadline_extended_by", res.DeadlineExtendedBy),
	)
}

var transitionEvents = map[LifecycleAction]shared.EventType{
	ActionStart:    shared.EventAssignmentStarted,
	ActionPause:    shared.EventAssignmentPaused,
	ActionResume:   shared.EventAssignmentResumed,
	ActionComplete: shared.EventAssignmentCompleted,
	ActionCancel:   shared.EventAssignmentCancelled,
}

// ══════════════════════════════════════════════════════════════════════════════
// DELETE
// ══════════════════════════════════════════════════════════════════════════════

// DeleteAssignmentCommand soft-deletes an assignment. Admin only.
type DeleteAssignmentCommand struct {
	AssignmentID string `validate:"required"`
	ActorID      string `validate:"required"`
}

// Delete soft-deletes the assignment and detaches its snapshot.
func (h *LifecycleHandler) Delete(ctx context.Context, cmd DeleteAssignmentCommand) error {
	if err := validateCommand("DeleteAssignment", cmd); err != nil {
		return err
	}

	unlock, err := h.locker.Lock(ctx, LockKey(cmd.AssignmentID))
	if err != nil {
		return fmt.Errorf("delete_assignment: lock: %w", err)
	}
	defer unlock()

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("delete_assignment: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := tx.Assignments().GetByID(ctx, cmd.AssignmentID)
	if err != nil {
		return fmt.Errorf("delete_assignment: load assignment: %w", err)
	}
	actor, err := tx.Users().GetByID(ctx, cmd.ActorID)
	if err != nil {
		return fmt.Errorf("delete_assignment: load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return shared.NewDomainError("assignment", "Delete", shared.ErrForbidden, "only admins can delete assignments")
	}

	if err := tx.Assignments().Delete(ctx, a.ID); err != nil {
		return fmt.Errorf("delete_assignment: delete: %w", err)
	}
	if err := tx.Snapshots().Detach(ctx, a.FlowSnapshotID); err != nil {
		return fmt.Errorf("delete_assignment: detach snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("delete_assignment: commit: %w", err)
	}

	h.log.Info("assignment deleted", logger.AssignmentID(a.ID), logger.String("actor_id", cmd.ActorID))
	return nil
}
