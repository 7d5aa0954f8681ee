package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/achievement"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// INTERACT COMMAND
// Processes one learner action on one component: gate, run the handler,
// write progress, unlock steps and complete the flow, then notify.
// Interactions on the same assignment are serialized by the Locker and by
// optimistic versions of Assignment and FlowProgress.
// ══════════════════════════════════════════════════════════════════════════════

// InteractCommand contains one learner interaction.
type InteractCommand struct {
	AssignmentID string             `validate:"required"`
	UserID       string             `validate:"required"`
	ComponentID  string             `validate:"required"`
	Action       interaction.Action `validate:"required"`
	Data         json.RawMessage

	// TimeSpent is seconds spent since the previous interaction.
	TimeSpent int64 `validate:"gte=0"`
}

// InteractResult contains the outcome of an interaction.
type InteractResult struct {
	Result    *interaction.Result
	Component progress.ComponentProgress

	Progress           *progress.FlowProgress
	StepCompleted      bool
	UnlockedSteps      []string
	UnlockedComponents []string
	FlowCompleted      bool

	AssignmentStatus assignment.Status
	Achievements     []achievement.Achievement
	NextActions      []service.AvailableAction
}

// InteractConfig contains interaction policy.
type InteractConfig struct {
	// AutoStart moves a NOT_STARTED assignment to IN_PROGRESS on its first interaction.
	AutoStart bool

	// SideChannelTimeout bounds achievement and notification calls.
	SideChannelTimeout time.Duration
}

// DefaultInteractConfig returns default configuration.
func DefaultInteractConfig() InteractConfig {
	return InteractConfig{
		AutoStart:          true,
		SideChannelTimeout: 2 * time.Second,
	}
}

var (
	// ErrAssignmentOverdue - overdue assignments accept no interactions.
	ErrAssignmentOverdue = shared.NewDomainError("interaction", "Interact", shared.ErrForbidden, "assignment is overdue")

	// ErrNotAssignee - only the learner interacts with their assignment.
	ErrNotAssignee = shared.NewDomainError("interaction", "Interact", shared.ErrForbidden, "assignment belongs to another user")
)

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// InteractHandler handles InteractCommand.
type InteractHandler struct {
	uow           assignment.UnitOfWorkFactory
	engine        *interaction.Engine
	progress      *service.ProgressService
	locker        service.Locker
	cache         service.SnapshotCache
	achievements  service.AchievementService
	notifications service.NotificationService
	publisher     shared.EventPublisher
	clock         timeutil.Clock
	log           *logger.Logger
	config        InteractConfig
}

// InteractDeps groups the collaborators of InteractHandler.
// Cache, Achievements, Notifications and Publisher are optional.
type InteractDeps struct {
	UnitOfWork    assignment.UnitOfWorkFactory
	Engine        *interaction.Engine
	Progress      *service.ProgressService
	Locker        service.Locker
	Cache         service.SnapshotCache
	Achievements  service.AchievementService
	Notifications service.NotificationService
	Publisher     shared.EventPublisher
	Clock         timeutil.Clock
	Logger        *logger.Logger
}

// NewInteractHandler creates an InteractHandler.
func NewInteractHandler(deps InteractDeps, config InteractConfig) *InteractHandler {
	if config.SideChannelTimeout == 0 {
		config = DefaultInteractConfig()
	}
	if deps.Progress == nil {
		deps.Progress = service.NewProgressService(deps.Engine)
	}
	if deps.Locker == nil {
		deps.Locker = service.NewLocalLocker()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &InteractHandler{
		uow:           deps.UnitOfWork,
		engine:        deps.Engine,
		progress:      deps.Progress,
		locker:        deps.Locker,
		cache:         deps.Cache,
		achievements:  deps.Achievements,
		notifications: deps.Notifications,
		publisher:     deps.Publisher,
		clock:         deps.Clock,
		log:           deps.Logger,
		config:        config,
	}
}

// Handle executes the interaction.
func (h *InteractHandler) Handle(ctx context.Context, cmd InteractCommand) (*InteractResult, error) {
	started := time.Now()
	componentType := "unknown"

	res, err := h.handle(ctx, cmd, &componentType)

	outcome := "ok"
	switch {
	case err == nil:
	case shared.CodeOf(err) == shared.CodeUnknown:
		outcome = "error"
	default:
		outcome = "rejected"
	}
	elapsed := time.Since(started)
	metrics.RecordInteraction(componentType, string(cmd.Action), outcome, elapsed)
	if err != nil {
		h.log.Debug("interaction rejected",
			logger.AssignmentID(cmd.AssignmentID),
			logger.ComponentID(cmd.ComponentID),
			logger.Action(string(cmd.Action)),
			logger.Latency(elapsed),
			logger.Err(err),
		)
	}
	return res, err
}

func (h *InteractHandler) handle(ctx context.Context, cmd InteractCommand, componentType *string) (*InteractResult, error) {
	if err := validateCommand("Interact", cmd); err != nil {
		return nil, err
	}

	unlock, err := h.locker.Lock(ctx, LockKey(cmd.AssignmentID))
	if err != nil {
		return nil, fmt.Errorf("interact: lock: %w", err)
	}
	defer unlock()

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("interact: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	a, err := tx.Assignments().GetByID(ctx, cmd.AssignmentID)
	if err != nil {
		return nil, fmt.Errorf("interact: load assignment: %w", err)
	}
	if !a.IsOwner(cmd.UserID) {
		return nil, ErrNotAssignee
	}

	now := h.clock.Now()
	if err := h.gateAssignment(ctx, tx, a, now); err != nil {
		return nil, err
	}
	autoStarted := false
	if a.Status == assignment.StatusNotStarted && h.config.AutoStart {
		if err := a.Start(now); err != nil {
			return nil, err
		}
		autoStarted = true
	}
	if !a.IsInProgress() {
		return nil, shared.Errorf("interaction", "Interact", shared.ErrForbidden, "assignment is %s", a.Status)
	}

	snap, err := h.loadSnapshot(ctx, tx, a.FlowSnapshotID)
	if err != nil {
		return nil, err
	}
	step, comp, err := snap.FindComponent(cmd.ComponentID)
	if err != nil {
		return nil, err
	}
	*componentType = string(comp.Type)

	fp, err := tx.Progress().GetByAssignmentID(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("interact: load progress: %w", err)
	}
	if err := fp.CanAccess(step.Order, comp.ID); err != nil {
		return nil, err
	}
	_, current, err := fp.Component(comp.ID)
	if err != nil {
		return nil, err
	}

	ic := &interaction.Context{
		Component: comp,
		Progress:  *current,
		Action:    cmd.Action,
		Data:      cmd.Data,
		TimeSpent: cmd.TimeSpent,
		Now:       now,
	}
	result, err := h.engine.Process(ic)
	if err != nil {
		return nil, err
	}

	out, err := h.progress.Apply(fp, snap, comp.ID, result, cmd.TimeSpent, now)
	if err != nil {
		return nil, err
	}
	if err := a.AddTimeSpent(cmd.TimeSpent, now); err != nil {
		return nil, err
	}
	flowCompletedNow := false
	if out.FlowCompleted && !a.Status.IsTerminal() {
		if err := a.Complete(now); err != nil {
			return nil, err
		}
		flowCompletedNow = true
	}

	if err := tx.Progress().Save(ctx, fp); err != nil {
		return nil, fmt.Errorf("interact: save progress: %w", err)
	}
	if err := tx.Assignments().Update(ctx, a); err != nil {
		return nil, fmt.Errorf("interact: save assignment: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("interact: commit: %w", err)
	}

	ir := &InteractResult{
		Result:             result,
		Component:          out.Component,
		Progress:           fp,
		StepCompleted:      out.Step.Completed,
		UnlockedSteps:      out.Step.UnlockedStepIDs,
		UnlockedComponents: out.Step.UnlockedComponentIDs,
		FlowCompleted:      flowCompletedNow,
		AssignmentStatus:   a.Status,
		NextActions:        h.progress.GetNextAvailableActions(fp, snap),
	}
	if ir.UnlockedSteps == nil {
		ir.UnlockedSteps = []string{}
	}

	h.afterCommit(ctx, cmd, a, snap, comp, out, ir, autoStarted, now)
	return ir, nil
}

// gateAssignment latches an overdue deadline and rejects overdue assignments.
// The latch is committed even though the interaction is rejected.
func (h *InteractHandler) gateAssignment(ctx context.Context, tx assignment.UnitOfWork, a *assignment.Assignment, now time.Time) error {
	st, latched := a.CheckDeadline(now)
	if latched {
		if err := tx.Assignments().Update(ctx, a); err != nil {
			return fmt.Errorf("interact: latch overdue: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("interact: commit overdue: %w", err)
		}
		metrics.RecordOverdue(1)
		publish(h.publisher, h.log, shared.NewDeadlineEvent(shared.EventAssignmentOverdue, a.ID, a.UserID, a.Deadline, st.DaysRemaining, now))
	}
	if a.IsOverdue {
		return ErrAssignmentOverdue
	}
	return nil
}

func (h *InteractHandler) loadSnapshot(ctx context.Context, tx assignment.UnitOfWork, id string) (*snapshot.FlowSnapshot, error) {
	if h.cache != nil {
		if s, ok := h.cache.Get(ctx, id); ok {
			return s, nil
		}
		h.log.Debug("snapshot cache miss", logger.SnapshotID(id))
	}
	s, err := tx.Snapshots().GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("interact: load snapshot: %w", err)
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, s); err != nil {
			h.log.Warn("failed to cache snapshot", logger.SnapshotID(id), logger.Err(err))
		}
	}
	return s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Side channels: metrics, achievements, notifications and events.
// Failures are logged and never undo the committed interaction.
// ─────────────────────────────────────────────────────────────────────────────

func (h *InteractHandler) afterCommit(
	ctx context.Context,
	cmd InteractCommand,
	a *assignment.Assignment,
	snap *snapshot.FlowSnapshot,
	comp snapshot.ComponentSnapshot,
	out *service.Outcome,
	ir *InteractResult,
	autoStarted bool,
	now time.Time,
) {
	if out.CompletedNow {
		metrics.RecordComponentCompleted(string(comp.Type))
	}
	metrics.RecordStepsUnlocked(len(out.Step.UnlockedStepIDs))
	if autoStarted {
		metrics.RecordTransition(string(assignment.StatusNotStarted), string(assignment.StatusInProgress))
		publish(h.publisher, h.log, shared.NewAssignmentTransitionEvent(shared.EventAssignmentStarted, a.ID, a.UserID,
			string(assignment.StatusNotStarted), string(assignment.StatusInProgress), a.UserID, "first interaction", a.Deadline, now))
	}

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SideChannelTimeout)
	defer cancel()

	ir.Achievements = h.checkAchievements(sideCtx, service.ComponentOutcome{
		UserID:              a.UserID,
		AssignmentID:        a.ID,
		ComponentID:         comp.ID,
		ComponentType:       comp.Type,
		Action:              cmd.Action,
		Result:              ir.Result,
		CompletedComponents: service.CompletedComponents(ir.Progress),
		StepCompleted:       out.Step.Completed,
		FlowCompleted:       ir.FlowCompleted,
		Deadline:            a.Deadline,
		At:                  now,
	})

	h.notify(sideCtx, a, cmd, ir, now)

	publish(h.publisher, h.log, shared.ComponentProgressUpdatedEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventComponentProgressUpdated, a.ID, now),
		UserID:        a.UserID,
		ComponentID:   comp.ID,
		ComponentType: string(comp.Type),
		Action:        string(cmd.Action),
		Status:        string(ir.Result.NewStatus),
		Progress:      ir.Component.Progress,
		FlowProgress:  ir.Progress.Percentage,
	})
	if len(out.Step.UnlockedStepIDs) > 0 {
		publish(h.publisher, h.log, shared.StepsUnlockedEvent{
			BaseEvent:       shared.NewBaseEvent(shared.EventStepsUnlocked, a.ID, now),
			UserID:          a.UserID,
			UnlockedStepIDs: out.Step.UnlockedStepIDs,
			CurrentStep:     ir.Progress.CurrentStepOrder,
		})
	}
	if ir.FlowCompleted {
		metrics.RecordTransition(string(assignment.StatusInProgress), string(assignment.StatusCompleted))
		publish(h.publisher, h.log, shared.FlowCompletedEvent{
			BaseEvent:  shared.NewBaseEvent(shared.EventFlowCompleted, a.ID, now),
			UserID:     a.UserID,
			SnapshotID: snap.ID,
			TimeSpent:  a.TimeSpent,
		})
		publish(h.publisher, h.log, shared.NewAssignmentTransitionEvent(shared.EventAssignmentCompleted, a.ID, a.UserID,
			string(assignment.StatusInProgress), string(assignment.StatusCompleted), a.UserID, "flow completed", a.Deadline, now))
	}
	for _, ach := range ir.Achievements {
		publish(h.publisher, h.log, shared.AchievementUnlockedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventAchievementUnlocked, a.ID, now),
			UserID:    ach.UserID,
			Code:      string(ach.Type),
			Title:     ach.Title(),
		})
	}

	h.log.Info("interaction processed",
		logger.AssignmentID(a.ID),
		logger.ComponentID(comp.ID),
		logger.ComponentType(string(comp.Type)),
		logger.Action(string(cmd.Action)),
		logger.Status(string(ir.Result.NewStatus)),
		logger.Percentage(ir.Progress.Percentage),
		logger.Strings("unlocked_steps", out.Step.UnlockedStepIDs),
	)
}

func (h *InteractHandler) checkAchievements(ctx context.Context, o service.ComponentOutcome) []achievement.Achievement {
	if h.achievements == nil {
		return nil
	}
	got, err := h.achievements.CheckComponentAchievements(ctx, o)
	if err != nil {
		metrics.RecordSideChannelFailure("achievements")
		h.log.Warn("achievement check failed", logger.AssignmentID(o.AssignmentID), logger.Err(err),
			logger.Bool("timeout", errors.Is(err, context.DeadlineExceeded)))
		return nil
	}
	return got
}

func (h *InteractHandler) notify(ctx context.Context, a *assignment.Assignment, cmd InteractCommand, ir *InteractResult, now time.Time) {
	if h.notifications == nil {
		return
	}
	codes := make([]string, 0, len(ir.Achievements))
	for _, ach := range ir.Achievements {
		codes = append(codes, string(ach.Type))
	}
	err := h.notifications.SendProgressUpdateNotification(ctx, a, service.ProgressNotification{
		ComponentID:     cmd.ComponentID,
		Action:          string(cmd.Action),
		Status:          string(ir.Result.NewStatus),
		Progress:        ir.Component.Progress,
		FlowPercentage:  ir.Progress.Percentage,
		UnlockedStepIDs: ir.UnlockedSteps,
		FlowCompleted:   ir.FlowCompleted,
		Achievements:    codes,
		At:              now,
	})
	if err != nil {
		metrics.RecordSideChannelFailure("notifications")
		h.log.Warn("progress notification failed", logger.AssignmentID(a.ID), logger.Err(err))
	}
}
