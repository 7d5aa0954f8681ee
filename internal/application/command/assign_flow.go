package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/domain/user"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN FLOW COMMAND
// Assigns a flow to a learner: freezes a snapshot, creates the assignment in
// NOT_STARTED and initializes its progress, all in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// AssignFlowCommand contains the data to assign a flow.
type AssignFlowCommand struct {
	UserID     string `validate:"required"`
	FlowID     string `validate:"required"`
	AssignedBy string `validate:"required"`

	// BuddyIDs are mentors attached to the assignment (1-5, never the learner).
	BuddyIDs []string `validate:"required,min=1,max=5,dive,required"`

	// Deadline overrides every other deadline source.
	Deadline *time.Time

	// CustomDeadlineDays sets the deadline in business days from now.
	CustomDeadlineDays int `validate:"gte=0,lte=365"`

	// Metadata is stored with the snapshot.
	Metadata map[string]any
}

// AssignFlowResult contains the created aggregates.
type AssignFlowResult struct {
	Assignment *assignment.Assignment
	Snapshot   *snapshot.FlowSnapshot
	Progress   *progress.FlowProgress
	Stats      snapshot.Stats
}

// AssignFlowConfig contains assignment policy.
type AssignFlowConfig struct {
	// MaxActiveAssignments limits NOT_STARTED/IN_PROGRESS/PAUSED assignments per user.
	MaxActiveAssignments int

	// DefaultDeadlineBusinessDays applies when neither the caller nor the flow sets a deadline.
	DefaultDeadlineBusinessDays int
}

// DefaultAssignFlowConfig returns default configuration.
func DefaultAssignFlowConfig() AssignFlowConfig {
	return AssignFlowConfig{
		MaxActiveAssignments:        10,
		DefaultDeadlineBusinessDays: assignment.DefaultDeadlineBusinessDays,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AssignFlowHandler handles AssignFlowCommand.
type AssignFlowHandler struct {
	uow       assignment.UnitOfWorkFactory
	builder   *snapshot.Builder
	publisher shared.EventPublisher
	cache     service.SnapshotCache
	newID     service.IDGenerator
	clock     timeutil.Clock
	log       *logger.Logger
	config    AssignFlowConfig
}

// AssignFlowDeps groups the collaborators of AssignFlowHandler.
type AssignFlowDeps struct {
	UnitOfWork assignment.UnitOfWorkFactory
	Builder    *snapshot.Builder
	Publisher  shared.EventPublisher
	Cache      service.SnapshotCache
	NewID      service.IDGenerator
	Clock      timeutil.Clock
	Logger     *logger.Logger
}

// NewAssignFlowHandler creates a new AssignFlowHandler.
func NewAssignFlowHandler(deps AssignFlowDeps, config AssignFlowConfig) *AssignFlowHandler {
	def := DefaultAssignFlowConfig()
	if config.MaxActiveAssignments <= 0 {
		config.MaxActiveAssignments = def.MaxActiveAssignments
	}
	if config.DefaultDeadlineBusinessDays <= 0 {
		config.DefaultDeadlineBusinessDays = def.DefaultDeadlineBusinessDays
	}
	if deps.NewID == nil {
		deps.NewID = service.NewUUID
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &AssignFlowHandler{
		uow:       deps.UnitOfWork,
		builder:   deps.Builder,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		newID:     deps.NewID,
		clock:     deps.Clock,
		log:       deps.Logger,
		config:    config,
	}
}

// Handle executes the assign flow command.
// Order of checks: input, existence, business rules.
func (h *AssignFlowHandler) Handle(ctx context.Context, cmd AssignFlowCommand) (*AssignFlowResult, error) {
	if err := validateCommand("AssignFlow", cmd); err != nil {
		return nil, err
	}
	cmd.BuddyIDs = assignment.NormalizeBuddies(cmd.BuddyIDs)
	for _, b := range cmd.BuddyIDs {
		if b == cmd.UserID {
			return nil, assignment.ErrSelfBuddy
		}
	}
	now := h.clock.Now()

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("assign_flow: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Existence
	if _, err := tx.Users().GetByID(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("assign_flow: load user: %w", err)
	}
	assigner, err := tx.Users().GetByID(ctx, cmd.AssignedBy)
	if err != nil {
		return nil, fmt.Errorf("assign_flow: load assigner: %w", err)
	}
	if err := h.checkBuddies(ctx, tx.Users(), cmd.BuddyIDs); err != nil {
		return nil, err
	}
	f, err := tx.Flows().GetByID(ctx, cmd.FlowID)
	if err != nil {
		return nil, fmt.Errorf("assign_flow: load flow: %w", err)
	}

	// Business rules
	if cmd.AssignedBy != cmd.UserID && !assigner.CanMentor() {
		return nil, shared.NewDomainError("assignment", "Assign", shared.ErrForbidden, "only mentors and admins can assign flows to others")
	}
	if err := h.checkActive(ctx, tx.Assignments(), cmd.UserID, cmd.FlowID); err != nil {
		return nil, err
	}

	res, err := buildSnapshot(ctx, tx, h.builder, f, snapshot.BuildContext{
		CreatedBy: cmd.AssignedBy,
		Metadata:  cmd.Metadata,
	})
	if err != nil {
		return nil, err
	}
	snap := res.Snapshot

	a, err := assignment.New(assignment.NewParams{
		ID:                      h.newID(),
		UserID:                  cmd.UserID,
		FlowID:                  f.ID,
		FlowSnapshotID:          snap.ID,
		AssignedBy:              cmd.AssignedBy,
		BuddyIDs:                cmd.BuddyIDs,
		Deadline:                cmd.Deadline,
		CustomDeadlineDays:      cmd.CustomDeadlineDays,
		FlowDefaultDeadlineDays: f.DefaultDeadlineDays,
		FallbackBusinessDays:    h.config.DefaultDeadlineBusinessDays,
	}, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Assignments().Create(ctx, a); err != nil {
		return nil, fmt.Errorf("assign_flow: store assignment: %w", err)
	}
	if err := tx.Snapshots().AttachAssignment(ctx, snap.ID, a.ID); err != nil {
		return nil, fmt.Errorf("assign_flow: attach snapshot: %w", err)
	}
	snap.AssignmentID = &a.ID

	fp := progress.Initialize(a.ID, snap, now)
	if err := tx.Progress().Create(ctx, fp); err != nil {
		return nil, fmt.Errorf("assign_flow: store progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("assign_flow: commit: %w", err)
	}

	h.afterCommit(ctx, a, res)
	return &AssignFlowResult{Assignment: a, Snapshot: snap, Progress: fp, Stats: res.Stats}, nil
}

func (h *AssignFlowHandler) checkBuddies(ctx context.Context, users user.Repository, ids []string) error {
	found, err := users.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("assign_flow: load buddies: %w", err)
	}
	byID := make(map[string]*user.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return shared.Errorf("assignment", "Assign", shared.ErrNotFound, "buddy %s not found", id)
		}
		if !u.CanMentor() {
			return shared.Errorf("assignment", "Assign", shared.ErrValidation, "user %s cannot be a buddy", id)
		}
	}
	return nil
}

func (h *AssignFlowHandler) checkActive(ctx context.Context, repo assignment.Repository, userID, flowID string) error {
	existing, err := repo.FindActiveByUserAndFlow(ctx, userID, flowID)
	switch {
	case err == nil && existing != nil:
		return assignment.ErrActiveAssignmentExists
	case err != nil && !errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("assign_flow: find active: %w", err)
	}

	count, err := repo.CountActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("assign_flow: count active: %w", err)
	}
	if count >= h.config.MaxActiveAssignments {
		return assignment.ErrTooManyActiveAssignments
	}
	return nil
}

func (h *AssignFlowHandler) afterCommit(ctx context.Context, a *assignment.Assignment, res *CreateSnapshotResult) {
	metrics.RecordAssignmentCreated()
	metrics.RecordSnapshot(res.Stats.SnapshotSize, res.Stats.CreationTimeMs)

	if h.cache != nil {
		if err := h.cache.Set(ctx, res.Snapshot); err != nil {
			h.log.Warn("failed to cache snapshot", logger.SnapshotID(res.Snapshot.ID), logger.Err(err))
		}
	}

	publish(h.publisher, h.log, shared.NewAssignmentCreatedEvent(
		a.ID, a.UserID, a.FlowID, a.FlowSnapshotID, a.AssignedBy, a.BuddyIDs, a.Deadline, a.CreatedAt,
	))

	h.log.Info("flow assigned",
		logger.AssignmentID(a.ID),
		logger.UserID(a.UserID),
		logger.FlowID(a.FlowID),
		logger.SnapshotID(a.FlowSnapshotID),
		logger.Time("deadline", a.Deadline),
	)
}

// publish sends an event and logs failures; events are best effort.
func publish(p shared.EventPublisher, log *logger.Logger, e shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(e); err != nil {
		metrics.RecordSideChannelFailure("events")
		log.Warn("failed to publish event",
			logger.String("event_type", string(e.EventType())),
			logger.String("aggregate_id", e.AggregateID()),
			logger.Err(err),
		)
	}
}
