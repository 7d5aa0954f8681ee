// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/flow"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE SNAPSHOT COMMAND
// Freezes a flow template into an immutable snapshot. The snapshot with all
// its steps and components is written in one transaction.
// ══════════════════════════════════════════════════════════════════════════════

// CreateSnapshotCommand contains the data to snapshot a flow.
type CreateSnapshotCommand struct {
	FlowID string `validate:"required"`

	// AssignmentID is the owning assignment, if it already exists.
	AssignmentID string

	CreatedBy string `validate:"required"`

	// Metadata is stored with the snapshot as-is.
	Metadata map[string]any
}

// CreateSnapshotResult contains the created snapshot and build statistics.
type CreateSnapshotResult struct {
	Snapshot *snapshot.FlowSnapshot
	Stats    snapshot.Stats
}

// CreateSnapshotHandler handles CreateSnapshotCommand.
type CreateSnapshotHandler struct {
	uow     assignment.UnitOfWorkFactory
	builder *snapshot.Builder
	cache   service.SnapshotCache
	log     *logger.Logger
}

// NewCreateSnapshotHandler creates a CreateSnapshotHandler. cache may be nil.
func NewCreateSnapshotHandler(
	uow assignment.UnitOfWorkFactory,
	builder *snapshot.Builder,
	cache service.SnapshotCache,
	log *logger.Logger,
) *CreateSnapshotHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CreateSnapshotHandler{uow: uow, builder: builder, cache: cache, log: log}
}

// Handle executes the command.
func (h *CreateSnapshotHandler) Handle(ctx context.Context, cmd CreateSnapshotCommand) (*CreateSnapshotResult, error) {
	if err := validateCommand("CreateSnapshot", cmd); err != nil {
		return nil, err
	}

	tx, err := h.uow.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("create_snapshot: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	f, err := tx.Flows().GetByID(ctx, cmd.FlowID)
	if err != nil {
		return nil, fmt.Errorf("create_snapshot: load flow: %w", err)
	}

	res, err := buildSnapshot(ctx, tx, h.builder, f, snapshot.BuildContext{
		AssignmentID: cmd.AssignmentID,
		CreatedBy:    cmd.CreatedBy,
		Metadata:     cmd.Metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("create_snapshot: commit: %w", err)
	}

	h.afterCreate(ctx, res)
	return res, nil
}

func (h *CreateSnapshotHandler) afterCreate(ctx context.Context, res *CreateSnapshotResult) {
	metrics.RecordSnapshot(res.Stats.SnapshotSize, res.Stats.CreationTimeMs)
	if h.cache != nil {
		if err := h.cache.Set(ctx, res.Snapshot); err != nil {
			h.log.Warn("failed to cache snapshot", logger.SnapshotID(res.Snapshot.ID), logger.Err(err))
		}
	}
	h.log.Info("snapshot created",
		logger.SnapshotID(res.Snapshot.ID),
		logger.FlowID(res.Snapshot.OriginalFlowID),
		logger.Int("steps", res.Stats.TotalSteps),
		logger.Int("components", res.Stats.TotalComponents),
		logger.Int("size_bytes", res.Stats.SnapshotSize),
	)
}

// buildSnapshot builds and stores a snapshot inside an open unit of work.
func buildSnapshot(
	ctx context.Context,
	tx assignment.UnitOfWork,
	builder *snapshot.Builder,
	f *flow.Flow,
	bc snapshot.BuildContext,
) (*CreateSnapshotResult, error) {
	snap, stats, err := builder.Build(f, bc)
	if err != nil {
		return nil, fmt.Errorf("create_snapshot: build: %w", err)
	}
	if err := tx.Snapshots().Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("create_snapshot: store: %w", err)
	}
	return &CreateSnapshotResult{Snapshot: snap, Stats: stats}, nil
}
