// Package service contains application services shared by commands, queries
// and jobs, and the collaborator ports they depend on.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/flow-engine/internal/domain/achievement"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// IDGenerator produces identifiers for new aggregates.
type IDGenerator func() string

// NewUUID is the default IDGenerator.
func NewUUID() string {
	return uuid.NewString()
}

// Locker serializes work on a single key (an assignment id) across callers.
type Locker interface {
	// Lock blocks until the key is acquired or ctx is done.
	// The returned function releases the key and is safe to call twice.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// SnapshotCache keeps immutable snapshots close to the interaction path.
type SnapshotCache interface {
	Get(ctx context.Context, id string) (*snapshot.FlowSnapshot, bool)
	Set(ctx context.Context, s *snapshot.FlowSnapshot) error
}

// ComponentOutcome describes one processed interaction for side channels.
type ComponentOutcome struct {
	UserID        string
	AssignmentID  string
	ComponentID   string
	ComponentType content.Type
	Action        interaction.Action
	Result        *interaction.Result

	// CompletedComponents counts completed components of the assignment after the update.
	CompletedComponents int
	StepCompleted       bool
	FlowCompleted       bool
	Deadline            time.Time
	At                  time.Time
}

// AchievementService awards achievements for interactions. Best effort:
// callers log and ignore its errors.
type AchievementService interface {
	CheckComponentAchievements(ctx context.Context, outcome ComponentOutcome) ([]achievement.Achievement, error)
}

// ProgressNotification is the payload of a progress update notification.
type ProgressNotification struct {
	ComponentID     string    `json:"component_id"`
	Action          string    `json:"action"`
	Status          string    `json:"status"`
	Progress        float64   `json:"progress"`
	FlowPercentage  float64   `json:"flow_percentage"`
	UnlockedStepIDs []string  `json:"unlocked_step_ids,omitempty"`
	FlowCompleted   bool      `json:"flow_completed"`
	Achievements    []string  `json:"achievements,omitempty"`
	At              time.Time `json:"at"`
}

// NotificationService delivers progress notifications. Best effort.
type NotificationService interface {
	SendProgressUpdateNotification(ctx context.Context, a *assignment.Assignment, payload ProgressNotification) error
}
