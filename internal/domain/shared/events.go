package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that happened in the domain.
const (
	// Assignment lifecycle events
	EventAssignmentCreated   EventType = "assignment.created"
	EventAssignmentStarted   EventType = "assignment.started"
	EventAssignmentPaused    EventType = "assignment.paused"
	EventAssignmentResumed   EventType = "assignment.resumed"
	EventAssignmentCompleted EventType = "assignment.completed"
	EventAssignmentCancelled EventType = "assignment.cancelled"
	EventAssignmentOverdue   EventType = "assignment.overdue"
	EventAssignmentAtRisk    EventType = "assignment.at_risk"
	EventDeadlineExtended    EventType = "assignment.deadline_extended"

	// Progress events
	EventComponentProgressUpdated EventType = "progress.component_updated"
	EventStepsUnlocked            EventType = "progress.steps_unlocked"
	EventFlowCompleted            EventType = "progress.flow_completed"

	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event stamped with at.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Assignment Events
// ═══════════════════════════════════════════════════════════════════════════

// AssignmentCreatedEvent is emitted after a flow is assigned and its snapshot persisted.
type AssignmentCreatedEvent struct {
	BaseEvent
	UserID     string    `json:"user_id"`
	FlowID     string    `json:"flow_id"`
	SnapshotID string    `json:"snapshot_id"`
	AssignedBy string    `json:"assigned_by"`
	BuddyIDs   []string  `json:"buddy_ids"`
	Deadline   time.Time `json:"deadline"`
}

// Payload implements Event interface.
func (e AssignmentCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"flow_id":     e.FlowID,
		"snapshot_id": e.SnapshotID,
		"assigned_by": e.AssignedBy,
		"buddy_ids":   e.BuddyIDs,
		"deadline":    e.Deadline,
	}
}

// NewAssignmentCreatedEvent creates a new AssignmentCreatedEvent.
func NewAssignmentCreatedEvent(assignmentID, userID, flowID, snapshotID, assignedBy string, buddyIDs []string, deadline, at time.Time) AssignmentCreatedEvent {
	return AssignmentCreatedEvent{
		BaseEvent:  NewBaseEvent(EventAssignmentCreated, assignmentID, at),
		UserID:     userID,
		FlowID:     flowID,
		SnapshotID: snapshotID,
		AssignedBy: assignedBy,
		BuddyIDs:   buddyIDs,
		Deadline:   deadline,
	}
}

// AssignmentTransitionEvent covers start, pause, resume, complete and cancel.
type AssignmentTransitionEvent struct {
	BaseEvent
	UserID     string    `json:"user_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	ActorID    string    `json:"actor_id,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Deadline   time.Time `json:"deadline"`
}

// Payload implements Event interface.
func (e AssignmentTransitionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"from_status": e.FromStatus,
		"to_status":   e.ToStatus,
		"actor_id":    e.ActorID,
		"reason":      e.Reason,
		"deadline":    e.Deadline,
	}
}

// NewAssignmentTransitionEvent creates a transition event of the given type.
func NewAssignmentTransitionEvent(eventType EventType, assignmentID, userID, from, to, actorID, reason string, deadline, at time.Time) AssignmentTransitionEvent {
	return AssignmentTransitionEvent{
		BaseEvent:  NewBaseEvent(eventType, assignmentID, at),
		UserID:     userID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Reason:     reason,
		Deadline:   deadline,
	}
}

// DeadlineEvent is emitted for overdue, at-risk and extended deadlines.
type DeadlineEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	Deadline      time.Time `json:"deadline"`
	DaysRemaining int       `json:"days_remaining"`
	ExtendedBy    int       `json:"extended_by,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
}

// Payload implements Event interface.
func (e DeadlineEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"deadline":       e.Deadline,
		"days_remaining": e.DaysRemaining,
		"extended_by":    e.ExtendedBy,
		"actor_id":       e.ActorID,
	}
}

// NewDeadlineEvent creates a new DeadlineEvent.
func NewDeadlineEvent(eventType EventType, assignmentID, userID string, deadline time.Time, daysRemaining int, at time.Time) DeadlineEvent {
	return DeadlineEvent{
		BaseEvent:     NewBaseEvent(eventType, assignmentID, at),
		UserID:        userID,
		Deadline:      deadline,
		DaysRemaining: daysRemaining,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// ComponentProgressUpdatedEvent is emitted after every persisted interaction.
type ComponentProgressUpdatedEvent struct {
	BaseEvent
	UserID        string  `json:"user_id"`
	ComponentID   string  `json:"component_id"`
	ComponentType string  `json:"component_type"`
	Action        string  `json:"action"`
	Status        string  `json:"status"`
	Progress      float64 `json:"progress"`
	FlowProgress  float64 `json:"flow_progress"`
}

// Payload implements Event interface.
func (e ComponentProgressUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"component_id":   e.ComponentID,
		"component_type": e.ComponentType,
		"action":         e.Action,
		"status":         e.Status,
		"progress":       e.Progress,
		"flow_progress":  e.FlowProgress,
	}
}

// StepsUnlockedEvent is emitted when completing a step opens the next one.
type StepsUnlockedEvent struct {
	BaseEvent
	UserID          string   `json:"user_id"`
	UnlockedStepIDs []string `json:"unlocked_step_ids"`
	CurrentStep     int      `json:"current_step"`
}

// Payload implements Event interface.
func (e StepsUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":           e.UserID,
		"unlocked_step_ids": e.UnlockedStepIDs,
		"current_step":      e.CurrentStep,
	}
}

// FlowCompletedEvent is emitted once every step of a snapshot is completed.
type FlowCompletedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	SnapshotID string `json:"snapshot_id"`
	TimeSpent  int64  `json:"time_spent"`
}

// Payload implements Event interface.
func (e FlowCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"snapshot_id": e.SnapshotID,
		"time_spent":  e.TimeSpent,
	}
}

// AchievementUnlockedEvent is emitted when a learner earns an achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID string `json:"user_id"`
	Code   string `json:"code"`
	Title  string `json:"title"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"code":    e.Code,
		"title":   e.Title,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope serializes an event's payload into an envelope.
func NewEnvelope(id string, e Event) (EventEnvelope, error) {
	raw, err := json.Marshal(e.Payload())
	if err != nil {
		return EventEnvelope{}, err
	}
	env := EventEnvelope{
		ID:          id,
		Type:        e.EventType(),
		AggregateID: e.AggregateID(),
		Timestamp:   e.OccurredAt(),
		Version:     1,
		Payload:     raw,
	}
	return env, nil
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
