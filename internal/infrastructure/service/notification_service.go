// Package service implements the application side-channel ports on top of
// Redis and Postgres.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/assignment"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/flow-engine/pkg/circuitbreaker"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/retry"
)

// NotificationChannel is the pub/sub channel notifications are delivered to.
var NotificationChannel = redis.PubSubChannel("flow.notifications")

const (
	KindProgressUpdate = "progress_update"

	eventTimeout = 2 * time.Second
)

// forwardedEvents are domain events that users get notified about.
var forwardedEvents = []shared.EventType{
	shared.EventAssignmentCreated,
	shared.EventAssignmentCompleted,
	shared.EventAssignmentCancelled,
	shared.EventAssignmentOverdue,
	shared.EventAssignmentAtRisk,
	shared.EventDeadlineExtended,
	shared.EventAchievementUnlocked,
}

// Publisher sends a JSON-encoded message to a channel. *redis.Cache implements it.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
}

// Notification is the message written to NotificationChannel.
type Notification struct {
	Kind         string    `json:"kind"`
	UserID       string    `json:"user_id"`
	AssignmentID string    `json:"assignment_id"`
	Recipients   []string  `json:"recipients"`
	Payload      any       `json:"payload"`
	At           time.Time `json:"at"`
}

// NotificationService publishes progress notifications to Redis pub/sub.
type NotificationService struct {
	publisher Publisher
	channel   string
	retrier   *retry.Retrier
	breaker   *circuitbreaker.CircuitBreaker
	log       *logger.Logger
}

var _ service.NotificationService = (*NotificationService)(nil)

// NewNotificationService creates a service publishing to NotificationChannel.
func NewNotificationService(publisher Publisher, log *logger.Logger) *NotificationService {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("notifications"))
	return &NotificationService{
		publisher: publisher,
		channel:   NotificationChannel,
		retrier:   retry.PublishRetrier(),
		breaker: circuitbreaker.ForNotifications(func(name string, from, to circuitbreaker.State) {
			log.Warn("notification circuit changed state",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		}),
		log: log,
	}
}

// Breaker exposes the circuit guarding the publisher.
func (s *NotificationService) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// SendProgressUpdateNotification notifies the learner and the buddies of a.
func (s *NotificationService) SendProgressUpdateNotification(ctx context.Context, a *assignment.Assignment, payload service.ProgressNotification) error {
	if a == nil {
		return errors.New("notification: nil assignment")
	}
	recipients := make([]string, 0, 1+len(a.BuddyIDs))
	recipients = append(recipients, a.UserID)
	recipients = append(recipients, a.BuddyIDs...)

	return s.send(ctx, Notification{
		Kind:         KindProgressUpdate,
		UserID:       a.UserID,
		AssignmentID: a.ID,
		Recipients:   recipients,
		Payload:      payload,
		At:           payload.At,
	})
}

// Subscribe forwards lifecycle and achievement events from bus as notifications.
func (s *NotificationService) Subscribe(bus shared.EventSubscriber) error {
	for _, t := range forwardedEvents {
		if err := bus.Subscribe(t, s.HandleEvent); err != nil {
			return err
		}
	}
	return nil
}

// HandleEvent converts a domain event into a notification for its user.
func (s *NotificationService) HandleEvent(e shared.Event) error {
	payload := e.Payload()
	userID, _ := payload["user_id"].(string)
	if userID == "" {
		s.log.Debug("event without user, not forwarded", logger.String("event_type", string(e.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	err := s.send(ctx, Notification{
		Kind:         string(e.EventType()),
		UserID:       userID,
		AssignmentID: e.AggregateID(),
		Recipients:   []string{userID},
		Payload:      payload,
		At:           e.OccurredAt(),
	})
	if err != nil {
		metrics.RecordSideChannelFailure("event_notifications")
	}
	return err
}

func (s *NotificationService) send(ctx context.Context, n Notification) error {
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			err := s.publisher.Publish(ctx, s.channel, n)
			if errors.Is(err, redis.ErrCacheSerialization) {
				return retry.Permanent(err)
			}
			return err
		})
	})
	if err != nil {
		s.log.Warn("notification not delivered",
			logger.Err(err),
			logger.String("kind", n.Kind),
			logger.AssignmentID(n.AssignmentID),
		)
		return err
	}
	s.log.Debug("notification sent", logger.String("kind", n.Kind), logger.AssignmentID(n.AssignmentID))
	return nil
}
