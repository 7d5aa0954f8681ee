// Package messaging implements the domain event bus of the flow engine:
// an in-process bus and a Redis Pub/Sub bus that fans events out to every
// worker instance.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/infrastructure/metrics"
	"github.com/alem-hub/flow-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when publishing to a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrNilHandler is returned when subscribing a nil handler.
	ErrNilHandler = errors.New("handler cannot be nil")

	// ErrNilEvent is returned when publishing a nil event.
	ErrNilEvent = errors.New("event cannot be nil")
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus is the in-process implementation of shared.EventBus.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *logger.Logger
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of the publisher's goroutine.
	AsyncMode bool

	// WorkerPoolSize is the number of concurrent handler executions in async mode.
	WorkerPoolSize int

	Logger *logger.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger.With(logger.Component("event_bus")),
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.logger.Debug("subscribed handler", logger.String("event_type", string(eventType)))
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return ErrNilHandler
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}

	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler errors are
// logged, never returned: the publisher has already committed its work.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	b.mu.RUnlock()

	metrics.RecordEventPublished(string(event.EventType()))

	for _, handler := range handlers {
		if b.asyncMode {
			b.executeAsync(event, handler)
			continue
		}
		if err := b.execute(event, handler); err != nil {
			b.logger.Error("handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		select {
		case b.workerPool <- struct{}{}:
			defer func() { <-b.workerPool }()
		case <-b.closeCh:
			return
		}

		if err := b.execute(event, handler); err != nil {
			b.logger.Error("async handler error",
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}()
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		metrics.RecordEventHandled(string(event.EventType()), time.Since(start), err == nil)
	}()
	return handler(event)
}

// Close stops accepting events and waits for running handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.closeCh)
	b.mu.Unlock()

	b.wg.Wait()

	b.logger.Info("event bus closed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the Redis channel domain events are mirrored to.
const DefaultChannel = "pubsub:flow.events"

// RedisClient is the subset of Redis used by RedisEventBus.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBus publishes events to local handlers and to Redis, and
// replays events from other instances to local handlers.
type RedisEventBus struct {
	client      RedisClient
	localBus    *InMemoryEventBus
	channelName string
	instanceID  string
	logger      *logger.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.RWMutex
	closed      bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// ChannelName defaults to DefaultChannel.
	ChannelName string

	// InstanceID filters out this instance's own events on the way back.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig

	Logger *logger.Logger
}

// NewRedisEventBus creates a new Redis-based event bus and starts listening.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.ChannelName == "" {
		config.ChannelName = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = logger.Nop()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	bus := &RedisEventBus{
		client:      config.Client,
		localBus:    NewInMemoryEventBus(config.LocalBusConfig),
		channelName: config.ChannelName,
		instanceID:  config.InstanceID,
		logger:      config.Logger.With(logger.Component("redis_event_bus")),
		ctx:         ctx,
		cancel:      cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channelName)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start subscriber: %w", err)
	}

	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends an event to Redis Pub/Sub and local handlers.
// A Redis failure is logged and local delivery still happens.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	data, err := json.Marshal(wireMessage{InstanceID: b.instanceID, Event: env})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	if err := b.client.Publish(b.ctx, b.channelName, data); err != nil {
		b.logger.Error("failed to publish to redis",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
	}

	return b.localBus.Publish(event)
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", logger.Err(msg.Err))
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	var wire wireMessage
	if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
		b.logger.Error("failed to unmarshal event", logger.Err(err))
		return
	}

	// Already delivered locally by Publish.
	if wire.InstanceID == b.instanceID {
		return
	}

	var payload map[string]interface{}
	if len(wire.Event.Payload) > 0 {
		if err := json.Unmarshal(wire.Event.Payload, &payload); err != nil {
			b.logger.Error("failed to unmarshal event payload", logger.Err(err))
			return
		}
	}

	event := &RemoteEvent{envelope: wire.Event, payload: payload}
	if err := b.localBus.Publish(event); err != nil {
		b.logger.Error("failed to process remote event", logger.Err(err))
	}
}

// Close stops the subscription, then the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.localBus.Close(); err != nil {
		b.logger.Error("failed to close local bus", logger.Err(err))
	}
	return b.client.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// WIRE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

type wireMessage struct {
	InstanceID string               `json:"instance_id"`
	Event      shared.EventEnvelope `json:"event"`
}

// RemoteEvent is an event received from another instance.
type RemoteEvent struct {
	envelope shared.EventEnvelope
	payload  map[string]interface{}
}

func (e *RemoteEvent) EventType() shared.EventType     { return e.envelope.Type }
func (e *RemoteEvent) AggregateID() string             { return e.envelope.AggregateID }
func (e *RemoteEvent) OccurredAt() time.Time           { return e.envelope.Timestamp }
func (e *RemoteEvent) Payload() map[string]interface{} { return e.payload }
func (e *RemoteEvent) Envelope() shared.EventEnvelope  { return e.envelope }
