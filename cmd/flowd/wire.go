package main

import (
	"context"
	"fmt"

	"github.com/alem-hub/flow-engine/config"
	"github.com/alem-hub/flow-engine/internal/application/command"
	"github.com/alem-hub/flow-engine/internal/application/query"
	"github.com/alem-hub/flow-engine/internal/application/service"
	"github.com/alem-hub/flow-engine/internal/domain/interaction"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
	"github.com/alem-hub/flow-engine/internal/domain/snapshot"
	"github.com/alem-hub/flow-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/flow-engine/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/flow-engine/internal/infrastructure/persistence/redis"
	infraservice "github.com/alem-hub/flow-engine/internal/infrastructure/service"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

// app holds the wired engine of one process.
type app struct {
	cfg *config.Config
	log *logger.Logger

	db    *postgres.Connection
	uow   *postgres.UnitOfWorkFactory
	cache *redis.Cache // nil when Redis is disabled
	bus   eventBus

	notifications *infraservice.NotificationService

	assign    *command.AssignFlowHandler
	interact  *command.InteractHandler
	lifecycle *command.LifecycleHandler
	progress  *query.GetAssignmentProgressHandler
	list      *query.ListUserAssignmentsHandler
	deadline  *query.CheckDeadlineHandler

	closers []func()
}

type eventBus interface {
	shared.EventBus
	Close() error
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Level:       logger.ParseLevel(cfg.Observability.LogLevel),
		Development: cfg.Observability.LogFormat == "console",
	})
}

// buildRuntime connects to Postgres and, unless disabled, Redis and wires
// every use case. Callers must call close.
func buildRuntime(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *app, err error) {
	rt := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	pgCfg := postgres.DefaultConfig()
	pgCfg.URL = cfg.Database.URL
	pgCfg.MaxConns = int32(cfg.Database.MaxConns)
	pgCfg.MinConns = int32(cfg.Database.MinConns)
	pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	rt.db, err = postgres.NewConnection(ctx, pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	rt.closers = append(rt.closers, rt.db.Close)
	rt.uow = postgres.NewUnitOfWorkFactory(rt.db)

	var (
		locker    service.Locker = service.NewLocalLocker()
		snapCache service.SnapshotCache
	)
	if !cfg.Redis.Disabled {
		rt.cache, err = redis.NewCache(redisConfig(cfg.Redis))
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = rt.cache.Close() })
		locker = redis.NewAssignmentLocker(rt.cache, cfg.Redis.LockTTL)
		if cfg.Features.IsEnabled(config.FeatureSnapshotCache) {
			snapCache = redis.NewSnapshotCache(rt.cache, cfg.Redis.SnapshotTTL, log)
		}
	}

	rt.bus, err = newEventBus(rt.cache, cfg, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() { _ = rt.bus.Close() })

	var (
		achievements  service.AchievementService
		notifications service.NotificationService
	)
	if cfg.Features.IsEnabled(config.FeatureAchievements) {
		achievements = infraservice.NewAchievementService(postgres.NewAchievementRepository(rt.db.Querier()), log)
	}
	if rt.cache != nil && cfg.Features.IsEnabled(config.FeatureNotifications) {
		rt.notifications = infraservice.NewNotificationService(rt.cache, log)
		notifications = rt.notifications
	}

	rules := cfg.Engine.Rules
	engine := interaction.NewEngine(interaction.DefaultRegistry(rules.Interaction))
	progressService := service.NewProgressService(engine)
	clock := timeutil.SystemClock

	rt.assign = command.NewAssignFlowHandler(command.AssignFlowDeps{
		UnitOfWork: rt.uow,
		Builder:    snapshot.NewBuilder(service.NewUUID, clock),
		Publisher:  rt.bus,
		Cache:      snapCache,
		Clock:      clock,
		Logger:     log,
	}, command.AssignFlowConfig{
		MaxActiveAssignments:        rules.Assignment.MaxActiveAssignments,
		DefaultDeadlineBusinessDays: rules.Assignment.DefaultDeadlineBusinessDays,
	})
	rt.interact = command.NewInteractHandler(command.InteractDeps{
		UnitOfWork:    rt.uow,
		Engine:        engine,
		Progress:      progressService,
		Locker:        locker,
		Cache:         snapCache,
		Achievements:  achievements,
		Notifications: notifications,
		Publisher:     rt.bus,
		Clock:         clock,
		Logger:        log,
	}, command.InteractConfig{
		AutoStart:          rules.Assignment.AutoStartOnFirstInteraction,
		SideChannelTimeout: cfg.Engine.SideChannelTimeout,
	})
	rt.lifecycle = command.NewLifecycleHandler(rt.uow, locker, rt.bus, clock, log)
	rt.progress = query.NewGetAssignmentProgressHandler(rt.uow, progressService, snapCache, clock)
	rt.list = query.NewListUserAssignmentsHandler(rt.uow, clock)
	rt.deadline = query.NewCheckDeadlineHandler(rt.uow, rt.bus, clock, log)

	return rt, nil
}

func newEventBus(cache *redis.Cache, cfg *config.Config, log *logger.Logger) (eventBus, error) {
	local := messaging.InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10, Logger: log}
	if cache == nil || !cfg.Features.IsEnabled(config.FeatureDistributedEvents) {
		return messaging.NewInMemoryEventBus(local), nil
	}
	bus, err := messaging.NewRedisEventBus(messaging.RedisEventBusConfig{
		Client:         messaging.NewGoRedisClient(cache.Client()),
		LocalBusConfig: local,
		Logger:         log,
	})
	if err != nil {
		return nil, fmt.Errorf("start event bus: %w", err)
	}
	return bus, nil
}

func redisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

// close releases resources in reverse order of acquisition.
func (rt *app) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
