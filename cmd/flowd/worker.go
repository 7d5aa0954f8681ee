package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/alem-hub/flow-engine/config"
	"github.com/alem-hub/flow-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/flow-engine/internal/infrastructure/scheduler"
	"github.com/alem-hub/flow-engine/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/flow-engine/pkg/logger"
	"github.com/alem-hub/flow-engine/pkg/timeutil"
)

func newWorkerCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the deadline scheduler and event forwarding until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply pending migrations before starting")
	return cmd
}

func runWorker(ctx context.Context, migrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting flowd worker",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", Version),
		logger.Strings("features", cfg.Features.Enabled()),
	)

	if migrate {
		if err := migrateUp(ctx, cfg.Database.URL); err != nil {
			return err
		}
		log.Info("database schema is up to date")
	}

	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.notifications != nil {
		if err := rt.notifications.Subscribe(rt.bus); err != nil {
			return fmt.Errorf("subscribe notifications: %w", err)
		}
	}

	sched, err := newScheduler(cfg, rt, log)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() { _ = sched.Stop() }()
	}

	if cfg.Observability.MetricsEnabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Observability.MetricsPort),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server stopped", logger.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	log.Info("flowd worker is running", logger.Bool("scheduler", cfg.Scheduler.Enabled))
	<-ctx.Done()
	log.Info("shutting down", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	return nil
}

func newScheduler(cfg *config.Config, rt *app, log *logger.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Config{
		Logger:       log,
		Timezone:     cfg.App.Location,
		TickInterval: cfg.Scheduler.TickInterval,
	})

	deps := jobs.DetectOverdueDeps{
		UnitOfWork: rt.uow,
		Checker:    rt.deadline,
		Publisher:  rt.bus,
		Clock:      timeutil.SystemClock,
		Logger:     log,
	}
	if rt.cache != nil && cfg.Features.IsEnabled(config.FeatureAtRiskAlerts) {
		deps.Guard = redis.NewDailyGuard(rt.cache)
	}
	job := jobs.NewDetectOverdueJob(deps, jobs.DetectOverdueConfig{
		BatchSize:    cfg.Scheduler.OverdueBatchSize,
		Concurrency:  cfg.Scheduler.OverdueConcurrency,
		AtRiskWindow: cfg.Scheduler.AtRiskWindow,
		Timeout:      cfg.Scheduler.JobTimeout,
	})

	schedule, err := scheduler.ParseCron(cfg.Scheduler.OverdueCron)
	if err != nil {
		return nil, err
	}
	if err := sched.Register(job, schedule); err != nil {
		return nil, err
	}
	return sched, nil
}
