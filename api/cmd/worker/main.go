package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/api/internal/jobs"
	"resource-planning-system/api/internal/planner"
	"resource-planning-system/api/internal/repos"
	"resource-planning-system/shared/cachex"
	"resource-planning-system/shared/config"
	"resource-planning-system/shared/dbx"
	"resource-planning-system/shared/influxx"
	"resource-planning-system/shared/lockx"
	"resource-planning-system/shared/logx"
	"resource-planning-system/shared/metricsx"
	"resource-planning-system/shared/mqx"
	"resource-planning-system/shared/observability"
)

func main() {
	cfg, problems := config.Load("capacity-worker", 8083)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel, logx.WithFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups))
	defer logger.Close()
	metricsx.Register()

	if cfg.DatabaseURL == "" {
		problems = append(problems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if cfg.AsynqRedisAddr == "" {
		problems = append(problems, config.Problem{Field: "ASYNQ_REDIS_ADDR", Message: "ASYNQ_REDIS_ADDR is required"})
	}
	if cfg.RedisAddr == "" {
		problems = append(problems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required for sweep locks"})
	}
	if len(problems) > 0 {
		logger.Error(context.Background(), "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", problems),
		)
		os.Exit(1)
	}

	if cfg.OtelEnabled {
		if shutdown, err := observability.InitTracer(context.Background(), observability.TracerConfig{
			ServiceName: cfg.ServiceName,
			Env:         cfg.Env,
			Version:     version,
			Endpoint:    cfg.OtelEndpoint,
			Insecure:    cfg.OtelInsecure,
			SampleRatio: cfg.OtelSampleRatio,
		}); err == nil {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(context.Background(), "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	cache, err := cachex.New(cfg)
	if err != nil {
		logger.Error(context.Background(), "redis_init_failed", "redis init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer cache.Close()

	deps := planner.Deps{
		Source: repos.NewSnapshotRepo(dbPool),
		Cache:  cache,
		Logger: logger,
		Options: capacity.Options{
			Policy:              capacity.WeekPolicy(cfg.CapacityWeekPolicy),
			StandardWeeklyHours: cfg.CapacityStandardWeeklyHours,
			MaxSuggestions:      cfg.CapacityMaxSuggestions,
		},
		CacheTTL: cfg.AlertCacheTTL(),
	}

	// Kafka and InfluxDB are sinks; a sweep still refreshes the cache and
	// gauges without them.
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := mqx.NewProducer(cfg)
		if err != nil {
			logger.Warn(context.Background(), "kafka_init_failed", "alert events disabled", slog.String("error", err.Error()))
		} else {
			defer producer.Close()
			deps.Publisher = producer
		}
	}
	if cfg.InfluxURL != "" {
		influx, err := influxx.New(cfg)
		if err != nil {
			logger.Warn(context.Background(), "influx_init_failed", "utilization points disabled", slog.String("error", err.Error()))
		} else {
			defer influx.Close()
			deps.Points = influx
		}
	}
	svc := planner.New(deps)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.AsynqRedisAddr,
		Password: cfg.AsynqRedisPass,
		DB:       cfg.AsynqRedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
		Queues: map[string]int{
			cfg.AsynqQueue: 1,
		},
	})
	defer server.Shutdown()

	interval := time.Duration(cfg.CapacitySweepIntervalSec) * time.Second
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TypeCapacitySweep, jobs.SweepHandler{
		Sweeper: svc,
		Lock: func(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error) {
			return lockx.WithLock(ctx, cache.Client(), key, ttl, fn)
		},
		LockTTL:     interval,
		Departments: cfg.CapacitySweepDepartments,
		Logger:      logger,
	})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
	})
	defer scheduler.Shutdown()
	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	task, err := jobs.NewSweepTask("", asynq.Queue(cfg.AsynqQueue), asynq.MaxRetry(1), asynq.Timeout(interval))
	if err == nil {
		_, err = scheduler.Register("@every "+strconv.Itoa(cfg.CapacitySweepIntervalSec)+"s", task)
	}
	if err != nil {
		logger.Error(context.Background(), "scheduler_init_failed", "scheduler init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		logger.Error(context.Background(), "scheduler_start_failed", "scheduler start failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			info, err := inspector.GetQueueInfo(cfg.AsynqQueue)
			if err != nil {
				continue
			}
			metricsx.SetAsynqQueueDepth(cfg.AsynqQueue, info.Size)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "worker_start", "capacity worker started",
			slog.String("queue", cfg.AsynqQueue),
			slog.Int("concurrency", cfg.AsynqConcurrency),
			slog.Int("sweep_interval_sec", cfg.CapacitySweepIntervalSec),
			slog.Any("departments", cfg.CapacitySweepDepartments),
			slog.Bool("kafka", deps.Publisher != nil),
			slog.Bool("influx", deps.Points != nil),
		)
		errCh <- server.Run(mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, asynq.ErrServerClosed) {
			logger.Error(context.Background(), "worker_failed", "worker failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	logger.Info(context.Background(), "worker_stop", "capacity worker stopped")
}
