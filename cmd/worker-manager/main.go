// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"image-collector/internal/blobstore"
	"image-collector/internal/collector"
	"image-collector/internal/common/config"
	"image-collector/internal/common/database"
	apphttp "image-collector/internal/common/http"
	"image-collector/internal/common/logger"
	"image-collector/internal/common/observability"
	"image-collector/internal/events"
	"image-collector/internal/generator"
	"image-collector/internal/imaging"
	"image-collector/internal/itemstore"
	"image-collector/internal/opsapi"
	"image-collector/internal/planner"
	"image-collector/internal/quality"
	"image-collector/internal/scheduler"
	"image-collector/internal/sources"
	"image-collector/pkg/registry"

	cc "image-collector/internal/workers/collection/collect-category"
	ci "image-collector/internal/workers/collection/collect-item"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// pinger is satisfied by the database clients checked during readiness.
type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting image collector",
		zap.String("environment", cfg.App.Environment),
		zap.String("itemStore", cfg.ItemStore.Driver),
		zap.String("storage", cfg.Storage.Provider),
	)

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	ctx := context.Background()
	var deps []pinger

	// --- Item store ---
	var store itemstore.Store
	switch cfg.ItemStore.Driver {
	case "postgres":
		var pg *database.PostgresClient
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()

		pgStore := itemstore.NewPostgresStore(pg.GetDB(), cfg.ItemStore.Table)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			zapLog.Fatal("item store schema setup failed", zap.Error(err))
		}
		store = pgStore
		deps = append(deps, pg)
		zapLog.Info("PostgreSQL item store ready", zap.String("table", cfg.ItemStore.Table))
	default:
		store = itemstore.NewMemoryStore()
		zapLog.Warn("Using in-memory item store; items are lost on restart")
	}

	// --- Per-item lock ---
	var locker itemstore.Locker = itemstore.NewMemoryLocker()
	if cfg.Database.Redis.Address != "" {
		var rc *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			rc, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return rc.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		locker = itemstore.NewRedisLocker(rc.GetClient())
		deps = append(deps, rc)
		zapLog.Info("Redis item lock ready")
	}

	// --- Blob storage ---
	blobs, err := blobstore.NewFromConfig(ctx, cfg.Storage, log)
	if err != nil {
		zapLog.Fatal("blob store init failed", zap.Error(err))
	}

	// --- Image sources and generator ---
	searchClient := apphttp.NewClient(sources.SearchTimeout(cfg.Collection))
	downloader := sources.NewDownloaderFromConfig(cfg.Collection, apphttp.NewClient(config.GetDuration(cfg.Collection.DownloadTimeout)))
	srcs := sources.NewFromConfig(cfg.Sources, searchClient, downloader)
	if len(srcs) == 0 && !cfg.Generator.Enabled {
		zapLog.Warn("No image sources enabled; every collection will fail")
	}

	var gen generator.ImageGenerator
	if cfg.Generator.Enabled {
		gen = generator.NewClient(cfg.Generator, apphttp.NewClient(config.GetDuration(cfg.Generator.Timeout)))
	}

	coll := collector.New(collector.ConfigFromApp(cfg), collector.Deps{
		Store:         store,
		Locker:        locker,
		Sources:       srcs,
		Derivatives:   imaging.NewDerivativeGenerator(nil, 0).WithMaxPixels(cfg.Collection.MaxPixels),
		Scorer:        quality.NewScorer(),
		Policy:        quality.PolicyFromConfig(cfg.Quality),
		Blobs:         blobs,
		Generator:     gen,
		Licenses:      sources.NewPageLicenseResolver(searchClient),
		Observability: obs,
		Logger:        log,
	})

	// --- Scheduler ---
	reg, err := registry.LoadOrDefault(cfg.Registry.Path)
	if err != nil {
		zapLog.Fatal("job registry load failed", zap.Error(err))
	}
	validator, err := reg.Validator()
	if err != nil {
		zapLog.Fatal("job registry schemas invalid", zap.Error(err))
	}

	sched := scheduler.New(log, scheduler.Options{Validator: validator})
	for _, name := range []string{config.QueueCollectItem, config.QueueCollectCategory} {
		if err := sched.RegisterQueue(scheduler.QueueOptionsFromConfig(name, config.GetQueueConfig(cfg, name))); err != nil {
			zapLog.Fatal("queue registration failed", zap.String("queue", name), zap.Error(err))
		}
	}
	sched.Subscribe(scheduler.MetricsListener())

	sinks, err := events.SinksFromConfig(ctx, cfg.Events, log)
	if err != nil {
		zapLog.Fatal("event sinks init failed", zap.Error(err))
	}
	dispatcher := events.NewDispatcher(log, cfg.Events.BufferSize, sinks...)
	dispatcher.Start()
	sched.Subscribe(dispatcher.Listener())

	// --- Workers ---
	if config.IsQueueEnabled(cfg, config.QueueCollectItem) {
		handler := ci.NewHandler(ci.LoadConfig(cfg), coll, sched, log)
		if err := sched.RegisterWorker(config.QueueCollectItem, 0, scheduler.HandlerFunc(handler.Handle)); err != nil {
			zapLog.Fatal("failed to register collect-item worker", zap.Error(err))
		}
		zapLog.Info("Worker registered", zap.String("queue", config.QueueCollectItem))
	}
	if config.IsQueueEnabled(cfg, config.QueueCollectCategory) {
		plan := planner.New(store, sched, planner.OptionsFromConfig(cfg), log)
		handler := cc.NewHandler(cc.LoadConfig(cfg), plan, log)
		if err := sched.RegisterWorker(config.QueueCollectCategory, 0, scheduler.HandlerFunc(handler.Handle)); err != nil {
			zapLog.Fatal("failed to register collect-category worker", zap.Error(err))
		}
		zapLog.Info("Worker registered", zap.String("queue", config.QueueCollectCategory))
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	if err := sched.Start(runCtx); err != nil {
		zapLog.Fatal("scheduler start failed", zap.Error(err))
	}

	// --- Ops API ---
	ready := func(ctx context.Context) error {
		for _, d := range deps {
			if err := d.Ping(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      opsapi.NewRouter(opsapi.NewHandler(sched, coll, ready, log)),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}
	go func() {
		zapLog.Info("Ops API listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("Ops API server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping ops API", zap.Error(err))
	}
	if err := sched.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping scheduler", zap.Error(err))
	}
	stopRun()
	if err := dispatcher.Close(shutdownCtx); err != nil {
		zapLog.Error("Error draining event sinks", zap.Error(err))
	}

	zapLog.Info("Image collector stopped gracefully")
}
