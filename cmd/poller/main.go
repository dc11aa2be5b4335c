package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"petshop_backend/internal/autosales"
	"petshop_backend/internal/events"
	"petshop_backend/internal/scheduler"
	"petshop_backend/platform/config"
	"petshop_backend/platform/db"
	"petshop_backend/platform/logger"
	"petshop_backend/platform/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting poller", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	autosalesModule, err := autosales.NewModule(pool, eventBus, cfg, val, log)
	if err != nil {
		log.Error("failed to initialize autosales module", "error", err)
		panic("failed to initialize autosales module: " + err.Error())
	}
	autosalesModule.RegisterHandlers(eventBus)

	if cfg.GetRedisURL() != "" {
		stepClient, err := scheduler.NewClient(cfg)
		if err != nil {
			log.Error("failed to initialize step scheduler client", "error", err)
			panic("failed to initialize step scheduler client: " + err.Error())
		}
		defer func() { _ = stepClient.Close() }()
		autosalesModule.SetStepScheduler(stepClient)
	}

	dispatcher := scheduler.NewDueSequenceDispatcher(cfg, autosalesModule.Service(), log)
	go dispatcher.Run(ctx)
	log.Info("due-sequence dispatcher started", "interval", cfg.GetPollInterval())

	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; running on the dispatcher sweep only")
		<-ctx.Done()
		return
	}

	worker, err := scheduler.NewWorker(cfg, autosalesModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	log.Info("poller stopped")
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return lastErr
}
