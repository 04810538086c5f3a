package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busticket/cmd/consumers/jobs"
	"busticket/internal/api"
	"busticket/internal/cache"
	"busticket/internal/config"
	"busticket/internal/consumers"
	"busticket/internal/logger"
	"busticket/internal/service"
)

// The worker process: indexes ticket events into Elasticsearch and runs
// the journey reminder sweeps.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Starting consumers service...")

	cfg.NATS.ClientID = "busticket-consumers"

	var consumerService *consumers.ConsumerService
	if cfg.Elasticsearch.Enabled && cfg.NATS.Enabled {
		var err error
		consumerService, err = consumers.NewConsumerService(cfg)
		if err != nil {
			logger.Fatal("Failed to create consumer service", "error", err)
		}
		if err := consumerService.Start(); err != nil {
			logger.Fatal("Failed to start consumers", "error", err)
		}
	} else {
		slog.Warn("Ticket indexing disabled; set ELASTICSEARCH_ENABLED and NATS_ENABLED to enable it")
	}

	var cleanup []func()
	var reminderJob *jobs.ReminderJob
	if cfg.Reminders.Enabled {
		store, db, err := api.OpenStore(cfg)
		if err != nil {
			logger.Fatal("Failed to open store", "error", err)
		}
		if db != nil {
			cleanup = append(cleanup, func() { db.Close() })
		}

		dispatcher := api.BuildDispatcher(cfg)
		dispatcher.Start(context.Background())
		cleanup = append(cleanup, dispatcher.Stop)

		var deduper service.ReminderDeduper
		if cfg.Redis.Enabled {
			redis, err := cache.NewValkeyClient(cfg.Redis)
			if err != nil {
				logger.Fatal("Failed to connect to Redis", "error", err)
			}
			deduper = redis
			cleanup = append(cleanup, func() { redis.Close() })
		} else {
			slog.Warn("Redis disabled; reminders are deduplicated per process only")
			deduper = cache.NewLocalLocker()
		}

		services := service.NewServices(service.Deps{
			Store:    store,
			Notifier: dispatcher,
			Deduper:  deduper,
		})
		reminderJob = jobs.NewReminderJob(services.Reminders, 5*time.Minute)
		if err := reminderJob.Schedule(cfg.Reminders.DaySpec, service.DayBeforeWindow); err != nil {
			logger.Fatal("Failed to schedule reminders", "error", err)
		}
		if err := reminderJob.Schedule(cfg.Reminders.HourSpec, service.HourBeforeWindow); err != nil {
			logger.Fatal("Failed to schedule reminders", "error", err)
		}
		reminderJob.Start(context.Background())
	}

	slog.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down consumers service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if reminderJob != nil {
		reminderJob.Stop()
	}
	if consumerService != nil {
		if err := consumerService.Shutdown(ctx); err != nil {
			slog.Error("Error during shutdown", "error", err)
		}
	}
	for i := len(cleanup) - 1; i >= 0; i-- {
		cleanup[i]()
	}

	slog.Info("Consumers service stopped")
}
