package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"

	"github.com/JADDOU3/NexusQuest-sub002/internal/app/engine"
	"github.com/JADDOU3/NexusQuest-sub002/internal/app/producer"
	"github.com/JADDOU3/NexusQuest-sub002/internal/domain/execution"
	kafkainfra "github.com/JADDOU3/NexusQuest-sub002/internal/infra/kafka"
	"github.com/JADDOU3/NexusQuest-sub002/internal/runtime"
	"github.com/JADDOU3/NexusQuest-sub002/internal/runtime/docker"
	"github.com/JADDOU3/NexusQuest-sub002/internal/session"
)

func main() {
	_ = godotenv.Load()

	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	}))
	slog.SetDefault(log)

	if err := run(log); err != nil {
		log.Error("engine terminated", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadAppConfig()

	registry, err := runtime.NewRegistry(runtime.Builtins()...)
	if err != nil {
		return err
	}

	backend, err := docker.New(dockerConfigFromEnv())
	if err != nil {
		return err
	}

	sessions := session.NewRegistry(cfg.IdleTimeout, log)
	service := engine.NewService(registry, backend, sessions, engine.Config{}, log)
	defer func() {
		if cerr := service.Close(); cerr != nil {
			log.Warn("failed to close engine", "error", cerr)
		}
	}()

	if cfg.DemoMode {
		return runDemo(ctx, log, service, registry, cfg)
	}

	consumer, err := kafkainfra.NewConsumer(kafkainfra.Config{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.RequestsTopic,
		GroupID: cfg.GroupID,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := consumer.Close(); cerr != nil {
			log.Warn("failed to close kafka consumer", "error", cerr)
		}
	}()

	publisher, err := kafkainfra.NewPublisher(kafkainfra.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.ReportsTopic,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := publisher.Close(); cerr != nil {
			log.Warn("failed to close kafka publisher", "error", cerr)
		}
	}()

	log.Info("engine starting",
		"languages", registry.Languages(),
		"brokers", cfg.KafkaBrokers,
		"requests_topic", cfg.RequestsTopic,
		"reports_topic", cfg.ReportsTopic,
		"max_parallel", cfg.MaxParallel,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		sessions.RunReaper(groupCtx, cfg.ReapInterval)
		return nil
	})

	group.Go(func() error {
		defer stop()
		return service.Serve(groupCtx, consumer, cfg.MaxRequests, cfg.MaxParallel, func(report execution.RunReport) {
			publishReport(groupCtx, log, publisher, report)
		})
	})

	return group.Wait()
}

// runDemo drains the built-in request catalogue against the local Docker
// daemon and logs each report. Useful for verifying a deployment without a
// broker.
func runDemo(ctx context.Context, log *slog.Logger, service *engine.Service, registry *runtime.Registry, cfg appConfig) error {
	log.Info("engine starting in demo mode",
		"languages", registry.Languages(),
		"max_parallel", cfg.MaxParallel,
	)

	source := producer.NewService()
	return service.Serve(ctx, source, 0, cfg.MaxParallel, func(report execution.RunReport) {
		logReport(log, report)
	})
}

func publishReport(ctx context.Context, log *slog.Logger, publisher *kafkainfra.Publisher, report execution.RunReport) {
	publishCtx := ctx
	if publishCtx.Err() != nil {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if err := publisher.PublishRunReport(publishCtx, report); err != nil {
		log.Error("failed to publish report", "session_id", report.Request.SessionID, "error", err)
		return
	}

	logReport(log, report)
}

func logReport(log *slog.Logger, report execution.RunReport) {
	switch {
	case report.Err != nil:
		log.Warn("run failed", "session_id", report.Request.SessionID, "error", report.Err)
	case report.Grading != nil:
		log.Info("run graded",
			"session_id", report.Request.SessionID,
			"passed", report.Grading.PassedCount,
			"total", len(report.Grading.Results),
			"all_passed", report.Grading.AllPassed,
		)
	case report.Result != nil:
		log.Info("run completed",
			"session_id", report.Request.SessionID,
			"status", report.Result.Status,
			"exit_code", report.Result.ExitCode,
			"duration", report.Result.Duration.Round(time.Millisecond),
		)
	}
}
