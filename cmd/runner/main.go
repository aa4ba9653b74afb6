package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtr002/Job-Runner/internal/actions"
	"github.com/mtr002/Job-Runner/internal/api"
	"github.com/mtr002/Job-Runner/internal/config"
	"github.com/mtr002/Job-Runner/internal/db"
	"github.com/mtr002/Job-Runner/internal/grpc"
	"github.com/mtr002/Job-Runner/internal/interfaces"
	"github.com/mtr002/Job-Runner/internal/jobs"
	"github.com/mtr002/Job-Runner/internal/logger"
	"github.com/mtr002/Job-Runner/internal/nats"
	"github.com/mtr002/Job-Runner/internal/queue"
	"github.com/mtr002/Job-Runner/internal/websocket"
	"github.com/mtr002/Job-Runner/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Init("job-runner", "info")
		logger.Logger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger.Init(cfg.ServiceName, cfg.LogLevel)

	if err := run(cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("Runner failed")
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.Connect(ctx, queue.Config{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		Key:        cfg.Queue.Key,
	})
	if err != nil {
		return err
	}
	defer q.Close()

	registry, err := actions.NewDefaultRegistry(cfg.Runner.ExecAllow)
	if err != nil {
		return err
	}
	logger.Logger.Info().Strs("actions", registry.Names()).Msg("Action catalog loaded")

	hub := websocket.NewHub()
	go hub.Run(ctx)
	sinks := []interfaces.OutcomeSink{hub}

	var runs interfaces.RunStore
	if cfg.Database.URL != "" {
		database, err := openRunLog(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close()

		store := db.NewStore(database)
		runs = store
		sinks = append(sinks, store)
	}

	manager := jobs.NewManager(q, registry.Validate)

	if cfg.NATS.URL != "" {
		if cfg.NATS.PublishOutcomes {
			client, err := nats.NewClient(cfg.NATS.URL)
			if err != nil {
				return err
			}
			defer client.Close()
			sinks = append(sinks, client)
		}

		if cfg.NATS.BridgeSubmissions {
			bridge, err := nats.NewServer(cfg.NATS.URL, manager)
			if err != nil {
				return err
			}
			if err := bridge.Subscribe(); err != nil {
				bridge.Close()
				return err
			}
			defer bridge.Close()
			logger.Logger.Info().Str("url", cfg.NATS.URL).Str("subject", nats.JobSubmitSubject).Msg("NATS bridge started")
		}
	}

	runner := worker.NewRunner(q, registry, cfg.WorkerConfig(), worker.WithSinks(sinks...))

	handler := api.NewRouter(api.Dependencies{
		Service:     cfg.ServiceName,
		Manager:     manager,
		Queue:       q,
		Runs:        runs,
		Hub:         hub,
		RunnerState: func() string { return runner.State().String() },
	})
	httpServer := api.NewServer(cfg.HTTP.Addr, handler)
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	healthServer := grpc.NewHealthServer(cfg.ServiceName)
	go healthServer.Watch(ctx, func() bool { return runner.State() != worker.Stopped }, time.Second)
	go func() {
		if err := healthServer.Start(cfg.GRPC.Addr); err != nil {
			logger.Logger.Error().Err(err).Msg("gRPC health server failed")
		}
	}()

	runErr := runner.Run(ctx)

	logger.Logger.Info().Msg("Shutting down gracefully...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Warn().Err(err).Msg("HTTP server shutdown")
	}
	healthServer.Stop()

	return runErr
}

func openRunLog(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	database, err := db.Connect(ctx, db.DefaultConfig(cfg.URL))
	if err != nil {
		return nil, err
	}

	if cfg.Migrate {
		if err := db.RunMigrations(database); err != nil {
			database.Close()
			return nil, err
		}
	}
	return database, nil
}
