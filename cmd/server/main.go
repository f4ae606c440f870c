package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"carbonledger/internal/config"
	"carbonledger/internal/handler"
	"carbonledger/internal/infrastructure/cache"
	"carbonledger/internal/infrastructure/database"
	"carbonledger/internal/infrastructure/mq"
	"carbonledger/internal/job"
	"carbonledger/internal/logging"
	"carbonledger/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}
	logger.Info("mysql connected", slog.String("host", cfg.MySQL.Host), slog.String("database", cfg.MySQL.Database))

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		logger.Info("redis connected", slog.String("host", cfg.Redis.Host))
	} else {
		logger.Warn("redis disabled, settlements rely on row locks only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			return err
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, producer, cfg, logger)
		go outboxSender.Start(ctx)
		// runs before producer.Close and waits out any in-flight send
		defer outboxSender.Stop()
	} else {
		logger.Warn("kafka brokers not configured, ledger events stay in the outbox")
	}

	router := handler.SetupRouter(db, redisClient, cfg, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
