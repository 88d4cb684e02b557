package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"freight/cmd"
	"freight/internal/adapters/out/postgres"

	"github.com/joho/godotenv"
)

const (
	shutdownTimeout  = 30 * time.Second
	poolMonitorEvery = 30 * time.Second
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", slog.Any("error", err))
		os.Exit(1)
	}

	config, err := cmd.LoadConfig()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(config)
	slog.SetDefault(logger)

	if err = run(config, logger); err != nil {
		logger.Error("freight stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(config cmd.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cmd.NewCompositionRoot(ctx, config, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil {
			logger.Error("failed to close resources", slog.Any("error", closeErr))
		}
	}()

	go postgres.MonitorPool(ctx, logger, app.DB(), poolMonitorEvery)

	jobManager, err := app.CreateJobManager()
	if err != nil {
		return err
	}
	// Runs that fail to recover stay open and are retried on schedule.
	jobManager.RecoverNow(ctx)
	if err = jobManager.StartAll(); err != nil {
		return err
	}

	e := app.CreateEcho()
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", slog.String("port", config.HTTPPort))
		if startErr := e.Start(fmt.Sprintf("0.0.0.0:%s", config.HTTPPort)); startErr != nil &&
			!errors.Is(startErr, http.ErrServerClosed) {
			serverErr <- startErr
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serverErr:
		logger.Error("HTTP server failed", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("failed to stop HTTP server", slog.Any("error", shutdownErr))
	}
	jobManager.StopAll()
	if shutdownErr := app.Engine().Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("failed to stop workflow engine", slog.Any("error", shutdownErr))
	}

	return err
}

func newLogger(config cmd.Config) *slog.Logger {
	level, _ := config.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if config.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", "freight"))
}
