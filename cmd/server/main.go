// Package main is the entry point for the adaptive trader.
// It wires the decision loop, the learning pipeline and the HTTP API, then
// runs until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aristath/adaptivetrader/internal/config"
	"github.com/aristath/adaptivetrader/internal/di"
	"github.com/aristath/adaptivetrader/internal/server"
	"github.com/aristath/adaptivetrader/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("mode", cfg.TradingMode).
		Str("symbol", cfg.Symbol).
		Str("data_dir", cfg.DataDir).
		Msg("Starting adaptive trader")

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing flushes the registry WAL and releases the feed
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		DevMode:   cfg.LogLevel == "debug",
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()
	log.Info().Strs("jobs", container.Scheduler.Jobs()).Msg("Scheduler started")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := container.Loop.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Decision loop exited with error")
			return
		}
		if cfg.TradingMode != "replay" || ctx.Err() != nil {
			return
		}

		// A finished replay gets one learning pass so the API reflects it
		for _, name := range []string{jobs.RebuildPolicy.Name(), jobs.Retrain.Name()} {
			if err := container.Scheduler.RunNow(name); err != nil {
				log.Error().Err(err).Str("job", name).Msg("Post-replay job failed")
			}
		}
		log.Info().Msg("Replay complete, API stays up until shutdown")
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop deciding first so no new position opens mid-shutdown
	cancel()
	wg.Wait()
	log.Info().Msg("Decision loop stopped")

	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
