// Package main is the entry point for the edgefinder hypothesis evaluation
// engine. The service tests whether discrete event streams statistically
// predict market asset behavior: hypotheses queue up, a worker pool aligns
// event and price series and runs the configured test, and significant
// verdicts become relationships pushed to the synthesis engine.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/edgefinder/internal/config"
	"github.com/aristath/edgefinder/internal/di"
	"github.com/aristath/edgefinder/internal/server"
	"github.com/aristath/edgefinder/pkg/logger"
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
		Pretty: true,
	})

	log.Info().Msg("Starting edgefinder")

	// Wire databases, repositories, evaluator, worker pool, and jobs
	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	// Synthesis push client connects in the background; a dead endpoint
	// must not block evaluation.
	if container.SynthesisClient != nil {
		if err := container.SynthesisClient.Start(); err != nil {
			log.Warn().Err(err).Msg("Synthesis client starting in degraded mode")
		}
	}

	srv := server.New(server.Config{
		Port:           cfg.Port,
		DevMode:        cfg.DevMode,
		DataDir:        cfg.DataDir,
		AllowedOrigins: cfg.AllowedOrigins,
		Log:            log,
		ResearchDB:     container.ResearchDB,
		Hypotheses:     container.HypothesisRepo,
		Verdicts:       container.VerdictRepo,
		Relationships:  container.RelationshipRepo,
		Pool:           container.Pool,
		Alpha:          cfg.Analysis.FamilyWiseAlpha,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Worker pool drains the pending queue; the initial trigger picks up
	// hypotheses left over from a previous run.
	go container.Pool.Run()
	container.Pool.Trigger()
	log.Info().Int("workers", cfg.Scheduler.Workers).Msg("Evaluation pool started")

	container.Scheduler.Start()

	// Block until SIGINT or SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	container.Scheduler.Stop()
	container.Pool.Stop()

	if container.SynthesisClient != nil {
		if err := container.SynthesisClient.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping synthesis client")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
