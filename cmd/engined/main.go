// EventCore Engine Daemon
//
// Runs the event-processing engine standalone, exposing the ops surface:
// health, metrics, engine status, and warnings.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.eventcore.tech/engine"
	"go.eventcore.tech/internal/common/health"
	"go.eventcore.tech/internal/common/lifecycle"
	"go.eventcore.tech/internal/config"
	"go.eventcore.tech/internal/warning"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	// Configure logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("EVENTCORE_DEV") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Info().
		Str("version", version).
		Str("buildTime", buildTime).
		Msg("Starting EventCore engine daemon")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	if level, err := zerolog.ParseLevel(cfg.Log.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Build the engine
	warningService := warning.NewInMemoryService()

	eng, err := engine.New(cfg.EngineConfig())
	if err != nil {
		log.Error().Err(err).Msg("Failed to create engine")
		os.Exit(1)
	}
	eng.WithWarningSink(warningService)

	eng.Start()

	// Initialize health checker
	healthChecker := health.NewChecker()
	healthChecker.AddLivenessCheck("daemon", func(ctx context.Context) error {
		return nil
	})
	healthChecker.AddReadinessCheck("engine", func(ctx context.Context) error {
		if !eng.Status().Started {
			return errors.New("engine not started")
		}
		return nil
	})

	// Set up the ops HTTP router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
	}))

	// Health endpoints
	r.Get("/q/health", healthChecker.HandleHealth)
	r.Get("/q/health/live", healthChecker.HandleLive)
	r.Get("/q/health/ready", healthChecker.HandleReady)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/q/metrics", promhttp.Handler())

	// Engine status endpoint
	r.Get("/engine/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, eng.Status())
	})

	// Warning endpoints
	warningHandler := warning.NewHandler(warningService)
	warningHandler.RegisterRoutes(r)

	// Start the ops HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.HTTP.Port).Msg("Ops HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Ops HTTP server failed")
			os.Exit(1)
		}
	}()

	// Graceful shutdown: HTTP first, then the engine
	manager := lifecycle.NewManager()
	manager.RegisterHTTPShutdown("ops-http", server.Shutdown)
	manager.RegisterEngineShutdown("engine", func(ctx context.Context) error {
		eng.Shutdown()
		return nil
	})

	if err := manager.Run(); err != nil {
		log.Error().Err(err).Msg("Shutdown incomplete")
		os.Exit(1)
	}

	log.Info().Msg("EventCore engine daemon stopped")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
