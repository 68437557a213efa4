package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/saaga0h/jeeves-sensor-publisher/internal/publisher"
	"github.com/saaga0h/jeeves-sensor-publisher/internal/sensor"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/config"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/health"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/metrics"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/mqtt"
	"github.com/saaga0h/jeeves-sensor-publisher/pkg/redis"
)

func main() {
	// Load configuration with hierarchy: defaults → file → env → flags
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting J.E.E.V.E.S. Sensor Publisher",
		"service_name", cfg.ServiceName,
		"mqtt_broker", cfg.MQTTAddress(),
		"topic", cfg.MQTTTopic,
		"period_sec", cfg.PublishPeriodSec,
		"sensor", cfg.SensorName,
		"site", cfg.SensorSite,
		"generator", cfg.GeneratorMode,
		"log_level", cfg.LogLevel)

	// Set up context with cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	generator, err := sensor.NewGenerator(cfg)
	if err != nil {
		logger.Error("Failed to create reading generator", "error", err)
		os.Exit(1)
	}

	// Initialize MQTT client
	mqttClient := mqtt.NewClient(cfg, logger)

	// Redis status mirror is optional
	var redisClient redis.Client
	if cfg.RedisEnabled() {
		redisClient = redis.NewClient(cfg, logger)
	}

	agent := publisher.NewAgent(mqttClient, redisClient, generator, cfg, logger)

	// Start health check and metrics server
	var httpServer *http.Server
	if cfg.HealthPort > 0 {
		m := metrics.New(cfg.ServiceName, cfg.SensorName, cfg.SensorSite)
		agent.Instrument(m)

		mux := health.NewChecker(agent, logger).NewServeMux()
		mux.Handle("/metrics", m.Handler())
		httpServer = startHealthServer(cfg.HealthPort, mux, logger)
	}

	// Start agent in a goroutine
	agentErr := make(chan error, 1)
	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("Agent error", "error", err)
			agentErr <- err
		}
	}()

	// Wait for shutdown signal or agent error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-agentErr:
		logger.Error("Agent failed", "error", err)
	}

	// Graceful shutdown
	logger.Info("Initiating graceful shutdown")
	cancel()

	if err := agent.Stop(); err != nil {
		logger.Error("Error stopping agent", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down health server", "error", err)
		}
	}

	logger.Info("Sensor publisher shutdown complete")
}

func startHealthServer(port int, handler http.Handler, logger *slog.Logger) *http.Server {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
