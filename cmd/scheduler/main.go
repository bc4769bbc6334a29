package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"transcode-scheduler/internal/config"
	"transcode-scheduler/internal/heartbeat"
	"transcode-scheduler/internal/monitor"
	"transcode-scheduler/internal/runtime"
	"transcode-scheduler/internal/scheduler"
)

func main() {
	// 1. Load Configuration
	// It looks for config.yml in the root directory.
	cfg, err := config.LoadConfig("config.yml")
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := newLogger(cfg.LogLevel)
	log.Info().Str("worker_id", cfg.WorkerID).Msg("starting transcode scheduler")

	// 2. Initialize the Execution Runtime
	// This verifies the transcode and probe binaries up front; a pool is
	// never built on top of a broken runtime.
	rt, err := runtime.New(cfg.ExecBinary, cfg.ProbeBinary, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize execution runtime")
	}

	// 3. Start the Worker Pool
	pool := scheduler.New(scheduler.Config{
		MinWorkers:         cfg.MinWorkers,
		MaxWorkers:         cfg.MaxWorkers,
		ScaleUpThreshold:   cfg.ScaleUpThreshold,
		ScaleDownThreshold: cfg.ScaleDownThreshold,
		ScaleStep:          cfg.ScaleStep,
		ScaleInterval:      cfg.ScaleInterval(),
		PollInterval:       cfg.PollInterval(),
	}, rt, log)

	// 4. Setup Context for Graceful Shutdown
	// We catch SIGINT (Ctrl+C) and SIGTERM (OS shutdown).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// 5. Start Heartbeat Telemetry (optional)
	if cfg.OrchestratorURL != "" {
		hb := heartbeat.New(cfg.OrchestratorURL, cfg.HeartbeatSec, cfg.WorkerID, pool, monitor.New(), log)
		hb.Start(ctx)
	}

	log.Info().Msg("scheduler is online")

	// 6. Block until shutdown signal, then drain
	<-stop
	log.Info().Msg("shutting down, draining queue")
	cancel()
	pool.Shutdown(true)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}
