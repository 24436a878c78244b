// Package main implements the vitalstream daemon. It attaches to a bedside
// monitor's shared-memory telemetry ring, batches the decoded frames and
// uploads them to the configured collector.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/c360/vitalstream/config"
	"github.com/c360/vitalstream/health"
	"github.com/c360/vitalstream/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vitalstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	logger, logCloser := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, cliCfg.LogFile)
	defer logCloser.Close()
	slog.SetDefault(logger)

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting vitalstream",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"device_id", cfg.DeviceID,
		"transport", cfg.Transport.Type)
	slog.Debug("Effective configuration", "config", cfg.String())

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	registry := metric.NewMetricsRegistry()
	p, err := buildPipeline(signalCtx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	monitor := health.NewMonitor()
	if cfg.Metrics.Port > 0 {
		server := startMetrics(cfg, registry, monitor)
		defer func() {
			if err := server.Stop(); err != nil {
				slog.Warn("Stop metrics server", "error", err)
			}
		}()
	}

	// Components outlive the signal so Stop can drain them in order
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if err := p.group.Start(runCtx, cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	slog.Info("vitalstream started")

	watchCtx, watchCancel := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		monitor.Watch(watchCtx, cliCfg.HealthInterval, p.components()...)
	}()

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	// reader -> compiler (final flush) -> governor (drain)
	stopErr := p.group.Stop(cliCfg.ShutdownTimeout)

	watchCancel()
	<-watchDone

	if stopErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", stopErr)
	}
	slog.Info("vitalstream shutdown complete")
	return nil
}

// loadConfig loads the layered configuration and applies CLI overrides
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(true)
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.DeviceID != "" {
		cfg.DeviceID = cliCfg.DeviceID
	}
	if cliCfg.MetricsPort >= 0 {
		cfg.Metrics.Port = cliCfg.MetricsPort
	}

	// flag overrides bypass the loader, so check again
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
