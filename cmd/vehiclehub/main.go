// Package main implements the entry point for the vehiclehub daemon,
// the in-process measurement hub that ingests vehicle data from a
// single active source and fans it out to subscribed listeners.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/vehiclehub/config"
	"github.com/c360/vehiclehub/hub"
	"github.com/c360/vehiclehub/metric"
	"github.com/c360/vehiclehub/source"
	"github.com/c360/vehiclehub/source/trace"
	"github.com/c360/vehiclehub/source/websocket"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "vehiclehub"
)

const statusInterval = 30 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg, shouldExit, err := initializeCLI()
	if shouldExit || err != nil {
		return err
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	metricsRegistry := metric.NewMetricsRegistry()

	sources := source.NewRegistry()
	if err := trace.Register(sources); err != nil {
		return fmt.Errorf("register trace source: %w", err)
	}
	if err := websocket.Register(sources); err != nil {
		return fmt.Errorf("register websocket source: %w", err)
	}
	slog.Info("Source factories registered", "identifiers", sources.Identifiers())

	h, err := hub.New(hub.Deps{
		Sources:         sources,
		DefaultSource:   cfg.Source.Default,
		DefaultResource: cfg.Source.Resource,
		TraceDir:        cfg.Recording.Directory,
		Logger:          slog.Default(),
		Metrics:         metricsRegistry,
		QueueCapacity:   cfg.Pipeline.QueueCapacity,
		PollInterval:    cfg.Pipeline.PollInterval,
	})
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry,
			slog.Default().With("component", "metrics-server"))
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		slog.Info("Metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	return runWithSignalHandling(h, metricsServer, cfg, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags and sets up logging
func initializeCLI() (*CLIConfig, bool, error) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return nil, false, fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil, true, nil
	}

	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, true, nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	slog.Info("Starting vehiclehub",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	return cliCfg, false, nil
}

// runWithSignalHandling runs the hub until a shutdown signal arrives.
func runWithSignalHandling(
	h *hub.Hub,
	metricsServer *metric.Server,
	cfg *config.Config,
	shutdownTimeout time.Duration,
) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := h.Start(signalCtx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	// Running as a daemon there are no bound clients; activate the
	// configured source directly. A failure here is a configuration
	// error: log it and keep serving, a later SetSource can recover.
	if err := h.SetSource(cfg.Source.Default, cfg.Source.Resource); err != nil {
		slog.Warn("Default source activation failed",
			"identifier", cfg.Source.Default, "error", err)
	}

	slog.Info("vehiclehub started", "source", cfg.Source.Default)

	g, ctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				slog.Info("Status", "hub", h.String())
			}
		}
	})

	<-signalCtx.Done()
	slog.Info("Received shutdown signal")
	_ = g.Wait()

	if err := h.Stop(shutdownTimeout); err != nil {
		slog.Error("Hub shutdown failed", "error", err)
		return err
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			slog.Warn("Metrics server stop failed", "error", err)
		}
	}

	slog.Info("vehiclehub shutdown complete", "hub", h.String())
	return nil
}
