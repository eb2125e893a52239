// Package main implements the Chameleon reference client: it connects to
// an agent event stream, drives the three-layer display core and logs what
// a real renderer would paint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/TheGoodCatalyst/chameleon/config"
	"github.com/TheGoodCatalyst/chameleon/metric"
	"github.com/TheGoodCatalyst/chameleon/registry"
	"github.com/TheGoodCatalyst/chameleon/session"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "chameleon"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return err
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.Validate {
		logger.Info("configuration is valid")
		return nil
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metrics := metricsRegistry.CoreMetrics()
	if cfg.Metrics.Enabled {
		metricsServer := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				logger.Warn("metrics server stop failed", "error", err)
			}
		}()
	}

	sess, err := session.New(cfg, session.Options{
		Logger:    logger,
		Metrics:   metrics,
		Registrar: metricsRegistry,
	})
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err := registerLoggingCapabilities(sess.Registry(), metricsRegistry, logger); err != nil {
		return fmt.Errorf("register capabilities: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sess.Start(ctx); err != nil {
		logger.Warn("initial connect failed, retry schedule running", "error", err)
	}
	defer func() {
		if err := sess.Stop(); err != nil {
			logger.Warn("stop failed", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			return nil
		case err := <-sess.Errors():
			logger.Warn("stream error", "error", err)
		}
	}
}

// registerLoggingCapabilities installs headless render capabilities for the
// common component kinds and registers the renderer's own latency metric.
// A real embedding replaces these with renderers that paint onto its
// surface.
func registerLoggingCapabilities(reg *registry.Registry, registrar metric.MetricsRegistrar, logger *slog.Logger) error {
	renderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chameleon",
		Subsystem: "headless_renderer",
		Name:      "render_duration_seconds",
		Help:      "Render capability latency in seconds",
		Buckets:   prometheus.DefBuckets,
	})
	if err := registrar.RegisterHistogram("headless-renderer", "render_duration_seconds", renderDuration); err != nil {
		return err
	}

	for _, kind := range []string{"card", "chart", "bar_chart", "table", "form", "text", "auth_prompt"} {
		kind := kind
		err := reg.RegisterCapability(kind, func(props map[string]any, _ registry.Surface) (*registry.RenderedComponent, error) {
			start := time.Now()
			logger.Info("render", "kind", kind, "props", props)
			renderDuration.Observe(time.Since(start).Seconds())
			return &registry.RenderedComponent{
				Handle: kind,
				Update: func(p map[string]any) error {
					logger.Info("update", "kind", kind, "props", p)
					return nil
				},
				Destroy: func() error {
					logger.Info("destroy", "kind", kind)
					return nil
				},
			}, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
