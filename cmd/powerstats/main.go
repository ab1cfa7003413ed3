// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/sustainable-computing-io/powerstats/config"
	"github.com/sustainable-computing-io/powerstats/internal/device"
	"github.com/sustainable-computing-io/powerstats/internal/device/nvidia"
	"github.com/sustainable-computing-io/powerstats/internal/exporter/debug"
	"github.com/sustainable-computing-io/powerstats/internal/exporter/mcp"
	"github.com/sustainable-computing-io/powerstats/internal/exporter/prometheus"
	"github.com/sustainable-computing-io/powerstats/internal/exporter/stdout"
	"github.com/sustainable-computing-io/powerstats/internal/logger"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"github.com/sustainable-computing-io/powerstats/internal/provider/rail"
	"github.com/sustainable-computing-io/powerstats/internal/provider/residency"
	"github.com/sustainable-computing-io/powerstats/internal/server"
	"github.com/sustainable-computing-io/powerstats/internal/service"
	"github.com/sustainable-computing-io/powerstats/internal/version"
	"k8s.io/utils/ptr"
)

func main() {
	cfg, err := parseArgsAndConfig()
	if err != nil {
		os.Exit(1)
	}

	logger := logger.New(cfg.Log.Level, cfg.Log.Format, logOutput(cfg))
	logVersionInfo(logger)
	printConfigInfo(logger, cfg)

	services, err := createServices(logger, cfg)
	if err != nil {
		logger.Error("failed to create services", "error", err)
		os.Exit(1)
	}

	if err := service.Init(logger, services); err != nil {
		logger.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting PowerStats")
	if err := service.Run(context.Background(), logger, services); err != nil {
		logger.Error("PowerStats terminated with an error", "error", err)
		os.Exit(1)
	}
	logger.Info("Graceful shutdown completed")
}

// logOutput keeps stdout free for the MCP stdio transport
func logOutput(cfg *config.Config) io.Writer {
	if ptr.Deref(cfg.Exporter.MCP.Enabled, false) && cfg.Exporter.MCP.Transport == config.MCPTransportStdio {
		return os.Stderr
	}
	return os.Stdout
}

func logVersionInfo(logger *slog.Logger) {
	v := version.Info()
	logger.Info("PowerStats version information",
		"version", v.Version,
		"buildTime", v.BuildTime,
		"gitBranch", v.GitBranch,
		"gitCommit", v.GitCommit,
		"goVersion", v.GoVersion,
		"goOS", v.GoOS,
		"goArch", v.GoArch,
	)
}

func parseArgsAndConfig() (*config.Config, error) {
	const appName = "powerstats"
	app := kingpin.New(appName, "Power rail energy and state residency aggregator.")
	app.Version(version.Info().String())

	configFile := app.Flag("config.file", "Path to YAML configuration file").String()
	updateConfig := config.RegisterFlags(app)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := logger.New("info", "text", os.Stderr)
	builder := &config.Builder{}
	if *configFile != "" {
		logger.Info("Loading configuration file", "path", *configFile)
		builder.MergeFile(*configFile)
	}
	cfg, err := builder.Build()
	if err != nil {
		logger.Error("Error loading configuration", "error", err.Error())
		return nil, err
	}

	// command line flags override config file settings
	if err := updateConfig(cfg); err != nil {
		logger.Error("Error applying command line flags", "error", err.Error())
		return nil, err
	}

	return cfg, nil
}

func printConfigInfo(logger *slog.Logger, cfg *config.Config) {
	if !logger.Enabled(context.Background(), slog.LevelInfo) || cfg.Log.Format == "json" {
		return
	}
	// stdout belongs to the MCP stdio transport
	if logOutput(cfg) == os.Stderr {
		return
	}

	fmt.Printf(`
Configuration
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
%s
━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━
`, cfg)
}

func createServices(logger *slog.Logger, cfg *config.Config) ([]service.Service, error) {
	logger.Debug("Creating all services")

	sources, err := createRailSources(logger, cfg)
	if err != nil {
		return nil, err
	}
	var energy energyProvider
	if len(sources) != 0 {
		energy = rail.NewProvider(sources, rail.WithLogger(logger))
	}

	residencyProviders, err := createResidencyProviders(logger, cfg)
	if err != nil {
		return nil, err
	}

	stats := powerstats.New(powerstats.WithLogger(logger))
	statsSvc := newStatsService(stats, energy, residencyProviders, logger)
	reporter := powerstats.NewReporter(stats, powerstats.WithReporterLogger(logger))

	apiServer := server.NewAPIServer(
		server.WithLogger(logger),
		server.WithListenAddress(cfg.Web.ListenAddresses),
		server.WithWebConfig(cfg.Web.Config),
	)

	services := []service.Service{
		statsSvc,
		apiServer,
		server.NewProbe(apiServer, stats),
	}

	if ptr.Deref(cfg.Debug.Pprof.Enabled, false) {
		services = append(services, server.NewPprof(apiServer))
	}

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		collectors := prometheus.CreateCollectors(stats,
			prometheus.WithLogger(logger),
			prometheus.WithMetricsLevel(cfg.Exporter.Prometheus.MetricsLevel),
		)
		services = append(services, prometheus.NewExporter(apiServer,
			prometheus.WithLogger(logger),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
			prometheus.WithCollectors(collectors),
		))
	}

	if ptr.Deref(cfg.Exporter.Debug.Enabled, false) {
		services = append(services, debug.NewExporter(apiServer, reporter, stats, debug.WithLogger(logger)))
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(reporter, stats,
			stdout.WithLogger(logger),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
			stdout.WithFormat(cfg.Exporter.Stdout.Format),
		))
	}

	if ptr.Deref(cfg.Exporter.MCP.Enabled, false) {
		var opts []mcp.Option
		switch cfg.Exporter.MCP.Transport {
		case config.MCPTransportSSE:
			opts = append(opts, mcp.WithSSETransport(apiServer, "/mcp"))
		case config.MCPTransportStreamable:
			opts = append(opts, mcp.WithStreamableHTTP(apiServer, "/mcp"))
		}
		services = append(services, mcp.NewServer(stats, reporter, logger, opts...))
	}

	services = append(services, service.NewSignalHandler(logger, syscall.SIGINT, syscall.SIGTERM))
	return services, nil
}

func createRailSources(logger *slog.Logger, cfg *config.Config) ([]rail.Source, error) {
	var sources []rail.Source

	if fake := cfg.Dev.FakeCpuMeter; ptr.Deref(fake.Enabled, false) {
		meter, err := device.NewFakeCPUMeter(fake.Zones, device.WithFakeLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create fake CPU meter: %w", err)
		}
		sources = append(sources, rail.NewRAPLSource(meter))
	} else if ptr.Deref(cfg.Rapl.Enabled, false) {
		meter, err := device.NewCPUPowerMeter(cfg.Host.SysFS,
			device.WithRaplLogger(logger),
			device.WithZoneFilter(cfg.Rapl.Zones),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create CPU power meter: %w", err)
		}
		sources = append(sources, rail.NewRAPLSource(meter))
	}

	if ptr.Deref(cfg.GPU.Enabled, false) {
		sources = append(sources, rail.NewGPUSource(nvidia.NewBackend(logger)))
	}
	return sources, nil
}

func createResidencyProviders(logger *slog.Logger, cfg *config.Config) ([]residencyProvider, error) {
	var providers []residencyProvider

	if ptr.Deref(cfg.CPUIdle.Enabled, false) {
		p, err := residency.NewCPUIdleProvider(cfg.Host.SysFS, residency.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create cpuidle provider: %w", err)
		}
		providers = append(providers, p)
	}

	if ptr.Deref(cfg.Dev.FakeResidency.Enabled, false) {
		providers = append(providers, residency.NewFakeProvider(residency.WithFakeLogger(logger)))
	}
	return providers, nil
}
