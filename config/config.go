// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/utils/ptr"
)

// Config represents the complete application configuration
type (
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	}
	Host struct {
		SysFS string `yaml:"sysfs"`
	}

	// Rapl configuration
	Rapl struct {
		Enabled *bool    `yaml:"enabled"`
		Zones   []string `yaml:"zones"`
	}

	// GPU rails read through NVML
	GPU struct {
		Enabled *bool `yaml:"enabled"`
	}

	// CPUIdle state residencies read from sysfs
	CPUIdle struct {
		Enabled *bool `yaml:"enabled"`
	}

	// Development mode settings; disabled by default
	Dev struct {
		FakeCpuMeter struct {
			Enabled *bool    `yaml:"enabled"`
			Zones   []string `yaml:"zones"`
		} `yaml:"fake-cpu-meter"`
		FakeResidency struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"fake-residency"`
	}
	Web struct {
		Config          string   `yaml:"configFile"`
		ListenAddresses []string `yaml:"listenAddresses"`
	}

	// Exporter configuration
	StdoutExporter struct {
		Enabled  *bool         `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		Format   string        `yaml:"format"` // dump or table
	}

	PrometheusExporter struct {
		Enabled         *bool    `yaml:"enabled"`
		DebugCollectors []string `yaml:"debugCollectors"`
		MetricsLevel    Level    `yaml:"metricsLevel"`
	}

	// DebugExporter serves the text dump and the JSON query API
	DebugExporter struct {
		Enabled *bool `yaml:"enabled"`
	}

	MCPExporter struct {
		Enabled   *bool  `yaml:"enabled"`
		Transport string `yaml:"transport"` // stdio, sse or streamable
	}

	Exporter struct {
		Stdout     StdoutExporter     `yaml:"stdout"`
		Prometheus PrometheusExporter `yaml:"prometheus"`
		Debug      DebugExporter      `yaml:"debug"`
		MCP        MCPExporter        `yaml:"mcp"`
	}

	// Debug configuration
	PprofDebug struct {
		Enabled *bool `yaml:"enabled"`
	}

	Debug struct {
		Pprof PprofDebug `yaml:"pprof"`
	}

	Config struct {
		Log      Log      `yaml:"log"`
		Host     Host     `yaml:"host"`
		Rapl     Rapl     `yaml:"rapl"`
		GPU      GPU      `yaml:"gpu"`
		CPUIdle  CPUIdle  `yaml:"cpuidle"`
		Exporter Exporter `yaml:"exporter"`
		Web      Web      `yaml:"web"`
		Debug    Debug    `yaml:"debug"`
		Dev      Dev      `yaml:"dev"` // WARN: do not expose dev settings as flags
	}
)

// MetricsLevelValue is a custom kingpin.Value that parses metrics levels directly into Level
type MetricsLevelValue struct {
	level *Level
}

// NewMetricsLevelValue creates a new MetricsLevelValue with the given target
func NewMetricsLevelValue(target *Level) *MetricsLevelValue {
	return &MetricsLevelValue{level: target}
}

// Set implements kingpin.Value interface - parses and accumulates metrics levels
func (m *MetricsLevelValue) Set(value string) error {
	level, err := ParseLevel([]string{value})
	if err != nil {
		return err
	}

	// the first value replaces the default
	if *m.level == MetricsLevelAll {
		*m.level = 0
	}

	*m.level |= level
	return nil
}

// String implements kingpin.Value interface
func (m *MetricsLevelValue) String() string {
	return m.level.String()
}

// IsCumulative implements kingpin.Value interface to support multiple values
func (m *MetricsLevelValue) IsCumulative() bool {
	return true
}

type SkipValidation int

const (
	SkipHostValidation SkipValidation = 1
)

const (
	StdoutFormatDump  = "dump"
	StdoutFormatTable = "table"

	MCPTransportStdio      = "stdio"
	MCPTransportSSE        = "sse"
	MCPTransportStreamable = "streamable"
)

const (
	// Flags
	LogLevelFlag  = "log.level"
	LogFormatFlag = "log.format"

	HostSysFSFlag = "host.sysfs"

	// RAPL
	RaplEnabledFlag = "rapl"

	GPUEnabledFlag     = "gpu"
	CPUIdleEnabledFlag = "cpuidle"

	pprofEnabledFlag = "debug.pprof"

	WebConfigFlag        = "web.config-file"
	WebListenAddressFlag = "web.listen-address"

	// Exporters
	ExporterStdoutEnabledFlag  = "exporter.stdout"
	ExporterStdoutIntervalFlag = "exporter.stdout.interval"
	ExporterStdoutFormatFlag   = "exporter.stdout.format"

	ExporterPrometheusEnabledFlag = "exporter.prometheus"
	ExporterPrometheusMetricsFlag = "metrics"

	ExporterDebugEnabledFlag = "exporter.debug"

	ExporterMCPEnabledFlag   = "exporter.mcp"
	ExporterMCPTransportFlag = "exporter.mcp.transport"

	// dev settings are file-only; flags are for end users
)

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Host: Host{
			SysFS: "/sys",
		},
		Rapl: Rapl{
			Enabled: ptr.To(true),
			Zones:   []string{},
		},
		GPU: GPU{
			Enabled: ptr.To(false),
		},
		CPUIdle: CPUIdle{
			Enabled: ptr.To(true),
		},
		Exporter: Exporter{
			Stdout: StdoutExporter{
				Enabled:  ptr.To(false),
				Interval: 5 * time.Second,
				Format:   StdoutFormatDump,
			},
			Prometheus: PrometheusExporter{
				Enabled:         ptr.To(true),
				DebugCollectors: []string{"go"},
				MetricsLevel:    MetricsLevelAll,
			},
			Debug: DebugExporter{
				Enabled: ptr.To(true),
			},
			MCP: MCPExporter{
				Enabled:   ptr.To(false),
				Transport: MCPTransportStreamable,
			},
		},
		Debug: Debug{
			Pprof: PprofDebug{
				Enabled: ptr.To(false),
			},
		},
		Web: Web{
			ListenAddresses: []string{":28283"},
		},
	}

	cfg.Dev.FakeCpuMeter.Enabled = ptr.To(false)
	cfg.Dev.FakeResidency.Enabled = ptr.To(false)
	return cfg
}

// Load loads configuration from an io.Reader
func Load(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.sanitize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// FromFile loads configuration from a file
func FromFile(filePath string) (cfg *Config, errRet error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil && errRet == nil {
			errRet = err
		}
	}()

	return Load(file)
}

type ConfigUpdaterFn func(*Config) error

// RegisterFlags registers command-line flags with kingpin app
// and returns ConfigUpdaterFn that updates the config from parsed flags
// as command line arguments override config file settings
func RegisterFlags(app *kingpin.Application) ConfigUpdaterFn {
	// track flags that were explicitly set
	flagsSet := map[string]bool{}

	app.PreAction(func(ctx *kingpin.ParseContext) error {
		flagsSet = map[string]bool{}

		for _, element := range ctx.Elements {
			if flag, ok := element.Clause.(*kingpin.FlagClause); ok && element.Value != nil {
				flagsSet[flag.Model().Name] = true
			}
		}
		return nil
	})

	// Logging
	logLevel := app.Flag(LogLevelFlag, "Logging level: debug, info, warn, error").Default("info").Enum("debug", "info", "warn", "error")
	logFormat := app.Flag(LogFormatFlag, "Logging format: text or json").Default("text").Enum("text", "json")
	// host
	hostSysFS := app.Flag(HostSysFSFlag, "Host sysfs path").Default("/sys").ExistingDir()

	// providers
	raplEnabled := app.Flag(RaplEnabledFlag, "Read CPU energy rails from RAPL powercap").Default("true").Bool()
	gpuEnabled := app.Flag(GPUEnabledFlag, "Read GPU energy rails from NVML").Default("false").Bool()
	cpuidleEnabled := app.Flag(CPUIdleEnabledFlag, "Report cpuidle state residencies").Default("true").Bool()

	enablePprof := app.Flag(pprofEnabledFlag, "Enable pprof debug endpoints").Default("false").Bool()
	webConfig := app.Flag(WebConfigFlag, "Web config file path").Default("").String()
	webListenAddresses := app.Flag(WebListenAddressFlag, "Web server listen addresses").Default(":28283").Strings()

	// exporters
	stdoutExporterEnabled := app.Flag(ExporterStdoutEnabledFlag, "Enable stdout exporter").Default("false").Bool()
	stdoutInterval := app.Flag(ExporterStdoutIntervalFlag, "Interval between stdout reports").Default("5s").Duration()
	stdoutFormat := app.Flag(ExporterStdoutFormatFlag, "Stdout report format: dump or table").
		Default(StdoutFormatDump).Enum(StdoutFormatDump, StdoutFormatTable)

	prometheusExporterEnabled := app.Flag(ExporterPrometheusEnabledFlag, "Enable Prometheus exporter").Default("true").Bool()

	metricsLevel := MetricsLevelAll
	app.Flag(ExporterPrometheusMetricsFlag, "Metrics levels to export (rail,residency)").SetValue(NewMetricsLevelValue(&metricsLevel))

	debugExporterEnabled := app.Flag(ExporterDebugEnabledFlag, "Enable the debug dump and JSON query endpoints").Default("true").Bool()

	mcpEnabled := app.Flag(ExporterMCPEnabledFlag, "Enable Model Context Protocol server").Default("false").Bool()
	mcpTransport := app.Flag(ExporterMCPTransportFlag, "MCP transport: stdio, sse or streamable").
		Default(MCPTransportStreamable).Enum(MCPTransportStdio, MCPTransportSSE, MCPTransportStreamable)

	return func(cfg *Config) error {
		if flagsSet[LogLevelFlag] {
			cfg.Log.Level = *logLevel
		}

		if flagsSet[LogFormatFlag] {
			cfg.Log.Format = *logFormat
		}

		if flagsSet[HostSysFSFlag] {
			cfg.Host.SysFS = *hostSysFS
		}

		if flagsSet[RaplEnabledFlag] {
			cfg.Rapl.Enabled = raplEnabled
		}
		if flagsSet[GPUEnabledFlag] {
			cfg.GPU.Enabled = gpuEnabled
		}
		if flagsSet[CPUIdleEnabledFlag] {
			cfg.CPUIdle.Enabled = cpuidleEnabled
		}

		if flagsSet[pprofEnabledFlag] {
			cfg.Debug.Pprof.Enabled = enablePprof
		}

		if flagsSet[WebConfigFlag] {
			cfg.Web.Config = *webConfig
		}

		if flagsSet[WebListenAddressFlag] {
			cfg.Web.ListenAddresses = *webListenAddresses
		}

		if flagsSet[ExporterStdoutEnabledFlag] {
			cfg.Exporter.Stdout.Enabled = stdoutExporterEnabled
		}
		if flagsSet[ExporterStdoutIntervalFlag] {
			cfg.Exporter.Stdout.Interval = *stdoutInterval
		}
		if flagsSet[ExporterStdoutFormatFlag] {
			cfg.Exporter.Stdout.Format = *stdoutFormat
		}

		if flagsSet[ExporterPrometheusEnabledFlag] {
			cfg.Exporter.Prometheus.Enabled = prometheusExporterEnabled
		}

		if flagsSet[ExporterPrometheusMetricsFlag] {
			cfg.Exporter.Prometheus.MetricsLevel = metricsLevel
		}

		if flagsSet[ExporterDebugEnabledFlag] {
			cfg.Exporter.Debug.Enabled = debugExporterEnabled
		}

		if flagsSet[ExporterMCPEnabledFlag] {
			cfg.Exporter.MCP.Enabled = mcpEnabled
		}
		if flagsSet[ExporterMCPTransportFlag] {
			cfg.Exporter.MCP.Transport = *mcpTransport
		}

		cfg.sanitize()
		return cfg.Validate()
	}
}

func (c *Config) sanitize() {
	trim := func(ss []string) {
		for i := range ss {
			ss[i] = strings.TrimSpace(ss[i])
		}
	}

	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
	c.Host.SysFS = strings.TrimSpace(c.Host.SysFS)
	c.Web.Config = strings.TrimSpace(c.Web.Config)
	trim(c.Web.ListenAddresses)
	trim(c.Rapl.Zones)
	trim(c.Exporter.Prometheus.DebugCollectors)
	c.Exporter.Stdout.Format = strings.ToLower(strings.TrimSpace(c.Exporter.Stdout.Format))
	c.Exporter.MCP.Transport = strings.ToLower(strings.TrimSpace(c.Exporter.MCP.Transport))
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate(skips ...SkipValidation) error {
	var errs []error
	errs = append(errs, c.validateLog()...)
	if !slices.Contains(skips, SkipHostValidation) {
		if err := canReadDir(c.Host.SysFS); err != nil {
			errs = append(errs, fmt.Errorf("invalid sysfs path: %s: %w", c.Host.SysFS, err))
		}
	}
	errs = append(errs, c.validateWeb()...)
	errs = append(errs, c.validateExporters()...)

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) validateLog() []error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		errs = append(errs, fmt.Errorf("invalid log level: %s", c.Log.Level))
	}
	if !slices.Contains([]string{"text", "json"}, c.Log.Format) {
		errs = append(errs, fmt.Errorf("invalid log format: %s", c.Log.Format))
	}
	return errs
}

func (c *Config) validateWeb() []error {
	var errs []error
	if c.Web.Config != "" {
		if err := canReadFile(c.Web.Config); err != nil {
			errs = append(errs, fmt.Errorf("invalid web config file. path: %q: %w", c.Web.Config, err))
		}
	}

	if len(c.Web.ListenAddresses) == 0 {
		errs = append(errs, errors.New("at least one web listen address must be specified"))
	}
	for _, addr := range c.Web.ListenAddresses {
		if addr == "" {
			errs = append(errs, errors.New("web listen address cannot be empty"))
			continue
		}
		if err := validateListenAddress(addr); err != nil {
			errs = append(errs, fmt.Errorf("invalid web listen address %q: %w", addr, err))
		}
	}
	return errs
}

func (c *Config) validateExporters() []error {
	var errs []error
	stdout, mcp := c.Exporter.Stdout, c.Exporter.MCP

	if ptr.Deref(stdout.Enabled, false) && stdout.Interval <= 0 {
		errs = append(errs, fmt.Errorf("invalid stdout interval: %s must be positive", stdout.Interval))
	}
	if !slices.Contains([]string{StdoutFormatDump, StdoutFormatTable}, stdout.Format) {
		errs = append(errs, fmt.Errorf("invalid stdout format: %q", stdout.Format))
	}

	if !slices.Contains([]string{MCPTransportStdio, MCPTransportSSE, MCPTransportStreamable}, mcp.Transport) {
		errs = append(errs, fmt.Errorf("invalid mcp transport: %q", mcp.Transport))
	}
	// both would write to stdout
	if ptr.Deref(mcp.Enabled, false) && mcp.Transport == MCPTransportStdio && ptr.Deref(stdout.Enabled, false) {
		errs = append(errs, fmt.Errorf("%s cannot be used with %s=%s",
			ExporterStdoutEnabledFlag, ExporterMCPTransportFlag, MCPTransportStdio))
	}
	return errs
}

func canReadDir(path string) error {
	_, err := os.ReadDir(path)
	return err
}

func canReadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.Read(make([]byte, 1))
	return err
}

func validateListenAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %w", err)
	}

	// an empty host listens on all interfaces
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric, got %s", port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", n)
	}
	return nil
}

// String renders the config as YAML
func (c *Config) String() string {
	out, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("%+v", *c)
	}
	return string(out)
}
