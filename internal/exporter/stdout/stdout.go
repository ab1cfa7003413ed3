// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sustainable-computing-io/powerstats/config"
	"github.com/sustainable-computing-io/powerstats/internal/device"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
	"github.com/sustainable-computing-io/powerstats/internal/service"
	"k8s.io/utils/clock"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// Dumper writes the diagnostic report
type Dumper interface {
	Dump(w io.Writer, args []string) powerstats.Status
}

// Exporter periodically writes power stats to stdout
type Exporter struct {
	logger   *slog.Logger
	reporter Dumper
	stats    powerstats.Querier
	out      io.WriteCloser
	interval time.Duration
	format   string
	clock    clock.WithTicker

	ticker clock.Ticker
	prev   map[int32]powerstats.EnergyData
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	interval time.Duration
	format   string
	clock    clock.WithTicker
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		interval: 5 * time.Second,
		format:   config.StdoutFormatDump,
		clock:    clock.RealClock{},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

// WithFormat selects dump or table output
func WithFormat(format string) OptionFn {
	return func(o *Opts) {
		o.format = format
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

func NewExporter(reporter Dumper, stats powerstats.Querier, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		reporter: reporter,
		stats:    stats,
		out:      opts.out,
		interval: opts.interval,
		format:   opts.format,
		clock:    opts.clock,
	}
}

func (e *Exporter) Init() error {
	switch e.format {
	case config.StdoutFormatDump, config.StdoutFormatTable:
	default:
		return fmt.Errorf("unknown stdout format %q", e.format)
	}
	if e.interval <= 0 {
		return fmt.Errorf("invalid stdout interval %s", e.interval)
	}
	e.ticker = e.clock.NewTicker(e.interval)
	return nil
}

func (e *Exporter) Run(ctx context.Context) error {
	defer e.ticker.Stop()
	for {
		select {
		case <-e.ticker.C():
			e.export()
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

func (e *Exporter) export() {
	if e.format == config.StdoutFormatDump {
		e.reporter.Dump(e.out, []string{powerstats.DeltaArg})
		return
	}

	rails, err := e.stats.GetRailInfo()
	if err != nil {
		e.logger.Error("Failed to read rail info", "error", err)
		return
	}
	energy, err := e.stats.GetEnergyData(nil)
	if err != nil {
		e.logger.Warn("Incomplete energy data", "error", err)
	}

	writeTable(e.out, rails, energy, e.prev)

	e.prev = make(map[int32]powerstats.EnergyData, len(energy))
	for _, d := range energy {
		e.prev[d.Index] = d
	}
}

// powerBetween returns the average power between two readings of one rail
func powerBetween(prev, cur powerstats.EnergyData) device.Power {
	elapsed := time.Duration(cur.TimestampMs-prev.TimestampMs) * time.Millisecond
	if cur.EnergyUWs < prev.EnergyUWs {
		return 0
	}
	return device.AveragePower(device.Energy(cur.EnergyUWs-prev.EnergyUWs), elapsed)
}

func writeTable(out io.Writer, rails []powerstats.RailInfo, energy []powerstats.EnergyData, prev map[int32]powerstats.EnergyData) {
	names := make(map[int32]powerstats.RailInfo, len(rails))
	for _, r := range rails {
		names[r.Index] = r
	}

	sorted := make([]powerstats.EnergyData, len(energy))
	copy(sorted, energy)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	rows := make([][]string, 0, len(sorted))
	for _, d := range sorted {
		subsys, rail := "unknown", "unknown"
		if info, ok := names[d.Index]; ok {
			subsys, rail = info.SubsysName, info.RailName
		}

		power := "-"
		if p, ok := prev[d.Index]; ok {
			power = powerBetween(p, d).String()
		}
		rows = append(rows, []string{
			subsys,
			rail,
			power,
			device.Energy(d.EnergyUWs).String(),
		})
	}

	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Subsystem", "Rail", "Power(W)", "Absolute(J)"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func (e *Exporter) Shutdown() error {
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
