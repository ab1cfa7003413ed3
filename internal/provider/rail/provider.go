// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package rail

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/powerstats/internal/device"
	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// Provider implements powerstats.EnergyDataProvider over a set of Sources.
// Rails are enumerated once by Init and indexed densely from 0 in source order.
type Provider struct {
	logger  *slog.Logger
	clock   clock.PassiveClock
	sources []Source

	mu    sync.Mutex
	rails []*railState
}

var _ powerstats.EnergyDataProvider = (*Provider)(nil)

// railState tracks a rail counter across hardware wrap-arounds
type railState struct {
	info  powerstats.RailInfo
	meter Meter

	seen  bool
	prev  device.Energy
	total device.Energy
}

// Opts configure a Provider
type Opts struct {
	logger *slog.Logger
	clock  clock.PassiveClock
}

// OptionFn is a function sets one more more options in Opts struct.
type OptionFn func(*Opts)

// WithLogger sets the logger for the Provider
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock used to timestamp readings
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// NewProvider creates a Provider reading from the given sources
func NewProvider(sources []Source, applyOpts ...OptionFn) *Provider {
	opts := Opts{
		logger: slog.Default(),
		clock:  clock.RealClock{},
	}
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Provider{
		logger:  opts.logger.With("service", "rail-provider"),
		clock:   opts.clock,
		sources: sources,
	}
}

func (p *Provider) Name() string {
	return "rail-provider"
}

// Init initializes every source and enumerates its rails. A source that
// fails to initialize is skipped; Init fails only if no rail is found.
func (p *Provider) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	p.rails = nil
	for _, src := range p.sources {
		if err := src.Init(); err != nil {
			p.logger.Warn("skipping energy source", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		meters, err := src.Meters()
		if err != nil {
			p.logger.Warn("failed to enumerate rails", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}

		for _, m := range meters {
			idx := int32(len(p.rails))
			p.rails = append(p.rails, &railState{
				info: powerstats.RailInfo{
					Index:        idx,
					SubsysName:   m.Subsystem(),
					RailName:     m.Rail(),
					SamplingRate: src.SamplingRate(),
				},
				meter: m,
			})
			p.logger.Debug("found rail", "index", idx, "subsystem", m.Subsystem(), "rail", m.Rail())
		}
	}

	if len(p.rails) == 0 {
		if len(errs) == 0 {
			return errors.New("no energy rails found")
		}
		return fmt.Errorf("no energy rails found: %w", errors.Join(errs...))
	}
	p.logger.Info("energy rails enumerated", "rails", len(p.rails))
	return nil
}

// Shutdown closes every source that holds resources
func (p *Provider) Shutdown() error {
	var errs []error
	for _, src := range p.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// GetRailInfo returns all rails
func (p *Provider) GetRailInfo() ([]powerstats.RailInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	infos := make([]powerstats.RailInfo, len(p.rails))
	for i, r := range p.rails {
		infos[i] = r.info
	}
	return infos, nil
}

// GetEnergyData reads the listed rails, or all rails if indices is empty.
// Unknown indices are skipped and reported as powerstats.ErrBadValue; rails
// that cannot be read are skipped and reported as ErrFailedTransaction.
func (p *Provider) GetEnergyData(indices []int32) ([]powerstats.EnergyData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(indices) == 0 {
		indices = make([]int32, len(p.rails))
		for i := range p.rails {
			indices[i] = int32(i)
		}
	}

	status := powerstats.StatusOK
	data := make([]powerstats.EnergyData, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || int(idx) >= len(p.rails) {
			p.logger.Debug("unknown rail index", "index", idx)
			status = status.Merge(powerstats.StatusBadValue)
			continue
		}

		r := p.rails[idx]
		energy, err := r.read()
		if err != nil {
			p.logger.Warn("failed to read rail", "subsystem", r.info.SubsysName, "rail", r.info.RailName, "error", err)
			status = status.Merge(powerstats.StatusFailedTransaction)
			continue
		}

		data = append(data, powerstats.EnergyData{
			Index:       idx,
			TimestampMs: p.clock.Now().UnixMilli(),
			EnergyUWs:   energy.MicroWattSeconds(),
		})
	}

	return data, status.Err()
}

// read returns the accumulated energy of the rail, unwrapping counters that
// rolled over since the previous read
func (r *railState) read() (device.Energy, error) {
	cur, err := r.meter.Energy()
	if err != nil {
		return 0, err
	}

	if r.seen {
		r.total += cur.Since(r.prev, r.meter.MaxEnergy())
	} else {
		r.total = cur
		r.seen = true
	}
	r.prev = cur
	return r.total, nil
}
