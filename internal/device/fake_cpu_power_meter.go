// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"log/slog"
	"math/rand"
	"path/filepath"
	"sync"
)

// Well known RAPL zone names
const (
	ZonePackage = "package"
	ZoneCore    = "core"
	ZoneDRAM    = "dram"
	ZoneUncore  = "uncore"
)

const (
	fakeMeterName    = "fake-cpu-meter"
	fakeRaplPath     = "/sys/class/powercap/intel-rapl"
	fakeMaxEnergy    = Energy(1_000_000)
	fakeBaseStep     = Energy(100)
	fakeRandomFactor = 0.5
)

var defaultFakeZones = []string{ZonePackage, ZoneCore, ZoneDRAM}

// extra µJ per read on top of fakeBaseStep, so zones advance at distinct rates
var fakeZoneStep = map[string]Energy{
	ZonePackage: 12,
	ZoneCore:    8,
	ZoneDRAM:    5,
	ZoneUncore:  2,
}

// fakeEnergyZone is a synthetic counter that advances on every read
type fakeEnergyZone struct {
	name  string
	index int
	path  string
	max   Energy
	step  Energy

	jitter float64
	rnd    func() float64

	mu      sync.Mutex
	counter Energy
}

var _ EnergyZone = (*fakeEnergyZone)(nil)

func (z *fakeEnergyZone) Name() string      { return z.name }
func (z *fakeEnergyZone) Index() int        { return z.index }
func (z *fakeEnergyZone) Path() string      { return z.path }
func (z *fakeEnergyZone) MaxEnergy() Energy { return z.max }

// Energy advances the counter by one step plus jitter, wrapping at MaxEnergy
func (z *fakeEnergyZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	step := z.step
	if z.jitter > 0 {
		step += Energy(z.rnd() * float64(z.step) * z.jitter)
	}
	z.counter = (z.counter + step) % z.max
	return z.counter, nil
}

// fakeRaplMeter is a CPUPowerMeter producing synthetic readings for
// development on hosts without powercap
type fakeRaplMeter struct {
	logger *slog.Logger
	zones  []EnergyZone
}

var _ CPUPowerMeter = (*fakeRaplMeter)(nil)

type fakeOpts struct {
	logger *slog.Logger
	path   string
	max    Energy
	jitter float64
}

// FakeOptFn configures the meter returned by NewFakeCPUMeter
type FakeOptFn func(*fakeOpts)

// WithFakePath sets the directory reported as the zones' path
func WithFakePath(path string) FakeOptFn {
	return func(o *fakeOpts) {
		o.path = path
	}
}

// WithFakeMaxEnergy sets the value at which zone counters wrap
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(o *fakeOpts) {
		o.max = e
	}
}

// WithFakeRandomFactor sets how much readings jitter; 0 makes them deterministic
func WithFakeRandomFactor(f float64) FakeOptFn {
	return func(o *fakeOpts) {
		o.jitter = f
	}
}

// WithFakeLogger sets the logger of the fake meter
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(o *fakeOpts) {
		o.logger = l
	}
}

// NewFakeCPUMeter creates a meter with one synthetic zone per name, or the
// package, core and dram zones when names is empty
func NewFakeCPUMeter(names []string, opts ...FakeOptFn) (CPUPowerMeter, error) {
	o := fakeOpts{
		logger: slog.Default(),
		path:   fakeRaplPath,
		max:    fakeMaxEnergy,
		jitter: fakeRandomFactor,
	}
	for _, apply := range opts {
		apply(&o)
	}

	if len(names) == 0 {
		names = defaultFakeZones
	}

	zones := make([]EnergyZone, len(names))
	for i, name := range names {
		zones[i] = &fakeEnergyZone{
			name:   name,
			index:  i,
			path:   filepath.Join(o.path, "energy_"+name),
			max:    o.max,
			step:   fakeBaseStep + fakeZoneStep[name],
			jitter: o.jitter,
			rnd:    rand.Float64,
		}
	}
	sortZones(zones)

	return &fakeRaplMeter{
		logger: o.logger.With("meter", fakeMeterName),
		zones:  zones,
	}, nil
}

func (m *fakeRaplMeter) Name() string {
	return fakeMeterName
}

func (m *fakeRaplMeter) Init() error {
	m.logger.Warn("Using fake CPU power meter; readings are synthetic")
	return nil
}

func (m *fakeRaplMeter) Zones() ([]EnergyZone, error) {
	return m.zones, nil
}
