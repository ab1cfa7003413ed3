// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package residency

import (
	"log/slog"
	"sync"

	"k8s.io/utils/clock"

	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// NOTE: FakeProvider is meant for development only; its values are synthetic
var defaultFakeEntities = map[string][]string{
	"cpu-cluster0": {"active", "wfi", "retention", "off"},
	"gpu":          {"active", "idle"},
	"modem":        {"active", "sleep"},
}

// FakeProvider produces deterministic residencies that advance on every read
type FakeProvider struct {
	logger *slog.Logger
	clock  clock.PassiveClock

	mu       sync.Mutex
	entities map[string][]string
	counters map[string][]powerstats.StateResidencyData
}

var _ powerstats.StateResidencyDataProvider = (*FakeProvider)(nil)

// FakeOptFn configures a FakeProvider
type FakeOptFn func(*FakeProvider)

// WithFakeEntities replaces the default entities; keys are entity names,
// values the state names in ID order
func WithFakeEntities(entities map[string][]string) FakeOptFn {
	return func(p *FakeProvider) {
		p.entities = entities
	}
}

// WithFakeClock sets the clock used for last entry timestamps
func WithFakeClock(c clock.PassiveClock) FakeOptFn {
	return func(p *FakeProvider) {
		p.clock = c
	}
}

// WithFakeLogger sets the logger of the provider
func WithFakeLogger(l *slog.Logger) FakeOptFn {
	return func(p *FakeProvider) {
		p.logger = l.With("service", "fake-residency")
	}
}

// NewFakeProvider creates a fake residency provider
func NewFakeProvider(opts ...FakeOptFn) *FakeProvider {
	p := &FakeProvider{
		logger:   slog.Default().With("service", "fake-residency"),
		clock:    clock.RealClock{},
		entities: defaultFakeEntities,
	}
	for _, opt := range opts {
		opt(p)
	}

	p.counters = make(map[string][]powerstats.StateResidencyData, len(p.entities))
	for name, states := range p.entities {
		data := make([]powerstats.StateResidencyData, len(states))
		for i := range states {
			data[i].StateID = int32(i)
		}
		p.counters[name] = data
	}
	return p
}

func (p *FakeProvider) Name() string {
	return "fake-residency"
}

func (p *FakeProvider) Init() error {
	p.logger.Warn("Using fake state residency provider; residencies are synthetic")
	return nil
}

func (p *FakeProvider) GetInfo() map[string][]powerstats.State {
	info := make(map[string][]powerstats.State, len(p.entities))
	for name, states := range p.entities {
		list := make([]powerstats.State, len(states))
		for i, s := range states {
			list[i] = powerstats.State{ID: int32(i), Name: s}
		}
		info[name] = list
	}
	return info
}

// GetResults advances every counter; state N gains 10*(N+1) ms and one entry
func (p *FakeProvider) GetResults(results map[string][]powerstats.StateResidencyData) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now().UnixMilli()
	for name, data := range p.counters {
		for i := range data {
			data[i].TotalTimeInStateMs += int64(10 * (i + 1))
			data[i].TotalStateEntryCount++
			data[i].LastEntryTimestampMs = now
		}
		results[name] = append([]powerstats.StateResidencyData(nil), data...)
	}
	return nil
}
