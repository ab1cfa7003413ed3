// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package residency

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/procfs/sysfs"

	"github.com/sustainable-computing-io/powerstats/internal/powerstats"
)

// CPUIdleProvider reports Linux cpuidle state residencies, one entity per CPU
type CPUIdleProvider struct {
	logger *slog.Logger
	fs     sysfs.FS

	mu   sync.Mutex
	cpus []cpuIdle
}

var _ powerstats.StateResidencyDataProvider = (*CPUIdleProvider)(nil)

type cpuIdle struct {
	entity string
	dir    string // <cpu>/cpuidle
	states []idleState
}

type idleState struct {
	id   int32
	name string
	dir  string
}

// OptionFn configures a CPUIdleProvider
type OptionFn func(*CPUIdleProvider)

// WithLogger sets the logger of the provider
func WithLogger(logger *slog.Logger) OptionFn {
	return func(p *CPUIdleProvider) {
		p.logger = logger.With("service", "cpuidle")
	}
}

// NewCPUIdleProvider creates a provider reading cpuidle below sysfsPath
func NewCPUIdleProvider(sysfsPath string, opts ...OptionFn) (*CPUIdleProvider, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, err
	}

	p := &CPUIdleProvider{
		logger: slog.Default().With("service", "cpuidle"),
		fs:     fs,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *CPUIdleProvider) Name() string {
	return "cpuidle"
}

// Init discovers CPUs and their idle states. CPUs without a cpuidle
// directory (offline or idle driver disabled) are skipped.
func (p *CPUIdleProvider) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cpus, err := p.fs.CPUs()
	if err != nil {
		return fmt.Errorf("failed to list cpus: %w", err)
	}

	p.cpus = p.cpus[:0]
	for _, cpu := range cpus {
		idleDir := filepath.Join(string(cpu), "cpuidle")
		states, err := discoverStates(idleDir)
		if err != nil {
			p.logger.Debug("skipping cpu", "cpu", cpu.Number(), "error", err)
			continue
		}
		if len(states) == 0 {
			continue
		}
		p.cpus = append(p.cpus, cpuIdle{
			entity: "cpu" + cpu.Number(),
			dir:    idleDir,
			states: states,
		})
	}

	if len(p.cpus) == 0 {
		return errors.New("no cpuidle states found")
	}
	p.logger.Info("cpuidle states discovered", "cpus", len(p.cpus), "states", len(p.cpus[0].states))
	return nil
}

func discoverStates(idleDir string) ([]idleState, error) {
	entries, err := os.ReadDir(idleDir)
	if err != nil {
		return nil, err
	}

	var states []idleState
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "state") {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(e.Name(), "state"), 10, 32)
		if err != nil {
			continue
		}
		dir := filepath.Join(idleDir, e.Name())
		name, err := sysReadFile(filepath.Join(dir, "name"))
		if err != nil {
			return nil, err
		}
		states = append(states, idleState{id: int32(id), name: name, dir: dir})
	}

	sort.Slice(states, func(i, j int) bool { return states[i].id < states[j].id })
	return states, nil
}

// GetInfo returns every CPU with its idle states ordered by state ID
func (p *CPUIdleProvider) GetInfo() map[string][]powerstats.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := make(map[string][]powerstats.State, len(p.cpus))
	for _, cpu := range p.cpus {
		states := make([]powerstats.State, len(cpu.states))
		for i, s := range cpu.states {
			states[i] = powerstats.State{ID: s.id, Name: s.name}
		}
		info[cpu.entity] = states
	}
	return info
}

// GetResults fills residencies of all CPUs. A CPU whose counters cannot be
// read is left out of results.
func (p *CPUIdleProvider) GetResults(results map[string][]powerstats.StateResidencyData) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for _, cpu := range p.cpus {
		data, err := cpu.read()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cpu.entity, err))
			continue
		}
		results[cpu.entity] = data
	}
	return errors.Join(errs...)
}

func (c cpuIdle) read() ([]powerstats.StateResidencyData, error) {
	data := make([]powerstats.StateResidencyData, 0, len(c.states))
	for _, s := range c.states {
		// time is reported in microseconds
		usec, err := readUint(filepath.Join(s.dir, "time"))
		if err != nil {
			return nil, err
		}
		usage, err := readUint(filepath.Join(s.dir, "usage"))
		if err != nil {
			return nil, err
		}
		data = append(data, powerstats.StateResidencyData{
			StateID:              s.id,
			TotalTimeInStateMs:   clampInt64(usec / 1000),
			TotalStateEntryCount: clampInt64(usage),
		})
	}
	return data, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
