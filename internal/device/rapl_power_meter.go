// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/procfs/sysfs"
)

var errNoZones = errors.New("no RAPL zones found")

// sysfsReader lists the powercap zones of a host; swapped out in tests
type sysfsReader interface {
	Zones() ([]EnergyZone, error)
}

// raplPowerMeter reads CPU energy from the Linux powercap (RAPL) interface
type raplPowerMeter struct {
	reader sysfsReader
	logger *slog.Logger

	// lower-cased zone names to keep; empty keeps all zones
	include map[string]struct{}

	zones []EnergyZone
}

var _ CPUPowerMeter = (*raplPowerMeter)(nil)

type OptionFn func(*raplPowerMeter)

// WithSysFSReader replaces the powercap reader
func WithSysFSReader(r sysfsReader) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.reader = r
	}
}

// WithRaplLogger sets the logger for the meter
func WithRaplLogger(logger *slog.Logger) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.logger = logger.With("service", "rapl")
	}
}

// WithZoneFilter restricts the meter to the named zones (case insensitive)
func WithZoneFilter(zones []string) OptionFn {
	return func(pm *raplPowerMeter) {
		pm.include = make(map[string]struct{}, len(zones))
		for _, z := range zones {
			pm.include[strings.ToLower(z)] = struct{}{}
		}
	}
}

// NewCPUPowerMeter creates a meter over the powercap zones below sysfsPath
func NewCPUPowerMeter(sysfsPath string, opts ...OptionFn) (*raplPowerMeter, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sysfs %q: %w", sysfsPath, err)
	}

	pm := &raplPowerMeter{
		reader: powercapReader{fs: fs},
		logger: slog.Default().With("service", "rapl"),
	}
	for _, opt := range opts {
		opt(pm)
	}
	return pm, nil
}

func (r *raplPowerMeter) Name() string {
	return "rapl"
}

// Init checks that at least one zone exists and can be read
func (r *raplPowerMeter) Init() error {
	zones, err := r.reader.Zones()
	switch {
	case err != nil:
		return err
	case len(zones) == 0:
		return errNoZones
	}

	if _, err := zones[0].Energy(); err != nil {
		return fmt.Errorf("failed to read zone %s: %w", zones[0].Name(), err)
	}
	return nil
}

// Zones returns the selected zones sorted by name and index. Discovery runs
// once; later calls return the same zones.
func (r *raplPowerMeter) Zones() ([]EnergyZone, error) {
	if r.zones != nil {
		return r.zones, nil
	}

	all, err := r.reader.Zones()
	switch {
	case err != nil:
		return nil, err
	case len(all) == 0:
		return nil, errNoZones
	}

	selected := r.selected(all)
	if len(selected) == 0 {
		return nil, fmt.Errorf("%w matching %v", errNoZones, r.filterNames())
	}

	zones := dedupeZones(selected)
	sortZones(zones)
	r.zones = zones
	return zones, nil
}

func (r *raplPowerMeter) selected(zones []EnergyZone) []EnergyZone {
	if len(r.include) == 0 {
		return zones
	}

	var kept []EnergyZone
	var dropped []string
	for _, z := range zones {
		if _, ok := r.include[strings.ToLower(z.Name())]; ok {
			kept = append(kept, z)
			continue
		}
		dropped = append(dropped, z.Name())
	}
	r.logger.Debug("RAPL zone filter applied", "kept", len(kept), "dropped", dropped)
	return kept
}

func (r *raplPowerMeter) filterNames() []string {
	names := make([]string, 0, len(r.include))
	for n := range r.include {
		names = append(names, n)
	}
	return names
}

// dedupeZones keeps one zone per (name, index). A zone exposed by both
// intel-rapl and intel-rapl-mmio is kept from intel-rapl.
func dedupeZones(zones []EnergyZone) []EnergyZone {
	type key struct {
		name  string
		index int
	}

	pos := make(map[key]int, len(zones))
	out := make([]EnergyZone, 0, len(zones))
	for _, z := range zones {
		k := key{z.Name(), z.Index()}
		i, seen := pos[k]
		if !seen {
			pos[k] = len(out)
			out = append(out, z)
			continue
		}
		if !isStandardRaplPath(out[i].Path()) {
			out[i] = z
		}
	}
	return out
}

func isStandardRaplPath(path string) bool {
	return strings.Contains(path, "/intel-rapl:")
}

// powercapReader lists zones through procfs/sysfs
type powercapReader struct {
	fs sysfs.FS
}

func (r powercapReader) Zones() ([]EnergyZone, error) {
	raplZones, err := sysfs.GetRaplZones(r.fs)
	if err != nil {
		return nil, fmt.Errorf("failed to read rapl zones: %w", err)
	}

	zones := make([]EnergyZone, len(raplZones))
	for i, z := range raplZones {
		zones[i] = sysfsRaplZone{zone: z}
	}
	return zones, nil
}

// sysfsRaplZone adapts sysfs.RaplZone to EnergyZone
type sysfsRaplZone struct {
	zone sysfs.RaplZone
}

func (s sysfsRaplZone) Name() string { return s.zone.Name }
func (s sysfsRaplZone) Index() int   { return s.zone.Index }
func (s sysfsRaplZone) Path() string { return s.zone.Path }

func (s sysfsRaplZone) Energy() (Energy, error) {
	uj, err := s.zone.GetEnergyMicrojoules()
	return Energy(uj), err
}

// MaxEnergy is the counter value at which Energy wraps to zero
func (s sysfsRaplZone) MaxEnergy() Energy {
	return Energy(s.zone.MaxMicrojoules)
}
