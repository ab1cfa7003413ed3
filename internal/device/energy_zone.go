// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"cmp"
	"slices"
)

// EnergyZone is one measurable domain of a power meter, e.g. a CPU package,
// its cores, DRAM or uncore
type EnergyZone interface {
	Name() string

	// Index distinguishes zones sharing a name, e.g. one package per socket
	Index() int

	// Path is where readings come from, for diagnostics
	Path() string

	// Energy returns the current counter value
	Energy() (Energy, error)

	// MaxEnergy is the counter value at which Energy wraps back to zero
	MaxEnergy() Energy
}

// CPUPowerMeter exposes the energy zones of the host CPUs
type CPUPowerMeter interface {
	Name() string

	// Init verifies the meter can be read
	Init() error

	// Zones returns the zones ordered by name and index
	Zones() ([]EnergyZone, error)
}

func sortZones(zones []EnergyZone) {
	slices.SortStableFunc(zones, func(a, b EnergyZone) int {
		return cmp.Or(cmp.Compare(a.Name(), b.Name()), cmp.Compare(a.Index(), b.Index()))
	})
}
