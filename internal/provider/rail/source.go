// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package rail

import (
	"github.com/sustainable-computing-io/powerstats/internal/device"
)

// Meter is a single energy rail exposed by a Source
type Meter interface {
	// Subsystem returns the name of the subsystem the rail belongs to
	Subsystem() string

	// Rail returns the rail name, unique within its subsystem
	Rail() string

	// Energy returns the raw counter value of the rail
	Energy() (device.Energy, error)

	// MaxEnergy returns the value at which the counter wraps to zero.
	// Zero means the counter does not wrap.
	MaxEnergy() device.Energy
}

// Source enumerates energy rails of one kind of hardware
type Source interface {
	Name() string

	// Init prepares the source for reading
	Init() error

	// Meters returns the rails of the source in a stable order
	Meters() ([]Meter, error)

	// SamplingRate returns the counter update rate in Hz, 0 if unknown
	SamplingRate() int32
}
