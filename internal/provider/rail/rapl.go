// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package rail

import (
	"fmt"

	"github.com/sustainable-computing-io/powerstats/internal/device"
)

// raplSamplingRate is the update rate of RAPL energy status MSRs
const raplSamplingRate = 1000

// RAPLSource exposes every zone of a CPU power meter as a rail
type RAPLSource struct {
	meter device.CPUPowerMeter
}

var _ Source = (*RAPLSource)(nil)

// NewRAPLSource creates a Source over the given meter
func NewRAPLSource(meter device.CPUPowerMeter) *RAPLSource {
	return &RAPLSource{meter: meter}
}

func (s *RAPLSource) Name() string {
	return s.meter.Name()
}

func (s *RAPLSource) Init() error {
	return s.meter.Init()
}

func (s *RAPLSource) SamplingRate() int32 {
	return raplSamplingRate
}

// Meters returns one rail per zone. Zones sharing a name (one per socket)
// get the zone index appended to the rail name.
func (s *RAPLSource) Meters() ([]Meter, error) {
	zones, err := s.meter.Zones()
	if err != nil {
		return nil, err
	}

	count := map[string]int{}
	for _, z := range zones {
		count[z.Name()]++
	}

	meters := make([]Meter, 0, len(zones))
	for _, z := range zones {
		name := z.Name()
		if count[name] > 1 {
			name = fmt.Sprintf("%s-%d", name, z.Index())
		}
		meters = append(meters, zoneMeter{subsystem: s.meter.Name(), rail: name, zone: z})
	}
	return meters, nil
}

type zoneMeter struct {
	subsystem string
	rail      string
	zone      device.EnergyZone
}

func (m zoneMeter) Subsystem() string              { return m.subsystem }
func (m zoneMeter) Rail() string                   { return m.rail }
func (m zoneMeter) Energy() (device.Energy, error) { return m.zone.Energy() }
func (m zoneMeter) MaxEnergy() device.Energy       { return m.zone.MaxEnergy() }
