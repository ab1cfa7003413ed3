// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package rail

import (
	"fmt"

	"github.com/sustainable-computing-io/powerstats/internal/device"
	"github.com/sustainable-computing-io/powerstats/internal/device/nvidia"
)

const gpuSubsystem = "gpu"

// GPUSource exposes the total energy counter of every NVIDIA GPU as a rail
type GPUSource struct {
	backend nvidia.Backend
}

var _ Source = (*GPUSource)(nil)

// NewGPUSource creates a Source over an NVML backend
func NewGPUSource(backend nvidia.Backend) *GPUSource {
	return &GPUSource{backend: backend}
}

func (s *GPUSource) Name() string {
	return "nvml"
}

func (s *GPUSource) Init() error {
	if err := s.backend.Init(); err != nil {
		return err
	}
	if len(s.backend.Devices()) == 0 {
		_ = s.backend.Shutdown()
		return fmt.Errorf("no GPU devices found")
	}
	return nil
}

// SamplingRate is unknown for NVML energy counters
func (s *GPUSource) SamplingRate() int32 {
	return 0
}

func (s *GPUSource) Meters() ([]Meter, error) {
	devices := s.backend.Devices()
	meters := make([]Meter, 0, len(devices))
	for _, d := range devices {
		meters = append(meters, gpuMeter{dev: d})
	}
	return meters, nil
}

// Close shuts NVML down
func (s *GPUSource) Close() error {
	return s.backend.Shutdown()
}

type gpuMeter struct {
	dev nvidia.Device
}

func (m gpuMeter) Subsystem() string {
	return gpuSubsystem
}

func (m gpuMeter) Rail() string {
	return fmt.Sprintf("%s-%d", m.dev.Name(), m.dev.Index())
}

func (m gpuMeter) Energy() (device.Energy, error) {
	return m.dev.TotalEnergy()
}

// MaxEnergy is zero; the NVML counter is 64 bit and does not wrap
func (m gpuMeter) MaxEnergy() device.Energy {
	return 0
}
