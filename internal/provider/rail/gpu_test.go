// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package rail

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sustainable-computing-io/powerstats/internal/device"
	"github.com/sustainable-computing-io/powerstats/internal/device/nvidia"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) Init() error {
	return m.Called().Error(0)
}

func (m *mockBackend) Shutdown() error {
	return m.Called().Error(0)
}

func (m *mockBackend) Devices() []nvidia.Device {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]nvidia.Device)
}

type mockGPU struct {
	mock.Mock
}

func (m *mockGPU) Index() int   { return m.Called().Int(0) }
func (m *mockGPU) UUID() string { return m.Called().String(0) }
func (m *mockGPU) Name() string { return m.Called().String(0) }

func (m *mockGPU) TotalEnergy() (device.Energy, error) {
	args := m.Called()
	return args.Get(0).(device.Energy), args.Error(1)
}

func TestGPUSource(t *testing.T) {
	gpu := &mockGPU{}
	gpu.On("Index").Return(0)
	gpu.On("Name").Return("NVIDIA H100")
	gpu.On("TotalEnergy").Return(2500*device.MilliJoule, nil)

	backend := &mockBackend{}
	backend.On("Init").Return(nil)
	backend.On("Devices").Return([]nvidia.Device{gpu})
	backend.On("Shutdown").Return(nil)

	src := NewGPUSource(backend)
	p, _ := newTestProvider(t, src)

	infos, err := p.GetRailInfo()
	require.NoError(t, err)
	assert.Equal(t, "gpu", infos[0].SubsysName)
	assert.Equal(t, "NVIDIA H100-0", infos[0].RailName)

	data, err := p.GetEnergyData(nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2_500_000), data[0].EnergyUWs)

	require.NoError(t, p.Shutdown())
	backend.AssertCalled(t, "Shutdown")
}

func TestGPUSource_InitFailures(t *testing.T) {
	backend := &mockBackend{}
	backend.On("Init").Return(errors.New("NVML init failed"))
	assert.Error(t, NewGPUSource(backend).Init())

	empty := &mockBackend{}
	empty.On("Init").Return(nil)
	empty.On("Devices").Return(nil)
	empty.On("Shutdown").Return(nil)
	assert.ErrorContains(t, NewGPUSource(empty).Init(), "no GPU devices")
	empty.AssertCalled(t, "Shutdown")
}
