// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"log/slog"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/sustainable-computing-io/powerstats/internal/device"
)

type mockNvmlLib struct {
	mock.Mock
}

func (m *mockNvmlLib) Init() nvml.Return {
	args := m.Called()
	return args.Get(0).(nvml.Return)
}

func (m *mockNvmlLib) Shutdown() nvml.Return {
	args := m.Called()
	return args.Get(0).(nvml.Return)
}

func (m *mockNvmlLib) DeviceGetCount() (int, nvml.Return) {
	args := m.Called()
	return args.Int(0), args.Get(1).(nvml.Return)
}

func (m *mockNvmlLib) DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return) {
	args := m.Called(index)
	handle := args.Get(0)
	if handle == nil {
		return nil, args.Get(1).(nvml.Return)
	}
	return handle.(nvmlDeviceHandle), args.Get(1).(nvml.Return)
}

func (m *mockNvmlLib) ErrorString(ret nvml.Return) string {
	args := m.Called(ret)
	return args.String(0)
}

type mockDeviceHandle struct {
	mock.Mock
}

func (m *mockDeviceHandle) GetUUID() (string, nvml.Return) {
	args := m.Called()
	return args.String(0), args.Get(1).(nvml.Return)
}

func (m *mockDeviceHandle) GetName() (string, nvml.Return) {
	args := m.Called()
	return args.String(0), args.Get(1).(nvml.Return)
}

func (m *mockDeviceHandle) GetTotalEnergyConsumption() (uint64, nvml.Return) {
	args := m.Called()
	return args.Get(0).(uint64), args.Get(1).(nvml.Return)
}

func TestBackend_Init(t *testing.T) {
	lib := &mockNvmlLib{}
	h0 := &mockDeviceHandle{}
	h2 := &mockDeviceHandle{}

	lib.On("Init").Return(nvml.SUCCESS)
	lib.On("DeviceGetCount").Return(3, nvml.SUCCESS)
	lib.On("DeviceGetHandleByIndex", 0).Return(h0, nvml.SUCCESS)
	lib.On("DeviceGetHandleByIndex", 1).Return(nil, nvml.ERROR_UNKNOWN)
	lib.On("DeviceGetHandleByIndex", 2).Return(h2, nvml.SUCCESS)
	lib.On("ErrorString", mock.Anything).Return("error")

	h0.On("GetUUID").Return("GPU-aaa", nvml.SUCCESS)
	h0.On("GetName").Return("NVIDIA A100", nvml.SUCCESS)
	h2.On("GetUUID").Return("", nvml.ERROR_UNKNOWN)
	h2.On("GetName").Return("", nvml.ERROR_UNKNOWN)

	backend := newBackendWithLib(slog.Default(), lib)
	require.NoError(t, backend.Init())
	// second Init is a no-op
	require.NoError(t, backend.Init())
	lib.AssertNumberOfCalls(t, "Init", 1)

	devices := backend.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, 0, devices[0].Index())
	assert.Equal(t, "GPU-aaa", devices[0].UUID())
	assert.Equal(t, "NVIDIA A100", devices[0].Name())
	assert.Equal(t, 2, devices[1].Index())
	assert.Equal(t, "gpu-2", devices[1].UUID())
	assert.Equal(t, "Unknown NVIDIA GPU", devices[1].Name())
}

func TestBackend_InitFailures(t *testing.T) {
	t.Run("init", func(t *testing.T) {
		lib := &mockNvmlLib{}
		lib.On("Init").Return(nvml.ERROR_LIBRARY_NOT_FOUND)
		lib.On("ErrorString", nvml.ERROR_LIBRARY_NOT_FOUND).Return("library not found")

		backend := newBackendWithLib(nil, lib)
		err := backend.Init()
		assert.ErrorContains(t, err, "library not found")
		assert.Empty(t, backend.Devices())
	})

	t.Run("count", func(t *testing.T) {
		lib := &mockNvmlLib{}
		lib.On("Init").Return(nvml.SUCCESS)
		lib.On("DeviceGetCount").Return(0, nvml.ERROR_UNKNOWN)
		lib.On("Shutdown").Return(nvml.SUCCESS)
		lib.On("ErrorString", nvml.ERROR_UNKNOWN).Return("unknown")

		backend := newBackendWithLib(nil, lib)
		assert.Error(t, backend.Init())
		lib.AssertCalled(t, "Shutdown")
	})

	t.Run("panic", func(t *testing.T) {
		lib := &panickingLib{mockNvmlLib{}}
		backend := newBackendWithLib(nil, lib)
		assert.ErrorContains(t, backend.Init(), "could not init nvml")
	})
}

type panickingLib struct {
	mockNvmlLib
}

func (p *panickingLib) Init() nvml.Return {
	panic("libnvidia-ml.so.1: cannot open shared object file")
}

func TestBackend_Shutdown(t *testing.T) {
	lib := &mockNvmlLib{}
	lib.On("Init").Return(nvml.SUCCESS)
	lib.On("DeviceGetCount").Return(0, nvml.SUCCESS)
	lib.On("Shutdown").Return(nvml.SUCCESS)

	backend := newBackendWithLib(nil, lib)
	// not initialized yet
	require.NoError(t, backend.Shutdown())
	lib.AssertNotCalled(t, "Shutdown")

	require.NoError(t, backend.Init())
	require.NoError(t, backend.Shutdown())
	lib.AssertNumberOfCalls(t, "Shutdown", 1)
}

func TestDevice_TotalEnergy(t *testing.T) {
	lib := &mockNvmlLib{}
	handle := &mockDeviceHandle{}
	handle.On("GetTotalEnergyConsumption").Return(uint64(1500), nvml.SUCCESS).Once()
	handle.On("GetTotalEnergyConsumption").Return(uint64(0), nvml.ERROR_NOT_SUPPORTED).Once()
	lib.On("ErrorString", nvml.ERROR_NOT_SUPPORTED).Return("not supported")

	dev := &nvmlDevice{index: 1, handle: handle, lib: lib}

	energy, err := dev.TotalEnergy()
	require.NoError(t, err)
	assert.Equal(t, 1500*device.MilliJoule, energy)
	assert.Equal(t, 1.5, energy.Joules())

	_, err = dev.TotalEnergy()
	assert.ErrorContains(t, err, "not supported")
}
