// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// nvmlLib is the subset of nvml.Interface the backend uses
type nvmlLib interface {
	Init() nvml.Return
	Shutdown() nvml.Return
	DeviceGetCount() (int, nvml.Return)
	DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return)
	ErrorString(ret nvml.Return) string
}

// nvmlDeviceHandle is the subset of nvml.Device the backend uses
type nvmlDeviceHandle interface {
	GetUUID() (string, nvml.Return)
	GetName() (string, nvml.Return)
	GetTotalEnergyConsumption() (uint64, nvml.Return)
}

// libAdapter narrows nvml.Interface to nvmlLib; only the device handle
// return type differs
type libAdapter struct {
	nvml.Interface
}

func newRealNvmlLib() nvmlLib {
	return libAdapter{Interface: nvml.New()}
}

func (l libAdapter) DeviceGetHandleByIndex(index int) (nvmlDeviceHandle, nvml.Return) {
	dev, ret := l.Interface.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		return nil, ret
	}
	return dev, ret
}
