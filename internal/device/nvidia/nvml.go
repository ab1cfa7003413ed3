// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

package nvidia

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/sustainable-computing-io/powerstats/internal/device"
)

// ErrNotInitialized is returned when the backend is used before Init
var ErrNotInitialized = errors.New("nvml backend not initialized")

// Backend provides access to NVIDIA GPUs via the NVML library.
// All methods are safe for concurrent use.
type Backend interface {
	Init() error
	Shutdown() error
	Devices() []Device
}

// Device is a single NVIDIA GPU
type Device interface {
	Index() int
	UUID() string
	Name() string
	// TotalEnergy returns the energy consumed since the driver was loaded
	TotalEnergy() (device.Energy, error)
}

type nvmlBackend struct {
	logger      *slog.Logger
	lib         nvmlLib
	devices     []Device
	initialized bool
	mu          sync.RWMutex
}

type nvmlDevice struct {
	index  int
	handle nvmlDeviceHandle
	lib    nvmlLib
	uuid   string
	name   string
}

// NewBackend creates an NVML backend; Init must be called before use
func NewBackend(logger *slog.Logger) Backend {
	return newBackendWithLib(logger, newRealNvmlLib())
}

func newBackendWithLib(logger *slog.Logger, lib nvmlLib) *nvmlBackend {
	if logger == nil {
		logger = slog.Default()
	}
	return &nvmlBackend{
		logger: logger.With("service", "nvml"),
		lib:    lib,
	}
}

// Init loads NVML and discovers all GPU devices. Devices whose handle
// cannot be obtained are skipped.
func (n *nvmlBackend) Init() (err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.initialized {
		return nil
	}

	// nvml panics when libnvidia-ml.so.1 cannot be loaded
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not init nvml: %v", r)
		}
	}()

	if ret := n.lib.Init(); ret != nvml.SUCCESS {
		return fmt.Errorf("NVML init failed: %s", n.lib.ErrorString(ret))
	}

	count, ret := n.lib.DeviceGetCount()
	if ret != nvml.SUCCESS {
		_ = n.lib.Shutdown()
		return fmt.Errorf("failed to get device count: %s", n.lib.ErrorString(ret))
	}

	n.devices = make([]Device, 0, count)
	for i := range count {
		handle, ret := n.lib.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			n.logger.Warn("failed to get device handle", "index", i, "error", n.lib.ErrorString(ret))
			continue
		}

		uuid, ret := handle.GetUUID()
		if ret != nvml.SUCCESS {
			uuid = fmt.Sprintf("gpu-%d", i)
		}

		name, ret := handle.GetName()
		if ret != nvml.SUCCESS {
			name = "Unknown NVIDIA GPU"
		}

		n.devices = append(n.devices, &nvmlDevice{
			index:  i,
			handle: handle,
			lib:    n.lib,
			uuid:   uuid,
			name:   name,
		})
		n.logger.Info("discovered GPU", "index", i, "uuid", uuid, "name", name)
	}

	n.initialized = true
	n.logger.Info("NVML initialized", "device_count", len(n.devices))
	return nil
}

// Shutdown releases NVML resources
func (n *nvmlBackend) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.initialized {
		return nil
	}

	if ret := n.lib.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("NVML shutdown failed: %s", n.lib.ErrorString(ret))
	}

	n.devices = nil
	n.initialized = false
	n.logger.Info("NVML shutdown complete")
	return nil
}

// Devices returns the discovered devices ordered by index
func (n *nvmlBackend) Devices() []Device {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return append([]Device(nil), n.devices...)
}

func (d *nvmlDevice) Index() int {
	return d.index
}

func (d *nvmlDevice) UUID() string {
	return d.uuid
}

func (d *nvmlDevice) Name() string {
	return d.name
}

func (d *nvmlDevice) TotalEnergy() (device.Energy, error) {
	// NVML reports millijoules
	energyMJ, ret := d.handle.GetTotalEnergyConsumption()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("failed to get total energy of gpu %d: %s", d.index, d.lib.ErrorString(ret))
	}
	return device.Energy(energyMJ) * device.MilliJoule, nil
}
