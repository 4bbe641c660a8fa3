//go:build linux && cgo

package accel

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type nvmlDriver struct {
	logger *slog.Logger

	once    sync.Once
	started bool
	initErr error
}

// NewDiscreteDriver returns the NVML-backed discrete driver. The NVML
// library is loaded lazily on first use.
func NewDiscreteDriver(logger *slog.Logger) Driver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &nvmlDriver{logger: logger}
}

func (d *nvmlDriver) Name() string {
	return "nvml"
}

func (d *nvmlDriver) init() error {
	d.once.Do(func() {
		d.started = true
		if ret := nvml.Init(); ret != nvml.SUCCESS {
			d.initErr = fmt.Errorf("%w: nvml init: %s", ErrDriverUnavailable, nvml.ErrorString(ret))
		}
	})
	return d.initErr
}

func (d *nvmlDriver) DeviceCount() (int, error) {
	if err := d.init(); err != nil {
		return 0, err
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	return count, nil
}

func (d *nvmlDriver) Describe(index int) Descriptor {
	desc := Descriptor{DeviceID: index, Kind: KindDiscreteIndexed, Index: index}
	if err := d.init(); err != nil {
		return desc
	}

	device, ret := nvml.DeviceGetHandleByIndex(index)
	if ret != nvml.SUCCESS {
		d.logger.Debug("nvml device handle", "index", index, "err", nvml.ErrorString(ret))
		return desc
	}

	if name, ret := device.GetName(); ret == nvml.SUCCESS {
		if name = strings.TrimSpace(name); name != "" {
			desc.Name = &name
		}
	} else {
		d.logger.Debug("nvml device name", "index", index, "err", nvml.ErrorString(ret))
	}

	if memory, ret := device.GetMemoryInfo(); ret == nvml.SUCCESS {
		total, free, used := memory.Total, memory.Free, memory.Used
		desc.TotalMemory = &total
		desc.FreeMemory = &free
		desc.UsedMemory = &used
	} else {
		d.logger.Debug("nvml memory info", "index", index, "err", nvml.ErrorString(ret))
	}

	return desc
}

func (d *nvmlDriver) Open(index int) (Device, error) {
	return openCUDA(index)
}

// Close shuts NVML down if it was loaded. It must not run concurrently
// with other methods.
func (d *nvmlDriver) Close() error {
	if !d.started || d.initErr != nil {
		return nil
	}
	if ret := nvml.Shutdown(); ret != nvml.SUCCESS {
		return fmt.Errorf("nvml shutdown: %s", nvml.ErrorString(ret))
	}
	return nil
}
