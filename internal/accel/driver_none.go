//go:build !linux || !cgo

package accel

import (
	"fmt"
	"log/slog"
	"runtime"
)

type unavailableDriver struct{}

// NewDiscreteDriver returns a driver that reports no discrete devices on
// platforms without NVML support.
func NewDiscreteDriver(_ *slog.Logger) Driver {
	return unavailableDriver{}
}

func (unavailableDriver) Name() string {
	return "none"
}

func (unavailableDriver) DeviceCount() (int, error) {
	return 0, fmt.Errorf("%w: no discrete driver for %s/%s", ErrDriverUnavailable, runtime.GOOS, runtime.GOARCH)
}

func (unavailableDriver) Describe(index int) Descriptor {
	return Descriptor{DeviceID: index, Kind: KindDiscreteIndexed, Index: index}
}

func (unavailableDriver) Open(int) (Device, error) {
	return nil, ErrComputeUnavailable
}

func (unavailableDriver) Close() error {
	return nil
}
