// Package accel abstracts accelerator devices that can run dense matrix
// multiplications, and the drivers that enumerate and open them.
//
// Two backend families exist. The discrete family enumerates devices by
// index through a [Driver] (NVML for inventory, cuBLAS for compute when
// built with the "cuda" tag). The unified family exposes a single implicit
// integrated device (Metal Performance Shaders when built with the "metal"
// tag on darwin/arm64).
package accel

import (
	"errors"
	"fmt"

	"github.com/skobkin/hwbench/internal/workload"
)

var (
	// ErrDriverUnavailable reports that no accelerator driver could be
	// reached through the selected backend. It is a normal outcome on hosts
	// without accelerators.
	ErrDriverUnavailable = errors.New("accelerator driver unavailable")

	// ErrComputeUnavailable reports that the binary was built without a
	// compute backend for the device.
	ErrComputeUnavailable = errors.New("accelerator compute backend not available in this build")
)

// Buffer is a matrix resident in device memory.
type Buffer interface {
	Release()
}

// Device runs float32 matrix multiplications on a single accelerator.
// MatMul may enqueue work asynchronously; Synchronize blocks until all
// enqueued work has completed.
type Device interface {
	Name() string
	Upload(m workload.Matrix32) (Buffer, error)
	MatMul(a, b Buffer) error
	Synchronize() error
	Close() error
}

// Kind distinguishes integrated unified-memory devices from indexed
// discrete devices.
type Kind int

const (
	KindIntegratedUnified Kind = iota
	KindDiscreteIndexed
)

func (k Kind) String() string {
	switch k {
	case KindIntegratedUnified:
		return "integrated"
	case KindDiscreteIndexed:
		return "discrete"
	default:
		return "unknown"
	}
}

// Descriptor describes one accelerator. Name and memory fields are best
// effort and stay nil when the driver cannot report them.
type Descriptor struct {
	DeviceID    int
	Kind        Kind
	Index       int
	Name        *string
	TotalMemory *uint64
	FreeMemory  *uint64
	UsedMemory  *uint64
}

// Label returns the device handle label used in reports, e.g. "Cuda(0)"
// for discrete devices and "integrated" for the unified device.
func (d Descriptor) Label() string {
	if d.Kind == KindIntegratedUnified {
		return "integrated"
	}
	return fmt.Sprintf("Cuda(%d)", d.Index)
}

// UnifiedOpener opens the single integrated device of the unified backend.
type UnifiedOpener func() (Device, error)

// Driver enumerates and opens discrete accelerators by index.
type Driver interface {
	Name() string
	// DeviceCount returns the number of discrete devices. It returns an
	// error wrapping ErrDriverUnavailable when the driver cannot be loaded.
	DeviceCount() (int, error)
	// Describe returns best-effort metadata for the device at index.
	Describe(index int) Descriptor
	// Open returns a compute handle for the device at index.
	Open(index int) (Device, error)
	Close() error
}
