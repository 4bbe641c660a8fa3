// Package report assembles benchmark results into a single sparse report
// and renders it as plain text, JSON or Prometheus text exposition.
package report

import (
	"slices"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/bench"
	"github.com/skobkin/hwbench/internal/gpu"
	"github.com/skobkin/hwbench/internal/netprobe"
	"github.com/skobkin/hwbench/internal/platform"
	"github.com/skobkin/hwbench/internal/power"
	"github.com/skobkin/hwbench/internal/sysinfo"
)

// CPUSection pairs the host snapshot with the CPU measurement.
type CPUSection struct {
	System      sysinfo.Snapshot
	Measurement bench.Measurement
}

// GPUResult is a successful measurement of one device.
type GPUResult struct {
	Device      accel.Descriptor
	Measurement bench.Measurement
}

// GPUFailure records a device whose measurement failed.
type GPUFailure struct {
	Device accel.Descriptor
	Error  string
}

// GPUSection holds the outcome of the GPU feature. Results is never nil
// once the section exists, so "no accelerator" renders as an empty list.
type GPUSection struct {
	Backend  platform.Backend
	Results  []GPUResult
	Failures []GPUFailure
	Adapters []gpu.Info
}

// Report is the finalized, read-only outcome of one run. A nil section
// means the feature was not selected or did not succeed.
type Report struct {
	CPU     *CPUSection
	GPU     *GPUSection
	Battery *power.Status
	Network *netprobe.Metrics
}

// Builder accumulates report sections. It is not safe for concurrent use.
type Builder struct {
	cpu     *CPUSection
	gpu     *GPUSection
	battery *power.Status
	network *netprobe.Metrics
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// SetCPU stores the CPU section.
func (b *Builder) SetCPU(system sysinfo.Snapshot, m bench.Measurement) *Builder {
	b.cpu = &CPUSection{System: system, Measurement: m}
	return b
}

// StartGPU opens the GPU section for the resolved backend. Calling it again
// resets previously added devices.
func (b *Builder) StartGPU(backend platform.Backend) *Builder {
	b.gpu = &GPUSection{Backend: backend, Results: []GPUResult{}}
	return b
}

// AddGPUResult appends a device measurement, opening a discrete GPU
// section if none was started.
func (b *Builder) AddGPUResult(device accel.Descriptor, m bench.Measurement) *Builder {
	b.ensureGPU()
	b.gpu.Results = append(b.gpu.Results, GPUResult{Device: device, Measurement: m})
	return b
}

// AddGPUFailure records a device that could not be measured.
func (b *Builder) AddGPUFailure(device accel.Descriptor, err error) *Builder {
	b.ensureGPU()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	b.gpu.Failures = append(b.gpu.Failures, GPUFailure{Device: device, Error: msg})
	return b
}

// SetAdapters attaches the display adapter inventory to the GPU section.
func (b *Builder) SetAdapters(adapters []gpu.Info) *Builder {
	b.ensureGPU()
	b.gpu.Adapters = adapters
	return b
}

// SetBattery stores the battery section.
func (b *Builder) SetBattery(status power.Status) *Builder {
	b.battery = &status
	return b
}

// SetNetwork stores the network section.
func (b *Builder) SetNetwork(metrics netprobe.Metrics) *Builder {
	b.network = &metrics
	return b
}

func (b *Builder) ensureGPU() {
	if b.gpu == nil {
		b.StartGPU(platform.Backend{Kind: platform.Discrete})
	}
}

// Finalize returns a Report that does not share memory with the Builder.
func (b *Builder) Finalize() Report {
	var r Report
	if b.cpu != nil {
		section := *b.cpu
		r.CPU = &section
	}
	if b.gpu != nil {
		section := GPUSection{
			Backend:  b.gpu.Backend,
			Results:  slices.Clone(b.gpu.Results),
			Failures: slices.Clone(b.gpu.Failures),
			Adapters: slices.Clone(b.gpu.Adapters),
		}
		if section.Results == nil {
			section.Results = []GPUResult{}
		}
		r.GPU = &section
	}
	if b.battery != nil {
		status := *b.battery
		r.Battery = &status
	}
	if b.network != nil {
		metrics := *b.network
		r.Network = &metrics
	}
	return r
}
