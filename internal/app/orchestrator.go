package app

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/samber/lo"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/bench"
	"github.com/skobkin/hwbench/internal/config"
	"github.com/skobkin/hwbench/internal/gpu"
	"github.com/skobkin/hwbench/internal/netprobe"
	"github.com/skobkin/hwbench/internal/platform"
	"github.com/skobkin/hwbench/internal/power"
	"github.com/skobkin/hwbench/internal/report"
	"github.com/skobkin/hwbench/internal/sysinfo"
)

// SystemProvider supplies the host snapshot.
type SystemProvider interface {
	Snapshot(ctx context.Context) (sysinfo.Snapshot, error)
}

// BatteryProvider supplies battery status.
type BatteryProvider interface {
	Status(ctx context.Context) (power.Status, error)
}

// NetworkProvider runs the network probes.
type NetworkProvider interface {
	Probe(ctx context.Context) (netprobe.Metrics, error)
}

// AdapterProvider lists display adapters.
type AdapterProvider interface {
	Adapters(ctx context.Context) ([]gpu.Info, error)
}

// Orchestrator runs the selected features and merges their results. Nil
// collaborators make the matching feature unavailable.
type Orchestrator struct {
	System   SystemProvider
	Battery  BatteryProvider
	Network  NetworkProvider
	Driver   accel.Driver
	Unified  accel.UnifiedOpener
	Adapters AdapterProvider
	Bench    config.BenchConfig
	Logger   *slog.Logger

	cpuBenchmark func(iterations int) bench.Measurement
	gpuSize      int
}

// Collect runs every selected feature in order and returns the merged
// report. A failing feature is logged and left out; it never stops the
// others.
func (o *Orchestrator) Collect(ctx context.Context, features []Feature) report.Report {
	logger := o.logger()
	builder := report.NewBuilder()

	wantCPU := lo.Contains(features, FeatureCPU)
	wantGPU := lo.Contains(features, FeatureGPU)

	var (
		snapshot   sysinfo.Snapshot
		snapshotOK bool
	)
	if wantCPU || wantGPU {
		snapshot, snapshotOK = o.snapshot(ctx, logger)
	}

	if wantCPU {
		if snapshotOK {
			iterations := o.benchConfig().CPUIterations
			if iterations <= 0 {
				iterations = bench.DefaultCPUIterations
			}
			logger.Info("running cpu benchmark", "iterations", iterations)
			m := o.runCPU(iterations)
			logger.Info("cpu benchmark finished", "gflops", m.Throughput, "elapsed_seconds", m.ElapsedSeconds)
			builder.SetCPU(snapshot, m)
		} else {
			logger.Warn("cpu feature skipped", "reason", "system snapshot unavailable")
		}
	}

	if wantGPU {
		if !snapshotOK {
			snapshot = sysinfo.Fallback()
		}
		backend := platform.Detect(snapshot.Arch, snapshot.OS)
		logger.Info("gpu backend selected", "backend", backend.Kind.String(), "arch", backend.Arch, "os", backend.OS)
		o.collectGPU(ctx, builder, backend, logger)
	}

	if lo.Contains(features, FeatureBattery) {
		o.collectBattery(ctx, builder, logger)
	}

	if lo.Contains(features, FeatureNetwork) {
		o.collectNetwork(ctx, builder, logger)
	}

	return builder.Finalize()
}

func (o *Orchestrator) snapshot(ctx context.Context, logger *slog.Logger) (sysinfo.Snapshot, bool) {
	if o.System == nil {
		return sysinfo.Snapshot{}, false
	}
	snap, err := o.System.Snapshot(ctx)
	if err != nil {
		logger.Warn("system snapshot failed", "err", err)
		return sysinfo.Snapshot{}, false
	}
	return snap, true
}

func (o *Orchestrator) runCPU(iterations int) bench.Measurement {
	if o.cpuBenchmark != nil {
		return o.cpuBenchmark(iterations)
	}
	return bench.CPU(iterations)
}

func (o *Orchestrator) gpuParams() bench.GPUParams {
	cfg := o.benchConfig()
	return bench.GPUParams{
		Size:       o.gpuSize,
		Iterations: cfg.GPUIterations,
		Warmup:     cfg.GPUWarmup,
	}
}

// benchConfig returns the configured counts. An unset BenchConfig means the
// defaults; a zero warm-up in an otherwise set config means no warm-up.
func (o *Orchestrator) benchConfig() config.BenchConfig {
	if o.Bench == (config.BenchConfig{}) {
		return config.Default().Bench
	}
	return o.Bench
}

func (o *Orchestrator) collectGPU(ctx context.Context, builder *report.Builder, backend platform.Backend, logger *slog.Logger) {
	builder.StartGPU(backend)

	if backend.IsUnified() {
		desc := accel.UnifiedDescriptor()
		open := o.Unified
		if open == nil {
			open = accel.OpenUnified
		}
		dev, err := open()
		if err != nil {
			logger.Warn("integrated gpu unavailable", "err", err)
			builder.AddGPUFailure(desc, err)
			return
		}
		o.measure(builder, desc, dev, logger)
		return
	}

	devices, err := accel.Enumerate(o.Driver)
	if err != nil {
		logger.Warn("gpu enumeration failed", "err", err)
	}
	if len(devices) == 0 {
		logger.Info("no accelerator found")
		o.collectAdapters(ctx, builder, logger)
		return
	}

	for _, desc := range devices {
		if ctx.Err() != nil {
			logger.Warn("gpu benchmark interrupted", "err", ctx.Err())
			return
		}
		dev, err := o.Driver.Open(desc.Index)
		if err != nil {
			logger.Warn("gpu open failed", "device_id", desc.DeviceID, "err", err)
			builder.AddGPUFailure(desc, err)
			continue
		}
		o.measure(builder, desc, dev, logger)
	}
}

func (o *Orchestrator) measure(builder *report.Builder, desc accel.Descriptor, dev accel.Device, logger *slog.Logger) {
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Debug("gpu close failed", "device_id", desc.DeviceID, "err", err)
		}
	}()

	if desc.Name == nil {
		if name := dev.Name(); name != "" {
			desc.Name = &name
		}
	}

	logger.Info("running gpu benchmark", "device_id", desc.DeviceID, "device", desc.Label())
	m, err := bench.GPU(dev, o.gpuParams())
	if err != nil {
		logger.Warn("gpu benchmark failed", "device_id", desc.DeviceID, "err", err)
		builder.AddGPUFailure(desc, err)
		return
	}
	logger.Info("gpu benchmark finished", "device_id", desc.DeviceID, "tflops", m.Throughput, "elapsed_seconds", m.ElapsedSeconds)
	builder.AddGPUResult(desc, m)
}

func (o *Orchestrator) collectAdapters(ctx context.Context, builder *report.Builder, logger *slog.Logger) {
	if o.Adapters == nil {
		return
	}
	adapters, err := o.Adapters.Adapters(ctx)
	if err != nil {
		logger.Debug("display adapter inventory failed", "err", err)
		return
	}
	if len(adapters) > 0 {
		logger.Info("display adapters found", "count", len(adapters))
		builder.SetAdapters(adapters)
	}
}

func (o *Orchestrator) collectBattery(ctx context.Context, builder *report.Builder, logger *slog.Logger) {
	if o.Battery == nil {
		return
	}
	status, err := o.Battery.Status(ctx)
	if err != nil {
		if errors.Is(err, power.ErrQuery) {
			logger.Info("battery information unavailable", "err", err)
		} else {
			logger.Warn("battery query failed", "err", err)
		}
		return
	}
	if !status.HasBattery {
		logger.Info("no battery found")
	}
	builder.SetBattery(status)
}

func (o *Orchestrator) collectNetwork(ctx context.Context, builder *report.Builder, logger *slog.Logger) {
	if o.Network == nil {
		return
	}
	metrics, err := o.Network.Probe(ctx)
	if err != nil {
		logger.Warn("network probes failed", "err", err)
		return
	}
	builder.SetNetwork(metrics)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}
