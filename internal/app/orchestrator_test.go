package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/samber/lo"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/accel/acceltest"
	"github.com/skobkin/hwbench/internal/bench"
	"github.com/skobkin/hwbench/internal/config"
	"github.com/skobkin/hwbench/internal/gpu"
	"github.com/skobkin/hwbench/internal/netprobe"
	"github.com/skobkin/hwbench/internal/platform"
	"github.com/skobkin/hwbench/internal/power"
	"github.com/skobkin/hwbench/internal/report"
	"github.com/skobkin/hwbench/internal/sysinfo"
)

type stubSystem struct {
	snap  sysinfo.Snapshot
	err   error
	calls int
}

func (s *stubSystem) Snapshot(context.Context) (sysinfo.Snapshot, error) {
	s.calls++
	return s.snap, s.err
}

type stubBattery struct {
	status power.Status
	err    error
}

func (s stubBattery) Status(context.Context) (power.Status, error) {
	return s.status, s.err
}

type stubNetwork struct {
	metrics netprobe.Metrics
	err     error
}

func (s stubNetwork) Probe(context.Context) (netprobe.Metrics, error) {
	return s.metrics, s.err
}

type stubAdapters struct {
	adapters []gpu.Info
}

func (s stubAdapters) Adapters(context.Context) ([]gpu.Info, error) {
	return s.adapters, nil
}

func linuxSnapshot() sysinfo.Snapshot {
	return sysinfo.Snapshot{OS: "ubuntu", Arch: lo.ToPtr("x86_64"), CPUCount: 8, TotalMemoryMB: 16000}
}

func macSnapshot() sysinfo.Snapshot {
	return sysinfo.Snapshot{OS: "macos", Arch: lo.ToPtr("arm64"), CPUCount: 10}
}

func newTestOrchestrator(system SystemProvider, driver accel.Driver) (*Orchestrator, *int) {
	cpuRuns := 0
	o := &Orchestrator{
		System:  system,
		Driver:  driver,
		Battery: stubBattery{status: power.Status{HasBattery: true, ChargePercent: lo.ToPtr(50.0)}},
		Network: stubNetwork{metrics: netprobe.Metrics{PingMS: lo.ToPtr(10.0)}},
		Unified: func() (accel.Device, error) { return nil, accel.ErrComputeUnavailable },
		Bench:   config.BenchConfig{CPUIterations: 5, GPUIterations: 4, GPUWarmup: 2},
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		cpuBenchmark: func(iterations int) bench.Measurement {
			cpuRuns++
			return bench.Measurement{
				Throughput:     bench.Throughput(1024, iterations, 1, bench.GFLOP),
				ElapsedSeconds: 1,
			}
		},
		gpuSize: 4,
	}
	return o, &cpuRuns
}

func TestCollectBatteryOnly(t *testing.T) {
	t.Parallel()

	system := &stubSystem{snap: linuxSnapshot()}
	o, cpuRuns := newTestOrchestrator(system, &acceltest.Driver{})

	r := o.Collect(context.Background(), []Feature{FeatureBattery})
	if r.CPU != nil || r.GPU != nil || r.Network != nil {
		t.Fatalf("expected only battery section, got %+v", r)
	}
	if r.Battery == nil || !r.Battery.HasBattery {
		t.Fatalf("expected battery section, got %+v", r.Battery)
	}
	if system.calls != 0 || *cpuRuns != 0 {
		t.Fatalf("battery-only run touched system (%d) or cpu (%d)", system.calls, *cpuRuns)
	}
}

func TestCollectCPUAndGPUWithoutDevices(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{})
	r := o.Collect(context.Background(), []Feature{FeatureCPU, FeatureGPU})

	if r.CPU == nil {
		t.Fatalf("expected cpu section")
	}
	if got := r.CPU.Measurement.Throughput; got < 10.73 || got > 10.74 {
		t.Fatalf("unexpected gflops %f", got)
	}
	if r.GPU == nil {
		t.Fatalf("expected gpu section")
	}
	if r.GPU.Results == nil || len(r.GPU.Results) != 0 {
		t.Fatalf("expected empty non-nil results, got %#v", r.GPU.Results)
	}

	var buf bytes.Buffer
	if err := report.WriteJSON(&buf, r); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(buf.Bytes(), &top); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(top["gpu_info"]) != "[]" {
		t.Fatalf("expected gpu_info [], got %s", top["gpu_info"])
	}
}

func TestCollectUnavailableDriverIsEmpty(t *testing.T) {
	t.Parallel()

	driver := &acceltest.Driver{CountErr: fmt.Errorf("%w: library missing", accel.ErrDriverUnavailable)}
	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, driver)
	o.Adapters = stubAdapters{adapters: []gpu.Info{{ID: "card0", Name: "Test Radeon"}}}

	r := o.Collect(context.Background(), []Feature{FeatureGPU})
	if r.GPU == nil || len(r.GPU.Results) != 0 || len(r.GPU.Failures) != 0 {
		t.Fatalf("expected empty gpu section, got %+v", r.GPU)
	}
	if len(r.GPU.Adapters) != 1 || r.GPU.Adapters[0].ID != "card0" {
		t.Fatalf("expected adapter inventory, got %+v", r.GPU.Adapters)
	}
}

func TestCollectIsolatesDeviceFailures(t *testing.T) {
	t.Parallel()

	good := &acceltest.Device{DeviceName: "Good GPU"}
	broken := &acceltest.Device{DeviceName: "Broken GPU", FailAfter: 1}
	last := &acceltest.Device{DeviceName: "Last GPU"}
	driver := &acceltest.Driver{
		Devices: []*acceltest.Device{good, broken, nil, last},
		OpenErr: map[int]error{2: errors.New("device busy")},
	}

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, driver)
	r := o.Collect(context.Background(), []Feature{FeatureGPU})

	if r.GPU == nil {
		t.Fatalf("expected gpu section")
	}
	if !reflect.DeepEqual(driver.Opened(), []int{0, 1, 2, 3}) {
		t.Fatalf("expected every device to be opened in order, got %v", driver.Opened())
	}
	if len(r.GPU.Results) != 2 {
		t.Fatalf("expected 2 successful devices, got %d", len(r.GPU.Results))
	}
	if r.GPU.Results[0].Device.DeviceID != 0 || r.GPU.Results[1].Device.DeviceID != 3 {
		t.Fatalf("unexpected result order: %+v", r.GPU.Results)
	}
	if name := lo.FromPtr(r.GPU.Results[0].Device.Name); name != "Good GPU" {
		t.Fatalf("expected device name fallback, got %q", name)
	}
	if len(r.GPU.Failures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", r.GPU.Failures)
	}
	if r.GPU.Failures[0].Device.DeviceID != 1 || !strings.Contains(r.GPU.Failures[0].Error, "measurement failed") {
		t.Fatalf("unexpected first failure: %+v", r.GPU.Failures[0])
	}
	if r.GPU.Failures[1].Device.DeviceID != 2 || !strings.Contains(r.GPU.Failures[1].Error, "device busy") {
		t.Fatalf("unexpected second failure: %+v", r.GPU.Failures[1])
	}
	for i, dev := range []*acceltest.Device{good, broken, last} {
		if !dev.Closed() {
			t.Fatalf("device %d not closed", i)
		}
	}
	if got := good.MatMuls(); got != 6 {
		t.Fatalf("expected warmup+iterations = 6 multiplications, got %d", got)
	}
}

func TestCollectStopsBetweenDevicesOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := &acceltest.Device{DeviceName: "First GPU", OnMatMul: cancel}
	second := &acceltest.Device{DeviceName: "Second GPU"}
	third := &acceltest.Device{DeviceName: "Third GPU"}
	driver := &acceltest.Driver{Devices: []*acceltest.Device{first, second, third}}

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, driver)
	r := o.Collect(ctx, []Feature{FeatureGPU})

	if !reflect.DeepEqual(driver.Opened(), []int{0}) {
		t.Fatalf("expected only the first device to be opened, got %v", driver.Opened())
	}
	if r.GPU == nil || len(r.GPU.Results) != 1 || r.GPU.Results[0].Device.DeviceID != 0 {
		t.Fatalf("expected the first result only, got %+v", r.GPU)
	}
	if len(r.GPU.Failures) != 0 {
		t.Fatalf("expected no failures, got %+v", r.GPU.Failures)
	}
	if second.MatMuls() != 0 || third.MatMuls() != 0 {
		t.Fatalf("remaining devices ran %d and %d multiplications", second.MatMuls(), third.MatMuls())
	}
}

func TestCollectUsesDefaultBenchCounts(t *testing.T) {
	t.Parallel()

	dev := &acceltest.Device{}
	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{Devices: []*acceltest.Device{dev}})
	o.Bench = config.BenchConfig{}

	o.Collect(context.Background(), []Feature{FeatureGPU})

	if got, want := dev.MatMuls(), bench.DefaultGPUIterations+bench.DefaultGPUWarmup; got != want {
		t.Fatalf("expected %d multiplications, got %d", want, got)
	}
}

func TestCollectHonoursZeroWarmup(t *testing.T) {
	t.Parallel()

	dev := &acceltest.Device{}
	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{Devices: []*acceltest.Device{dev}})
	o.Bench = config.BenchConfig{CPUIterations: 1, GPUIterations: 3}

	o.Collect(context.Background(), []Feature{FeatureGPU})

	if got := dev.MatMuls(); got != 3 {
		t.Fatalf("expected 3 timed multiplications without warm-up, got %d", got)
	}
}

func TestCollectGPUWithoutCPUStillDetectsPlatform(t *testing.T) {
	t.Parallel()

	system := &stubSystem{snap: macSnapshot()}
	o, cpuRuns := newTestOrchestrator(system, &acceltest.Driver{Devices: []*acceltest.Device{{}}})
	integrated := &acceltest.Device{DeviceName: "Apple M3"}
	o.Unified = func() (accel.Device, error) { return integrated, nil }

	r := o.Collect(context.Background(), []Feature{FeatureGPU})

	if system.calls != 1 {
		t.Fatalf("expected platform detection to read the snapshot once, got %d", system.calls)
	}
	if *cpuRuns != 0 || r.CPU != nil {
		t.Fatalf("cpu benchmark must not run when only gpu is selected")
	}
	if r.GPU == nil || r.GPU.Backend.Kind != platform.Unified {
		t.Fatalf("expected unified backend, got %+v", r.GPU)
	}
	if len(r.GPU.Results) != 1 || r.GPU.Results[0].Device.Kind != accel.KindIntegratedUnified {
		t.Fatalf("expected single integrated result, got %+v", r.GPU.Results)
	}
	if !integrated.Closed() {
		t.Fatalf("integrated device not closed")
	}
}

func TestCollectUnifiedUnavailable(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: macSnapshot()}, nil)
	r := o.Collect(context.Background(), []Feature{FeatureGPU})

	if r.GPU == nil || len(r.GPU.Results) != 0 {
		t.Fatalf("expected empty results, got %+v", r.GPU)
	}
	if len(r.GPU.Failures) != 1 || r.GPU.Failures[0].Device.Label() != "integrated" {
		t.Fatalf("expected integrated failure, got %+v", r.GPU.Failures)
	}
}

func TestCollectSnapshotFailure(t *testing.T) {
	t.Parallel()

	o, cpuRuns := newTestOrchestrator(&stubSystem{err: errors.New("no /proc")}, &acceltest.Driver{})
	r := o.Collect(context.Background(), []Feature{FeatureCPU, FeatureGPU})

	if r.CPU != nil || *cpuRuns != 0 {
		t.Fatalf("cpu section must be omitted without a snapshot")
	}
	if r.GPU == nil {
		t.Fatalf("gpu must still run on a fallback snapshot")
	}
}

func TestCollectNetworkFailureIsolated(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{})
	o.Network = stubNetwork{err: fmt.Errorf("all network probes failed: %w", netprobe.ErrTimeout)}

	r := o.Collect(context.Background(), []Feature{FeatureCPU, FeatureNetwork, FeatureBattery})
	if r.Network != nil {
		t.Fatalf("expected network section to be omitted")
	}
	if r.CPU == nil || r.Battery == nil {
		t.Fatalf("network failure must not drop other sections: %+v", r)
	}
}

func TestCollectBatteryQueryFailure(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, nil)
	o.Battery = stubBattery{err: fmt.Errorf("%w: unsupported platform", power.ErrQuery)}

	r := o.Collect(context.Background(), []Feature{FeatureBattery, FeatureNetwork})
	if r.Battery != nil {
		t.Fatalf("expected battery section to be omitted")
	}
	if r.Network == nil {
		t.Fatalf("expected network section")
	}
}

func TestExecuteCPUJSON(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{})
	var out bytes.Buffer
	err := execute(context.Background(), o.Logger, o, Options{
		Features: []string{"cpu"},
		Format:   report.FormatJSON,
		Stdout:   &out,
	})
	if err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	var top map[string]map[string]any
	if err := json.Unmarshal(out.Bytes(), &top); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(top) != 1 {
		t.Fatalf("expected exactly one key, got %v", lo.Keys(top))
	}
	cpu, ok := top["cpu_info"]
	if !ok {
		t.Fatalf("expected cpu_info key, got %v", lo.Keys(top))
	}
	for _, key := range []string{"gflops", "benchmark_duration_seconds"} {
		value, ok := cpu[key].(float64)
		if !ok || value < 0 {
			t.Fatalf("expected non-negative numeric %s, got %v", key, cpu[key])
		}
	}
}

func TestExecuteWritesOutputFile(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, &acceltest.Driver{})
	path := filepath.Join(t.TempDir(), "nested", "report.txt")

	err := execute(context.Background(), o.Logger, o, Options{
		Config:     config.Config{Features: []string{"battery"}},
		OutputFile: path,
	})
	if err != nil {
		t.Fatalf("execute returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "=> Power:\n") {
		t.Fatalf("expected plain power section, got %q", data)
	}
}

func TestExecuteOutputWriteFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, nil)
	err := execute(context.Background(), o.Logger, o, Options{
		Features:   []string{"battery"},
		OutputFile: filepath.Join(blocker, "report.json"),
	})
	if !errors.Is(err, ErrOutputWrite) {
		t.Fatalf("expected ErrOutputWrite, got %v", err)
	}
}

func TestExecuteRejectsUnknownFeature(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(&stubSystem{snap: linuxSnapshot()}, nil)
	err := execute(context.Background(), o.Logger, o, Options{Features: []string{"cpu,disk"}, Stdout: io.Discard})
	if err == nil || !strings.Contains(err.Error(), "disk") {
		t.Fatalf("expected unknown feature error, got %v", err)
	}
}
