// Package sysinfo collects the host snapshot reported next to the CPU
// benchmark: OS identity, memory, swap and CPU inventory.
package sysinfo

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot describes the host. Arch and OSVersion are nil when the OS does
// not report them.
type Snapshot struct {
	OS            string
	OSVersion     *string
	Arch          *string
	TotalMemoryMB uint64
	UsedMemoryMB  uint64
	TotalSwapMB   uint64
	UsedSwapMB    uint64
	CPUCount      int
	CPUModel      string
}

// Provider reads snapshots from the running host.
type Provider struct {
	logger *slog.Logger
}

// NewProvider constructs a Provider.
func NewProvider(logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Provider{logger: logger}
}

// Snapshot collects the current host state. It fails only when memory
// counters cannot be read; other fields are best effort.
func (p *Provider) Snapshot(ctx context.Context) (Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read virtual memory: %w", err)
	}

	snap := Snapshot{
		OS:            runtime.GOOS,
		TotalMemoryMB: BytesToMegabytes(vm.Total),
		UsedMemoryMB:  BytesToMegabytes(vm.Used),
	}

	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		snap.TotalSwapMB = BytesToMegabytes(swap.Total)
		snap.UsedSwapMB = BytesToMegabytes(swap.Used)
	} else {
		p.logger.Debug("swap counters unavailable", "err", err)
	}

	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.OS = DistributionID(info.OS, info.Platform)
		snap.OSVersion = nonEmpty(info.PlatformVersion)
		snap.Arch = nonEmpty(info.KernelArch)
	} else {
		p.logger.Debug("host info unavailable", "err", err)
		snap.OS = DistributionID(runtime.GOOS, "")
	}
	if snap.Arch == nil {
		snap.Arch = nonEmpty(KernelArch(runtime.GOOS, runtime.GOARCH))
	}

	if count, err := cpu.CountsWithContext(ctx, true); err == nil && count > 0 {
		snap.CPUCount = count
	} else {
		snap.CPUCount = runtime.NumCPU()
	}

	snap.CPUModel = strings.TrimSpace(cpuid.CPU.BrandName)
	if snap.CPUModel == "" {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			snap.CPUModel = strings.TrimSpace(infos[0].ModelName)
		}
	}

	return snap, nil
}

// Fallback returns a snapshot built from the Go runtime alone. It is used
// for platform detection when host counters are unreadable.
func Fallback() Snapshot {
	return Snapshot{
		OS:       DistributionID(runtime.GOOS, ""),
		Arch:     nonEmpty(KernelArch(runtime.GOOS, runtime.GOARCH)),
		CPUCount: runtime.NumCPU(),
	}
}

// DistributionID maps a GOOS value and platform name to the OS identifier
// used in reports: "macos" for darwin, the distribution ID (ubuntu, arch,
// ...) on Linux when known, or goos otherwise.
func DistributionID(goos, platform string) string {
	goos = strings.ToLower(strings.TrimSpace(goos))
	platform = strings.ToLower(strings.TrimSpace(platform))
	switch {
	case goos == "darwin":
		return "macos"
	case platform != "":
		return platform
	case goos != "":
		return goos
	default:
		return "unknown"
	}
}

// KernelArch maps GOOS/GOARCH to the uname-style machine name.
func KernelArch(goos, goarch string) string {
	switch goarch {
	case "amd64":
		return "x86_64"
	case "386":
		return "i686"
	case "arm64":
		if goos == "darwin" {
			return "arm64"
		}
		return "aarch64"
	default:
		return goarch
	}
}

// BytesToMegabytes converts bytes to mebibytes, rounding to nearest.
func BytesToMegabytes(bytes uint64) uint64 {
	return uint64(math.Round(float64(bytes) / 1_048_576.0))
}

func nonEmpty(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
