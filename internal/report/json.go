package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/samber/lo"

	"github.com/skobkin/hwbench/internal/gpu"
)

type jsonReport struct {
	CPUInfo     *cpuInfoJSON     `json:"cpu_info,omitempty"`
	GPUInfo     *[]gpuInfoJSON   `json:"gpu_info,omitempty"`
	GPUErrors   []gpuErrorJSON   `json:"gpu_errors,omitempty"`
	GPUAdapters []gpuAdapterJSON `json:"gpu_adapters,omitempty"`
	BatteryInfo *batteryInfoJSON `json:"battery_info,omitempty"`
	NetworkInfo *networkInfoJSON `json:"network_info,omitempty"`
}

type cpuInfoJSON struct {
	OS                       string  `json:"os"`
	OSVersion                string  `json:"os_version"`
	TotalMemoryMB            uint64  `json:"total_memory_mb"`
	UsedMemoryMB             uint64  `json:"used_memory_mb"`
	TotalSwapMB              uint64  `json:"total_swap_mb"`
	UsedSwapMB               uint64  `json:"used_swap_mb"`
	Arch                     string  `json:"arch"`
	CPUCount                 int     `json:"cpu_count"`
	CPUModel                 string  `json:"cpu_model,omitempty"`
	GFLOPS                   float64 `json:"gflops"`
	BenchmarkDurationSeconds float64 `json:"benchmark_duration_seconds"`
}

// gpuInfoJSON covers both shapes: discrete entries carry every field,
// the integrated entry only device, tflops and duration.
type gpuInfoJSON struct {
	DeviceID    *int    `json:"device_id,omitempty"`
	Device      string  `json:"device"`
	Name        *string `json:"name,omitempty"`
	TotalMemory *uint64 `json:"total_memory,omitempty"`
	FreeMemory  *uint64 `json:"free_memory,omitempty"`
	UsedMemory  *uint64 `json:"used_memory,omitempty"`
	TFLOPS      float64 `json:"tflops"`
	Duration    float64 `json:"duration"`
}

type gpuErrorJSON struct {
	DeviceID *int   `json:"device_id,omitempty"`
	Device   string `json:"device"`
	Error    string `json:"error"`
}

type gpuAdapterJSON struct {
	ID             string  `json:"id"`
	PCI            string  `json:"pci,omitempty"`
	PCIID          string  `json:"pci_id,omitempty"`
	Name           string  `json:"name"`
	Driver         string  `json:"driver,omitempty"`
	RenderNode     string  `json:"render_node,omitempty"`
	VRAMTotalBytes *uint64 `json:"vram_total_bytes,omitempty"`
	VRAMUsedBytes  *uint64 `json:"vram_used_bytes,omitempty"`
}

type batteryInfoJSON struct {
	HasBattery    bool     `json:"has_battery"`
	ChargePercent *float64 `json:"charge_percent"`
	IsCharging    *bool    `json:"is_charging"`
	WhCapacity    *float64 `json:"wh_capacity"`
}

type networkInfoJSON struct {
	PingMS       *float64 `json:"ping_ms"`
	PublicIP     *string  `json:"public_ip"`
	DownloadMbps *float64 `json:"download_mbps"`
	UploadMbps   *float64 `json:"upload_mbps"`
}

// WriteJSON writes r as an indented JSON object. Output depends only on r.
func WriteJSON(w io.Writer, r Report) error {
	data, err := json.MarshalIndent(toJSON(r), "", "  ")
	if err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write json report: %w", err)
	}
	return nil
}

func toJSON(r Report) jsonReport {
	var out jsonReport

	if r.CPU != nil {
		sys := r.CPU.System
		out.CPUInfo = &cpuInfoJSON{
			OS:                       sys.OS,
			OSVersion:                lo.FromPtrOr(sys.OSVersion, notAvailable),
			TotalMemoryMB:            sys.TotalMemoryMB,
			UsedMemoryMB:             sys.UsedMemoryMB,
			TotalSwapMB:              sys.TotalSwapMB,
			UsedSwapMB:               sys.UsedSwapMB,
			Arch:                     lo.FromPtrOr(sys.Arch, notAvailable),
			CPUCount:                 sys.CPUCount,
			CPUModel:                 sys.CPUModel,
			GFLOPS:                   r.CPU.Measurement.Throughput,
			BenchmarkDurationSeconds: r.CPU.Measurement.ElapsedSeconds,
		}
	}

	if r.GPU != nil {
		entries := make([]gpuInfoJSON, 0, len(r.GPU.Results))
		for _, result := range r.GPU.Results {
			entry := gpuInfoJSON{
				Device:   result.Device.Label(),
				TFLOPS:   result.Measurement.Throughput,
				Duration: result.Measurement.ElapsedSeconds,
			}
			if !r.GPU.Backend.IsUnified() {
				entry.DeviceID = lo.ToPtr(result.Device.DeviceID)
				entry.Name = lo.ToPtr(lo.FromPtrOr(result.Device.Name, notAvailable))
				entry.TotalMemory = lo.ToPtr(lo.FromPtr(result.Device.TotalMemory))
				entry.FreeMemory = lo.ToPtr(lo.FromPtr(result.Device.FreeMemory))
				entry.UsedMemory = lo.ToPtr(lo.FromPtr(result.Device.UsedMemory))
			}
			entries = append(entries, entry)
		}
		out.GPUInfo = &entries

		for _, failure := range r.GPU.Failures {
			entry := gpuErrorJSON{Device: failure.Device.Label(), Error: failure.Error}
			if !r.GPU.Backend.IsUnified() {
				entry.DeviceID = lo.ToPtr(failure.Device.DeviceID)
			}
			out.GPUErrors = append(out.GPUErrors, entry)
		}

		out.GPUAdapters = lo.Map(r.GPU.Adapters, func(info gpu.Info, _ int) gpuAdapterJSON {
			return gpuAdapterJSON{
				ID:             info.ID,
				PCI:            info.PCI,
				PCIID:          info.PCIID,
				Name:           info.Name,
				Driver:         info.Driver,
				RenderNode:     info.RenderNode,
				VRAMTotalBytes: info.VRAMTotalBytes,
				VRAMUsedBytes:  info.VRAMUsedBytes,
			}
		})
	}

	if r.Battery != nil {
		out.BatteryInfo = &batteryInfoJSON{
			HasBattery:    r.Battery.HasBattery,
			ChargePercent: r.Battery.ChargePercent,
			IsCharging:    r.Battery.IsCharging,
			WhCapacity:    r.Battery.WhCapacity,
		}
	}

	if r.Network != nil {
		out.NetworkInfo = &networkInfoJSON{
			PingMS:       r.Network.PingMS,
			PublicIP:     r.Network.PublicIP,
			DownloadMbps: r.Network.DownloadMbps,
			UploadMbps:   r.Network.UploadMbps,
		}
	}

	return out
}
