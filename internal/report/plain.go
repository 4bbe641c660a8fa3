package report

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/gpu"
	"github.com/skobkin/hwbench/internal/netprobe"
	"github.com/skobkin/hwbench/internal/power"
)

// WritePlain writes r as labelled text sections separated by blank lines.
func WritePlain(w io.Writer, r Report) error {
	var buf bytes.Buffer
	if r.CPU != nil {
		writeCPUSection(&buf, r.CPU)
	}
	if r.GPU != nil {
		writeGPUSection(&buf, r.GPU)
	}
	if r.Battery != nil {
		writePowerSection(&buf, *r.Battery)
	}
	if r.Network != nil {
		writeNetworkSection(&buf, *r.Network)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write plain report: %w", err)
	}
	return nil
}

func writeCPUSection(buf *bytes.Buffer, section *CPUSection) {
	sys := section.System
	fmt.Fprintln(buf, "=> CPU:")
	fmt.Fprintf(buf, "OS          : %q\n", sys.OS)
	fmt.Fprintf(buf, "OS version  : %s\n", lo.FromPtrOr(sys.OSVersion, notAvailable))
	fmt.Fprintf(buf, "Memory Total: %d mb\n", sys.TotalMemoryMB)
	fmt.Fprintf(buf, "Memory Used: %d mb\n", sys.UsedMemoryMB)
	fmt.Fprintf(buf, "Swap Total : %d mb\n", sys.TotalSwapMB)
	fmt.Fprintf(buf, "Swap Used  : %d mb\n", sys.UsedSwapMB)
	fmt.Fprintf(buf, "CPU architecture: %q\n", lo.FromPtrOr(sys.Arch, notAvailable))
	if sys.CPUModel != "" {
		fmt.Fprintf(buf, "CPU model   : %s\n", sys.CPUModel)
	}
	fmt.Fprintf(buf, "CPU count   : %d\n", sys.CPUCount)
	fmt.Fprintf(buf, "CPU FLOPS   : %.2f GFLOPS\n", section.Measurement.Throughput)
	fmt.Fprintf(buf, "CPU benchmark duration: %.2f seconds\n\n", section.Measurement.ElapsedSeconds)
}

func writeGPUSection(buf *bytes.Buffer, section *GPUSection) {
	fmt.Fprintln(buf, "=> GPU:")

	if section.Backend.IsUnified() {
		for _, result := range section.Results {
			fmt.Fprintln(buf, "GPU: integrated (MPS)")
			fmt.Fprintf(buf, "GPU FLOPS: %.2f TFLOPS\n", result.Measurement.Throughput)
			fmt.Fprintf(buf, "GPU benchmark duration: %.2f seconds\n", result.Measurement.ElapsedSeconds)
		}
		for _, failure := range section.Failures {
			fmt.Fprintf(buf, "GPU: integrated (MPS) failed: %s\n", failure.Error)
		}
		buf.WriteByte('\n')
		return
	}

	if len(section.Results) == 0 && len(section.Failures) == 0 {
		fmt.Fprintln(buf, "No accelerator found")
	}
	for _, result := range section.Results {
		writeDeviceHeader(buf, result.Device)
		fmt.Fprintf(buf, "GPU Estimated FLOPS: %.2f TFLOPS\n", result.Measurement.Throughput)
		fmt.Fprintf(buf, "GPU benchmark duration: %.2f seconds\n", result.Measurement.ElapsedSeconds)
	}
	for _, failure := range section.Failures {
		writeDeviceHeader(buf, failure.Device)
		fmt.Fprintf(buf, "GPU benchmark failed: %s\n", failure.Error)
	}
	for _, adapter := range section.Adapters {
		writeAdapter(buf, adapter)
	}
	buf.WriteByte('\n')
}

func writeDeviceHeader(buf *bytes.Buffer, device accel.Descriptor) {
	fmt.Fprintf(buf, "CUDA Device %d Information:\n", device.DeviceID)
	fmt.Fprintf(buf, "Device: %s\n", device.Label())
	fmt.Fprintf(buf, "Name: %s\n", lo.FromPtrOr(device.Name, notAvailable))
	fmt.Fprintf(buf, "Total Memory: %s\n", formatBytes(device.TotalMemory))
	fmt.Fprintf(buf, "Free Memory: %s\n", formatBytes(device.FreeMemory))
	fmt.Fprintf(buf, "Used Memory: %s\n", formatBytes(device.UsedMemory))
}

func writeAdapter(buf *bytes.Buffer, adapter gpu.Info) {
	name := adapter.Name
	if name == "" {
		name = notAvailable
	}
	fmt.Fprintf(buf, "Display adapter %s: %s\n", adapter.ID, name)
	if adapter.PCIID != "" {
		fmt.Fprintf(buf, "  PCI ID : %s\n", adapter.PCIID)
	}
	if adapter.Driver != "" {
		fmt.Fprintf(buf, "  Driver : %s\n", adapter.Driver)
	}
	if adapter.VRAMTotalBytes != nil {
		fmt.Fprintf(buf, "  VRAM   : %s total, %s used\n", formatBytes(adapter.VRAMTotalBytes), formatBytes(adapter.VRAMUsedBytes))
	}
}

func writePowerSection(buf *bytes.Buffer, status power.Status) {
	charge := "None"
	if status.ChargePercent != nil {
		charge = formatFloat(*status.ChargePercent) + "%"
	}
	capacity := "None"
	if status.WhCapacity != nil {
		capacity = formatFloat(*status.WhCapacity) + " Wh"
	}

	fmt.Fprintln(buf, "=> Power:")
	fmt.Fprintf(buf, "Battery         : %t\n", status.HasBattery)
	fmt.Fprintf(buf, "State of charge : %s\n", charge)
	fmt.Fprintf(buf, "Charging        : %t\n", lo.FromPtr(status.IsCharging))
	fmt.Fprintf(buf, "Capacity        : %s\n\n", capacity)
}

func writeNetworkSection(buf *bytes.Buffer, metrics netprobe.Metrics) {
	fmt.Fprintln(buf, "=> Network:")
	fmt.Fprintf(buf, "Ping            : %s\n", formatOptional(metrics.PingMS, "%.2f ms"))
	fmt.Fprintf(buf, "Public IP       : %s\n", lo.FromPtrOr(metrics.PublicIP, "None"))
	fmt.Fprintf(buf, "Download speed  : %s\n", formatOptional(metrics.DownloadMbps, "%.2f Mbps"))
	fmt.Fprintf(buf, "Upload speed    : %s\n\n", formatOptional(metrics.UploadMbps, "%.2f Mbps"))
}

func formatBytes(value *uint64) string {
	if value == nil {
		return notAvailable
	}
	return humanize.IBytes(*value)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(math.Round(value*100)/100, 'f', -1, 64)
}

func formatOptional(value *float64, layout string) string {
	if value == nil {
		return "None"
	}
	return fmt.Sprintf(layout, *value)
}
