package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/samber/lo"
)

const metricNamespace = "hwbench"

type reportCollector struct {
	report  Report
	simple  []reportMetric
	gpuTime *prometheus.Desc
	gpuRate *prometheus.Desc
}

type reportMetric struct {
	desc    *prometheus.Desc
	extract func(r Report) (float64, bool)
}

func newReportCollector(r Report) *reportCollector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricNamespace, subsystem, name), help, labels, nil)
	}
	cpu := func(extract func(s *CPUSection) float64) func(Report) (float64, bool) {
		return func(r Report) (float64, bool) {
			if r.CPU == nil {
				return 0, false
			}
			return extract(r.CPU), true
		}
	}
	battery := func(extract func(s *Report) (float64, bool)) func(Report) (float64, bool) {
		return func(r Report) (float64, bool) {
			if r.Battery == nil {
				return 0, false
			}
			return extract(&r)
		}
	}
	network := func(pick func(r Report) *float64) func(Report) (float64, bool) {
		return func(r Report) (float64, bool) {
			if r.Network == nil {
				return 0, false
			}
			value := pick(r)
			if value == nil {
				return 0, false
			}
			return *value, true
		}
	}
	const mb = 1 << 20

	return &reportCollector{
		report:  r,
		gpuRate: desc("gpu", "tflops", "Measured GPU matrix multiplication throughput in TFLOP/s.", "device_id", "device", "name"),
		gpuTime: desc("gpu", "benchmark_duration_seconds", "Wall time of the timed GPU benchmark loop.", "device_id", "device", "name"),
		simple: []reportMetric{
			{
				desc:    desc("cpu", "gflops", "Measured CPU matrix multiplication throughput in GFLOP/s."),
				extract: cpu(func(s *CPUSection) float64 { return s.Measurement.Throughput }),
			},
			{
				desc:    desc("cpu", "benchmark_duration_seconds", "Wall time of the timed CPU benchmark loop."),
				extract: cpu(func(s *CPUSection) float64 { return s.Measurement.ElapsedSeconds }),
			},
			{
				desc:    desc("cpu", "logical_count", "Number of logical CPUs."),
				extract: cpu(func(s *CPUSection) float64 { return float64(s.System.CPUCount) }),
			},
			{
				desc:    desc("memory", "total_bytes", "Total physical memory."),
				extract: cpu(func(s *CPUSection) float64 { return float64(s.System.TotalMemoryMB) * mb }),
			},
			{
				desc:    desc("memory", "used_bytes", "Used physical memory."),
				extract: cpu(func(s *CPUSection) float64 { return float64(s.System.UsedMemoryMB) * mb }),
			},
			{
				desc:    desc("swap", "total_bytes", "Total swap space."),
				extract: cpu(func(s *CPUSection) float64 { return float64(s.System.TotalSwapMB) * mb }),
			},
			{
				desc:    desc("swap", "used_bytes", "Used swap space."),
				extract: cpu(func(s *CPUSection) float64 { return float64(s.System.UsedSwapMB) * mb }),
			},
			{
				desc: desc("battery", "present", "Whether a system battery is present (1) or not (0)."),
				extract: battery(func(r *Report) (float64, bool) {
					return boolValue(r.Battery.HasBattery), true
				}),
			},
			{
				desc: desc("battery", "charge_percent", "Battery state of charge in percent."),
				extract: battery(func(r *Report) (float64, bool) {
					if r.Battery.ChargePercent == nil {
						return 0, false
					}
					return *r.Battery.ChargePercent, true
				}),
			},
			{
				desc: desc("battery", "charging", "Whether the battery is charging (1) or not (0)."),
				extract: battery(func(r *Report) (float64, bool) {
					if r.Battery.IsCharging == nil {
						return 0, false
					}
					return boolValue(*r.Battery.IsCharging), true
				}),
			},
			{
				desc: desc("battery", "capacity_watt_hours", "Full battery capacity in watt hours."),
				extract: battery(func(r *Report) (float64, bool) {
					if r.Battery.WhCapacity == nil {
						return 0, false
					}
					return *r.Battery.WhCapacity, true
				}),
			},
			{
				desc:    desc("network", "ping_ms", "Round trip time of the reachability probe in milliseconds."),
				extract: network(func(r Report) *float64 { return r.Network.PingMS }),
			},
			{
				desc:    desc("network", "download_mbps", "Measured download throughput in Mbit/s."),
				extract: network(func(r Report) *float64 { return r.Network.DownloadMbps }),
			},
			{
				desc:    desc("network", "upload_mbps", "Measured upload throughput in Mbit/s."),
				extract: network(func(r Report) *float64 { return r.Network.UploadMbps }),
			},
		},
	}
}

func (c *reportCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, metric := range c.simple {
		ch <- metric.desc
	}
	ch <- c.gpuRate
	ch <- c.gpuTime
}

func (c *reportCollector) Collect(ch chan<- prometheus.Metric) {
	for _, metric := range c.simple {
		value, ok := metric.extract(c.report)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(metric.desc, prometheus.GaugeValue, value)
	}

	if c.report.GPU == nil {
		return
	}
	for _, result := range c.report.GPU.Results {
		labels := []string{
			strconv.Itoa(result.Device.DeviceID),
			result.Device.Label(),
			lo.FromPtrOr(result.Device.Name, ""),
		}
		ch <- prometheus.MustNewConstMetric(c.gpuRate, prometheus.GaugeValue, result.Measurement.Throughput, labels...)
		ch <- prometheus.MustNewConstMetric(c.gpuTime, prometheus.GaugeValue, result.Measurement.ElapsedSeconds, labels...)
	}
}

// Gather collects r into metric families sorted by name.
func Gather(r Report) ([]*dto.MetricFamily, error) {
	registry := prometheus.NewRegistry()
	if err := registry.Register(newReportCollector(r)); err != nil {
		return nil, fmt.Errorf("register report collector: %w", err)
	}
	families, err := registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather report metrics: %w", err)
	}
	return families, nil
}

// WritePrometheus writes r in the Prometheus text exposition format, as
// consumed by the node_exporter textfile collector.
func WritePrometheus(w io.Writer, r Report) error {
	families, err := Gather(r)
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return fmt.Errorf("write prometheus report: %w", err)
		}
	}
	return nil
}

func boolValue(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
