// Package bench runs the floating-point throughput benchmarks.
package bench

import (
	"errors"

	"github.com/skobkin/hwbench/internal/workload"
)

const (
	// GFLOP and TFLOP are the throughput divisors of the CPU and GPU paths.
	GFLOP = 1e9
	TFLOP = 1e12

	DefaultCPUIterations = 5
	DefaultGPUIterations = 1000
	DefaultGPUWarmup     = 10
)

// ErrMeasurementFailure marks a benchmark run that aborted on the device.
var ErrMeasurementFailure = errors.New("measurement failed")

// Measurement is the result of one benchmark run. Throughput is in GFLOP/s
// for the CPU path and TFLOP/s for the GPU path.
type Measurement struct {
	Throughput     float64
	ElapsedSeconds float64
}

// Throughput derives FLOP/s scaled by divisor from the elapsed wall time of
// iterations multiplications of n×n matrices. Non-positive elapsed time
// yields zero.
func Throughput(n, iterations int, elapsedSeconds, divisor float64) float64 {
	if elapsedSeconds <= 0 || divisor <= 0 {
		return 0
	}
	total := workload.FlopsPerMultiply(n) * float64(iterations)
	return total / (elapsedSeconds * divisor)
}
