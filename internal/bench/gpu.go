package bench

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/workload"
)

// GPUParams tunes a GPU benchmark run. Zero values select the defaults.
type GPUParams struct {
	Size       int
	Iterations int
	Warmup     int
	Rand       *rand.Rand
}

func (p GPUParams) withDefaults() GPUParams {
	if p.Size <= 0 {
		p.Size = workload.Size
	}
	if p.Iterations <= 0 {
		p.Iterations = DefaultGPUIterations
	}
	if p.Warmup < 0 {
		p.Warmup = 0
	}
	return p
}

// GPU uploads two random matrices to dev, runs params.Warmup untimed
// multiplications, then times params.Iterations multiplications and reports
// TFLOP/s. Both phases end with a device synchronisation so queued work is
// accounted to the phase that issued it.
func GPU(dev accel.Device, params GPUParams) (Measurement, error) {
	params = params.withDefaults()
	n := params.Size

	a, err := dev.Upload(workload.Uniform(n, params.Rand))
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: upload lhs: %w", ErrMeasurementFailure, err)
	}
	defer a.Release()

	b, err := dev.Upload(workload.Uniform(n, params.Rand))
	if err != nil {
		return Measurement{}, fmt.Errorf("%w: upload rhs: %w", ErrMeasurementFailure, err)
	}
	defer b.Release()

	for i := 0; i < params.Warmup; i++ {
		if err := dev.MatMul(a, b); err != nil {
			return Measurement{}, fmt.Errorf("%w: warmup %d: %w", ErrMeasurementFailure, i, err)
		}
	}
	if err := dev.Synchronize(); err != nil {
		return Measurement{}, fmt.Errorf("%w: warmup sync: %w", ErrMeasurementFailure, err)
	}

	start := time.Now()
	for i := 0; i < params.Iterations; i++ {
		if err := dev.MatMul(a, b); err != nil {
			return Measurement{}, fmt.Errorf("%w: iteration %d: %w", ErrMeasurementFailure, i, err)
		}
	}
	if err := dev.Synchronize(); err != nil {
		return Measurement{}, fmt.Errorf("%w: sync: %w", ErrMeasurementFailure, err)
	}
	elapsed := time.Since(start).Seconds()

	return Measurement{
		Throughput:     Throughput(n, params.Iterations, elapsed, TFLOP),
		ElapsedSeconds: elapsed,
	}, nil
}
