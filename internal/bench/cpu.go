package bench

import (
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/skobkin/hwbench/internal/workload"
)

// CPU multiplies two zero-filled workload.Size matrices iterations times and
// reports GFLOP/s. There is no warm-up: the first iteration is timed.
func CPU(iterations int) Measurement {
	return CPUSized(workload.Size, iterations)
}

// CPUSized is CPU with an explicit matrix dimension.
func CPUSized(n, iterations int) Measurement {
	return CPUMatrices(workload.Zeros(n), workload.Zeros(n), iterations)
}

// CPUMatrices times iterations products of a and b, which must share a
// dimension.
func CPUMatrices(a, b workload.Matrix, iterations int) Measurement {
	c := workload.Zeros(a.N)

	start := time.Now()
	for i := 0; i < iterations; i++ {
		Multiply(c, a, b)
	}
	elapsed := time.Since(start).Seconds()

	return Measurement{
		Throughput:     Throughput(a.N, iterations, elapsed, GFLOP),
		ElapsedSeconds: elapsed,
	}
}

// Multiply stores a×b in dst. Every element of a is applied, zeros
// included, so the cost is 2·N³ for any input. All three matrices must be
// N×N.
func Multiply(dst, a, b workload.Matrix) {
	n := a.N
	clear(dst.Data)
	for i := 0; i < n; i++ {
		row := dst.Data[i*n : (i+1)*n]
		for l, scale := range a.Data[i*n : (i+1)*n] {
			floats.AddScaled(row, scale, b.Data[l*n:(l+1)*n])
		}
	}
}
