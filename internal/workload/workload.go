// Package workload builds the dense square matrices used as benchmark input.
package workload

import (
	"math/rand/v2"
)

// Size is the matrix dimension used by both compute paths. One multiply of
// two Size×Size matrices costs 2*Size^3 floating-point operations.
const Size = 1024

// Matrix is a row-major N×N float64 buffer.
type Matrix struct {
	N    int
	Data []float64
}

// Matrix32 is a row-major N×N float32 buffer, the element type accelerators
// are benchmarked with.
type Matrix32 struct {
	N    int
	Data []float32
}

// Zeros allocates an N×N matrix filled with zeros.
func Zeros(n int) Matrix {
	return Matrix{N: n, Data: make([]float64, n*n)}
}

// Uniform allocates an N×N matrix with values drawn uniformly from [0, 1).
// A nil rng uses the package-level source.
func Uniform(n int, rng *rand.Rand) Matrix32 {
	data := make([]float32, n*n)
	next := rand.Float32
	if rng != nil {
		next = rng.Float32
	}
	for i := range data {
		data[i] = next()
	}
	return Matrix32{N: n, Data: data}
}

// FlopsPerMultiply returns the floating-point operation count of one dense
// N×N by N×N multiplication.
func FlopsPerMultiply(n int) float64 {
	size := float64(n)
	return 2 * size * size * size
}

// Bytes returns the storage size of the matrix data.
func (m Matrix32) Bytes() int {
	return len(m.Data) * 4
}
