//go:build !metal || !darwin || !arm64 || !cgo

package accel

import "fmt"

// OpenUnified reports that the integrated GPU backend is not compiled in.
func OpenUnified() (Device, error) {
	return nil, fmt.Errorf("open integrated device: %w (rebuild with -tags metal on darwin/arm64)", ErrComputeUnavailable)
}
