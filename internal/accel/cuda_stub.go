//go:build !cuda || !linux || !cgo

package accel

import "fmt"

func openCUDA(index int) (Device, error) {
	return nil, fmt.Errorf("open cuda device %d: %w (rebuild with -tags cuda)", index, ErrComputeUnavailable)
}
