// Package acceltest provides in-memory accelerator fakes for tests.
package acceltest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/workload"
)

// Device is a fake accelerator that counts operations instead of running
// them. Errors can be injected per operation.
type Device struct {
	DeviceName string
	UploadErr  error
	MatMulErr  error
	// FailAfter makes MatMul fail once this many multiplications have
	// succeeded. Zero disables it.
	FailAfter int
	SyncErr   error
	// OnMatMul, if set, runs on every successful multiplication.
	OnMatMul func()

	mu       sync.Mutex
	uploads  int
	matmuls  int
	syncs    int
	released int
	closed   bool
}

type buffer struct {
	dev *Device
	n   int
}

func (b *buffer) Release() {
	b.dev.mu.Lock()
	b.dev.released++
	b.dev.mu.Unlock()
}

func (d *Device) Name() string {
	if d.DeviceName == "" {
		return "fake"
	}
	return d.DeviceName
}

func (d *Device) Upload(m workload.Matrix32) (accel.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.UploadErr != nil {
		return nil, d.UploadErr
	}
	d.uploads++
	return &buffer{dev: d, n: m.N}, nil
}

func (d *Device) MatMul(a, b accel.Buffer) error {
	left, lok := a.(*buffer)
	right, rok := b.(*buffer)
	if !lok || !rok {
		return errors.New("foreign buffer")
	}
	if left.n != right.n {
		return fmt.Errorf("dimension mismatch %d != %d", left.n, right.n)
	}

	d.mu.Lock()
	if d.MatMulErr != nil {
		d.mu.Unlock()
		return d.MatMulErr
	}
	if d.FailAfter > 0 && d.matmuls >= d.FailAfter {
		d.mu.Unlock()
		return errors.New("device lost")
	}
	d.matmuls++
	hook := d.OnMatMul
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (d *Device) Synchronize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncs++
	return d.SyncErr
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Uploads returns the number of successful uploads.
func (d *Device) Uploads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.uploads
}

// MatMuls returns the number of successful multiplications.
func (d *Device) MatMuls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matmuls
}

// Syncs returns the number of Synchronize calls.
func (d *Device) Syncs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.syncs
}

// Released returns the number of released buffers.
func (d *Device) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Driver is a fake discrete driver backed by a fixed device list.
type Driver struct {
	Devices     []*Device
	Descriptors []accel.Descriptor
	CountErr    error
	// OpenErr maps a device index to the error returned by Open.
	OpenErr map[int]error

	mu     sync.Mutex
	opened []int
	closed bool
}

func (d *Driver) Name() string {
	return "fake"
}

func (d *Driver) DeviceCount() (int, error) {
	if d.CountErr != nil {
		return 0, d.CountErr
	}
	return len(d.Devices), nil
}

func (d *Driver) Describe(index int) accel.Descriptor {
	if index < len(d.Descriptors) {
		return d.Descriptors[index]
	}
	return accel.Descriptor{DeviceID: index, Kind: accel.KindDiscreteIndexed, Index: index}
}

func (d *Driver) Open(index int) (accel.Device, error) {
	d.mu.Lock()
	d.opened = append(d.opened, index)
	d.mu.Unlock()

	if err, ok := d.OpenErr[index]; ok {
		return nil, err
	}
	if index < 0 || index >= len(d.Devices) {
		return nil, fmt.Errorf("no device %d", index)
	}
	return d.Devices[index], nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Opened returns the indexes passed to Open, in call order.
func (d *Driver) Opened() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.opened...)
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
