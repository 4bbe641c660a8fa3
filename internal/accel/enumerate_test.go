package accel_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/skobkin/hwbench/internal/accel"
	"github.com/skobkin/hwbench/internal/accel/acceltest"
)

func TestEnumerateZeroDevices(t *testing.T) {
	t.Parallel()

	devices, err := accel.Enumerate(&acceltest.Driver{})
	if err != nil {
		t.Fatalf("Enumerate returned error: %v", err)
	}
	if devices == nil {
		t.Fatalf("expected empty non-nil list")
	}
	if len(devices) != 0 {
		t.Fatalf("expected 0 devices, got %d", len(devices))
	}
}

func TestEnumerateDriverUnavailable(t *testing.T) {
	t.Parallel()

	driver := &acceltest.Driver{CountErr: fmt.Errorf("%w: library not found", accel.ErrDriverUnavailable)}
	devices, err := accel.Enumerate(driver)
	if err != nil {
		t.Fatalf("Enumerate returned error: %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Fatalf("expected empty list, got %+v", devices)
	}
}

func TestEnumerateNilDriver(t *testing.T) {
	t.Parallel()

	devices, err := accel.Enumerate(nil)
	if err != nil || devices == nil || len(devices) != 0 {
		t.Fatalf("unexpected result %+v, %v", devices, err)
	}
}

func TestEnumerateQueryError(t *testing.T) {
	t.Parallel()

	queryErr := errors.New("driver/library version mismatch")
	_, err := accel.Enumerate(&acceltest.Driver{CountErr: queryErr})
	if !errors.Is(err, queryErr) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestEnumerateBuildsDescriptorsPerIndex(t *testing.T) {
	t.Parallel()

	name := "NVIDIA GeForce RTX 4090"
	total := uint64(24 << 30)
	driver := &acceltest.Driver{
		Devices: []*acceltest.Device{{}, {}, {}},
		Descriptors: []accel.Descriptor{
			{Name: &name, TotalMemory: &total},
		},
	}

	devices, err := accel.Enumerate(driver)
	if err != nil {
		t.Fatalf("Enumerate returned error: %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(devices))
	}
	for i, desc := range devices {
		if desc.DeviceID != i || desc.Index != i {
			t.Fatalf("device %d has id=%d index=%d", i, desc.DeviceID, desc.Index)
		}
		if desc.Kind != accel.KindDiscreteIndexed {
			t.Fatalf("device %d has kind %v", i, desc.Kind)
		}
	}
	if devices[0].Name == nil || *devices[0].Name != name {
		t.Fatalf("expected metadata preserved for device 0, got %+v", devices[0])
	}
	if devices[1].Name != nil || devices[1].TotalMemory != nil {
		t.Fatalf("expected unset metadata for device 1, got %+v", devices[1])
	}
}

func TestDescriptorLabel(t *testing.T) {
	t.Parallel()

	if got := (accel.Descriptor{Kind: accel.KindDiscreteIndexed, Index: 2}).Label(); got != "Cuda(2)" {
		t.Fatalf("unexpected discrete label %q", got)
	}
	if got := accel.UnifiedDescriptor().Label(); got != "integrated" {
		t.Fatalf("unexpected unified label %q", got)
	}
}
