package accel

import (
	"errors"
	"fmt"
)

// Enumerate lists discrete devices known to the driver. A host without
// devices, or without a loadable driver, yields an empty list and no error.
func Enumerate(driver Driver) ([]Descriptor, error) {
	devices := []Descriptor{}
	if driver == nil {
		return devices, nil
	}

	count, err := driver.DeviceCount()
	if err != nil {
		if errors.Is(err, ErrDriverUnavailable) {
			return devices, nil
		}
		return devices, fmt.Errorf("query %s device count: %w", driver.Name(), err)
	}

	for index := 0; index < count; index++ {
		desc := driver.Describe(index)
		desc.DeviceID = index
		desc.Index = index
		desc.Kind = KindDiscreteIndexed
		devices = append(devices, desc)
	}
	return devices, nil
}

// UnifiedDescriptor returns the descriptor of the single implicit
// integrated device.
func UnifiedDescriptor() Descriptor {
	return Descriptor{Kind: KindIntegratedUnified}
}
