// Package power reports battery presence, charge and capacity.
package power

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/distatus/battery"
)

// ErrQuery reports that the platform battery interface could not be read.
// Callers treat it as "battery information unavailable".
var ErrQuery = errors.New("battery query failed")

// Status summarises all system batteries. Pointer fields are nil when the
// platform does not report the value.
type Status struct {
	HasBattery    bool
	ChargePercent *float64
	IsCharging    *bool
	WhCapacity    *float64
}

// Source lists the system batteries.
type Source func() ([]*battery.Battery, error)

// Option customises a Reader.
type Option func(*Reader)

// WithSource replaces the platform battery listing.
func WithSource(source Source) Option {
	return func(r *Reader) {
		if source != nil {
			r.source = source
		}
	}
}

// Reader reads battery status from the host.
type Reader struct {
	source Source
	logger *slog.Logger
}

// NewReader constructs a Reader backed by the platform battery interface.
func NewReader(logger *slog.Logger, opts ...Option) *Reader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Reader{source: battery.GetAll, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the current battery status. A host without batteries is
// reported as Status{HasBattery: false} with a nil error. Batteries that
// report only some fields still count.
func (r *Reader) Status(ctx context.Context) (Status, error) {
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	batteries, err := r.source()
	present := make([]*battery.Battery, 0, len(batteries))
	for _, b := range batteries {
		if b != nil {
			present = append(present, b)
		}
	}

	if err != nil {
		if len(present) == 0 {
			if errors.Is(err, battery.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
				return Status{}, nil
			}
			return Status{}, fmt.Errorf("%w: %w", ErrQuery, err)
		}
		r.logger.Debug("partial battery data", "err", err)
	}

	return Summarise(present), nil
}

// Summarise merges batteries into one Status. Charge is the stored energy
// over the full capacity of all batteries; capacity is the sum in Wh.
// Charging is true if any battery charges, false if every state is known
// and none charges.
func Summarise(batteries []*battery.Battery) Status {
	if len(batteries) == 0 {
		return Status{}
	}

	status := Status{HasBattery: true}
	var (
		current, full float64
		charging      bool
		stateKnown    bool
	)
	for _, b := range batteries {
		if b.Full > 0 {
			full += b.Full
			current += b.Current
		}
		switch b.State.Raw {
		case battery.Charging:
			charging = true
			stateKnown = true
		case battery.Unknown:
		default:
			stateKnown = true
		}
	}

	if full > 0 {
		percent := current / full * 100
		status.ChargePercent = float64Ptr(min(max(percent, 0), 100))
		// Battery energy is reported in mWh.
		status.WhCapacity = float64Ptr(full / 1000)
	}
	if stateKnown {
		status.IsCharging = boolPtr(charging)
	}
	return status
}

func float64Ptr(value float64) *float64 {
	v := value
	return &v
}

func boolPtr(value bool) *bool {
	v := value
	return &v
}
