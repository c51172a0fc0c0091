// Package report delivers heart rate readings to their consumers: a plain
// text console line and, optionally, a NATS subject.
package report

import (
	"context"
	"fmt"
	"math"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/pulse"
)

// Reading is the heart rate at one reporting tick.
type Reading struct {
	Elapsed   pulse.Millis
	BPM       pulse.BPM
	Available bool
}

// String renders the reading as shown on the console.
func (r Reading) String() string {
	if !r.Available {
		return "BPM: --"
	}
	return fmt.Sprintf("BPM: %d", int(math.Round(float64(r.BPM))))
}

// Reporter receives one reading per reporting tick.
type Reporter interface {
	Report(ctx context.Context, r Reading) error
	Close() error
}

// Multi fans a reading out to every reporter.
type Multi []Reporter

func (m Multi) Report(ctx context.Context, r Reading) error {
	var errs []error
	for _, rep := range m {
		if err := rep.Report(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, rep := range m {
		if err := rep.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
