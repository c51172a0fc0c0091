package pulse

import (
	"time"

	"codeberg.org/mutker/pulsemon/internal/errors"
)

const (
	DefaultFilterLength    = 4
	DefaultWindowLength    = 11
	DefaultHistoryLength   = 10
	DefaultMinAmplitude    = 550
	DefaultMinBeatDistance = 300 * time.Millisecond

	// A window needs at least one sample on each side of its center.
	minWindowLength  = 3
	minHistoryLength = 2
)

// Config holds the pipeline parameters.
//
// WindowLength may be even, in which case the center is the lower of the two
// middle positions, (WindowLength-1)/2, and the right neighborhood holds one
// sample more than the left.
type Config struct {
	FilterLength    int
	WindowLength    int
	HistoryLength   int
	MinAmplitude    Sample
	MinBeatDistance time.Duration
}

func DefaultConfig() Config {
	return Config{
		FilterLength:    DefaultFilterLength,
		WindowLength:    DefaultWindowLength,
		HistoryLength:   DefaultHistoryLength,
		MinAmplitude:    DefaultMinAmplitude,
		MinBeatDistance: DefaultMinBeatDistance,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.FilterLength < 1 {
		return errFactory.WithData(ErrInvalidFilterLength, c.FilterLength)
	}
	if c.WindowLength < minWindowLength {
		return errFactory.WithData(ErrInvalidWindowLength, c.WindowLength)
	}
	if c.HistoryLength < minHistoryLength {
		return errFactory.WithData(ErrInvalidHistoryLength, c.HistoryLength)
	}
	if c.MinBeatDistance < 0 {
		return errFactory.WithData(ErrInvalidBeatDistance, c.MinBeatDistance)
	}

	return nil
}
