// Package sensor provides the sample sources feeding the heartbeat pipeline:
// a serial-attached sensor, a line-oriented replay of recorded samples and a
// synthetic pulse generator.
package sensor

import (
	"strconv"
	"strings"

	"codeberg.org/mutker/pulsemon/internal/errors"
	"codeberg.org/mutker/pulsemon/internal/pulse"
)

// Source yields the current sensor magnitude. Read must not block waiting for
// new data.
type Source interface {
	Read() (pulse.Sample, error)
	Close() error
}

// Kind names a source implementation in configuration.
type Kind string

const (
	KindSerial    Kind = "serial"
	KindReplay    Kind = "replay"
	KindSynthetic Kind = "synthetic"
)

// IsValid returns whether the kind names a known source
func (k Kind) IsValid() bool {
	switch k {
	case KindSerial, KindReplay, KindSynthetic:
		return true
	default:
		return false
	}
}

// ParseSample parses one line of sensor output holding a decimal magnitude.
func ParseSample(line string) (pulse.Sample, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(line), 10, 32)
	if err != nil {
		return 0, errors.New().Wrap(ErrInvalidSample, err)
	}
	return pulse.Sample(v), nil
}
