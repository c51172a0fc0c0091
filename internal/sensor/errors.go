package sensor

import "codeberg.org/mutker/pulsemon/internal/errors"

const (
	ErrInvalidSource   = errors.ErrorCode("sensor_invalid_source")
	ErrInvalidPortOpts = errors.ErrorCode("sensor_invalid_port_options")
	ErrOpenFailed      = errors.ErrorCode("sensor_open_failed")
	ErrReadFailed      = errors.ErrorCode("sensor_read_failed")
	ErrInvalidSample   = errors.ErrorCode("sensor_invalid_sample")
	ErrCloseFailed     = errors.ErrorCode("sensor_close_failed")
)
