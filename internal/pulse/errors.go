package pulse

import "codeberg.org/mutker/pulsemon/internal/errors"

const (
	ErrInvalidFilterLength  = errors.ErrorCode("pulse_invalid_filter_length")
	ErrInvalidWindowLength  = errors.ErrorCode("pulse_invalid_window_length")
	ErrInvalidHistoryLength = errors.ErrorCode("pulse_invalid_history_length")
	ErrInvalidBeatDistance  = errors.ErrorCode("pulse_invalid_beat_distance")
)
