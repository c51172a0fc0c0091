package report

import "codeberg.org/mutker/pulsemon/internal/errors"

const (
	ErrWriteFailed   = errors.ErrorCode("report_write_failed")
	ErrConnectFailed = errors.ErrorCode("report_connect_failed")
	ErrPublishFailed = errors.ErrorCode("report_publish_failed")
	ErrEncodeFailed  = errors.ErrorCode("report_encode_failed")
	ErrInvalidConfig = errors.ErrorCode("report_invalid_config")
)
