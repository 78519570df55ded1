package transport

import "errors"

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrInvalidJSON      = errors.New("message is not JSON-serializable")
	ErrDeviceNotLinked  = errors.New("no live connection for device")
)
