package types

import "errors"

// Validation errors shared across components.
var (
	ErrInvalidDeviceID    = errors.New("device ID must be 1-64 characters, alphanumeric plus underscore/hyphen/colon")
	ErrMissingDeviceID    = errors.New("snapshot is missing device_id")
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidCalibration = errors.New("calibration status must be pending, complete or failed")
	ErrPayloadTooLarge    = errors.New("message payload exceeds 64KB limit")
	ErrInvalidPayload     = errors.New("payload is not JSON-serializable")
)
