package types

import (
	"encoding/json"
	"regexp"
)

var deviceIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]{1,64}$`)

// IsValidDeviceID reports whether id is acceptable as a stable device key.
// Colons are allowed so MAC-derived identifiers survive unchanged.
func IsValidDeviceID(id string) bool {
	return deviceIDRegex.MatchString(id)
}

// IsValidMessageType reports whether t is one of the known wire types.
func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeHello, MessageTypeStateSync, MessageTypeCommand,
		MessageTypeStatusRequest, MessageTypeAck, MessageTypeConnectionIssue:
		return true
	}
	return false
}

// Validate checks the snapshot for structural problems only. Stale or
// out-of-order content is never rejected here; the store applies
// last-write-wins on arrival order.
func (s *SessionSnapshot) Validate() error {
	if s.DeviceID == "" {
		return ErrMissingDeviceID
	}
	if !IsValidDeviceID(s.DeviceID) {
		return ErrInvalidDeviceID
	}
	for _, status := range s.CalibrationStatus {
		switch status {
		case CalibrationPending, CalibrationComplete, CalibrationFailed:
		default:
			return ErrInvalidCalibration
		}
	}
	return nil
}

// Validate checks the envelope before it enters the coordinator.
func (m *Message) Validate() error {
	if !IsValidMessageType(m.Type) {
		return ErrInvalidMessageType
	}
	if m.DeviceID == "" || !IsValidDeviceID(m.DeviceID) {
		return ErrInvalidDeviceID
	}
	if m.Snapshot != nil {
		if err := m.Snapshot.Validate(); err != nil {
			return err
		}
	}
	if m.Payload != nil {
		data, err := json.Marshal(m.Payload)
		if err != nil {
			return ErrInvalidPayload
		}
		if len(data) > 65536 {
			return ErrPayloadTooLarge
		}
	}
	return nil
}
