package types

import (
	"time"
)

// Message type constants shared between the PC coordinator and sensor nodes.
const (
	MessageTypeHello           = "hello"
	MessageTypeStateSync       = "state_sync"
	MessageTypeCommand         = "command"
	MessageTypeStatusRequest   = "status_request"
	MessageTypeAck             = "ack"
	MessageTypeConnectionIssue = "connection_issue"
)

// Calibration status values reported per sensor capability.
const (
	CalibrationPending  = "pending"
	CalibrationComplete = "complete"
	CalibrationFailed   = "failed"
)

// Priority orders outbound messages. Higher values drain first; within a
// band delivery is FIFO.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Message is the envelope for every unit exchanged with a sensor node.
// Timestamp is producer-supplied and used only for display and logging;
// ordering decisions inside the core never depend on it.
//
// Known message types carry a typed field (Snapshot, Issue); anything else
// travels in the opaque Payload map so new node firmware can ship fields the
// coordinator does not yet understand.
type Message struct {
	ID        string                 `json:"id,omitempty"`
	Type      string                 `json:"type"`
	DeviceID  string                 `json:"device_id"`
	Timestamp time.Time              `json:"timestamp"`
	Snapshot  *SessionSnapshot       `json:"snapshot,omitempty"`
	Issue     *ConnectionIssue       `json:"issue,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// SessionSnapshot is one device's last-known view of the active session.
// An empty SessionID means no session is active on that device.
// LastUpdated is stamped by the coordinator on receipt, never taken from the
// device, so unsynchronized node clocks cannot corrupt freshness checks.
type SessionSnapshot struct {
	DeviceID                 string            `json:"device_id"`
	SessionID                string            `json:"session_id,omitempty"`
	RecordingActive          bool              `json:"recording_active"`
	DevicesConnected         map[string]bool   `json:"devices_connected,omitempty"`
	RecordingStartTime       *time.Time        `json:"recording_start_time,omitempty"`
	RecordingDurationSeconds float64           `json:"recording_duration_seconds"`
	FileCount                int               `json:"file_count"`
	TotalFileSizeBytes       int64             `json:"total_file_size_bytes"`
	CalibrationStatus        map[string]string `json:"calibration_status,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty"`
	LastUpdated              time.Time         `json:"last_updated"`
}

// ConnectionIssue is one entry in a device's bounded issue history,
// e.g. {"timeout", t} or {"packet_loss", t}.
type ConnectionIssue struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// DeviceConnectionRecord is the synchronization-layer bookkeeping for one
// device, distinct from its session content.
type DeviceConnectionRecord struct {
	DeviceID           string            `json:"device_id"`
	IsConnected        bool              `json:"is_connected"`
	LastSeen           time.Time         `json:"last_seen"`
	QueuedMessageCount int               `json:"queued_message_count"`
	ConnectionIssues   []ConnectionIssue `json:"connection_issues,omitempty"`
}

// QueuedMessage is a unit in a device's outbound queue. It is created when a
// command is issued while the device is unreachable and removed the moment it
// is handed to the transport for delivery.
type QueuedMessage struct {
	ID          string                 `json:"id"`
	DeviceID    string                 `json:"device_id"`
	MessageType string                 `json:"message_type"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	Priority    Priority               `json:"priority"`
	EnqueuedAt  time.Time              `json:"enqueued_at"`
	Attempts    int                    `json:"attempts"`
}

// SessionRecord is the finalized summary handed to the persistence sink when
// a device reports the end of a recording.
type SessionRecord struct {
	DeviceID           string     `json:"device_id"`
	SessionID          string     `json:"session_id"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	EndedAt            time.Time  `json:"ended_at"`
	DurationSeconds    float64    `json:"duration_seconds"`
	FileCount          int        `json:"file_count"`
	TotalFileSizeBytes int64      `json:"total_file_size_bytes"`
}

// Clone returns a deep copy so callers can hand snapshots across goroutines
// without sharing the internal maps.
func (s *SessionSnapshot) Clone() *SessionSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	if s.DevicesConnected != nil {
		out.DevicesConnected = make(map[string]bool, len(s.DevicesConnected))
		for k, v := range s.DevicesConnected {
			out.DevicesConnected[k] = v
		}
	}
	if s.CalibrationStatus != nil {
		out.CalibrationStatus = make(map[string]string, len(s.CalibrationStatus))
		for k, v := range s.CalibrationStatus {
			out.CalibrationStatus[k] = v
		}
	}
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	if s.RecordingStartTime != nil {
		t := *s.RecordingStartTime
		out.RecordingStartTime = &t
	}
	return &out
}
