package interfaces

import (
	"context"

	"sensorhub/pkg/types"
)

// Transport delivers serialized control messages to a remote device. The
// implementation owns the real network connection; everything above it stays
// in-memory and non-blocking.
type Transport interface {
	// Send delivers one message to the device. An error means the message
	// was not handed off and the caller should keep it queued.
	Send(deviceID string, msg *types.QueuedMessage) error

	// Connected reports whether a live connection to the device exists.
	Connected(deviceID string) bool
}

// Coordinator is the surface the transport layer and the control plane (GUI
// or HTTP API) call into. Expected conditions such as unknown devices or
// absent snapshots are reported through return values, never errors.
type Coordinator interface {
	RegisterDevice(deviceID string) bool
	SyncSessionState(snapshot types.SessionSnapshot) bool
	SessionState(deviceID string) (types.SessionSnapshot, bool)
	RecoverSessionOnReconnect(deviceID string) (types.SessionSnapshot, bool)
	QueueMessage(deviceID, messageType string, payload map[string]interface{}, priority types.Priority)
	Broadcast(messageType string, payload map[string]interface{}, priority types.Priority)
	HandleDeviceDisconnect(deviceID string)
	RecordConnectionIssue(deviceID, issueType string)
	SyncStatus() types.SyncStatus
}

// SessionSink receives finalized session records for durable storage. The
// core keeps only in-memory state; durability across restarts is the sink's
// problem.
type SessionSink interface {
	SaveSessionRecord(ctx context.Context, record *types.SessionRecord) error
	HealthCheck(ctx context.Context) error
	Close() error
}
