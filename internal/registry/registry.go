package registry

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sensorhub/pkg/types"
)

// DefaultIssueHistoryLimit bounds the per-device connection issue history.
const DefaultIssueHistoryLimit = 50

// QueueDepths exposes live outbound-queue depth so status reports carry an
// accurate queued_message_count without the registry owning the queue.
type QueueDepths interface {
	Len(deviceID string) int
}

// Registry is the single source of truth for which devices exist, whether
// they are online and how healthy their connection is. Operations on unknown
// device IDs are tolerated because network messages can race with explicit
// registration.
type Registry struct {
	mu         sync.RWMutex
	devices    map[string]*deviceRecord
	depths     QueueDepths
	issueLimit int
	logger     zerolog.Logger
	nowFn      func() time.Time
}

type deviceRecord struct {
	deviceID    string
	isConnected bool
	lastSeen    time.Time
	issues      []types.ConnectionIssue
}

// Status is the aggregate view used by dashboards and tests.
type Status struct {
	TotalDevices  int                                     `json:"total_devices"`
	OnlineDevices int                                     `json:"online_devices"`
	Devices       map[string]types.DeviceConnectionRecord `json:"devices"`
}

// NewRegistry creates an empty registry. depths may be nil when queue depth
// reporting is not needed (tests).
func NewRegistry(depths QueueDepths, issueLimit int, logger zerolog.Logger) *Registry {
	if issueLimit <= 0 {
		issueLimit = DefaultIssueHistoryLimit
	}
	return &Registry{
		devices:    make(map[string]*deviceRecord),
		depths:     depths,
		issueLimit: issueLimit,
		logger:     logger.With().Str("component", "device_registry").Logger(),
		nowFn:      time.Now,
	}
}

// RegisterDevice adds a new record with is_connected=true. Duplicate
// registration is a deliberate no-op: device identity may be learned at
// multiple points (hello message, reconnect). Returns true when the device
// was previously unknown.
func (r *Registry) RegisterDevice(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.devices[deviceID]; exists {
		return false
	}

	r.devices[deviceID] = &deviceRecord{
		deviceID:    deviceID,
		isConnected: true,
		lastSeen:    r.nowFn(),
	}
	r.logger.Info().Str("device_id", deviceID).Msg("device registered")
	return true
}

// HandleDisconnect flips the device offline. Pending queued messages are not
// touched. Unknown devices log and return.
func (r *Registry) HandleDisconnect(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.devices[deviceID]
	if !exists {
		r.logger.Warn().Str("device_id", deviceID).Msg("disconnect for unknown device ignored")
		return
	}
	if rec.isConnected {
		rec.isConnected = false
		r.logger.Info().Str("device_id", deviceID).Msg("device offline")
	}
}

// HandleReconnect flips the device online and refreshes last_seen. Returns
// true if the device was previously offline, signalling the coordinator to
// drain its queue. Unknown devices return false.
func (r *Registry) HandleReconnect(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.devices[deviceID]
	if !exists {
		return false
	}

	rec.lastSeen = r.nowFn()
	if rec.isConnected {
		return false
	}
	rec.isConnected = true
	r.logger.Info().Str("device_id", deviceID).Msg("device reconnected")
	return true
}

// Touch refreshes last_seen after a successful message exchange.
func (r *Registry) Touch(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, exists := r.devices[deviceID]; exists {
		rec.lastSeen = r.nowFn()
	}
}

// RecordConnectionIssue appends to the bounded issue history. It never
// causes a disconnect by itself; that decision belongs to the coordinator or
// an external monitor.
func (r *Registry) RecordConnectionIssue(deviceID, issueType string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, exists := r.devices[deviceID]
	if !exists {
		r.logger.Warn().Str("device_id", deviceID).Str("issue", issueType).
			Msg("issue for unknown device ignored")
		return
	}

	rec.issues = append(rec.issues, types.ConnectionIssue{
		Type:      issueType,
		Timestamp: r.nowFn(),
	})
	if len(rec.issues) > r.issueLimit {
		rec.issues = rec.issues[len(rec.issues)-r.issueLimit:]
	}
}

// IsConnected reports the connectivity flag. The second value is false for
// unknown devices.
func (r *Registry) IsConnected(deviceID string) (bool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.devices[deviceID]
	if !exists {
		return false, false
	}
	return rec.isConnected, true
}

// Known reports whether the device has been registered.
func (r *Registry) Known(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.devices[deviceID]
	return exists
}

// Record returns a copy of the device's connection record, including the
// live queue depth. The second value is false for unknown devices.
func (r *Registry) Record(deviceID string) (types.DeviceConnectionRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.devices[deviceID]
	if !exists {
		return types.DeviceConnectionRecord{}, false
	}
	return r.exportLocked(rec), true
}

// DeviceIDs returns the identifiers of all known devices.
func (r *Registry) DeviceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.devices))
	for id := range r.devices {
		ids = append(ids, id)
	}
	return ids
}

// GetStatus returns the aggregate snapshot used for health reporting.
func (r *Registry) GetStatus() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := Status{
		TotalDevices: len(r.devices),
		Devices:      make(map[string]types.DeviceConnectionRecord, len(r.devices)),
	}
	for id, rec := range r.devices {
		if rec.isConnected {
			status.OnlineDevices++
		}
		status.Devices[id] = r.exportLocked(rec)
	}
	return status
}

func (r *Registry) exportLocked(rec *deviceRecord) types.DeviceConnectionRecord {
	out := types.DeviceConnectionRecord{
		DeviceID:    rec.deviceID,
		IsConnected: rec.isConnected,
		LastSeen:    rec.lastSeen,
	}
	if r.depths != nil {
		out.QueuedMessageCount = r.depths.Len(rec.deviceID)
	}
	if len(rec.issues) > 0 {
		out.ConnectionIssues = append([]types.ConnectionIssue(nil), rec.issues...)
	}
	return out
}
