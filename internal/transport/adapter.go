package transport

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sensorhub/pkg/types"
)

// Adapter tracks the live connection per device and implements the
// coordinator's Transport interface on top of them. A newer connection for
// the same device replaces the old one; the replaced socket is closed
// asynchronously so registration never blocks on a dying peer.
type Adapter struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	logger zerolog.Logger
}

// NewAdapter creates an adapter with no live connections.
func NewAdapter(logger zerolog.Logger) *Adapter {
	return &Adapter{
		conns:  make(map[string]*Conn),
		logger: logger.With().Str("component", "transport").Logger(),
	}
}

// Bind installs conn as the device's live connection.
func (a *Adapter) Bind(deviceID string, conn *Conn) {
	a.mu.Lock()
	old, exists := a.conns[deviceID]
	a.conns[deviceID] = conn
	a.mu.Unlock()

	if exists && old != conn {
		go func() {
			if err := old.Close(); err != nil {
				a.logger.Debug().Err(err).Str("device_id", deviceID).Msg("closing replaced connection")
			}
		}()
	}
}

// Unbind removes conn if it is still the device's registered connection.
// A replaced connection unbinding late must not evict its successor.
func (a *Adapter) Unbind(deviceID string, conn *Conn) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if current, exists := a.conns[deviceID]; exists && current == conn {
		delete(a.conns, deviceID)
	}
}

// Send serializes the queued message into a wire envelope and writes it to
// the device's live connection. An error means the message was not handed
// off and should stay queued.
func (a *Adapter) Send(deviceID string, msg *types.QueuedMessage) error {
	a.mu.RLock()
	conn, exists := a.conns[deviceID]
	a.mu.RUnlock()

	if !exists {
		return ErrDeviceNotLinked
	}

	envelope := types.Message{
		ID:        msg.ID,
		Type:      msg.MessageType,
		DeviceID:  deviceID,
		Timestamp: time.Now(),
		Payload:   msg.Payload,
	}
	return conn.WriteJSON(&envelope)
}

// Connected reports whether a live connection exists for the device.
func (a *Adapter) Connected(deviceID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, exists := a.conns[deviceID]
	return exists
}

// ConnectionCount returns the number of live connections.
func (a *Adapter) ConnectionCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.conns)
}

// CloseAll tears down every live connection, for shutdown.
func (a *Adapter) CloseAll() {
	a.mu.Lock()
	conns := make([]*Conn, 0, len(a.conns))
	for _, conn := range a.conns {
		conns = append(conns, conn)
	}
	a.conns = make(map[string]*Conn)
	a.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
